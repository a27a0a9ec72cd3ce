package assessment

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/FairForge/attestor/internal/catalog"
)

func practiceSet() (catalog.Practice, catalog.Practice, catalog.Practice) {
	domain := uuid.New()
	p1 := catalog.Practice{ID: uuid.New(), DomainID: domain, Code: "GOV-1", TargetTier: 1}
	p2 := catalog.Practice{ID: uuid.New(), DomainID: domain, Code: "GOV-2", TargetTier: 1}
	p3 := catalog.Practice{ID: uuid.New(), DomainID: domain, Code: "GOV-3", TargetTier: 2}
	return p1, p2, p3
}

func eval(practiceID uuid.UUID, status PracticeStatus) PracticeEvaluation {
	return PracticeEvaluation{
		ID:         uuid.New(),
		PracticeID: practiceID,
		Status:     status,
	}
}

func TestAchievedTier(t *testing.T) {
	p1, p2, p3 := practiceSet()
	practices := []catalog.Practice{p1, p2, p3}

	tests := []struct {
		name        string
		evaluations []PracticeEvaluation
		want        int
	}{
		{
			name:        "no evaluations",
			evaluations: nil,
			want:        0,
		},
		{
			name: "tier one complete, tier two partial",
			evaluations: []PracticeEvaluation{
				eval(p1.ID, PracticeFullyImplemented),
				eval(p2.ID, PracticeFullyImplemented),
				eval(p3.ID, PracticePartiallyImplemented),
			},
			want: 1,
		},
		{
			name: "all fully implemented",
			evaluations: []PracticeEvaluation{
				eval(p1.ID, PracticeFullyImplemented),
				eval(p2.ID, PracticeFullyImplemented),
				eval(p3.ID, PracticeFullyImplemented),
			},
			want: 2,
		},
		{
			name: "gap in tier one blocks everything above it",
			evaluations: []PracticeEvaluation{
				eval(p1.ID, PracticeFullyImplemented),
				eval(p2.ID, PracticeNotImplemented),
				eval(p3.ID, PracticeFullyImplemented),
			},
			want: 0,
		},
		{
			name: "missing evaluation counts as not implemented",
			evaluations: []PracticeEvaluation{
				eval(p1.ID, PracticeFullyImplemented),
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AchievedTier(practices, tt.evaluations)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAchievedTierVacuousTier(t *testing.T) {
	// Practices at tiers 1 and 3 only; tier 2 has none and must not block.
	domain := uuid.New()
	p1 := catalog.Practice{ID: uuid.New(), DomainID: domain, TargetTier: 1}
	p3 := catalog.Practice{ID: uuid.New(), DomainID: domain, TargetTier: 3}
	practices := []catalog.Practice{p1, p3}

	got := AchievedTier(practices, []PracticeEvaluation{
		eval(p1.ID, PracticeFullyImplemented),
		eval(p3.ID, PracticeFullyImplemented),
	})
	assert.Equal(t, 3, got)

	// Tier 3 unmet still leaves tiers 1 and 2 satisfied.
	got = AchievedTier(practices, []PracticeEvaluation{
		eval(p1.ID, PracticeFullyImplemented),
	})
	assert.Equal(t, 2, got)
}

func TestAchievedTierOrderIndependent(t *testing.T) {
	p1, p2, p3 := practiceSet()
	practices := []catalog.Practice{p1, p2, p3}
	evals := []PracticeEvaluation{
		eval(p3.ID, PracticeFullyImplemented),
		eval(p1.ID, PracticeFullyImplemented),
		eval(p2.ID, PracticeFullyImplemented),
	}

	forward := AchievedTier(practices, evals)
	reversed := AchievedTier(
		[]catalog.Practice{p3, p2, p1},
		[]PracticeEvaluation{evals[2], evals[0], evals[1]},
	)
	assert.Equal(t, forward, reversed)
	assert.Equal(t, 2, forward)
}

func TestAchievedTierIdempotent(t *testing.T) {
	p1, p2, p3 := practiceSet()
	practices := []catalog.Practice{p1, p2, p3}
	evals := []PracticeEvaluation{
		eval(p1.ID, PracticeFullyImplemented),
		eval(p2.ID, PracticeFullyImplemented),
	}

	first := AchievedTier(practices, evals)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, AchievedTier(practices, evals))
	}
}

func TestAchievedTierEmptyCatalogue(t *testing.T) {
	assert.Equal(t, 0, AchievedTier(nil, nil))
}

func TestScoreDomainBreakdown(t *testing.T) {
	govDomain := uuid.New()
	opsDomain := uuid.New()
	g1 := catalog.Practice{ID: uuid.New(), DomainID: govDomain, TargetTier: 1}
	g2 := catalog.Practice{ID: uuid.New(), DomainID: govDomain, TargetTier: 2}
	o1 := catalog.Practice{ID: uuid.New(), DomainID: opsDomain, TargetTier: 1}
	practices := []catalog.Practice{g1, g2, o1}

	card := Score(practices, []PracticeEvaluation{
		eval(g1.ID, PracticeFullyImplemented),
		eval(g2.ID, PracticeFullyImplemented),
		eval(o1.ID, PracticePartiallyImplemented),
	})

	// Overall tier gated by the weakest domain's tier-1 gap.
	assert.Equal(t, 0, card.AchievedTier)

	tiers := map[uuid.UUID]int{}
	for _, d := range card.Domains {
		tiers[d.DomainID] = d.AchievedTier
	}
	assert.Equal(t, 2, tiers[govDomain])
	assert.Equal(t, 0, tiers[opsDomain])
}
