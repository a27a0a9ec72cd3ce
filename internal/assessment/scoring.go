package assessment

import (
	"github.com/google/uuid"

	"github.com/FairForge/attestor/internal/catalog"
)

// Scorecard is the output of one scoring run.
type Scorecard struct {
	AchievedTier int          `json:"achieved_tier"`
	Domains      []DomainTier `json:"domains"`
}

// DomainTier is the tier achieved within a single maturity domain.
type DomainTier struct {
	DomainID     uuid.UUID `json:"domain_id"`
	AchievedTier int       `json:"achieved_tier"`
}

// AchievedTier computes the highest fully-satisfied maturity tier.
//
// Tiers are cumulative prerequisites: tier n counts only if every practice
// with target_tier <= n is fully implemented, so the walk stops at the
// first unmet tier. A tier with no practices is vacuously satisfied. The
// result depends only on the practice -> status mapping, never on
// evaluation order; a missing evaluation counts as not implemented.
func AchievedTier(practices []catalog.Practice, evaluations []PracticeEvaluation) int {
	byPractice := make(map[uuid.UUID]PracticeStatus, len(evaluations))
	for _, e := range evaluations {
		byPractice[e.PracticeID] = e.Status
	}

	maxTier := 0
	for _, p := range practices {
		if p.TargetTier > maxTier {
			maxTier = p.TargetTier
		}
	}

	achieved := 0
	for tier := 1; tier <= maxTier; tier++ {
		allSatisfied := true
		for _, p := range practices {
			if p.TargetTier != tier {
				continue
			}
			if byPractice[p.ID] != PracticeFullyImplemented {
				allSatisfied = false
				break
			}
		}
		if !allSatisfied {
			break
		}
		achieved = tier
	}
	return achieved
}

// Score computes the overall tier plus a per-domain breakdown, grouping the
// practice catalogue by domain and running the same walk on each group.
func Score(practices []catalog.Practice, evaluations []PracticeEvaluation) Scorecard {
	byDomain := make(map[uuid.UUID][]catalog.Practice)
	var domainOrder []uuid.UUID
	for _, p := range practices {
		if _, seen := byDomain[p.DomainID]; !seen {
			domainOrder = append(domainOrder, p.DomainID)
		}
		byDomain[p.DomainID] = append(byDomain[p.DomainID], p)
	}

	card := Scorecard{
		AchievedTier: AchievedTier(practices, evaluations),
		Domains:      make([]DomainTier, 0, len(domainOrder)),
	}
	for _, id := range domainOrder {
		card.Domains = append(card.Domains, DomainTier{
			DomainID:     id,
			AchievedTier: AchievedTier(byDomain[id], evaluations),
		})
	}
	return card
}
