package assessment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FairForge/attestor/internal/catalog"
	"github.com/FairForge/attestor/internal/evidence"
	"github.com/FairForge/attestor/internal/identity"
)

// fakeLedger is an in-memory LedgerStore.
type fakeLedger struct {
	mu            sync.Mutex
	controls      map[string]*ControlAssessment // org|control -> row
	maturity      map[uuid.UUID]*MaturityAssessment
	maturityByOrg map[uuid.UUID]uuid.UUID
	evals         map[uuid.UUID]map[uuid.UUID]*PracticeEvaluation
	failListEvals bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		controls:      make(map[string]*ControlAssessment),
		maturity:      make(map[uuid.UUID]*MaturityAssessment),
		maturityByOrg: make(map[uuid.UUID]uuid.UUID),
		evals:         make(map[uuid.UUID]map[uuid.UUID]*PracticeEvaluation),
	}
}

func (f *fakeLedger) UpsertControlAssessment(_ context.Context, ca *ControlAssessment) (*ControlAssessment, error) {
	if ca.Score != nil && (*ca.Score < 0 || *ca.Score > 100) {
		return nil, &ValidationError{Field: "score", Reason: "must be between 0 and 100"}
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	key := ca.OrganizationID.String() + "|" + ca.ControlID.String()
	now := time.Now()
	if existing, ok := f.controls[key]; ok {
		existing.Status = ca.Status
		existing.Score = ca.Score
		if ca.EvidenceRef != nil {
			existing.EvidenceRef = ca.EvidenceRef
		}
		existing.AssessedAt = ca.AssessedAt
		existing.UpdatedAt = now
		cp := *existing
		return &cp, nil
	}
	row := &ControlAssessment{
		ID:             uuid.New(),
		OrganizationID: ca.OrganizationID,
		ControlID:      ca.ControlID,
		Status:         ca.Status,
		Score:          ca.Score,
		EvidenceRef:    ca.EvidenceRef,
		AssessedAt:     ca.AssessedAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	f.controls[key] = row
	cp := *row
	return &cp, nil
}

func (f *fakeLedger) GetControlAssessment(_ context.Context, id uuid.UUID) (*ControlAssessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.controls {
		if row.ID == id {
			cp := *row
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("control assessment %s: %w", id, ErrNotFound)
}

func (f *fakeLedger) ListControlsWithAssessments(context.Context, uuid.UUID, uuid.UUID, ListFilter, int, int) ([]ControlWithAssessment, error) {
	return nil, nil
}

func (f *fakeLedger) ClearEvidenceRef(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.controls {
		if row.ID == id {
			row.EvidenceRef = nil
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeLedger) EnsureMaturityAssessment(_ context.Context, orgID uuid.UUID) (*MaturityAssessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.maturityByOrg[orgID]; ok {
		cp := *f.maturity[id]
		return &cp, nil
	}
	ma := &MaturityAssessment{ID: uuid.New(), OrganizationID: orgID, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	f.maturity[ma.ID] = ma
	f.maturityByOrg[orgID] = ma.ID
	cp := *ma
	return &cp, nil
}

func (f *fakeLedger) GetMaturityAssessment(_ context.Context, orgID uuid.UUID) (*MaturityAssessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.maturityByOrg[orgID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f.maturity[id]
	return &cp, nil
}

func (f *fakeLedger) GetMaturityAssessmentByID(_ context.Context, id uuid.UUID) (*MaturityAssessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ma, ok := f.maturity[id]
	if !ok {
		return nil, fmt.Errorf("maturity assessment %s: %w", id, ErrNotFound)
	}
	cp := *ma
	return &cp, nil
}

func (f *fakeLedger) UpsertPracticeEvaluation(_ context.Context, assessmentID, practiceID uuid.UUID, status PracticeStatus) (*PracticeEvaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.evals[assessmentID] == nil {
		f.evals[assessmentID] = make(map[uuid.UUID]*PracticeEvaluation)
	}
	now := time.Now()
	if existing, ok := f.evals[assessmentID][practiceID]; ok {
		existing.Status = status
		existing.UpdatedAt = now
		cp := *existing
		return &cp, nil
	}
	pe := &PracticeEvaluation{
		ID:           uuid.New(),
		AssessmentID: assessmentID,
		PracticeID:   practiceID,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.evals[assessmentID][practiceID] = pe
	cp := *pe
	return &cp, nil
}

func (f *fakeLedger) ListPracticeEvaluations(_ context.Context, assessmentID uuid.UUID) ([]PracticeEvaluation, error) {
	if f.failListEvals {
		return nil, errors.New("catalogue unreadable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []PracticeEvaluation
	for _, pe := range f.evals[assessmentID] {
		out = append(out, *pe)
	}
	return out, nil
}

func (f *fakeLedger) SetAchievedTier(_ context.Context, assessmentID uuid.UUID, tier int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ma, ok := f.maturity[assessmentID]
	if !ok {
		return ErrNotFound
	}
	ma.AchievedTier = tier
	ma.UpdatedAt = time.Now()
	return nil
}

// fakeEvidence records uploads and can simulate a backend outage.
type fakeEvidence struct {
	mu         sync.Mutex
	failUpload bool
	uploads    []string
	deleted    []string
}

func (f *fakeEvidence) Upload(_ context.Context, orgID uuid.UUID, objectName string, _ io.Reader) (string, error) {
	if f.failUpload {
		return "", errors.New("backend outage")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := evidence.ObjectKey(orgID, objectName)
	f.uploads = append(f.uploads, key)
	return key, nil
}

func (f *fakeEvidence) Delete(_ context.Context, objectName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, objectName)
	return nil
}

func (f *fakeEvidence) SignedURL(_ context.Context, objectName string, _ time.Duration) (string, error) {
	return "https://signed.example/" + objectName, nil
}

// fakeNotifier forwards event types to a channel so tests can observe the
// async emit.
type fakeNotifier struct {
	events chan string
}

func (f *fakeNotifier) Emit(_ context.Context, eventType string, _ uuid.UUID, _ map[string]interface{}) {
	select {
	case f.events <- eventType:
	default:
	}
}

type serviceFixture struct {
	service  *Service
	catalog  *catalog.MemoryStore
	ledger   *fakeLedger
	evidence *fakeEvidence
	notifier *fakeNotifier
	caller   *identity.Identity
	control  catalog.Control
	p1       catalog.Practice
	p2       catalog.Practice
	p3       catalog.Practice
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	cat := catalog.NewMemoryStore()
	fw := catalog.Framework{ID: uuid.New(), Name: "NIST CSF", Version: "2.0"}
	cat.AddFramework(fw)
	control := catalog.Control{ID: uuid.New(), FrameworkID: fw.ID, Code: "PR.AC-1", Family: "Protect"}
	cat.AddControl(control)

	domain := catalog.Domain{ID: uuid.New(), Name: "Governance", Code: "GOV"}
	cat.AddDomain(domain)
	p1 := catalog.Practice{ID: uuid.New(), DomainID: domain.ID, Code: "GOV-1", TargetTier: 1}
	p2 := catalog.Practice{ID: uuid.New(), DomainID: domain.ID, Code: "GOV-2", TargetTier: 1}
	p3 := catalog.Practice{ID: uuid.New(), DomainID: domain.ID, Code: "GOV-3", TargetTier: 2}
	cat.AddPractice(p1)
	cat.AddPractice(p2)
	cat.AddPractice(p3)

	ledger := newFakeLedger()
	ev := &fakeEvidence{}
	notifier := &fakeNotifier{events: make(chan string, 16)}

	return &serviceFixture{
		service:  NewService(cat, ledger, ev, notifier, nil, zap.NewNop()),
		catalog:  cat,
		ledger:   ledger,
		evidence: ev,
		notifier: notifier,
		caller: &identity.Identity{
			OrganizationID: uuid.New(),
			UserID:         uuid.New(),
			Role:           "assessor",
		},
		control: control,
		p1:      p1,
		p2:      p2,
		p3:      p3,
	}
}

func TestSubmitControlAssessmentCrossOrgForbidden(t *testing.T) {
	fx := newServiceFixture(t)

	_, err := fx.service.SubmitControlAssessment(context.Background(), fx.caller, SubmitControlInput{
		OrganizationID: uuid.New(), // not the caller's org
		ControlID:      fx.control.ID,
		Status:         ControlCompliant,
	})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, fx.ledger.controls, "no ledger write on forbidden request")
}

func TestSubmitControlAssessmentUnknownControl(t *testing.T) {
	fx := newServiceFixture(t)

	_, err := fx.service.SubmitControlAssessment(context.Background(), fx.caller, SubmitControlInput{
		ControlID: uuid.New(),
		Status:    ControlCompliant,
	})
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestSubmitControlAssessmentIdempotent(t *testing.T) {
	fx := newServiceFixture(t)
	score := 90
	in := SubmitControlInput{
		ControlID:  fx.control.ID,
		Status:     ControlPartiallyCompliant,
		Score:      &score,
		AssessedAt: time.Now(),
	}

	first, err := fx.service.SubmitControlAssessment(context.Background(), fx.caller, in)
	require.NoError(t, err)
	second, err := fx.service.SubmitControlAssessment(context.Background(), fx.caller, in)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "same row, not a duplicate")
	assert.Len(t, fx.ledger.controls, 1)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, *first.Score, *second.Score)
}

func TestSubmitControlAssessmentUploadFailureLeavesNoRow(t *testing.T) {
	fx := newServiceFixture(t)
	fx.evidence.failUpload = true

	_, err := fx.service.SubmitControlAssessment(context.Background(), fx.caller, SubmitControlInput{
		ControlID: fx.control.ID,
		Status:    ControlCompliant,
		File:      &EvidenceFile{Name: "policy.pdf", Content: strings.NewReader("x")},
	})
	require.Error(t, err)
	assert.Empty(t, fx.ledger.controls, "upload failure aborts before the ledger write")

	// Retrying without a file persists a status-only row.
	fx.evidence.failUpload = true // backend still down, but no file attached
	persisted, err := fx.service.SubmitControlAssessment(context.Background(), fx.caller, SubmitControlInput{
		ControlID: fx.control.ID,
		Status:    ControlCompliant,
	})
	require.NoError(t, err)
	assert.Nil(t, persisted.EvidenceRef)
	assert.Len(t, fx.ledger.controls, 1)
}

func TestSubmitControlAssessmentWithFile(t *testing.T) {
	fx := newServiceFixture(t)

	persisted, err := fx.service.SubmitControlAssessment(context.Background(), fx.caller, SubmitControlInput{
		ControlID: fx.control.ID,
		Status:    ControlCompliant,
		File:      &EvidenceFile{Name: "policy.pdf", Content: strings.NewReader("x")},
	})
	require.NoError(t, err)
	require.NotNil(t, persisted.EvidenceRef)
	assert.Contains(t, *persisted.EvidenceRef, fx.caller.OrganizationID.String())

	select {
	case event := <-fx.notifier.events:
		assert.Equal(t, "assessment.updated", event)
	case <-time.After(time.Second):
		t.Fatal("expected an assessment.updated event")
	}
}

func TestSubmitPracticeEvaluationScoringProgression(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	ma, card, err := fx.service.MaturityOverview(ctx, fx.caller)
	require.NoError(t, err)
	assert.Equal(t, 0, card.AchievedTier, "nothing evaluated yet")

	// Tier 1 partially done.
	_, tier, err := fx.service.SubmitPracticeEvaluation(ctx, fx.caller, ma.ID, fx.p1.ID, PracticeFullyImplemented)
	require.NoError(t, err)
	assert.Equal(t, 0, tier)

	// Tier 1 complete, tier 2 partial.
	_, _, err = fx.service.SubmitPracticeEvaluation(ctx, fx.caller, ma.ID, fx.p2.ID, PracticeFullyImplemented)
	require.NoError(t, err)
	_, tier, err = fx.service.SubmitPracticeEvaluation(ctx, fx.caller, ma.ID, fx.p3.ID, PracticePartiallyImplemented)
	require.NoError(t, err)
	assert.Equal(t, 1, tier)

	// Everything complete.
	_, tier, err = fx.service.SubmitPracticeEvaluation(ctx, fx.caller, ma.ID, fx.p3.ID, PracticeFullyImplemented)
	require.NoError(t, err)
	assert.Equal(t, 2, tier)

	// Regressing a tier-1 practice collapses the tier despite p3.
	_, tier, err = fx.service.SubmitPracticeEvaluation(ctx, fx.caller, ma.ID, fx.p2.ID, PracticeNotImplemented)
	require.NoError(t, err)
	assert.Equal(t, 0, tier)

	stored, err := fx.ledger.GetMaturityAssessmentByID(ctx, ma.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.AchievedTier, "tier persisted on the aggregate")
}

func TestSubmitPracticeEvaluationUnknownPractice(t *testing.T) {
	fx := newServiceFixture(t)
	ma, _, err := fx.service.MaturityOverview(context.Background(), fx.caller)
	require.NoError(t, err)

	_, _, err = fx.service.SubmitPracticeEvaluation(context.Background(), fx.caller, ma.ID, uuid.New(), PracticeFullyImplemented)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestSubmitPracticeEvaluationCrossOrgForbidden(t *testing.T) {
	fx := newServiceFixture(t)

	other := &identity.Identity{OrganizationID: uuid.New(), UserID: uuid.New()}
	ma, _, err := fx.service.MaturityOverview(context.Background(), other)
	require.NoError(t, err)

	_, _, err = fx.service.SubmitPracticeEvaluation(context.Background(), fx.caller, ma.ID, fx.p1.ID, PracticeFullyImplemented)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSubmitPracticeEvaluationRescoreFailureKeepsPriorTier(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	ma, _, err := fx.service.MaturityOverview(ctx, fx.caller)
	require.NoError(t, err)
	_, _, err = fx.service.SubmitPracticeEvaluation(ctx, fx.caller, ma.ID, fx.p1.ID, PracticeFullyImplemented)
	require.NoError(t, err)
	_, tier, err := fx.service.SubmitPracticeEvaluation(ctx, fx.caller, ma.ID, fx.p2.ID, PracticeFullyImplemented)
	require.NoError(t, err)
	require.Equal(t, 1, tier)

	fx.ledger.failListEvals = true
	pe, tier, err := fx.service.SubmitPracticeEvaluation(ctx, fx.caller, ma.ID, fx.p3.ID, PracticeFullyImplemented)
	require.NoError(t, err, "evaluation write survives a rescore failure")
	assert.NotNil(t, pe)
	assert.Equal(t, 1, tier, "stale tier reported until the next successful rescore")
}

func TestEvidenceURLChecksOwnership(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	persisted, err := fx.service.SubmitControlAssessment(ctx, fx.caller, SubmitControlInput{
		ControlID: fx.control.ID,
		Status:    ControlCompliant,
		File:      &EvidenceFile{Name: "policy.pdf", Content: strings.NewReader("x")},
	})
	require.NoError(t, err)

	url, err := fx.service.EvidenceURL(ctx, fx.caller, persisted.ID, 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "signed.example")

	other := &identity.Identity{OrganizationID: uuid.New(), UserID: uuid.New()}
	_, err = fx.service.EvidenceURL(ctx, other, persisted.ID, 15*time.Minute)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRemoveEvidenceIdempotent(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	persisted, err := fx.service.SubmitControlAssessment(ctx, fx.caller, SubmitControlInput{
		ControlID: fx.control.ID,
		Status:    ControlCompliant,
		File:      &EvidenceFile{Name: "policy.pdf", Content: strings.NewReader("x")},
	})
	require.NoError(t, err)

	require.NoError(t, fx.service.RemoveEvidence(ctx, fx.caller, persisted.ID))
	require.Len(t, fx.evidence.deleted, 1)

	// Evidence already detached; removing again is success.
	require.NoError(t, fx.service.RemoveEvidence(ctx, fx.caller, persisted.ID))
	assert.Len(t, fx.evidence.deleted, 1, "no second backend delete once detached")
}
