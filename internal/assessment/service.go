package assessment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FairForge/attestor/internal/audit"
	"github.com/FairForge/attestor/internal/catalog"
	"github.com/FairForge/attestor/internal/evidence"
	"github.com/FairForge/attestor/internal/identity"
)

// LedgerStore is the persistence surface the coordinator needs. *Ledger is
// the production implementation.
type LedgerStore interface {
	UpsertControlAssessment(ctx context.Context, ca *ControlAssessment) (*ControlAssessment, error)
	GetControlAssessment(ctx context.Context, id uuid.UUID) (*ControlAssessment, error)
	ListControlsWithAssessments(ctx context.Context, orgID, frameworkID uuid.UUID, filter ListFilter, limit, offset int) ([]ControlWithAssessment, error)
	ClearEvidenceRef(ctx context.Context, id uuid.UUID) error
	EnsureMaturityAssessment(ctx context.Context, orgID uuid.UUID) (*MaturityAssessment, error)
	GetMaturityAssessment(ctx context.Context, orgID uuid.UUID) (*MaturityAssessment, error)
	GetMaturityAssessmentByID(ctx context.Context, id uuid.UUID) (*MaturityAssessment, error)
	UpsertPracticeEvaluation(ctx context.Context, assessmentID, practiceID uuid.UUID, status PracticeStatus) (*PracticeEvaluation, error)
	ListPracticeEvaluations(ctx context.Context, assessmentID uuid.UUID) ([]PracticeEvaluation, error)
	SetAchievedTier(ctx context.Context, assessmentID uuid.UUID, tier int) error
}

// Notifier emits best-effort events; implementations must never block the
// write path on delivery failures.
type Notifier interface {
	Emit(ctx context.Context, eventType string, orgID uuid.UUID, data map[string]interface{})
}

// Auditor records the audit trail.
type Auditor interface {
	Record(ctx context.Context, event *audit.Event) error
}

// Service coordinates evidence uploads, ledger writes and rescoring. It is
// request-scoped and stateless between calls.
type Service struct {
	catalog  catalog.Store
	ledger   LedgerStore
	evidence evidence.Store
	notifier Notifier
	auditor  Auditor
	logger   *zap.Logger
}

// NewService wires the coordinator. All collaborators are selected once at
// bootstrap and passed in; nothing is read from ambient state at call time.
func NewService(cat catalog.Store, ledger LedgerStore, ev evidence.Store, notifier Notifier, auditor Auditor, logger *zap.Logger) *Service {
	return &Service{
		catalog:  cat,
		ledger:   ledger,
		evidence: ev,
		notifier: notifier,
		auditor:  auditor,
		logger:   logger,
	}
}

// EvidenceFile is an uploaded evidence artifact.
type EvidenceFile struct {
	Name    string
	Content io.Reader
}

// SubmitControlInput is one control evaluation submission.
type SubmitControlInput struct {
	// OrganizationID is the target organization; uuid.Nil means the
	// caller's own organization.
	OrganizationID uuid.UUID
	ControlID      uuid.UUID
	Status         ControlStatus
	Score          *int
	AssessedAt     time.Time
	EvidenceURL    *string
	File           *EvidenceFile
}

// SubmitControlAssessment persists a control evaluation, uploading evidence
// first so a failed upload never leaves a dangling reference in the ledger.
func (s *Service) SubmitControlAssessment(ctx context.Context, caller *identity.Identity, in SubmitControlInput) (*ControlAssessment, error) {
	if in.OrganizationID != uuid.Nil && in.OrganizationID != caller.OrganizationID {
		return nil, fmt.Errorf("organization %s: %w", in.OrganizationID, ErrForbidden)
	}
	if !in.Status.Valid() {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", in.Status)}
	}
	if in.AssessedAt.IsZero() {
		in.AssessedAt = time.Now().UTC()
	}

	if _, err := s.catalog.GetControl(ctx, in.ControlID); err != nil {
		return nil, err
	}

	evidenceRef := in.EvidenceURL
	uploadedKey := ""
	if in.File != nil {
		key, err := s.evidence.Upload(ctx, caller.OrganizationID, in.File.Name, in.File.Content)
		if err != nil {
			// Abort before touching the ledger: no partial state.
			return nil, fmt.Errorf("upload evidence: %w", errors.Join(ErrStorageUnavailable, err))
		}
		uploadedKey = key
		evidenceRef = &key
	}

	persisted, err := s.ledger.UpsertControlAssessment(ctx, &ControlAssessment{
		OrganizationID: caller.OrganizationID,
		ControlID:      in.ControlID,
		Status:         in.Status,
		Score:          in.Score,
		EvidenceRef:    evidenceRef,
		AssessedAt:     in.AssessedAt,
	})
	if err != nil {
		if uploadedKey != "" {
			// The ledger rejected the row; the uploaded object is orphaned.
			if delErr := s.evidence.Delete(ctx, uploadedKey); delErr != nil {
				s.logger.Warn("orphaned evidence object left behind",
					zap.String("key", uploadedKey),
					zap.Error(delErr))
			}
		}
		return nil, err
	}

	s.recordAudit(ctx, caller, audit.ActionControlAssessed, "control/"+in.ControlID.String(),
		map[string]string{"status": string(in.Status)})
	s.emit(ctx, "assessment.updated", caller.OrganizationID, map[string]interface{}{
		"control_assessment_id": persisted.ID.String(),
		"control_id":            persisted.ControlID.String(),
		"status":                string(persisted.Status),
	})

	return persisted, nil
}

// SubmitPracticeEvaluation upserts one practice status and rescores the
// owning maturity assessment. A rescore failure leaves the prior tier in
// place; the evaluation write is never rolled back.
func (s *Service) SubmitPracticeEvaluation(ctx context.Context, caller *identity.Identity, assessmentID, practiceID uuid.UUID, status PracticeStatus) (*PracticeEvaluation, int, error) {
	ma, err := s.ledger.GetMaturityAssessmentByID(ctx, assessmentID)
	if err != nil {
		return nil, 0, err
	}
	if ma.OrganizationID != caller.OrganizationID {
		return nil, 0, fmt.Errorf("assessment %s: %w", assessmentID, ErrForbidden)
	}

	if _, err := s.catalog.GetPractice(ctx, practiceID); err != nil {
		return nil, 0, err
	}

	pe, err := s.ledger.UpsertPracticeEvaluation(ctx, assessmentID, practiceID, status)
	if err != nil {
		return nil, 0, err
	}

	tier, err := s.rescore(ctx, ma.ID)
	if err != nil {
		s.logger.Error("maturity rescore failed, keeping prior tier",
			zap.String("assessment_id", ma.ID.String()),
			zap.Int("prior_tier", ma.AchievedTier),
			zap.Error(err))
		tier = ma.AchievedTier
	} else {
		s.emit(ctx, "maturity.rescored", caller.OrganizationID, map[string]interface{}{
			"assessment_id": ma.ID.String(),
			"achieved_tier": tier,
		})
	}

	s.recordAudit(ctx, caller, audit.ActionPracticeEvaluated, "practice/"+practiceID.String(),
		map[string]string{"status": string(status)})

	return pe, tier, nil
}

// rescore re-reads the full evaluation set after the write so the result
// reflects whichever concurrent write won.
func (s *Service) rescore(ctx context.Context, assessmentID uuid.UUID) (int, error) {
	practices, err := s.catalog.ListPractices(ctx)
	if err != nil {
		return 0, fmt.Errorf("load practice catalogue: %w", err)
	}
	evals, err := s.ledger.ListPracticeEvaluations(ctx, assessmentID)
	if err != nil {
		return 0, fmt.Errorf("load evaluations: %w", err)
	}

	tier := AchievedTier(practices, evals)
	if err := s.ledger.SetAchievedTier(ctx, assessmentID, tier); err != nil {
		return 0, err
	}
	return tier, nil
}

// MaturityOverview returns the caller's maturity aggregate and scorecard,
// creating the aggregate on first access so clients learn its id.
func (s *Service) MaturityOverview(ctx context.Context, caller *identity.Identity) (*MaturityAssessment, *Scorecard, error) {
	ma, err := s.ledger.EnsureMaturityAssessment(ctx, caller.OrganizationID)
	if err != nil {
		return nil, nil, err
	}

	practices, err := s.catalog.ListPractices(ctx)
	if err != nil {
		return nil, nil, err
	}
	evals, err := s.ledger.ListPracticeEvaluations(ctx, ma.ID)
	if err != nil {
		return nil, nil, err
	}

	card := Score(practices, evals)
	return ma, &card, nil
}

// ListControls returns a framework's controls joined with the caller's
// assessments, paged.
func (s *Service) ListControls(ctx context.Context, caller *identity.Identity, frameworkID uuid.UUID, filter ListFilter, page, pageSize int) ([]ControlWithAssessment, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", filter.Status)}
	}
	if _, err := s.catalog.GetFramework(ctx, frameworkID); err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	return s.ledger.ListControlsWithAssessments(ctx, caller.OrganizationID, frameworkID,
		filter, pageSize, (page-1)*pageSize)
}

// EvidenceURL produces a time-boxed access URL for a control assessment's
// evidence object.
func (s *Service) EvidenceURL(ctx context.Context, caller *identity.Identity, controlAssessmentID uuid.UUID, ttl time.Duration) (string, error) {
	ca, err := s.ledger.GetControlAssessment(ctx, controlAssessmentID)
	if err != nil {
		return "", err
	}
	if ca.OrganizationID != caller.OrganizationID {
		return "", fmt.Errorf("control assessment %s: %w", controlAssessmentID, ErrForbidden)
	}
	if ca.EvidenceRef == nil {
		return "", fmt.Errorf("control assessment %s has no evidence: %w", controlAssessmentID, ErrNotFound)
	}
	return s.evidence.SignedURL(ctx, *ca.EvidenceRef, ttl)
}

// RemoveEvidence deletes the evidence object and detaches the reference.
// Removing already-removed evidence is success.
func (s *Service) RemoveEvidence(ctx context.Context, caller *identity.Identity, controlAssessmentID uuid.UUID) error {
	ca, err := s.ledger.GetControlAssessment(ctx, controlAssessmentID)
	if err != nil {
		return err
	}
	if ca.OrganizationID != caller.OrganizationID {
		return fmt.Errorf("control assessment %s: %w", controlAssessmentID, ErrForbidden)
	}
	if ca.EvidenceRef == nil {
		return nil
	}

	if err := s.evidence.Delete(ctx, *ca.EvidenceRef); err != nil && !errors.Is(err, evidence.ErrNotConfigured) {
		return fmt.Errorf("delete evidence: %w", errors.Join(ErrStorageUnavailable, err))
	}
	if err := s.ledger.ClearEvidenceRef(ctx, controlAssessmentID); err != nil {
		return err
	}

	s.recordAudit(ctx, caller, audit.ActionEvidenceDeleted, "assessment/"+controlAssessmentID.String(), nil)
	s.emit(ctx, "assessment.evidence_deleted", caller.OrganizationID, map[string]interface{}{
		"control_assessment_id": controlAssessmentID.String(),
	})
	return nil
}

func (s *Service) recordAudit(ctx context.Context, caller *identity.Identity, action, resource string, metadata map[string]string) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Record(ctx, &audit.Event{
		OrganizationID: caller.OrganizationID,
		UserID:         caller.UserID,
		Action:         action,
		Resource:       resource,
		Result:         audit.ResultSuccess,
		Metadata:       metadata,
	})
	if err != nil {
		s.logger.Warn("audit record failed", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) emit(ctx context.Context, eventType string, orgID uuid.UUID, data map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	// Detached from the request context so a client disconnect does not
	// cancel delivery mid-flight.
	go s.notifier.Emit(context.WithoutCancel(ctx), eventType, orgID, data)
}
