// Package assessment holds the per-organization evaluation ledger, the
// maturity scoring engine and the coordinator that ties them to the
// evidence store.
package assessment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ControlStatus is the compliance status of a control assessment.
type ControlStatus string

const (
	ControlCompliant          ControlStatus = "compliant"
	ControlNonCompliant       ControlStatus = "non_compliant"
	ControlPartiallyCompliant ControlStatus = "partially_compliant"
)

// Valid reports whether s is a known control status.
func (s ControlStatus) Valid() bool {
	switch s {
	case ControlCompliant, ControlNonCompliant, ControlPartiallyCompliant:
		return true
	}
	return false
}

// PracticeStatus is the implementation status of a maturity practice.
type PracticeStatus string

const (
	PracticeNotImplemented       PracticeStatus = "not_implemented"
	PracticePartiallyImplemented PracticeStatus = "partially_implemented"
	PracticeFullyImplemented     PracticeStatus = "fully_implemented"
)

// Valid reports whether s is a known practice status.
func (s PracticeStatus) Valid() bool {
	switch s {
	case PracticeNotImplemented, PracticePartiallyImplemented, PracticeFullyImplemented:
		return true
	}
	return false
}

// Sentinel errors, mapped to stable error codes at the API boundary.
var (
	ErrNotFound           = errors.New("assessment: not found")
	ErrForbidden          = errors.New("assessment: forbidden")
	ErrConflict           = errors.New("assessment: conflict")
	ErrStorageUnavailable = errors.New("assessment: evidence storage unavailable")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("assessment: invalid %s: %s", e.Field, e.Reason)
}

// ControlAssessment is one organization's evaluation of one control.
// Unique on (organization, control); updated in place on re-evaluation.
type ControlAssessment struct {
	ID             uuid.UUID     `json:"id"`
	OrganizationID uuid.UUID     `json:"organization_id"`
	ControlID      uuid.UUID     `json:"control_id"`
	Status         ControlStatus `json:"status"`
	Score          *int          `json:"score,omitempty"`
	EvidenceRef    *string       `json:"evidence_ref,omitempty"`
	AssessedAt     time.Time     `json:"assessment_date"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// PracticeEvaluation is one practice's status within a maturity assessment.
// Unique on (assessment, practice).
type PracticeEvaluation struct {
	ID           uuid.UUID      `json:"id"`
	AssessmentID uuid.UUID      `json:"assessment_id"`
	PracticeID   uuid.UUID      `json:"practice_id"`
	Status       PracticeStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// MaturityAssessment is the per-organization aggregate that owns practice
// evaluations and carries the derived tier. AchievedTier is only ever
// written by the scoring engine, never by a client.
type MaturityAssessment struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	AchievedTier   int       `json:"achieved_tier"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
