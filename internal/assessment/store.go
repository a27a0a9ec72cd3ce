package assessment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/FairForge/attestor/internal/catalog"
)

// Ledger persists control assessments, maturity assessments and practice
// evaluations. All writes are single-statement upserts; concurrent writes
// for the same key resolve to last-write-wins at the database.
type Ledger struct {
	db *sql.DB
}

// NewLedger creates a ledger over an existing connection pool.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// ListFilter narrows a control assessment listing.
type ListFilter struct {
	Status ControlStatus // empty = any
	Family string        // empty = any
}

// ControlWithAssessment joins a catalogue control with the organization's
// latest assessment of it, if any.
type ControlWithAssessment struct {
	Control    catalog.Control    `json:"control"`
	Assessment *ControlAssessment `json:"assessment,omitempty"`
}

// UpsertControlAssessment inserts or updates the (organization, control)
// row in one statement. An omitted evidence reference leaves any existing
// reference in place; detaching evidence is a separate operation.
func (l *Ledger) UpsertControlAssessment(ctx context.Context, ca *ControlAssessment) (*ControlAssessment, error) {
	if ca.Score != nil && (*ca.Score < 0 || *ca.Score > 100) {
		return nil, &ValidationError{Field: "score", Reason: "must be between 0 and 100"}
	}
	if !ca.Status.Valid() {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", ca.Status)}
	}

	row := l.db.QueryRowContext(ctx,
		`INSERT INTO control_assessments
		     (id, organization_id, control_id, status, score, evidence_ref, assessed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (organization_id, control_id) DO UPDATE
		 SET status = EXCLUDED.status,
		     score = EXCLUDED.score,
		     evidence_ref = COALESCE(EXCLUDED.evidence_ref, control_assessments.evidence_ref),
		     assessed_at = EXCLUDED.assessed_at,
		     updated_at = NOW()
		 RETURNING id, organization_id, control_id, status, score, evidence_ref,
		           assessed_at, created_at, updated_at`,
		uuid.New(), ca.OrganizationID, ca.ControlID, ca.Status, ca.Score, ca.EvidenceRef, ca.AssessedAt)

	persisted, err := scanControlAssessment(row)
	if err != nil {
		return nil, fmt.Errorf("upsert control assessment: %w", translatePQError(err))
	}
	return persisted, nil
}

// GetControlAssessment returns one control assessment by id.
func (l *Ledger) GetControlAssessment(ctx context.Context, id uuid.UUID) (*ControlAssessment, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, organization_id, control_id, status, score, evidence_ref,
		        assessed_at, created_at, updated_at
		 FROM control_assessments WHERE id = $1`, id)

	ca, err := scanControlAssessment(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("control assessment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query control assessment: %w", err)
	}
	return ca, nil
}

// ListControlsWithAssessments returns a framework's controls joined with the
// organization's latest assessment of each, filtered and paged.
func (l *Ledger) ListControlsWithAssessments(ctx context.Context, orgID, frameworkID uuid.UUID, filter ListFilter, limit, offset int) ([]ControlWithAssessment, error) {
	query := `
		SELECT c.id, c.framework_id, c.control_code, c.description, c.family,
		       ca.id, ca.organization_id, ca.control_id, ca.status, ca.score,
		       ca.evidence_ref, ca.assessed_at, ca.created_at, ca.updated_at
		FROM controls c
		LEFT JOIN control_assessments ca
		  ON ca.control_id = c.id AND ca.organization_id = $1
		WHERE c.framework_id = $2`
	args := []interface{}{orgID, frameworkID}
	argIdx := 3

	if filter.Status != "" {
		query += fmt.Sprintf(" AND ca.status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.Family != "" {
		query += fmt.Sprintf(" AND c.family = $%d", argIdx)
		args = append(args, filter.Family)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY c.control_code LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list control assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ControlWithAssessment
	for rows.Next() {
		var (
			item       ControlWithAssessment
			caID       sql.NullString
			caOrg      sql.NullString
			caControl  sql.NullString
			caStatus   sql.NullString
			caScore    sql.NullInt64
			caEvidence sql.NullString
			caAssessed sql.NullTime
			caCreated  sql.NullTime
			caUpdated  sql.NullTime
		)
		err := rows.Scan(
			&item.Control.ID, &item.Control.FrameworkID, &item.Control.Code,
			&item.Control.Description, &item.Control.Family,
			&caID, &caOrg, &caControl, &caStatus, &caScore,
			&caEvidence, &caAssessed, &caCreated, &caUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("scan control row: %w", err)
		}
		if caID.Valid {
			ca := &ControlAssessment{
				ID:             uuid.MustParse(caID.String),
				OrganizationID: uuid.MustParse(caOrg.String),
				ControlID:      uuid.MustParse(caControl.String),
				Status:         ControlStatus(caStatus.String),
				AssessedAt:     caAssessed.Time,
				CreatedAt:      caCreated.Time,
				UpdatedAt:      caUpdated.Time,
			}
			if caScore.Valid {
				score := int(caScore.Int64)
				ca.Score = &score
			}
			if caEvidence.Valid {
				ref := caEvidence.String
				ca.EvidenceRef = &ref
			}
			item.Assessment = ca
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// ClearEvidenceRef detaches the evidence reference from a control assessment.
func (l *Ledger) ClearEvidenceRef(ctx context.Context, id uuid.UUID) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE control_assessments SET evidence_ref = NULL, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("clear evidence ref: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("control assessment %s: %w", id, ErrNotFound)
	}
	return nil
}

// EnsureMaturityAssessment returns the organization's maturity aggregate,
// creating it on first use.
func (l *Ledger) EnsureMaturityAssessment(ctx context.Context, orgID uuid.UUID) (*MaturityAssessment, error) {
	var ma MaturityAssessment
	err := l.db.QueryRowContext(ctx,
		`INSERT INTO maturity_assessments (id, organization_id)
		 VALUES ($1, $2)
		 ON CONFLICT (organization_id) DO UPDATE
		 SET organization_id = EXCLUDED.organization_id
		 RETURNING id, organization_id, achieved_tier, created_at, updated_at`,
		uuid.New(), orgID).
		Scan(&ma.ID, &ma.OrganizationID, &ma.AchievedTier, &ma.CreatedAt, &ma.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("ensure maturity assessment: %w", err)
	}
	return &ma, nil
}

// GetMaturityAssessment returns the aggregate for one organization.
func (l *Ledger) GetMaturityAssessment(ctx context.Context, orgID uuid.UUID) (*MaturityAssessment, error) {
	var ma MaturityAssessment
	err := l.db.QueryRowContext(ctx,
		`SELECT id, organization_id, achieved_tier, created_at, updated_at
		 FROM maturity_assessments WHERE organization_id = $1`, orgID).
		Scan(&ma.ID, &ma.OrganizationID, &ma.AchievedTier, &ma.CreatedAt, &ma.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("maturity assessment for org %s: %w", orgID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query maturity assessment: %w", err)
	}
	return &ma, nil
}

// GetMaturityAssessmentByID returns the aggregate by its own id.
func (l *Ledger) GetMaturityAssessmentByID(ctx context.Context, id uuid.UUID) (*MaturityAssessment, error) {
	var ma MaturityAssessment
	err := l.db.QueryRowContext(ctx,
		`SELECT id, organization_id, achieved_tier, created_at, updated_at
		 FROM maturity_assessments WHERE id = $1`, id).
		Scan(&ma.ID, &ma.OrganizationID, &ma.AchievedTier, &ma.CreatedAt, &ma.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("maturity assessment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query maturity assessment: %w", err)
	}
	return &ma, nil
}

// UpsertPracticeEvaluation inserts or updates the (assessment, practice) row
// in one statement.
func (l *Ledger) UpsertPracticeEvaluation(ctx context.Context, assessmentID, practiceID uuid.UUID, status PracticeStatus) (*PracticeEvaluation, error) {
	if !status.Valid() {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}

	var pe PracticeEvaluation
	err := l.db.QueryRowContext(ctx,
		`INSERT INTO practice_evaluations (id, assessment_id, practice_id, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (assessment_id, practice_id) DO UPDATE
		 SET status = EXCLUDED.status, updated_at = NOW()
		 RETURNING id, assessment_id, practice_id, status, created_at, updated_at`,
		uuid.New(), assessmentID, practiceID, status).
		Scan(&pe.ID, &pe.AssessmentID, &pe.PracticeID, &pe.Status, &pe.CreatedAt, &pe.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert practice evaluation: %w", translatePQError(err))
	}
	return &pe, nil
}

// ListPracticeEvaluations returns all evaluations of one maturity assessment.
func (l *Ledger) ListPracticeEvaluations(ctx context.Context, assessmentID uuid.UUID) ([]PracticeEvaluation, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, assessment_id, practice_id, status, created_at, updated_at
		 FROM practice_evaluations WHERE assessment_id = $1`, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("list practice evaluations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []PracticeEvaluation
	for rows.Next() {
		var pe PracticeEvaluation
		if err := rows.Scan(&pe.ID, &pe.AssessmentID, &pe.PracticeID, &pe.Status,
			&pe.CreatedAt, &pe.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan practice evaluation: %w", err)
		}
		out = append(out, pe)
	}
	return out, rows.Err()
}

// SetAchievedTier overwrites the derived tier on a maturity assessment.
func (l *Ledger) SetAchievedTier(ctx context.Context, assessmentID uuid.UUID, tier int) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE maturity_assessments SET achieved_tier = $1, updated_at = NOW() WHERE id = $2`,
		tier, assessmentID)
	if err != nil {
		return fmt.Errorf("set achieved tier: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("maturity assessment %s: %w", assessmentID, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanControlAssessment(row rowScanner) (*ControlAssessment, error) {
	var (
		ca       ControlAssessment
		score    sql.NullInt64
		evidence sql.NullString
	)
	err := row.Scan(&ca.ID, &ca.OrganizationID, &ca.ControlID, &ca.Status,
		&score, &evidence, &ca.AssessedAt, &ca.CreatedAt, &ca.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if score.Valid {
		v := int(score.Int64)
		ca.Score = &v
	}
	if evidence.Valid {
		ref := evidence.String
		ca.EvidenceRef = &ref
	}
	return &ca, nil
}

// translatePQError maps postgres constraint violations onto the package
// sentinels: unique violations surface races as Conflict, foreign key
// violations mean the referenced catalogue row does not exist.
func translatePQError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "23505": // unique_violation
		return ErrConflict
	case "23503": // foreign_key_violation
		return ErrNotFound
	}
	return err
}
