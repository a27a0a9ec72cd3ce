// Package audit records an append-only trail of assessment writes.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action names for assessment events.
const (
	ActionControlAssessed   = "assessment.control_upserted"
	ActionPracticeEvaluated = "assessment.practice_upserted"
	ActionEvidenceAttached  = "assessment.evidence_attached"
	ActionEvidenceDeleted   = "assessment.evidence_deleted"
	ActionMaturityRescored  = "assessment.maturity_rescored"
)

// Result of an audited operation.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultDenied  Result = "denied"
)

// Event is a single audit record.
type Event struct {
	ID             uuid.UUID         `json:"id"`
	Timestamp      time.Time         `json:"timestamp"`
	OrganizationID uuid.UUID         `json:"organization_id"`
	UserID         uuid.UUID         `json:"user_id"`
	Action         string            `json:"action"`
	Resource       string            `json:"resource"`
	Result         Result            `json:"result"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Recorder writes audit events to the database.
type Recorder struct {
	db *sql.DB
}

// NewRecorder creates a recorder over an existing connection pool.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// Record inserts one audit event.
func (r *Recorder) Record(ctx context.Context, event *Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Result == "" {
		event.Result = ResultSuccess
	}

	var metadataJSON []byte
	if event.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_events
		     (id, timestamp, organization_id, user_id, action, resource, result, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.Timestamp, event.OrganizationID, event.UserID,
		event.Action, event.Resource, event.Result, nullBytes(metadataJSON))
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// List returns an organization's most recent events, newest first.
func (r *Recorder) List(ctx context.Context, orgID uuid.UUID, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, timestamp, organization_id, user_id, action, resource, result, metadata
		 FROM audit_events
		 WHERE organization_id = $1
		 ORDER BY timestamp DESC
		 LIMIT $2`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*Event
	for rows.Next() {
		var (
			e        Event
			resource sql.NullString
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.OrganizationID, &e.UserID,
			&e.Action, &resource, &e.Result, &metadata); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Resource = resource.String
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
