// Package catalog provides read-only access to compliance reference data:
// frameworks, their controls, and the maturity model's domains and practices.
// Rows are seeded by an external process and never written here.
package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a framework, control or practice id is unknown.
var ErrNotFound = errors.New("catalog: not found")

// Framework is a compliance framework shared across organizations.
type Framework struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Version     string    `json:"version"`
}

// Control is a single item in a framework's catalogue.
type Control struct {
	ID          uuid.UUID `json:"id"`
	FrameworkID uuid.UUID `json:"framework_id"`
	Code        string    `json:"control_code"`
	Description string    `json:"description"`
	Family      string    `json:"family"`
}

// Domain groups maturity practices.
type Domain struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Code string    `json:"code"`
}

// Practice is an atomic assessable capability statement. TargetTier is the
// minimum maturity tier the practice contributes to.
type Practice struct {
	ID          uuid.UUID `json:"id"`
	DomainID    uuid.UUID `json:"domain_id"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	TargetTier  int       `json:"target_tier"`
}

// Store provides catalogue lookups. Implementations never return partial
// results silently: an empty slice means "no records", not an error.
type Store interface {
	ListFrameworks(ctx context.Context) ([]Framework, error)
	GetFramework(ctx context.Context, id uuid.UUID) (*Framework, error)
	ListControls(ctx context.Context, frameworkID uuid.UUID) ([]Control, error)
	GetControl(ctx context.Context, id uuid.UUID) (*Control, error)
	ListDomains(ctx context.Context) ([]Domain, error)
	ListPractices(ctx context.Context) ([]Practice, error)
	GetPractice(ctx context.Context, id uuid.UUID) (*Practice, error)
}
