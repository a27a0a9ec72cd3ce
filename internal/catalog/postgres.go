package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// PostgresStore reads catalogue tables from PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a catalogue store over an existing connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ListFrameworks returns all frameworks.
func (s *PostgresStore) ListFrameworks(ctx context.Context) ([]Framework, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, version FROM frameworks ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list frameworks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var frameworks []Framework
	for rows.Next() {
		var f Framework
		if err := rows.Scan(&f.ID, &f.Name, &f.Description, &f.Version); err != nil {
			return nil, fmt.Errorf("scan framework: %w", err)
		}
		frameworks = append(frameworks, f)
	}
	return frameworks, rows.Err()
}

// GetFramework looks up a single framework by id.
func (s *PostgresStore) GetFramework(ctx context.Context, id uuid.UUID) (*Framework, error) {
	var f Framework
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, version FROM frameworks WHERE id = $1`, id).
		Scan(&f.ID, &f.Name, &f.Description, &f.Version)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("framework %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query framework: %w", err)
	}
	return &f, nil
}

// ListControls returns the controls of one framework. The framework must
// exist; an unknown id is a NotFound, not an empty list.
func (s *PostgresStore) ListControls(ctx context.Context, frameworkID uuid.UUID) ([]Control, error) {
	if _, err := s.GetFramework(ctx, frameworkID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, framework_id, control_code, description, family
		 FROM controls WHERE framework_id = $1 ORDER BY control_code`, frameworkID)
	if err != nil {
		return nil, fmt.Errorf("list controls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var controls []Control
	for rows.Next() {
		var c Control
		if err := rows.Scan(&c.ID, &c.FrameworkID, &c.Code, &c.Description, &c.Family); err != nil {
			return nil, fmt.Errorf("scan control: %w", err)
		}
		controls = append(controls, c)
	}
	return controls, rows.Err()
}

// GetControl looks up a single control by id.
func (s *PostgresStore) GetControl(ctx context.Context, id uuid.UUID) (*Control, error) {
	var c Control
	err := s.db.QueryRowContext(ctx,
		`SELECT id, framework_id, control_code, description, family
		 FROM controls WHERE id = $1`, id).
		Scan(&c.ID, &c.FrameworkID, &c.Code, &c.Description, &c.Family)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("control %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query control: %w", err)
	}
	return &c, nil
}

// ListDomains returns all maturity domains.
func (s *PostgresStore) ListDomains(ctx context.Context) ([]Domain, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, code FROM maturity_domains ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var domains []Domain
	for rows.Next() {
		var d Domain
		if err := rows.Scan(&d.ID, &d.Name, &d.Code); err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

// ListPractices returns the full practice catalogue.
func (s *PostgresStore) ListPractices(ctx context.Context) ([]Practice, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, domain_id, code, description, target_tier
		 FROM maturity_practices ORDER BY target_tier, code`)
	if err != nil {
		return nil, fmt.Errorf("list practices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var practices []Practice
	for rows.Next() {
		var p Practice
		if err := rows.Scan(&p.ID, &p.DomainID, &p.Code, &p.Description, &p.TargetTier); err != nil {
			return nil, fmt.Errorf("scan practice: %w", err)
		}
		practices = append(practices, p)
	}
	return practices, rows.Err()
}

// GetPractice looks up a single practice by id.
func (s *PostgresStore) GetPractice(ctx context.Context, id uuid.UUID) (*Practice, error) {
	var p Practice
	err := s.db.QueryRowContext(ctx,
		`SELECT id, domain_id, code, description, target_tier
		 FROM maturity_practices WHERE id = $1`, id).
		Scan(&p.ID, &p.DomainID, &p.Code, &p.Description, &p.TargetTier)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("practice %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query practice: %w", err)
	}
	return &p, nil
}
