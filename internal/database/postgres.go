package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// Postgres represents a PostgreSQL connection
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a new PostgreSQL connection
func NewPostgres(cfg Config) (*Postgres, error) {
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Postgres{db: db}, nil
}

// DB exposes the underlying connection pool for stores
func (p *Postgres) DB() *sql.DB {
	return p.db
}

// Close closes the database connection
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Ping verifies the database connection
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// CreateTables creates the necessary database tables. Reference data
// (frameworks, controls, domains, practices) is populated by an external
// seeding process; this only guarantees the schema exists.
func (p *Postgres) CreateTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS frameworks (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			version VARCHAR(64) NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS controls (
			id UUID PRIMARY KEY,
			framework_id UUID NOT NULL REFERENCES frameworks(id),
			control_code VARCHAR(64) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			family VARCHAR(128) NOT NULL DEFAULT '',
			UNIQUE(framework_id, control_code)
		)`,
		`CREATE TABLE IF NOT EXISTS maturity_domains (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			code VARCHAR(64) NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS maturity_practices (
			id UUID PRIMARY KEY,
			domain_id UUID NOT NULL REFERENCES maturity_domains(id),
			code VARCHAR(64) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			target_tier INT NOT NULL CHECK (target_tier >= 1),
			UNIQUE(domain_id, code)
		)`,
		`CREATE TABLE IF NOT EXISTS control_assessments (
			id UUID PRIMARY KEY,
			organization_id UUID NOT NULL,
			control_id UUID NOT NULL REFERENCES controls(id),
			status VARCHAR(32) NOT NULL,
			score INT,
			evidence_ref TEXT,
			assessed_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(organization_id, control_id)
		)`,
		`CREATE TABLE IF NOT EXISTS maturity_assessments (
			id UUID PRIMARY KEY,
			organization_id UUID NOT NULL UNIQUE,
			achieved_tier INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS practice_evaluations (
			id UUID PRIMARY KEY,
			assessment_id UUID NOT NULL REFERENCES maturity_assessments(id),
			practice_id UUID NOT NULL REFERENCES maturity_practices(id),
			status VARCHAR(32) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(assessment_id, practice_id)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_events (
			id UUID PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			organization_id UUID,
			user_id UUID,
			action VARCHAR(128) NOT NULL,
			resource TEXT,
			result VARCHAR(32) NOT NULL,
			metadata JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_control_assessments_org
			ON control_assessments(organization_id)`,
		`CREATE INDEX IF NOT EXISTS idx_practice_evaluations_assessment
			ON practice_evaluations(assessment_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_org_time
			ON audit_events(organization_id, timestamp)`,
	}

	for _, query := range queries {
		if _, err := p.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	return nil
}
