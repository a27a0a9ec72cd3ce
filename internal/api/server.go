// Package api exposes the assessment service over HTTP.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/FairForge/attestor/internal/assessment"
	"github.com/FairForge/attestor/internal/catalog"
	"github.com/FairForge/attestor/internal/config"
	"github.com/FairForge/attestor/internal/evidence"
	"github.com/FairForge/attestor/internal/identity"
)

// AssessmentService is the coordinator surface the handlers call.
// *assessment.Service is the production implementation.
type AssessmentService interface {
	SubmitControlAssessment(ctx context.Context, caller *identity.Identity, in assessment.SubmitControlInput) (*assessment.ControlAssessment, error)
	SubmitPracticeEvaluation(ctx context.Context, caller *identity.Identity, assessmentID, practiceID uuid.UUID, status assessment.PracticeStatus) (*assessment.PracticeEvaluation, int, error)
	MaturityOverview(ctx context.Context, caller *identity.Identity) (*assessment.MaturityAssessment, *assessment.Scorecard, error)
	ListControls(ctx context.Context, caller *identity.Identity, frameworkID uuid.UUID, filter assessment.ListFilter, page, pageSize int) ([]assessment.ControlWithAssessment, error)
	EvidenceURL(ctx context.Context, caller *identity.Identity, controlAssessmentID uuid.UUID, ttl time.Duration) (string, error)
	RemoveEvidence(ctx context.Context, caller *identity.Identity, controlAssessmentID uuid.UUID) error
}

// Server is the HTTP front end.
type Server struct {
	config        *config.Config
	logger        *zap.Logger
	router        chi.Router
	httpServer    *http.Server
	service       AssessmentService
	catalog       catalog.Store
	localEvidence *evidence.LocalStore
	db            *sql.DB
	startTime     time.Time
}

// NewServer wires routes and timeouts. db may be nil in tests; readiness then
// reports ready without a database check. local is the filesystem evidence
// store whose signed URLs this server must resolve; nil when another backend
// is selected.
func NewServer(cfg *config.Config, logger *zap.Logger, svc AssessmentService, cat catalog.Store, db *sql.DB, local *evidence.LocalStore) *Server {
	s := &Server{
		config:        cfg,
		logger:        logger,
		router:        chi.NewRouter(),
		service:       svc,
		catalog:       cat,
		localEvidence: local,
		db:            db,
		startTime:     time.Now(),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)
	s.router.Handle("/metrics", promhttp.Handler())

	// Signed-URL downloads for the local evidence backend. The token is the
	// authorization, so this sits outside the identity middleware.
	s.router.Get("/evidence/*", s.handleEvidenceDownload)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.identityMiddleware)

		r.Get("/frameworks", s.handleListFrameworks)
		r.Get("/frameworks/{frameworkID}/controls", s.handleListControls)
		r.Get("/practices", s.handleListPractices)
		r.Get("/maturity", s.handleMaturityOverview)

		r.Post("/assessments", s.handleSubmitAssessment)
		r.Post("/assessments/{assessmentID}/practices/{practiceID}", s.handleSubmitPracticeEvaluation)
		r.Delete("/assessments/{assessmentID}/evidence", s.handleRemoveEvidence)
		r.Get("/evidence/{assessmentID}/url", s.handleEvidenceURL)
	})
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving and blocks until the listener closes.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(s.startTime).Seconds(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"ready": false,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ready": true})
}
