package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FairForge/attestor/internal/assessment"
	"github.com/FairForge/attestor/internal/identity"
)

const maxEvidenceUploadBytes = 32 << 20 // 32 MiB

// submitAssessmentRequest is the JSON body of POST /api/v1/assessments. The
// multipart variant carries the same fields as form values plus an "evidence"
// file part.
type submitAssessmentRequest struct {
	OrganizationID string `json:"organization_id,omitempty"`
	ControlID      string `json:"control_id"`
	Status         string `json:"status"`
	Score          *int   `json:"score,omitempty"`
	AssessedAt     string `json:"assessment_date,omitempty"`
	EvidenceURL    string `json:"evidence_url,omitempty"`
}

func (s *Server) handleSubmitAssessment(w http.ResponseWriter, r *http.Request) {
	caller := identity.MustFromContext(r.Context())

	var (
		req  submitAssessmentRequest
		file *assessment.EvidenceFile
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxEvidenceUploadBytes); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Code: CodeValidationError, Message: "malformed multipart body",
			})
			return
		}
		req.OrganizationID = r.FormValue("organization_id")
		req.ControlID = r.FormValue("control_id")
		req.Status = r.FormValue("status")
		req.AssessedAt = r.FormValue("assessment_date")
		req.EvidenceURL = r.FormValue("evidence_url")
		if raw := r.FormValue("score"); raw != "" {
			score, err := strconv.Atoi(raw)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{
					Code: CodeValidationError, Message: "score must be an integer", Field: "score",
				})
				return
			}
			req.Score = &score
		}

		f, header, err := r.FormFile("evidence")
		switch {
		case err == nil:
			defer func() { _ = f.Close() }()
			file = &assessment.EvidenceFile{Name: header.Filename, Content: f}
		case errors.Is(err, http.ErrMissingFile):
			// No evidence attached; a status-only submission is valid.
		default:
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Code: CodeValidationError, Message: "malformed evidence part", Field: "evidence",
			})
			return
		}
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Code: CodeValidationError, Message: "malformed JSON body",
			})
			return
		}
	}

	controlID, err := uuid.Parse(req.ControlID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Code: CodeValidationError, Message: "control_id must be a UUID", Field: "control_id",
		})
		return
	}

	in := assessment.SubmitControlInput{
		ControlID: controlID,
		Status:    assessment.ControlStatus(req.Status),
		Score:     req.Score,
		File:      file,
	}
	if req.OrganizationID != "" {
		orgID, err := uuid.Parse(req.OrganizationID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Code: CodeValidationError, Message: "organization_id must be a UUID", Field: "organization_id",
			})
			return
		}
		in.OrganizationID = orgID
	}
	if req.AssessedAt != "" {
		assessedAt, err := time.Parse(time.RFC3339, req.AssessedAt)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Code: CodeValidationError, Message: "assessment_date must be RFC 3339", Field: "assessment_date",
			})
			return
		}
		in.AssessedAt = assessedAt
	}
	if req.EvidenceURL != "" {
		in.EvidenceURL = &req.EvidenceURL
	}

	persisted, err := s.service.SubmitControlAssessment(r.Context(), caller, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	assessmentsSubmitted.WithLabelValues(string(persisted.Status)).Inc()
	if file != nil {
		evidenceUploads.Inc()
	}
	writeJSON(w, http.StatusOK, persisted)
}

func (s *Server) handleListFrameworks(w http.ResponseWriter, r *http.Request) {
	frameworks, err := s.catalog.ListFrameworks(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"frameworks": frameworks})
}

func (s *Server) handleListControls(w http.ResponseWriter, r *http.Request) {
	caller := identity.MustFromContext(r.Context())

	frameworkID, err := uuid.Parse(chi.URLParam(r, "frameworkID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Code: CodeValidationError, Message: "framework id must be a UUID",
		})
		return
	}

	filter := assessment.ListFilter{
		Status: assessment.ControlStatus(r.URL.Query().Get("status")),
		Family: r.URL.Query().Get("family"),
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	controls, err := s.service.ListControls(r.Context(), caller, frameworkID, filter, page, pageSize)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if controls == nil {
		controls = []assessment.ControlWithAssessment{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"controls": controls})
}

func (s *Server) handleListPractices(w http.ResponseWriter, r *http.Request) {
	domains, err := s.catalog.ListDomains(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	practices, err := s.catalog.ListPractices(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"domains":   domains,
		"practices": practices,
	})
}

func (s *Server) handleMaturityOverview(w http.ResponseWriter, r *http.Request) {
	caller := identity.MustFromContext(r.Context())

	ma, card, err := s.service.MaturityOverview(r.Context(), caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"assessment_id":   ma.ID,
		"organization_id": ma.OrganizationID,
		"achieved_tier":   card.AchievedTier,
		"domains":         card.Domains,
		"updated_at":      ma.UpdatedAt,
	})
}

type practiceEvaluationRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleSubmitPracticeEvaluation(w http.ResponseWriter, r *http.Request) {
	caller := identity.MustFromContext(r.Context())

	assessmentID, err := uuid.Parse(chi.URLParam(r, "assessmentID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Code: CodeValidationError, Message: "assessment id must be a UUID",
		})
		return
	}
	practiceID, err := uuid.Parse(chi.URLParam(r, "practiceID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Code: CodeValidationError, Message: "practice id must be a UUID",
		})
		return
	}

	var req practiceEvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Code: CodeValidationError, Message: "malformed JSON body",
		})
		return
	}
	status := assessment.PracticeStatus(req.Status)
	if !status.Valid() {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Code: CodeValidationError, Message: "unknown practice status", Field: "status",
		})
		return
	}

	evaluation, tier, err := s.service.SubmitPracticeEvaluation(r.Context(), caller, assessmentID, practiceID, status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	practiceEvaluations.WithLabelValues(string(status)).Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"evaluation":    evaluation,
		"achieved_tier": tier,
	})
}

func (s *Server) handleEvidenceURL(w http.ResponseWriter, r *http.Request) {
	caller := identity.MustFromContext(r.Context())

	assessmentID, err := uuid.Parse(chi.URLParam(r, "assessmentID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Code: CodeValidationError, Message: "assessment id must be a UUID",
		})
		return
	}

	ttl := 15 * time.Minute
	if raw := r.URL.Query().Get("ttl_minutes"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes < 1 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Code: CodeValidationError, Message: "ttl_minutes must be a positive integer",
			})
			return
		}
		if minutes > 60 {
			minutes = 60
		}
		ttl = time.Duration(minutes) * time.Minute
	}

	url, err := s.service.EvidenceURL(r.Context(), caller, assessmentID, ttl)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"url":        url,
		"expires_in": int(ttl.Seconds()),
	})
}

func (s *Server) handleRemoveEvidence(w http.ResponseWriter, r *http.Request) {
	caller := identity.MustFromContext(r.Context())

	assessmentID, err := uuid.Parse(chi.URLParam(r, "assessmentID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Code: CodeValidationError, Message: "assessment id must be a UUID",
		})
		return
	}

	if err := s.service.RemoveEvidence(r.Context(), caller, assessmentID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
