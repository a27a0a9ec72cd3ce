package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/FairForge/attestor/internal/assessment"
	"github.com/FairForge/attestor/internal/catalog"
	"github.com/FairForge/attestor/internal/evidence"
)

// Stable error codes. Clients branch on these, never on messages.
const (
	CodeNotFound           = "not_found"
	CodeForbidden          = "forbidden"
	CodeValidationError    = "validation_error"
	CodeStorageUnavailable = "storage_unavailable"
	CodeConflict           = "conflict"
	CodeUnauthorized       = "unauthorized"
	CodeInternal           = "internal_error"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeError maps a service error to its stable code and status. Unrecognized
// errors become 500s with the detail logged rather than leaked.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *assessment.ValidationError

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Code: CodeValidationError, Message: verr.Reason, Field: verr.Field,
		})
	case errors.Is(err, assessment.ErrForbidden):
		writeJSON(w, http.StatusForbidden, ErrorResponse{
			Code: CodeForbidden, Message: "resource belongs to another organization",
		})
	case errors.Is(err, assessment.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Code: CodeNotFound, Message: "resource not found",
		})
	case errors.Is(err, assessment.ErrConflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Code: CodeConflict, Message: "conflicting concurrent write",
		})
	case errors.Is(err, assessment.ErrStorageUnavailable), errors.Is(err, evidence.ErrNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Code: CodeStorageUnavailable, Message: "evidence storage is unavailable",
		})
	default:
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Code: CodeInternal, Message: "internal error",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
