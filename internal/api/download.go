package api

import (
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// handleEvidenceDownload serves GET /evidence/{key} for URLs minted by the
// local evidence store. The HMAC token covers the key and expiry; a valid
// token is the only authorization required.
func (s *Server) handleEvidenceDownload(w http.ResponseWriter, r *http.Request) {
	if s.localEvidence == nil {
		http.NotFound(w, r)
		return
	}

	key := chi.URLParam(r, "*")
	if unescaped, err := url.PathUnescape(key); err == nil {
		key = unescaped
	}

	token := r.URL.Query().Get("token")
	expires, err := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
	if token == "" || err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Code: CodeValidationError, Message: "missing or malformed download token",
		})
		return
	}

	if !s.localEvidence.VerifyToken(key, token, expires) {
		writeJSON(w, http.StatusForbidden, ErrorResponse{
			Code: CodeForbidden, Message: "invalid or expired download token",
		})
		return
	}

	object, err := s.localEvidence.Open(key)
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Code: CodeNotFound, Message: "evidence object not found",
		})
		return
	}
	defer func() { _ = object.Close() }()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment")
	if _, err := io.Copy(w, object); err != nil {
		s.logger.Warn("evidence download interrupted",
			zap.String("key", key),
			zap.Error(err))
	}
}
