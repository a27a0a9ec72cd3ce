package evidence

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LocalStore keeps evidence on the local filesystem. Access URLs carry an
// HMAC token over the key and expiry so they cannot be forged or extended.
type LocalStore struct {
	basePath string
	baseURL  string
	secret   []byte
	logger   *zap.Logger
}

// NewLocalStore creates a filesystem-backed evidence store rooted at basePath.
func NewLocalStore(basePath, baseURL, secret string, logger *zap.Logger) (*LocalStore, error) {
	if basePath == "" || secret == "" {
		return nil, fmt.Errorf("new local store: %w", ErrNotConfigured)
	}
	if err := os.MkdirAll(basePath, 0750); err != nil {
		return nil, fmt.Errorf("create evidence directory: %w", err)
	}
	return &LocalStore{
		basePath: basePath,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		secret:   []byte(secret),
		logger:   logger,
	}, nil
}

// Upload writes content under an org-namespaced path.
func (s *LocalStore) Upload(ctx context.Context, orgID uuid.UUID, objectName string, content io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := ObjectKey(orgID, objectName)
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0750); err != nil {
		return "", fmt.Errorf("create parent directory: %w", err)
	}

	file, err := os.Create(fullPath) // #nosec G304 - path is derived from a sanitized key
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := io.Copy(file, content); err != nil {
		_ = os.Remove(fullPath)
		return "", fmt.Errorf("write evidence: %w", err)
	}

	s.logger.Debug("evidence written",
		zap.String("key", key),
		zap.String("path", fullPath))
	return key, nil
}

// Delete removes the object; a missing file is treated as success.
func (s *LocalStore) Delete(_ context.Context, objectName string) error {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(objectName))
	err := os.Remove(fullPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete evidence %s: %w", objectName, err)
	}
	return nil
}

// SignedURL builds a time-boxed download URL with an HMAC token binding the
// key to its expiry.
func (s *LocalStore) SignedURL(_ context.Context, objectName string, ttl time.Duration) (string, error) {
	expires := time.Now().Add(ttl).Unix()
	token := s.sign(objectName, expires)

	// Keys only contain sanitized segments, so the path needs no escaping
	// and the token verifies against the literal key.
	return fmt.Sprintf("%s/evidence/%s?token=%s&expires=%d",
		s.baseURL, objectName, token, expires), nil
}

// VerifyToken checks a download token produced by SignedURL.
func (s *LocalStore) VerifyToken(objectName, token string, expires int64) bool {
	if time.Now().Unix() > expires {
		return false
	}
	expected := s.sign(objectName, expires)
	return hmac.Equal([]byte(expected), []byte(token))
}

// Open returns the stored object for serving a verified download.
func (s *LocalStore) Open(objectName string) (io.ReadCloser, error) {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(objectName))
	return os.Open(fullPath) // #nosec G304 - token verified before open
}

func (s *LocalStore) sign(objectName string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", objectName, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
