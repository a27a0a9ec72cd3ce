// Package evidence stores assessment evidence files in an external object
// store behind a provider-neutral interface. Keys are namespaced by
// organization so no organization can reach another's objects.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotConfigured is returned by the Disabled store. Callers can
// distinguish "no backend configured" from a transient backend failure.
var ErrNotConfigured = errors.New("evidence: storage backend not configured")

// Store is the capability set every evidence backend implements. The
// backend is selected once at process start and is safe for concurrent use.
type Store interface {
	// Upload streams content under an organization-namespaced key and
	// returns the canonical stored object name.
	Upload(ctx context.Context, orgID uuid.UUID, objectName string, content io.Reader) (string, error)
	// Delete removes an object. Deleting a nonexistent object is success.
	Delete(ctx context.Context, objectName string) error
	// SignedURL produces a time-boxed access URL for a stored object.
	SignedURL(ctx context.Context, objectName string, ttl time.Duration) (string, error)
}

// Disabled is the explicit no-backend variant. Every operation fails with
// ErrNotConfigured instead of probing external services.
type Disabled struct{}

func (Disabled) Upload(context.Context, uuid.UUID, string, io.Reader) (string, error) {
	return "", ErrNotConfigured
}

func (Disabled) Delete(context.Context, string) error {
	return ErrNotConfigured
}

func (Disabled) SignedURL(context.Context, string, time.Duration) (string, error) {
	return "", ErrNotConfigured
}

// ObjectKey builds the stored name for an upload: org/{orgID}/{uuid}-{name}.
// The random component keeps re-uploads of the same filename from
// overwriting prior evidence.
func ObjectKey(orgID uuid.UUID, objectName string) string {
	base := sanitizeName(path.Base(objectName))
	return fmt.Sprintf("org/%s/%s-%s", orgID, uuid.New(), base)
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" {
		return "evidence"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
