package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// contextKey is a custom type to prevent context key collisions
type contextKey string

const (
	// ContextKeyIdentity is the key for storing the caller identity in context
	ContextKeyIdentity contextKey = "identity"
)

// Identity is the authenticated caller, established upstream by the gateway.
// The service trusts this tuple and only enforces organization scoping.
type Identity struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	Role           string
}

// ErrNoIdentity is returned when no identity is present in the context.
var ErrNoIdentity = errors.New("no identity in context")

// WithIdentity adds the caller identity to context
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, id)
}

// FromContext extracts the caller identity from context
func FromContext(ctx context.Context) (*Identity, error) {
	id, ok := ctx.Value(ContextKeyIdentity).(*Identity)
	if !ok || id == nil {
		return nil, ErrNoIdentity
	}
	return id, nil
}

// MustFromContext extracts the identity or panics (use in handlers after middleware)
func MustFromContext(ctx context.Context) *Identity {
	id, err := FromContext(ctx)
	if err != nil {
		panic("identity middleware not applied: " + err.Error())
	}
	return id
}
