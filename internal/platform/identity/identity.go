// Package identity carries the authenticated caller through a request.
//
// The HTTP layer places an Identity in the request context after the session
// token validates. Everything below the handlers reads it from there; nothing
// looks the caller up from global state.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrNoSession means the request carries no authenticated identity. It is
// fatal for the request.
var ErrNoSession = errors.New("no authenticated session")

type Identity struct {
	Email   string
	UserID  string
	OrgCode string
	Role    string
}

type ctxKey struct{}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// WithIdentity returns a copy of ctx carrying id. The email is normalized.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	id.Email = NormalizeEmail(id.Email)
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity placed by WithIdentity.
func FromContext(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	if !ok || id.Email == "" {
		return Identity{}, ErrNoSession
	}
	return id, nil
}

// CurrentUserEmail returns the normalized email of the caller.
func CurrentUserEmail(ctx context.Context) (string, error) {
	id, err := FromContext(ctx)
	if err != nil {
		return "", err
	}
	return id.Email, nil
}

// UserID is a one-way, truncated digest of the normalized email. It is a
// correlation key for logs and directory names, not an access-control input.
func UserID(email string) string {
	sum := sha256.Sum256([]byte(NormalizeEmail(email)))
	return hex.EncodeToString(sum[:])[:16]
}

// UserHash returns UserID for the caller.
func UserHash(ctx context.Context) (string, error) {
	email, err := CurrentUserEmail(ctx)
	if err != nil {
		return "", err
	}
	return UserID(email), nil
}
