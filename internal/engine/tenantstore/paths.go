package tenantstore

import (
	"fmt"
	"strings"

	"lawdesk/internal/platform/identity"
)

// PathScheme derives a user's directory name from their email.
type PathScheme string

const (
	// SchemeHashed names the directory after identity.UserID(email).
	SchemeHashed PathScheme = "hashed"
	// SchemeSanitized keeps the legacy layout. Distinct emails can collide,
	// e.g. a.b@c and a_b@c.
	SchemeSanitized PathScheme = "sanitized"
)

func ParseScheme(s string) (PathScheme, error) {
	switch PathScheme(s) {
	case "", SchemeHashed:
		return SchemeHashed, nil
	case SchemeSanitized:
		return SchemeSanitized, nil
	}
	return "", fmt.Errorf("unknown storage path scheme %q", s)
}

var sanitizer = strings.NewReplacer("@", "_", ".", "_", "/", "_", "\\", "_")

// SanitizeEmail replaces characters that are unsafe in a path segment.
func SanitizeEmail(email string) string {
	return sanitizer.Replace(identity.NormalizeEmail(email))
}

// UserDir returns the directory name for email under this scheme.
func (p PathScheme) UserDir(email string) string {
	if p == SchemeSanitized {
		return SanitizeEmail(email)
	}
	return identity.UserID(email)
}
