// Package tenantstore persists per-user JSON records. Every record carries
// its owner's email, and a record is only ever returned to that owner.
package tenantstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"lawdesk/internal/platform/audit"
	"lawdesk/internal/platform/identity"
	"lawdesk/internal/platform/metrics"
)

var (
	// ErrOwnershipMismatch is a security fault: the stored owner is not the
	// caller. The default value is returned in place of the record.
	ErrOwnershipMismatch = errors.New("record owner does not match current user")
	// ErrStorageUnavailable wraps read and write failures of the backend.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrVersionConflict is returned by SaveIfVersion when the record has
	// moved on since the caller read it.
	ErrVersionConflict = errors.New("record version conflict")
)

// AnyVersion disables the version check in a write.
const AnyVersion int64 = -1

// writeAttempts bounds how often a last-writer-wins Save retries after a
// backend lost a race to a concurrent writer.
const writeAttempts = 5

// Auditor receives security events. *audit.Logger satisfies it.
type Auditor interface {
	Log(ctx context.Context, action, resourceType, resourceID string, metadata map[string]interface{})
}

type Store struct {
	backend Backend
	scheme  PathScheme
	now     func() time.Time
	audit   Auditor
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithAuditor(a Auditor) Option {
	return func(s *Store) { s.audit = a }
}

func New(backend Backend, scheme PathScheme, opts ...Option) *Store {
	s := &Store{backend: backend, scheme: scheme, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Scheme() PathScheme { return s.scheme }

// Record is a loaded value with its envelope details. Version is 0 when no
// record exists yet.
type Record struct {
	Data         json.RawMessage `json:"data"`
	Version      int64           `json:"version"`
	LastModified string          `json:"last_modified,omitempty"`
}

// LoadRaw returns the caller's record of kind, or def when there is none.
// On an ownership mismatch or a backend failure def is returned together
// with the error.
func (s *Store) LoadRaw(ctx context.Context, kind string, def json.RawMessage) (Record, error) {
	fallback := Record{Data: def}

	email, err := identity.CurrentUserEmail(ctx)
	if err != nil {
		return fallback, err
	}
	if !IsKnownKind(kind) {
		return fallback, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	env, err := s.backend.Read(ctx, s.scheme.UserDir(email), kind)
	if err != nil {
		return fallback, s.storageFault(email, kind, "read", err)
	}
	if env == nil {
		return fallback, nil
	}
	if identity.NormalizeEmail(env.Owner) != email {
		s.ownershipFault(ctx, email, kind, env.Owner)
		return fallback, ErrOwnershipMismatch
	}

	return Record{Data: env.Data, Version: env.Version, LastModified: env.LastModified}, nil
}

// Load decodes the caller's record of kind into a T, returning def when the
// record is absent or unusable.
func Load[T any](ctx context.Context, s *Store, kind string, def T) (T, error) {
	v, _, err := LoadVersioned(ctx, s, kind, def)
	return v, err
}

// LoadVersioned is Load plus the record version for SaveIfVersion.
func LoadVersioned[T any](ctx context.Context, s *Store, kind string, def T) (T, int64, error) {
	rec, err := s.LoadRaw(ctx, kind, nil)
	if err != nil {
		return def, 0, err
	}
	if rec.Data == nil {
		return def, 0, nil
	}

	var v T
	if err := json.Unmarshal(rec.Data, &v); err != nil {
		email, _ := identity.CurrentUserEmail(ctx)
		return def, 0, s.storageFault(email, kind, "decode", err)
	}
	return v, rec.Version, nil
}

// Save replaces the caller's record of kind with value. The last writer wins.
func (s *Store) Save(ctx context.Context, kind string, value interface{}) (int64, error) {
	return s.write(ctx, kind, value, AnyVersion)
}

// SaveIfVersion replaces the record only if its version is still expected.
// Use 0 to require that no record exists yet.
func (s *Store) SaveIfVersion(ctx context.Context, kind string, value interface{}, expected int64) (int64, error) {
	return s.write(ctx, kind, value, expected)
}

func (s *Store) write(ctx context.Context, kind string, value interface{}, expected int64) (int64, error) {
	email, err := identity.CurrentUserEmail(ctx)
	if err != nil {
		return 0, err
	}
	if !IsKnownKind(kind) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", kind, err)
	}

	var version int64
	for attempt := 1; ; attempt++ {
		version, err = s.update(ctx, email, kind, data, expected)
		if err == nil || expected != AnyVersion || attempt == writeAttempts || !errors.Is(err, ErrVersionConflict) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, ErrOwnershipMismatch) || errors.Is(err, ErrVersionConflict) {
			return 0, err
		}
		return 0, s.storageFault(email, kind, "write", err)
	}
	return version, nil
}

// update runs one versioned write through the backend.
func (s *Store) update(ctx context.Context, email, kind string, data []byte, expected int64) (int64, error) {
	var version int64
	err := s.backend.Update(ctx, s.scheme.UserDir(email), kind, func(cur *Envelope) (*Envelope, error) {
		var curVersion int64
		if cur != nil {
			if identity.NormalizeEmail(cur.Owner) != email {
				s.ownershipFault(ctx, email, kind, cur.Owner)
				return nil, ErrOwnershipMismatch
			}
			curVersion = cur.Version
		}
		if expected != AnyVersion && expected != curVersion {
			return nil, fmt.Errorf("%w: %s is at version %d, expected %d", ErrVersionConflict, kind, curVersion, expected)
		}
		version = curVersion + 1
		return &Envelope{
			Owner:        email,
			LastModified: s.now().UTC().Format(time.RFC3339Nano),
			Version:      version,
			Data:         data,
		}, nil
	})
	return version, err
}

func (s *Store) storageFault(email, kind, op string, err error) error {
	metrics.StorageErrors.WithLabelValues(op).Inc()
	log.Warn().Err(err).
		Str("user_id", identity.UserID(email)).
		Str("kind", kind).
		Str("op", op).
		Msg("tenant storage failure")
	return fmt.Errorf("%w: %s %s: %v", ErrStorageUnavailable, op, kind, err)
}

func (s *Store) ownershipFault(ctx context.Context, email, kind, owner string) {
	metrics.OwnershipViolations.WithLabelValues(kind).Inc()
	log.Error().
		Str("user_id", identity.UserID(email)).
		Str("stored_owner_id", identity.UserID(owner)).
		Str("kind", kind).
		Msg("SECURITY: tenant record owner mismatch, record withheld")
	if s.audit != nil {
		s.audit.Log(ctx, audit.ActionOwnershipMismatch, "tenant_record", kind, map[string]interface{}{
			"stored_owner_id": identity.UserID(owner),
		})
	}
}
