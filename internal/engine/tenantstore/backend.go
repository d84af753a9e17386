package tenantstore

import (
	"context"
	"encoding/json"
)

// Envelope is the stored form of every record.
type Envelope struct {
	Owner        string          `json:"owner"`
	LastModified string          `json:"last_modified"`
	Version      int64           `json:"version"`
	Data         json.RawMessage `json:"data"`
}

// Backend persists envelopes per user directory and kind.
type Backend interface {
	// Read returns nil, nil when no record exists.
	Read(ctx context.Context, userDir, kind string) (*Envelope, error)
	// Update replaces a record while holding the backend's per-record lock.
	// fn receives the current envelope (nil when absent) and returns the
	// replacement; an error from fn aborts the write.
	Update(ctx context.Context, userDir, kind string, fn func(cur *Envelope) (*Envelope, error)) error
	Close() error
}
