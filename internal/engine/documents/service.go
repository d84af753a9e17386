package documents

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"

	"lawdesk/internal/engine/tenantstore"
	"lawdesk/internal/platform/identity"
	"lawdesk/internal/platform/metrics"
)

var (
	ErrTooLarge = errors.New("document exceeds upload limit")
	ErrEmpty    = errors.New("document is empty")
)

const saveAttempts = 3

// OrphanGrace is how old a blob without metadata must be before Reconcile
// treats it as orphaned. Upload writes the blob before its metadata, and a
// sweep in another process must not remove an upload still in flight.
const OrphanGrace = 15 * time.Minute

// UploadInput is a new document as received from the client.
type UploadInput struct {
	Filename     string
	MimeType     string
	Data         []byte
	Name         string
	Type         string
	MatterID     string
	Tags         []string
	IsPrivileged bool
	Description  string
	UploadedBy   string
}

type Service struct {
	store    *tenantstore.Store
	blobs    BlobStore
	policy   *bluemonday.Policy
	maxBytes int64
	now      func() time.Time
}

func NewService(store *tenantstore.Store, blobs BlobStore, maxBytes int64, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:    store,
		blobs:    blobs,
		policy:   bluemonday.StrictPolicy(),
		maxBytes: maxBytes,
		now:      now,
	}
}

func (s *Service) userDir(ctx context.Context) (string, string, error) {
	email, err := identity.CurrentUserEmail(ctx)
	if err != nil {
		return "", "", err
	}
	return email, s.store.Scheme().UserDir(email), nil
}

func (s *Service) clean(v string) string {
	return strings.TrimSpace(s.policy.Sanitize(v))
}

// List returns the caller's document metadata.
func (s *Service) List(ctx context.Context) ([]Metadata, error) {
	return tenantstore.Load(ctx, s.store, kind, []Metadata{})
}

// update applies fn to the metadata list and saves it, retrying when another
// request wrote the list in between.
func (s *Service) update(ctx context.Context, fn func([]Metadata) ([]Metadata, error)) error {
	var lastErr error
	for i := 0; i < saveAttempts; i++ {
		docs, version, err := tenantstore.LoadVersioned(ctx, s.store, kind, []Metadata{})
		if err != nil {
			return err
		}
		next, err := fn(docs)
		if err != nil {
			return err
		}
		_, err = s.store.SaveIfVersion(ctx, kind, next, version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, tenantstore.ErrVersionConflict) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// Upload stores the bytes, then appends the metadata entry. If the metadata
// cannot be written the blob is removed again.
func (s *Service) Upload(ctx context.Context, in UploadInput) (Metadata, error) {
	email, dir, err := s.userDir(ctx)
	if err != nil {
		return Metadata{}, err
	}

	filename, err := CleanFilename(in.Filename)
	if err != nil {
		return Metadata{}, err
	}
	if len(in.Data) == 0 {
		return Metadata{}, ErrEmpty
	}
	if s.maxBytes > 0 && int64(len(in.Data)) > s.maxBytes {
		return Metadata{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(in.Data))
	}

	mimeType := in.MimeType
	if mimeType == "" {
		mimeType = mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	id := uuid.New().String()
	path, err := s.blobs.Save(ctx, dir, id, in.Data, filename, mimeType)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("blob_save").Inc()
		return Metadata{}, fmt.Errorf("save blob: %w", err)
	}

	name := s.clean(in.Name)
	if name == "" {
		name = s.clean(filename)
	}
	docType := s.clean(in.Type)
	if docType == "" {
		docType = "Other"
	}
	uploadedBy := s.clean(in.UploadedBy)
	if uploadedBy == "" {
		uploadedBy = email
	}
	tags := make([]string, 0, len(in.Tags))
	for _, t := range in.Tags {
		if t = s.clean(t); t != "" {
			tags = append(tags, t)
		}
	}

	meta := Metadata{
		ID:               id,
		Name:             name,
		OriginalFilename: filename,
		Type:             docType,
		MimeType:         mimeType,
		MatterID:         s.clean(in.MatterID),
		Tags:             tags,
		IsPrivileged:     in.IsPrivileged,
		Description:      s.clean(in.Description),
		Size:             HumanSize(int64(len(in.Data))),
		SizeBytes:        int64(len(in.Data)),
		UploadDate:       s.now().UTC().Format(time.RFC3339),
		UploadedBy:       uploadedBy,
		UploadedByEmail:  email,
		Status:           StatusActive,
		Path:             path,
	}

	err = s.update(ctx, func(docs []Metadata) ([]Metadata, error) {
		return append(docs, meta), nil
	})
	if err != nil {
		if _, derr := s.blobs.Delete(ctx, dir, id, filename); derr != nil {
			log.Error().Err(derr).Str("doc_id", id).Msg("failed to remove blob after metadata write failed")
		}
		return Metadata{}, err
	}

	log.Info().
		Str("user_id", identity.UserID(email)).
		Str("doc_id", id).
		Int64("size_bytes", meta.SizeBytes).
		Msg("document uploaded")
	return meta, nil
}

// Get returns the metadata and bytes of a document. found is false when the
// caller has no such document; a missing blob yields found with nil data.
func (s *Service) Get(ctx context.Context, id string) (Metadata, []byte, bool, error) {
	_, dir, err := s.userDir(ctx)
	if err != nil {
		return Metadata{}, nil, false, err
	}
	docs, err := s.List(ctx)
	if err != nil {
		return Metadata{}, nil, false, err
	}

	for _, d := range docs {
		if d.ID != id {
			continue
		}
		data, ok, err := s.blobs.Get(ctx, dir, d.ID, d.OriginalFilename)
		if err != nil {
			return d, nil, true, fmt.Errorf("read blob: %w", err)
		}
		if !ok {
			return d, nil, true, nil
		}
		return d, data, true, nil
	}
	return Metadata{}, nil, false, nil
}

// Find returns the metadata entry for id.
func (s *Service) Find(ctx context.Context, id string) (Metadata, bool, error) {
	docs, err := s.List(ctx)
	if err != nil {
		return Metadata{}, false, err
	}
	for _, d := range docs {
		if d.ID == id {
			return d, true, nil
		}
	}
	return Metadata{}, false, nil
}

// Delete removes the blob first and then the metadata entry. It reports
// false when the caller has no document with that id.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	_, dir, err := s.userDir(ctx)
	if err != nil {
		return false, err
	}

	meta, found, err := s.Find(ctx, id)
	if err != nil || !found {
		return false, err
	}

	if _, err := s.blobs.Delete(ctx, dir, meta.ID, meta.OriginalFilename); err != nil {
		metrics.StorageErrors.WithLabelValues("blob_delete").Inc()
		return false, fmt.Errorf("delete blob: %w", err)
	}

	err = s.update(ctx, func(docs []Metadata) ([]Metadata, error) {
		out := docs[:0]
		for _, d := range docs {
			if d.ID != id {
				out = append(out, d)
			}
		}
		return out, nil
	})
	if err != nil {
		// The blob is gone; Reconcile drops the dangling entry later.
		return false, err
	}
	return true, nil
}

// Report is the result of a reconciliation sweep.
type Report struct {
	OrphanBlobs      []string `json:"orphan_blobs"`
	DanglingMetadata []string `json:"dangling_metadata"`
	// RecentBlobs have no metadata yet but are younger than OrphanGrace.
	// They are never removed.
	RecentBlobs []string `json:"recent_blobs"`
	Removed     bool     `json:"removed"`
}

func (r Report) Clean() bool {
	return len(r.OrphanBlobs) == 0 && len(r.DanglingMetadata) == 0
}

// Reconcile compares the caller's blobs with their metadata. Blobs without
// metadata and metadata without a blob are reported, and removed when remove
// is set.
func (s *Service) Reconcile(ctx context.Context, remove bool) (Report, error) {
	email, dir, err := s.userDir(ctx)
	if err != nil {
		return Report{}, err
	}

	docs, err := s.List(ctx)
	if err != nil {
		return Report{}, err
	}
	stored, err := s.blobs.List(ctx, dir)
	if err != nil {
		return Report{}, fmt.Errorf("list blobs: %w", err)
	}

	blobs := make(map[string]bool, len(stored))
	for _, b := range stored {
		blobs[b.Name] = true
	}
	expected := make(map[string]bool, len(docs))
	dangling := make(map[string]bool)

	report := Report{OrphanBlobs: []string{}, DanglingMetadata: []string{}, RecentBlobs: []string{}}
	for _, d := range docs {
		name, err := BlobName(d.ID, d.OriginalFilename)
		if err != nil || !blobs[name] {
			report.DanglingMetadata = append(report.DanglingMetadata, d.ID)
			dangling[d.ID] = true
			continue
		}
		expected[name] = true
	}
	now := s.now()
	for _, b := range stored {
		switch {
		case expected[b.Name]:
		case !b.ModTime.IsZero() && now.Sub(b.ModTime) < OrphanGrace:
			report.RecentBlobs = append(report.RecentBlobs, b.Name)
		default:
			report.OrphanBlobs = append(report.OrphanBlobs, b.Name)
		}
	}

	if !remove || report.Clean() {
		return report, nil
	}

	for _, n := range report.OrphanBlobs {
		id, filename, ok := strings.Cut(n, "_")
		if !ok {
			continue
		}
		if _, err := s.blobs.Delete(ctx, dir, id, filename); err != nil {
			return report, fmt.Errorf("remove orphan %s: %w", n, err)
		}
	}
	if len(dangling) > 0 {
		err := s.update(ctx, func(docs []Metadata) ([]Metadata, error) {
			out := docs[:0]
			for _, d := range docs {
				if !dangling[d.ID] {
					out = append(out, d)
				}
			}
			return out, nil
		})
		if err != nil {
			return report, err
		}
	}
	report.Removed = true

	log.Info().
		Str("user_id", identity.UserID(email)).
		Int("orphan_blobs", len(report.OrphanBlobs)).
		Int("dangling_metadata", len(report.DanglingMetadata)).
		Msg("document reconciliation removed inconsistencies")
	return report, nil
}
