package audit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"lawdesk/internal/platform/identity"
	"lawdesk/internal/platform/models"
	"lawdesk/internal/platform/repositories"
)

const (
	ActionOwnershipMismatch = "security.ownership_mismatch"
	ActionSessionInvalid    = "security.session_invalid"
	ActionPlanChanged       = "subscription.plan_changed"
	ActionActivated         = "subscription.activated"
	ActionCancelled         = "subscription.cancelled"
	ActionDocumentUploaded  = "document.uploaded"
	ActionDocumentDeleted   = "document.deleted"
	ActionComparisonRun     = "comparison.run"
)

type requestInfo struct {
	ip string
	ua string
}

type requestKey struct{}

// WithRequest records the caller's address and user agent for later entries.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, requestKey{}, requestInfo{ip: r.RemoteAddr, ua: r.UserAgent()})
}

type Logger struct {
	repo *repositories.AuditRepository
	wg   sync.WaitGroup
}

func NewLogger(repo *repositories.AuditRepository) *Logger {
	return &Logger{repo: repo}
}

// Log writes an entry asynchronously. The caller's identity and request
// details are read from ctx; a missing identity is recorded as anonymous.
func (l *Logger) Log(ctx context.Context, action, resourceType, resourceID string, metadata map[string]interface{}) {
	if l == nil {
		return
	}

	entry := &models.AuditLog{
		ID:           "audit_" + uuid.New().String(),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
		IPAddress:    "unknown",
		UserAgent:    "unknown",
		CreatedAt:    time.Now().Unix(),
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]interface{}{}
	}

	if id, err := identity.FromContext(ctx); err == nil {
		entry.OrgCode = id.OrgCode
		entry.UserHash = identity.UserID(id.Email)
	}
	if req, ok := ctx.Value(requestKey{}).(requestInfo); ok {
		entry.IPAddress = req.ip
		entry.UserAgent = req.ua
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		// The request context may already be cancelled by the time this runs.
		writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.repo.Insert(writeCtx, entry); err != nil {
			log.Error().Err(err).Str("action", action).Msg("failed to write audit log")
		}
	}()
}

// Wait blocks until all pending entries are written.
func (l *Logger) Wait() {
	if l == nil {
		return
	}
	l.wg.Wait()
}
