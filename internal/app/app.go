// Package app builds the shared services from configuration. The server,
// the worker and lawctl all start here.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"lawdesk/internal/engine/documents"
	"lawdesk/internal/engine/gate"
	"lawdesk/internal/engine/subscriptions"
	"lawdesk/internal/engine/tenantstore"
	"lawdesk/internal/engine/usage"
	"lawdesk/internal/platform/audit"
	"lawdesk/internal/platform/config"
	"lawdesk/internal/platform/database"
	"lawdesk/internal/platform/mailer"
	"lawdesk/internal/platform/payments"
	"lawdesk/internal/platform/repositories"
)

type App struct {
	Config *config.Config

	DB      *sql.DB
	Tenants *database.TenantDBPool

	Orgs      *repositories.OrganizationRepository
	Users     *repositories.UserRepository
	AuditRepo *repositories.AuditRepository
	Audit     *audit.Logger

	Store     *tenantstore.Store
	Documents *documents.Service
	Registry  *subscriptions.Registry
	Meter     usage.Meter
	Gate      *gate.Gate
	Mail      mailer.Sender
}

// New opens the global database, applies migrations and wires the storage,
// subscription and usage services selected by cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.NewGlobalDB(cfg.Database.Global)
	if err != nil {
		return nil, fmt.Errorf("connect global db: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate global db: %w", err)
	}

	a := &App{
		Config:    cfg,
		DB:        db,
		Tenants:   database.NewTenantDBPool(cfg.Database.Tenant),
		Orgs:      repositories.NewOrganizationRepository(db),
		Users:     repositories.NewUserRepository(db),
		AuditRepo: repositories.NewAuditRepository(db),
		Mail:      mailer.New(cfg.Email),
	}
	a.Audit = audit.NewLogger(a.AuditRepo)

	scheme, err := tenantstore.ParseScheme(cfg.Storage.PathScheme)
	if err != nil {
		a.Close()
		return nil, err
	}

	var backend tenantstore.Backend
	switch cfg.Storage.Backend {
	case "", "file":
		backend = tenantstore.NewFileBackend(cfg.Storage.RootDir)
	case "sql":
		backend = tenantstore.NewSQLBackend(cfg.Storage.RootDir, a.Tenants)
	default:
		a.Close()
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	a.Store = tenantstore.New(backend, scheme, tenantstore.WithAuditor(a.Audit))

	var blobs documents.BlobStore
	switch cfg.Storage.BlobBackend {
	case "", "file":
		blobs = documents.NewFileBlobStore(cfg.Storage.RootDir)
	case "s3":
		client, err := documents.NewS3Client(ctx, cfg.Storage.S3)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("s3 client: %w", err)
		}
		blobs = documents.NewS3BlobStore(client, cfg.Storage.S3.Bucket)
	default:
		a.Close()
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Storage.BlobBackend)
	}
	a.Documents = documents.NewService(a.Store, blobs, cfg.Storage.MaxUploadBytes, time.Now)

	a.Registry = subscriptions.NewRegistry(subscriptions.NewRepository(db), payments.NewProvider(cfg.Payments), time.Now)

	switch cfg.Usage.Backend {
	case "memory":
		a.Meter = usage.NewMemoryMeter(time.Now)
	case "", "sql":
		a.Meter = usage.NewSQLMeter(db, time.Now)
	default:
		a.Close()
		return nil, fmt.Errorf("unknown usage backend %q", cfg.Usage.Backend)
	}
	a.Gate = gate.New(a.Registry, a.Meter)

	log.Info().
		Str("storage", cfg.Storage.Backend).
		Str("blobs", cfg.Storage.BlobBackend).
		Str("path_scheme", string(scheme)).
		Str("usage", cfg.Usage.Backend).
		Msg("services ready")
	return a, nil
}

// Close waits for pending audit writes and releases database handles.
func (a *App) Close() {
	a.Audit.Wait()
	a.Tenants.CloseAll()
	a.DB.Close()
}
