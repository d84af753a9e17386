package workers

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawdesk/internal/engine/documents"
	"lawdesk/internal/engine/plans"
	"lawdesk/internal/engine/subscriptions"
	"lawdesk/internal/engine/tenantstore"
	"lawdesk/internal/platform/config"
	"lawdesk/internal/platform/database"
	"lawdesk/internal/platform/identity"
	"lawdesk/internal/platform/models"
)

type fakeUsers struct {
	emails []string
	owners map[string]string
}

func (f *fakeUsers) ListEmails(context.Context) ([]string, error) { return f.emails, nil }

func (f *fakeUsers) OwnerEmail(_ context.Context, org string) (string, error) {
	return f.owners[org], nil
}

type fakeOrgs map[string]string

func (f fakeOrgs) GetByCode(_ context.Context, code string) (*models.Organization, error) {
	name, ok := f[code]
	if !ok {
		return nil, nil
	}
	return &models.Organization{Code: code, Name: name}, nil
}

type sentMail struct {
	to, subject, html string
}

type recordingSender struct {
	sent []sentMail
}

func (s *recordingSender) Send(_ context.Context, to, subject, html string) bool {
	s.sent = append(s.sent, sentMail{to, subject, html})
	return true
}

func TestTrialExpiry_ExpiresAndNotifies(t *testing.T) {
	db, err := database.NewGlobalDB(config.GlobalDBConfig{URL: ":memory:"})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, database.Migrate(db))

	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	registry := subscriptions.NewRegistry(subscriptions.NewRepository(db), nil, clock)

	ctx := context.Background()
	_, err = registry.StartTrial(ctx, "ORG1", plans.Professional, 14)
	require.NoError(t, err)
	_, err = registry.StartTrial(ctx, "ORG2", plans.Professional, 30)
	require.NoError(t, err)

	now = now.Add(15 * 24 * time.Hour)
	mail := &recordingSender{}
	job := &TrialExpiry{
		Registry: registry,
		Orgs:     fakeOrgs{"ORG1": "Hale & Partners"},
		Users:    &fakeUsers{owners: map[string]string{"ORG1": "ann@halelaw.com"}},
		Mail:     mail,
	}

	expired, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ORG1"}, expired)

	sub, err := registry.Get(ctx, "ORG1")
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusExpired, sub.Status)
	assert.Equal(t, plans.Basic, sub.EffectivePlan())

	require.Len(t, mail.sent, 1)
	assert.Equal(t, "ann@halelaw.com", mail.sent[0].to)
	assert.Contains(t, mail.sent[0].html, "Hale &amp; Partners")

	again, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, again, "an expired trial is not expired twice")
}

func TestReconciler_SweepsEveryUser(t *testing.T) {
	root := t.TempDir()
	store := tenantstore.New(tenantstore.NewFileBackend(root), tenantstore.SchemeHashed)
	blobs := documents.NewFileBlobStore(root)
	docs := documents.NewService(store, blobs, 0, nil)

	ctx := context.Background()
	ann := identity.WithIdentity(ctx, identity.Identity{Email: "ann@halelaw.com"})
	_, err := docs.Upload(ann, documents.UploadInput{Filename: "brief.txt", Data: []byte("brief")})
	require.NoError(t, err)

	// a blob written without metadata, long enough ago to count as orphaned
	path, err := blobs.Save(ctx, store.Scheme().UserDir("bob@halelaw.com"), "stray", []byte("x"), "stray.txt", "text/plain")
	require.NoError(t, err)
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	job := &Reconciler{
		Users: &fakeUsers{emails: []string{"ann@halelaw.com", "bob@halelaw.com"}},
		Docs:  docs,
	}
	sum, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Users)
	assert.Equal(t, 0, sum.Failed)
	assert.Equal(t, 1, sum.OrphanBlobs)
	assert.Equal(t, 0, sum.DanglingMetadata)

	job.Remove = true
	report, err := job.One(ctx, "bob@halelaw.com")
	require.NoError(t, err)
	assert.True(t, report.Removed)

	job.Remove = false
	report, err = job.One(ctx, "bob@halelaw.com")
	require.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestEvery_RunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs int32

	done := make(chan error)
	go func() {
		done <- Every(ctx, "test", 5*time.Millisecond, func(context.Context) error {
			if atomic.AddInt32(&runs, 1) == 3 {
				cancel()
			}
			return errors.New("job errors are not fatal")
		})
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Every did not stop after cancel")
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(3))
}
