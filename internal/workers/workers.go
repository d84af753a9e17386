// Package workers holds the periodic jobs run by cmd/worker and on demand by
// lawctl.
package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"lawdesk/internal/engine/documents"
	"lawdesk/internal/engine/subscriptions"
	"lawdesk/internal/platform/identity"
	"lawdesk/internal/platform/mailer"
	"lawdesk/internal/platform/metrics"
	"lawdesk/internal/platform/models"
)

// OrgLookup resolves organization names for notices.
type OrgLookup interface {
	GetByCode(ctx context.Context, code string) (*models.Organization, error)
}

// UserDirectory lists users and finds an organization's owner.
type UserDirectory interface {
	ListEmails(ctx context.Context) ([]string, error)
	OwnerEmail(ctx context.Context, orgCode string) (string, error)
}

// TrialExpiry moves ended trials to expired and tells each owner.
type TrialExpiry struct {
	Registry *subscriptions.Registry
	Orgs     OrgLookup
	Users    UserDirectory
	Mail     mailer.Sender
}

// Run returns the organizations whose trial was expired.
func (j *TrialExpiry) Run(ctx context.Context) ([]string, error) {
	expired, err := j.Registry.ExpireTrials(ctx)
	if err != nil {
		return nil, fmt.Errorf("expire trials: %w", err)
	}

	for _, code := range expired {
		log.Info().Str("org_code", code).Msg("trial expired")
		if j.Mail == nil || j.Users == nil {
			continue
		}

		owner, err := j.Users.OwnerEmail(ctx, code)
		if err != nil || owner == "" {
			log.Warn().Err(err).Str("org_code", code).Msg("no owner to notify of trial expiry")
			continue
		}

		data := mailer.TrialExpiredData{Org: code}
		if j.Orgs != nil {
			if org, err := j.Orgs.GetByCode(ctx, code); err == nil && org != nil {
				data.Org = org.Name
			}
		}
		if sub, err := j.Registry.Get(ctx, code); err == nil {
			data.Plan = sub.Plan
		}
		if !mailer.SendTrialExpired(ctx, j.Mail, owner, data) {
			log.Warn().Str("org_code", code).Msg("trial expiry notice not sent")
		}
	}
	return expired, nil
}

// Reconciler sweeps document blobs against their metadata for every user.
type Reconciler struct {
	Users  UserDirectory
	Docs   *documents.Service
	Remove bool
}

// ReconcileSummary totals one sweep over all users.
type ReconcileSummary struct {
	Users            int
	Failed           int
	OrphanBlobs      int
	DanglingMetadata int
}

// One reconciles a single user's documents.
func (j *Reconciler) One(ctx context.Context, email string) (documents.Report, error) {
	ctx = identity.WithIdentity(ctx, identity.Identity{Email: email})
	return j.Docs.Reconcile(ctx, j.Remove)
}

// Run reconciles every user. A failure for one user is logged and the sweep
// continues.
func (j *Reconciler) Run(ctx context.Context) (ReconcileSummary, error) {
	var sum ReconcileSummary
	emails, err := j.Users.ListEmails(ctx)
	if err != nil {
		return sum, fmt.Errorf("list users: %w", err)
	}

	for _, email := range emails {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		sum.Users++

		report, err := j.One(ctx, email)
		if err != nil {
			sum.Failed++
			log.Warn().Err(err).Str("user_id", identity.UserID(email)).Msg("document reconciliation failed")
			continue
		}
		sum.OrphanBlobs += len(report.OrphanBlobs)
		sum.DanglingMetadata += len(report.DanglingMetadata)
		if !report.Clean() {
			log.Info().
				Str("user_id", identity.UserID(email)).
				Int("orphan_blobs", len(report.OrphanBlobs)).
				Int("dangling_metadata", len(report.DanglingMetadata)).
				Bool("removed", report.Removed).
				Msg("document store out of sync")
		}
	}
	return sum, nil
}

// Every runs fn immediately and then on each tick until ctx is done. Job
// errors are logged and counted, never returned.
func Every(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) error {
	run := func() {
		start := time.Now()
		err := fn(ctx)
		metrics.JobRuns.WithLabelValues(name, metrics.JobResult(err)).Inc()
		event := log.Info()
		if err != nil {
			event = log.Error().Err(err)
		}
		event.Str("job", name).Dur("elapsed", time.Since(start)).Msg("job finished")
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			run()
		}
	}
}
