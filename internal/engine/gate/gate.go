// Package gate decides whether an organization may use a feature right now,
// combining its effective plan with this month's usage.
package gate

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"lawdesk/internal/engine/plans"
	"lawdesk/internal/engine/usage"
	"lawdesk/internal/platform/metrics"
)

const (
	ReasonNotInPlan = "not available in plan"
	ReasonUnlimited = "unlimited"
)

// Decision is the outcome of CanUse. Reason is shown to the user as-is.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Plan    string `json:"plan"`
	Used    int    `json:"used,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// PlanResolver returns the plan whose features apply to an organization.
type PlanResolver interface {
	EffectivePlan(ctx context.Context, orgCode string) (string, error)
}

// DeniedError is returned by Run when the gate refuses the action.
type DeniedError struct {
	Feature  string
	Decision Decision
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s denied: %s", e.Feature, e.Decision.Reason)
}

// NotInPlan reports whether the denial is a plan restriction rather than an
// exhausted quota.
func (e *DeniedError) NotInPlan() bool {
	return e.Decision.Reason == ReasonNotInPlan
}

type Gate struct {
	plans PlanResolver
	meter usage.Meter

	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

func New(resolver PlanResolver, meter usage.Meter) *Gate {
	return &Gate{
		plans: resolver,
		meter: meter,
		locks: make(map[string]*semaphore.Weighted),
	}
}

// CanUse evaluates the feature for orgCode. The meter is only read when the
// plan has a finite cap for the feature.
func (g *Gate) CanUse(ctx context.Context, orgCode, feature string) (Decision, error) {
	plan, err := g.plans.EffectivePlan(ctx, orgCode)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve plan: %w", err)
	}

	d := Decision{Plan: plan}
	if !plans.HasFeature(plan, feature) {
		d.Reason = ReasonNotInPlan
		metrics.GateDecisions.WithLabelValues(feature, "not_in_plan").Inc()
		return d, nil
	}

	limit, ok := plans.GetLimit(plan, feature)
	if !ok || plans.IsUnlimited(limit) {
		d.Allowed = true
		d.Reason = ReasonUnlimited
		metrics.GateDecisions.WithLabelValues(feature, "unlimited").Inc()
		return d, nil
	}

	used, err := g.meter.Get(ctx, orgCode, feature)
	if err != nil {
		return Decision{}, fmt.Errorf("read usage: %w", err)
	}

	d.Used = used
	d.Limit = limit
	if used >= limit {
		d.Reason = fmt.Sprintf("limit reached: %d/%d", used, limit)
		metrics.GateDecisions.WithLabelValues(feature, "limit_reached").Inc()
		return d, nil
	}

	d.Allowed = true
	d.Reason = fmt.Sprintf("%d/%d", used, limit)
	metrics.GateDecisions.WithLabelValues(feature, "allowed").Inc()
	return d, nil
}

// RecordUsage counts one use of feature. Callers invoke it after the gated
// action succeeded.
func (g *Gate) RecordUsage(ctx context.Context, orgCode, feature string) (int, error) {
	n, err := g.meter.Increment(ctx, orgCode, feature)
	if err != nil {
		return 0, fmt.Errorf("record usage: %w", err)
	}
	metrics.UsageRecorded.WithLabelValues(feature).Inc()
	return n, nil
}

func (g *Gate) lockFor(orgCode, feature string) *semaphore.Weighted {
	key := orgCode + "|" + feature
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[key]
	if !ok {
		l = semaphore.NewWeighted(1)
		g.locks[key] = l
	}
	return l
}

// Run checks the gate, performs action and records usage when action
// succeeds. When the plan caps the feature, concurrent Runs for the same
// organization and feature are serialized within this process so the cap
// cannot be overshot by racing requests. Unlimited features run unserialized.
func (g *Gate) Run(ctx context.Context, orgCode, feature string, action func(context.Context) error) (Decision, error) {
	d, err := g.CanUse(ctx, orgCode, feature)
	if err != nil {
		return d, err
	}
	if !d.Allowed {
		return d, &DeniedError{Feature: feature, Decision: d}
	}

	if d.Reason != ReasonUnlimited {
		l := g.lockFor(orgCode, feature)
		if err := l.Acquire(ctx, 1); err != nil {
			return d, err
		}
		defer l.Release(1)

		// usage may have moved while waiting
		d, err = g.CanUse(ctx, orgCode, feature)
		if err != nil {
			return d, err
		}
		if !d.Allowed {
			return d, &DeniedError{Feature: feature, Decision: d}
		}
	}

	if err := action(ctx); err != nil {
		return d, err
	}

	if _, err := g.RecordUsage(ctx, orgCode, feature); err != nil {
		// The action already happened; the count is lost, not the result.
		log.Error().Err(err).
			Str("org_code", orgCode).
			Str("feature", feature).
			Msg("failed to record usage after successful action")
	}
	return d, nil
}
