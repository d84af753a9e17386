// Package comparison runs gated case comparisons against the LLM and keeps
// the results in the caller's search history.
package comparison

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"lawdesk/internal/engine/gate"
	"lawdesk/internal/engine/plans"
	"lawdesk/internal/engine/tenantstore"
	"lawdesk/internal/platform/identity"
	"lawdesk/internal/platform/llm"
)

var (
	ErrNoNewCase = errors.New("new case is required")
	// ErrModelFailed wraps a failed model call. No usage is recorded for it.
	ErrModelFailed = errors.New("case comparison failed")
)

const (
	historyKind = "search_history"
	// historyLimit caps the entries kept in search_history.
	historyLimit = 200
)

type Request struct {
	NewCase    llm.Case   `json:"new_case"`
	PriorCases []llm.Case `json:"prior_cases"`
}

// Entry is one search_history item written by Compare. Clients keep their
// own items in the same record; those are carried along untouched.
type Entry struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	CreatedAt  string     `json:"created_at"`
	NewCase    llm.Case   `json:"new_case"`
	PriorCount int        `json:"prior_count"`
	Result     llm.Result `json:"result"`
}

type Service struct {
	gate  *gate.Gate
	llm   llm.Comparer
	store *tenantstore.Store
	now   func() time.Time
}

func NewService(g *gate.Gate, comparer llm.Comparer, store *tenantstore.Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{gate: g, llm: comparer, store: store, now: now}
}

// Compare checks the case_comparison gate, calls the model and records usage
// only when the model reports success. Without prior cases in the request
// the caller's stored matters are used.
func (s *Service) Compare(ctx context.Context, orgCode string, req Request) (Entry, gate.Decision, error) {
	if len(req.NewCase) == 0 {
		return Entry{}, gate.Decision{}, ErrNoNewCase
	}

	prior := req.PriorCases
	if len(prior) == 0 {
		matters, err := tenantstore.Load(ctx, s.store, "matters", []llm.Case{})
		if err != nil && !errors.Is(err, tenantstore.ErrStorageUnavailable) {
			return Entry{}, gate.Decision{}, err
		}
		prior = matters
	}

	var result llm.Result
	decision, err := s.gate.Run(ctx, orgCode, plans.FeatureCaseComparison, func(ctx context.Context) error {
		res, err := s.llm.Compare(ctx, req.NewCase, prior)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrModelFailed, err)
		}
		if !res.Success {
			return fmt.Errorf("%w: %s", ErrModelFailed, res.Error)
		}
		result = res
		return nil
	})
	if err != nil {
		return Entry{}, decision, err
	}

	entry := Entry{
		ID:         ulid.Make().String(),
		Type:       plans.FeatureCaseComparison,
		CreatedAt:  s.now().UTC().Format(time.RFC3339),
		NewCase:    req.NewCase,
		PriorCount: len(prior),
		Result:     result,
	}
	s.remember(ctx, entry)
	return entry, decision, nil
}

// remember prepends entry to search_history, keeping items of other shapes
// in place. A failure is logged; the comparison itself already succeeded and
// was counted.
func (s *Service) remember(ctx context.Context, entry Entry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Msg("comparison: could not encode history entry")
		return
	}
	for attempt := 0; attempt < 3; attempt++ {
		items, version, err := tenantstore.LoadVersioned(ctx, s.store, historyKind, []json.RawMessage{})
		if err != nil {
			log.Warn().Err(err).Msg("comparison: could not load search history")
			return
		}
		items = append([]json.RawMessage{raw}, items...)
		if len(items) > historyLimit {
			items = items[:historyLimit]
		}
		_, err = s.store.SaveIfVersion(ctx, historyKind, items, version)
		if err == nil {
			return
		}
		if !errors.Is(err, tenantstore.ErrVersionConflict) {
			userID, _ := identity.UserHash(ctx)
			log.Warn().Err(err).Str("user_id", userID).Msg("comparison: could not save search history")
			return
		}
	}
}

// History returns the caller's stored comparisons, newest first. Items that
// are not comparisons are skipped.
func (s *Service) History(ctx context.Context) ([]Entry, error) {
	items, err := tenantstore.Load(ctx, s.store, historyKind, []json.RawMessage{})
	if err != nil {
		return []Entry{}, err
	}
	return comparisons(items), nil
}

func comparisons(items []json.RawMessage) []Entry {
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		var e Entry
		if err := json.Unmarshal(item, &e); err != nil || e.Type != plans.FeatureCaseComparison {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}
