// Package usage counts gated actions per organization, feature and month.
package usage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Meter counts feature usage for the current calendar month. A new month
// starts from zero without any reset job.
type Meter interface {
	Get(ctx context.Context, orgCode, feature string) (int, error)
	Increment(ctx context.Context, orgCode, feature string) (int, error)
	Summary(ctx context.Context, orgCode string) (map[string]int, error)
}

// Period formats t as the counter period key, e.g. "2026_10".
func Period(t time.Time) string {
	return t.UTC().Format("2006_01")
}

// MemoryMeter keeps counters for the life of the process. Counts are lost on
// restart; use SQLMeter where that matters.
type MemoryMeter struct {
	mu     sync.Mutex
	counts map[string]int
	now    func() time.Time
}

func NewMemoryMeter(now func() time.Time) *MemoryMeter {
	if now == nil {
		now = time.Now
	}
	return &MemoryMeter{counts: make(map[string]int), now: now}
}

func memoryKey(orgCode, feature, period string) string {
	return orgCode + "|" + feature + "|" + period
}

func (m *MemoryMeter) Get(_ context.Context, orgCode, feature string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[memoryKey(orgCode, feature, Period(m.now()))], nil
}

func (m *MemoryMeter) Increment(_ context.Context, orgCode, feature string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memoryKey(orgCode, feature, Period(m.now()))
	m.counts[key]++
	return m.counts[key], nil
}

func (m *MemoryMeter) Summary(_ context.Context, orgCode string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	period := Period(m.now())
	prefix := orgCode + "|"
	suffix := "|" + period
	out := make(map[string]int)
	for k, v := range m.counts {
		if len(k) <= len(prefix)+len(suffix) || k[:len(prefix)] != prefix || k[len(k)-len(suffix):] != suffix {
			continue
		}
		out[k[len(prefix):len(k)-len(suffix)]] = v
	}
	return out, nil
}

// Features returns the keys of a summary in stable order.
func Features(summary map[string]int) []string {
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
