package usage

import (
	"context"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawdesk/internal/platform/config"
	"lawdesk/internal/platform/database"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func newSQLMeter(t *testing.T, clock *fakeClock) *SQLMeter {
	t.Helper()
	db, err := database.NewGlobalDB(config.GlobalDBConfig{URL: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))
	return NewSQLMeter(db, clock.Now)
}

func meters(t *testing.T, clock *fakeClock) map[string]Meter {
	return map[string]Meter{
		"memory": NewMemoryMeter(clock.Now),
		"sql":    newSQLMeter(t, clock),
	}
}

func TestPeriod(t *testing.T) {
	assert.Equal(t, "2026_10", Period(time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2027_01", Period(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestMeter_IncrementAndGet(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}
	ctx := context.Background()

	for name, m := range meters(t, clock) {
		t.Run(name, func(t *testing.T) {
			n, err := m.Get(ctx, "ORG7", "case_comparison")
			require.NoError(t, err)
			assert.Equal(t, 0, n, "absent key reads as zero")

			for i := 1; i <= 3; i++ {
				n, err = m.Increment(ctx, "ORG7", "case_comparison")
				require.NoError(t, err)
				assert.Equal(t, i, n)
			}

			n, err = m.Get(ctx, "ORG7", "case_comparison")
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			other, err := m.Get(ctx, "ORG8", "case_comparison")
			require.NoError(t, err)
			assert.Equal(t, 0, other, "counters are per organization")
		})
	}
}

func TestMeter_MonthRollover(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{}

	for name, m := range meters(t, clock) {
		t.Run(name, func(t *testing.T) {
			clock.Set(time.Date(2026, 10, 31, 23, 0, 0, 0, time.UTC))
			for i := 0; i < 5; i++ {
				_, err := m.Increment(ctx, "ORG7", "ai_insights")
				require.NoError(t, err)
			}

			clock.Set(time.Date(2026, 11, 1, 0, 30, 0, 0, time.UTC))
			n, err := m.Get(ctx, "ORG7", "ai_insights")
			require.NoError(t, err)
			assert.Equal(t, 0, n, "new month starts at zero")

			clock.Set(time.Date(2026, 10, 31, 23, 30, 0, 0, time.UTC))
			n, err = m.Get(ctx, "ORG7", "ai_insights")
			require.NoError(t, err)
			assert.Equal(t, 5, n)
		})
	}
}

func TestMeter_Summary(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}

	for name, m := range meters(t, clock) {
		t.Run(name, func(t *testing.T) {
			m.Increment(ctx, "ORG7", "case_comparison")
			m.Increment(ctx, "ORG7", "case_comparison")
			m.Increment(ctx, "ORG7", "ai_insights")
			m.Increment(ctx, "ORG8", "ai_insights")

			summary, err := m.Summary(ctx, "ORG7")
			require.NoError(t, err)
			assert.Equal(t, map[string]int{"case_comparison": 2, "ai_insights": 1}, summary)
			assert.Equal(t, []string{"ai_insights", "case_comparison"}, Features(summary))
		})
	}
}

func TestMemoryMeter_ConcurrentIncrements(t *testing.T) {
	m := NewMemoryMeter(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Increment(ctx, "ORG1", "legal_research")
		}()
	}
	wg.Wait()

	n, _ := m.Get(ctx, "ORG1", "legal_research")
	assert.Equal(t, 50, n)
}
