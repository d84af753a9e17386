package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLMeter persists counters in the usage_counters table. Increment is a
// single upsert, so concurrent requests and multiple processes sharing the
// database never lose updates.
type SQLMeter struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLMeter(db *sql.DB, now func() time.Time) *SQLMeter {
	if now == nil {
		now = time.Now
	}
	return &SQLMeter{db: db, now: now}
}

func (m *SQLMeter) Get(ctx context.Context, orgCode, feature string) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx, `
		SELECT count FROM usage_counters WHERE org_code = ? AND feature = ? AND period = ?
	`, orgCode, feature, Period(m.now())).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read usage: %w", err)
	}
	return count, nil
}

func (m *SQLMeter) Increment(ctx context.Context, orgCode, feature string) (int, error) {
	now := m.now()
	var count int
	err := m.db.QueryRowContext(ctx, `
		INSERT INTO usage_counters (org_code, feature, period, count, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT (org_code, feature, period) DO UPDATE SET
			count = count + 1,
			updated_at = excluded.updated_at
		RETURNING count
	`, orgCode, feature, Period(now), now.Unix()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return count, nil
}

func (m *SQLMeter) Summary(ctx context.Context, orgCode string) (map[string]int, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT feature, count FROM usage_counters WHERE org_code = ? AND period = ?
	`, orgCode, Period(m.now()))
	if err != nil {
		return nil, fmt.Errorf("usage summary: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var feature string
		var count int
		if err := rows.Scan(&feature, &count); err != nil {
			return nil, err
		}
		out[feature] = count
	}
	return out, rows.Err()
}
