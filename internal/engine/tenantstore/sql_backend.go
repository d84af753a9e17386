package tenantstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"lawdesk/internal/platform/database"
)

const tenantSchema = `
CREATE TABLE IF NOT EXISTS tenant_records (
	kind TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	last_modified TEXT NOT NULL,
	version INTEGER NOT NULL,
	data TEXT NOT NULL
)`

// SQLBackend keeps each user's records in their own sqlite file,
// <root>/<user-dir>/records.db, one row per kind.
type SQLBackend struct {
	root string
	pool *database.TenantDBPool
}

func NewSQLBackend(root string, pool *database.TenantDBPool) *SQLBackend {
	pool.Init = func(db *sql.DB) error {
		_, err := db.Exec(tenantSchema)
		return err
	}
	return &SQLBackend{root: root, pool: pool}
}

func (b *SQLBackend) db(userDir string) (*sql.DB, error) {
	return b.pool.Get(userDir, filepath.Join(b.root, userDir, "records.db"))
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func readRecord(ctx context.Context, q queryer, kind string) (*Envelope, error) {
	var env Envelope
	var data string
	err := q.QueryRowContext(ctx,
		`SELECT owner, last_modified, version, data FROM tenant_records WHERE kind = ?`, kind,
	).Scan(&env.Owner, &env.LastModified, &env.Version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	env.Data = []byte(data)
	return &env, nil
}

func (b *SQLBackend) Read(ctx context.Context, userDir, kind string) (*Envelope, error) {
	db, err := b.db(userDir)
	if err != nil {
		return nil, err
	}
	return readRecord(ctx, db, kind)
}

func (b *SQLBackend) Update(ctx context.Context, userDir, kind string, fn func(cur *Envelope) (*Envelope, error)) error {
	db, err := b.db(userDir)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	cur, err := readRecord(ctx, tx, kind)
	if err != nil {
		return err
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}

	var res sql.Result
	if cur == nil {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO tenant_records (kind, owner, last_modified, version, data)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (kind) DO NOTHING
		`, kind, next.Owner, next.LastModified, next.Version, string(next.Data))
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE tenant_records SET owner = ?, last_modified = ?, version = ?, data = ?
			WHERE kind = ? AND version = ?
		`, next.Owner, next.LastModified, next.Version, string(next.Data), kind, cur.Version)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s changed during write", ErrVersionConflict, kind)
	}
	return tx.Commit()
}

func (b *SQLBackend) Close() error {
	b.pool.CloseAll()
	return nil
}
