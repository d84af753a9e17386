package database

import (
	"context"
	"database/sql"
	"time"
)

type GlobalDB struct {
	DB *sql.DB
}

func NewGlobalDBWrapper(db *sql.DB) *GlobalDB {
	return &GlobalDB{DB: db}
}

// Ping checks connectivity with a short deadline for health probes.
func (g *GlobalDB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return g.DB.PingContext(ctx)
}
