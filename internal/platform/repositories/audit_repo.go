package repositories

import (
	"context"
	"database/sql"
	"encoding/json"

	"lawdesk/internal/platform/models"
)

type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditLog) error {
	metaJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, org_code, user_hash, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.OrgCode, entry.UserHash, entry.Action, entry.ResourceType, entry.ResourceID, string(metaJSON), entry.IPAddress, entry.UserAgent, entry.CreatedAt)
	return err
}

func (r *AuditRepository) ListByOrg(ctx context.Context, orgCode string, limit int) ([]*models.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, org_code, user_hash, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at
		FROM audit_logs WHERE org_code = ? ORDER BY created_at DESC LIMIT ?
	`, orgCode, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		var l models.AuditLog
		var metaStr string
		if err := rows.Scan(&l.ID, &l.OrgCode, &l.UserHash, &l.Action, &l.ResourceType, &l.ResourceID, &metaStr, &l.IPAddress, &l.UserAgent, &l.CreatedAt); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(metaStr), &l.Metadata)
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
