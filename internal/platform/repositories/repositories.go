package repositories

import (
	"context"
	"database/sql"
	"time"

	"lawdesk/internal/platform/models"
)

type OrganizationRepository struct {
	db *sql.DB
}

func NewOrganizationRepository(db *sql.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return r.db.BeginTx(ctx, nil)
}

func (r *OrganizationRepository) CreateTx(ctx context.Context, tx *sql.Tx, org *models.Organization) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO organizations (code, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, org.Code, org.Name, org.CreatedAt, org.UpdatedAt)
	return err
}

func (r *OrganizationRepository) GetByCode(ctx context.Context, code string) (*models.Organization, error) {
	org := &models.Organization{}
	err := r.db.QueryRowContext(ctx, `
		SELECT code, name, created_at, updated_at
		FROM organizations WHERE code = ?
	`, code).Scan(&org.Code, &org.Name, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return org, nil
}

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateTx(ctx context.Context, tx *sql.Tx, user *models.User) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, org_code, email, password_hash, full_name, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, user.ID, user.OrgCode, user.Email, user.PasswordHash, user.FullName, user.Role, user.CreatedAt, user.UpdatedAt)
	return err
}

const userColumns = `id, org_code, email, password_hash, full_name, role, last_login_at, created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var lastLogin sql.NullInt64
	err := row.Scan(&user.ID, &user.OrgCode, &user.Email, &user.PasswordHash, &user.FullName, &user.Role, &lastLogin, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if lastLogin.Valid {
		v := lastLogin.Int64
		user.LastLoginAt = &v
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

// OwnerEmail returns the email of the organization's owner, or "" if none.
func (r *UserRepository) OwnerEmail(ctx context.Context, orgCode string) (string, error) {
	var email string
	err := r.db.QueryRowContext(ctx, `
		SELECT email FROM users WHERE org_code = ? AND role = 'owner' ORDER BY created_at LIMIT 1
	`, orgCode).Scan(&email)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return email, err
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, userID string, timestamp int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?`, timestamp, time.Now().Unix(), userID)
	return err
}

// ListEmails returns every user's email, for sweeps that walk all tenants.
func (r *UserRepository) ListEmails(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT email FROM users ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}
