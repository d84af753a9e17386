package subscriptions

import (
	"context"
	"database/sql"
	"fmt"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const insertQuery = `
	INSERT INTO subscriptions (org_code, plan, status, start_date, trial_end_date, stripe_customer_id, stripe_subscription_id, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

func insert(ctx context.Context, e execer, s *Subscription) error {
	_, err := e.ExecContext(ctx, insertQuery,
		s.OrgCode, s.Plan, s.Status, s.StartDate, s.TrialEndDate,
		s.StripeCustomerID, s.StripeSubscriptionID, s.UpdatedAt,
	)
	return err
}

func (r *Repository) Create(ctx context.Context, s *Subscription) error {
	return insert(ctx, r.db, s)
}

// CreateTx inserts within a signup transaction.
func (r *Repository) CreateTx(ctx context.Context, tx *sql.Tx, s *Subscription) error {
	return insert(ctx, tx, s)
}

const selectColumns = `org_code, plan, status, start_date, trial_end_date, stripe_customer_id, stripe_subscription_id, updated_at`

func scanSubscription(s interface {
	Scan(dest ...interface{}) error
}) (*Subscription, error) {
	var sub Subscription
	var trialEnd sql.NullInt64
	err := s.Scan(&sub.OrgCode, &sub.Plan, &sub.Status, &sub.StartDate, &trialEnd,
		&sub.StripeCustomerID, &sub.StripeSubscriptionID, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if trialEnd.Valid {
		v := trialEnd.Int64
		sub.TrialEndDate = &v
	}
	return &sub, nil
}

// Get returns nil, nil when the organization has no subscription record.
func (r *Repository) Get(ctx context.Context, orgCode string) (*Subscription, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM subscriptions WHERE org_code = ?`, orgCode)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (r *Repository) Update(ctx context.Context, s *Subscription) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions SET
			plan = ?, status = ?, start_date = ?, trial_end_date = ?,
			stripe_customer_id = ?, stripe_subscription_id = ?, updated_at = ?
		WHERE org_code = ?
	`, s.Plan, s.Status, s.StartDate, s.TrialEndDate,
		s.StripeCustomerID, s.StripeSubscriptionID, s.UpdatedAt, s.OrgCode)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("subscription %q not found", s.OrgCode)
	}
	return nil
}

// ListTrialsEndedBefore returns trials whose trial_end_date is before ts.
func (r *Repository) ListTrialsEndedBefore(ctx context.Context, ts int64) ([]*Subscription, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM subscriptions
		WHERE status = ? AND trial_end_date IS NOT NULL AND trial_end_date < ?
	`, StatusTrial, ts)
	if err != nil {
		return nil, fmt.Errorf("list ended trials: %w", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
