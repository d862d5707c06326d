package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"event-billing/internal/domain"
	"event-billing/internal/domain/model"
	"event-billing/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

// plan_amount is read back as text so no precision is lost on the way to decimal.
const subscriptionColumns = `
id, user_id, plan_name, plan_amount::text, currency, payment_id, merchant_reference,
transaction_id, retrieval_reference, start_date, end_date, status, created_at, updated_at`

func (r *subscriptionRepo) CreateOrGet(ctx context.Context, tx repository.Tx, s *model.Subscription) (*model.Subscription, bool, error) {
	const q = `
INSERT INTO subscriptions (
  id, user_id, plan_name, plan_amount, currency, payment_id, merchant_reference,
  transaction_id, retrieval_reference, start_date, end_date, status, created_at, updated_at
) VALUES ($1,$2,$3,$4::numeric,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (merchant_reference) DO NOTHING
RETURNING ` + subscriptionColumns + `;`

	stored, err := r.queryOne(ctx, tx, q,
		s.ID, s.UserID, s.PlanName, s.PlanAmount.String(), s.Currency, s.PaymentID, s.MerchantReference,
		s.TransactionID, s.RetrievalReference, s.StartDate, s.EndDate, string(s.Status), s.CreatedAt, s.UpdatedAt)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	// The reference already has a subscription: hand back the stored row.
	existing, err := r.FindByMerchantReference(ctx, tx, s.MerchantReference)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *subscriptionRepo) FindByMerchantReference(ctx context.Context, tx repository.Tx, ref string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE merchant_reference=$1;`
	return r.queryOne(ctx, tx, q, ref)
}

func (r *subscriptionRepo) FindLatestByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE user_id=$1
 ORDER BY start_date DESC, created_at DESC
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, userID)
}

func (r *subscriptionRepo) Transition(ctx context.Context, tx repository.Tx, t model.StatusTransition) (bool, error) {
	const q = `
UPDATE subscriptions
   SET status=$4, updated_at=$5
 WHERE id=$1 AND user_id=$2 AND status=$3
   AND ($6::timestamptz IS NULL OR end_date >= $6::timestamptz);`

	var validAt *time.Time
	if t.ValidAt != nil {
		v := t.ValidAt.UTC()
		validAt = &v
	}
	at := t.At
	if at.IsZero() {
		at = time.Now()
	}
	tag, err := execSQL(ctx, r.pool, tx, q, t.ID, t.UserID, string(t.From), string(t.To), at.UTC(), validAt)
	if err != nil {
		return false, mapExecErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *subscriptionRepo) CountByState(ctx context.Context, tx repository.Tx, now time.Time) (map[model.SubscriptionState]int, error) {
	const q = `
SELECT CASE
         WHEN end_date < $1 THEN 'expired'
         WHEN status = 'cancelled' THEN 'cancelled'
         ELSE 'active'
       END AS state,
       COUNT(*)
  FROM subscriptions
 GROUP BY 1;`
	rows, err := queryRows(ctx, r.pool, tx, q, now.UTC())
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	counts := make(map[model.SubscriptionState]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[model.SubscriptionState(state)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return counts, nil
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	s, err := scanSub(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

func scanSub(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	var amount, status string
	if err := row.Scan(
		&s.ID, &s.UserID, &s.PlanName, &amount, &s.Currency, &s.PaymentID, &s.MerchantReference,
		&s.TransactionID, &s.RetrievalReference, &s.StartDate, &s.EndDate, &status, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" {
				return nil, domain.ErrAlreadyExists
			}
			return nil, domain.ErrOperationFailed
		}
		return nil, domain.ErrReadDatabaseRow
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	s.PlanAmount = d
	s.Status = model.SubscriptionStatus(status)
	return s, nil
}
