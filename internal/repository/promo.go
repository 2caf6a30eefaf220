package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"telegram-shop-bot/internal/model"
)

// Promo errors.
var (
	ErrPromoNotFound  = errors.New("promo not found")
	ErrPromoExhausted = errors.New("promo usage limit reached")
)

// PromoRepository handles promo codes. Per-user exclusivity comes from the
// promo_usage primary key; the global cap from a conditional counter update.
type PromoRepository struct {
	pool *pgxpool.Pool
}

// NewPromoRepository creates a new PromoRepository instance.
func NewPromoRepository(pool *pgxpool.Pool) *PromoRepository {
	return &PromoRepository{pool: pool}
}

// Create inserts a promo code. maxUsage of -1 means unbounded; expiresAt of
// nil means the code never expires.
func (r *PromoRepository) Create(ctx context.Context, code string, reward decimal.Decimal, maxUsage int, expiresAt *time.Time) (*model.Promo, error) {
	const query = `
		INSERT INTO promos (code, reward, max_usage, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING code, reward, max_usage, used_count, expires_at
	`

	var p model.Promo
	err := r.pool.QueryRow(ctx, query, code, reward, maxUsage, expiresAt).Scan(
		&p.Code, &p.Reward, &p.MaxUsage, &p.UsedCount, &p.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create promo: %w", err)
	}
	return &p, nil
}

// Delete removes a promo code and its usage rows.
func (r *PromoRepository) Delete(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM promos WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("failed to delete promo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPromoNotFound
	}
	return nil
}

// Get retrieves a promo code on the caller's Querier.
func (r *PromoRepository) Get(ctx context.Context, q Querier, code string) (*model.Promo, error) {
	const query = `
		SELECT code, reward, max_usage, used_count, expires_at FROM promos WHERE code = $1
	`

	var p model.Promo
	err := q.QueryRow(ctx, query, code).Scan(&p.Code, &p.Reward, &p.MaxUsage, &p.UsedCount, &p.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPromoNotFound
		}
		return nil, fmt.Errorf("failed to get promo: %w", err)
	}
	return &p, nil
}

// MarkUsed records that the account redeemed the code. Returns false when a
// usage row already exists, making redemption write-once per account.
func (r *PromoRepository) MarkUsed(ctx context.Context, q Querier, code string, accountID int64) (bool, error) {
	const query = `
		INSERT INTO promo_usage (code, account_id)
		VALUES ($1, $2)
		ON CONFLICT (code, account_id) DO NOTHING
	`

	tag, err := q.Exec(ctx, query, code, accountID)
	if err != nil {
		return false, fmt.Errorf("failed to mark promo used: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// IncrementUsage bumps the redemption counter while it is under the cap.
// Returns ErrPromoExhausted once the cap is reached; -1 never caps.
func (r *PromoRepository) IncrementUsage(ctx context.Context, q Querier, code string) error {
	const query = `
		UPDATE promos
		SET used_count = used_count + 1
		WHERE code = $1 AND (max_usage = -1 OR used_count < max_usage)
	`

	tag, err := q.Exec(ctx, query, code)
	if err != nil {
		return fmt.Errorf("failed to increment promo usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPromoExhausted
	}
	return nil
}
