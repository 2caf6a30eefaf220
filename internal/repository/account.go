// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"telegram-shop-bot/internal/model"
)

// Common errors for repository operations.
var (
	ErrAccountNotFound = errors.New("account not found")
)

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
// Methods that must run inside a caller-owned transaction take a Querier
// so the same SQL serves both paths.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const accountColumns = `id, username, full_name, balance, total_spent, referrer_id,
		banned, last_daily_claim, last_scratch_claim, joined_at, updated_at`

// AccountRepository handles account persistence.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository instance.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.FullName,
		&a.Balance,
		&a.TotalSpent,
		&a.ReferrerID,
		&a.Banned,
		&a.LastDailyClaim,
		&a.LastScratchClaim,
		&a.JoinedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &a, nil
}

// CreateIfAbsent inserts a new account row unless one already exists.
// Returns true only for the invocation that actually created the row, so
// repeated first contacts stay idempotent and one-time side effects (the
// referral grant) fire exactly once.
func (r *AccountRepository) CreateIfAbsent(ctx context.Context, q Querier, id int64, username, fullName string, referrerID *int64) (bool, error) {
	const query = `
		INSERT INTO accounts (id, username, full_name, referrer_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`

	tag, err := q.Exec(ctx, query, id, username, fullName, referrerID)
	if err != nil {
		return false, fmt.Errorf("failed to create account: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetByID retrieves an account by its Telegram user ID.
// Returns ErrAccountNotFound if the account does not exist.
func (r *AccountRepository) GetByID(ctx context.Context, q Querier, id int64) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(q.QueryRow(ctx, query, id))
}

// GetByUsername retrieves an account by username. Used by the admin panel's
// user search.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, username))
}

// UpdateIdentity refreshes the stored username and full name. Telegram users
// rename themselves; the row is kept current on every contact.
func (r *AccountRepository) UpdateIdentity(ctx context.Context, id int64, username, fullName string) error {
	const query = `
		UPDATE accounts
		SET username = $2, full_name = $3, updated_at = NOW()
		WHERE id = $1 AND (username <> $2 OR full_name <> $3)
	`

	if _, err := r.pool.Exec(ctx, query, id, username, fullName); err != nil {
		return fmt.Errorf("failed to update identity: %w", err)
	}
	return nil
}

// SetBanned toggles the ban flag on an account.
func (r *AccountRepository) SetBanned(ctx context.Context, id int64, banned bool) error {
	const query = `UPDATE accounts SET banned = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, banned)
	if err != nil {
		return fmt.Errorf("failed to set banned: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ClaimDaily advances last_daily_claim to now if the previous claim is
// absent or at least the cooldown old. Returns false when the window has
// not elapsed; the timestamp is untouched in that case.
func (r *AccountRepository) ClaimDaily(ctx context.Context, q Querier, id int64, now, cutoff time.Time) (bool, error) {
	const query = `
		UPDATE accounts
		SET last_daily_claim = $2, updated_at = NOW()
		WHERE id = $1 AND (last_daily_claim IS NULL OR last_daily_claim <= $3)
	`

	tag, err := q.Exec(ctx, query, id, now, cutoff)
	if err != nil {
		return false, fmt.Errorf("failed to claim daily: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ClaimScratch is ClaimDaily for the scratch-card window.
func (r *AccountRepository) ClaimScratch(ctx context.Context, q Querier, id int64, now, cutoff time.Time) (bool, error) {
	const query = `
		UPDATE accounts
		SET last_scratch_claim = $2, updated_at = NOW()
		WHERE id = $1 AND (last_scratch_claim IS NULL OR last_scratch_claim <= $3)
	`

	tag, err := q.Exec(ctx, query, id, now, cutoff)
	if err != nil {
		return false, fmt.Errorf("failed to claim scratch: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListIDs returns every account ID. Used by the broadcast fan-out.
func (r *AccountRepository) ListIDs(ctx context.Context) ([]int64, error) {
	const query = `SELECT id FROM accounts WHERE NOT banned ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list account ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account ids: %w", err)
	}
	return ids, nil
}

// Stats aggregates storefront-wide numbers for the admin panel.
func (r *AccountRepository) Stats(ctx context.Context) (*model.ShopStats, error) {
	const query = `
		SELECT
			(SELECT COUNT(*) FROM accounts),
			(SELECT COALESCE(SUM(balance), 0) FROM accounts),
			(SELECT COUNT(*) FROM orders WHERE status = 'delivered'),
			(SELECT COALESCE(SUM(p.price), 0)
			   FROM orders o JOIN products p ON p.id = o.product_id
			  WHERE o.status = 'delivered')
	`

	var s model.ShopStats
	err := r.pool.QueryRow(ctx, query).Scan(
		&s.TotalAccounts,
		&s.TotalBalance,
		&s.CompletedOrders,
		&s.Revenue,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	return &s, nil
}
