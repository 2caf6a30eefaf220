package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"telegram-shop-bot/internal/model"
)

// Ledger errors.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// LedgerRepository is the only writer of account balances. Every balance
// change is a conditional update paired with an append-only transaction row,
// executed on the caller's Querier so multi-step operations commit or fail
// as one.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepository instance.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// Apply adds amount to the account's balance and records a ledger row.
// Negative amounts are debits and additionally accumulate total_spent for
// purchase rows. The update refuses to drive the balance negative:
// insufficient funds returns ErrInsufficientBalance with nothing written.
func (r *LedgerRepository) Apply(ctx context.Context, q Querier, accountID int64, amount decimal.Decimal, kind string, description *string) error {
	const update = `
		UPDATE accounts
		SET balance = balance + $2,
			total_spent = total_spent + CASE WHEN $3 = 'purchase' AND $2 < 0 THEN -$2 ELSE 0 END,
			updated_at = NOW()
		WHERE id = $1 AND balance + $2 >= 0
	`

	tag, err := q.Exec(ctx, update, accountID, amount, kind)
	if err != nil {
		return fmt.Errorf("failed to apply balance delta: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Zero rows means either the account is missing or the guard
		// rejected the debit. Disambiguate with an existence check.
		var exists bool
		const check = `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`
		if err := q.QueryRow(ctx, check, accountID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check account existence: %w", err)
		}
		if !exists {
			return ErrAccountNotFound
		}
		return ErrInsufficientBalance
	}

	const insert = `
		INSERT INTO transactions (account_id, amount, kind, description)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := q.Exec(ctx, insert, accountID, amount, kind, description); err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

// History returns the account's most recent ledger rows, newest first.
func (r *LedgerRepository) History(ctx context.Context, accountID int64, limit int) ([]*model.Transaction, error) {
	const query = `
		SELECT id, account_id, amount, kind, description, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var txs []*model.Transaction
	for rows.Next() {
		var t model.Transaction
		err := rows.Scan(&t.ID, &t.AccountID, &t.Amount, &t.Kind, &t.Description, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txs, nil
}

// Sum returns the sum of all ledger rows for an account. The result always
// equals the account's balance column; tests assert the invariant.
func (r *LedgerRepository) Sum(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE account_id = $1
	`

	var sum decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, accountID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return sum, nil
}
