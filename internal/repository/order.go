package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"telegram-shop-bot/internal/model"
)

// Order errors.
var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrOrderNotPending = errors.New("order is not pending")
)

// OrderRepository handles order persistence. Status transitions are
// conditional updates so an order can never leave a terminal state.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository creates a new OrderRepository instance.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts an order on the caller's Querier and returns it. The
// purchase flow calls this inside the same transaction as the debit and
// stock reservation.
func (r *OrderRepository) Create(ctx context.Context, q Querier, accountID, productID int64, status, fulfillmentData string) (*model.Order, error) {
	const query = `
		INSERT INTO orders (account_id, product_id, status, fulfillment_data)
		VALUES ($1, $2, $3, $4)
		RETURNING id, account_id, product_id, status, fulfillment_data, created_at
	`

	var o model.Order
	err := q.QueryRow(ctx, query, accountID, productID, status, fulfillmentData).Scan(
		&o.ID, &o.AccountID, &o.ProductID, &o.Status, &o.FulfillmentData, &o.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return &o, nil
}

// GetByID retrieves an order with its product name.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	const query = `
		SELECT o.id, o.account_id, o.product_id, o.status, o.fulfillment_data, o.created_at, p.name
		FROM orders o JOIN products p ON p.id = o.product_id
		WHERE o.id = $1
	`

	var o model.Order
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&o.ID, &o.AccountID, &o.ProductID, &o.Status, &o.FulfillmentData, &o.CreatedAt, &o.ProductName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &o, nil
}

// Transition moves a pending order to a terminal status. Orders already
// delivered or rejected are left untouched and reported as not pending.
func (r *OrderRepository) Transition(ctx context.Context, id int64, to string) error {
	const query = `
		UPDATE orders SET status = $2 WHERE id = $1 AND status = 'pending'
	`

	tag, err := r.pool.Exec(ctx, query, id, to)
	if err != nil {
		return fmt.Errorf("failed to transition order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		const check = `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`
		if err := r.pool.QueryRow(ctx, check, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check order existence: %w", err)
		}
		if !exists {
			return ErrOrderNotFound
		}
		return ErrOrderNotPending
	}
	return nil
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...any) ([]*model.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*model.Order
	for rows.Next() {
		var o model.Order
		err := rows.Scan(&o.ID, &o.AccountID, &o.ProductID, &o.Status, &o.FulfillmentData, &o.CreatedAt, &o.ProductName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}

// ListByAccount returns an account's most recent orders, newest first.
func (r *OrderRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]*model.Order, error) {
	const query = `
		SELECT o.id, o.account_id, o.product_id, o.status, o.fulfillment_data, o.created_at, p.name
		FROM orders o JOIN products p ON p.id = o.product_id
		WHERE o.account_id = $1
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $2
	`
	return r.list(ctx, query, accountID, limit)
}

// ListPending returns all pending orders, oldest first, for the admin queue.
func (r *OrderRepository) ListPending(ctx context.Context) ([]*model.Order, error) {
	const query = `
		SELECT o.id, o.account_id, o.product_id, o.status, o.fulfillment_data, o.created_at, p.name
		FROM orders o JOIN products p ON p.id = o.product_id
		WHERE o.status = 'pending'
		ORDER BY o.created_at, o.id
	`
	return r.list(ctx, query)
}
