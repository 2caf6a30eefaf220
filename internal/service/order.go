package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"telegram-shop-bot/internal/model"
	"telegram-shop-bot/internal/repository"
)

// OrderService exposes the admin side of the order state machine. Pending
// orders move to delivered or rejected exactly once; terminal orders stay
// terminal.
type OrderService struct {
	pool      *pgxpool.Pool
	orders    *repository.OrderRepository
	opTimeout time.Duration
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool *pgxpool.Pool, orders *repository.OrderRepository, opTimeout time.Duration) *OrderService {
	return &OrderService{pool: pool, orders: orders, opTimeout: opTimeout}
}

// Get returns an order by ID.
func (s *OrderService) Get(ctx context.Context, id int64) (*model.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return order, nil
}

func (s *OrderService) transition(ctx context.Context, id int64, to string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	err := s.orders.Transition(ctx, id, to)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotPending) {
			return ErrAlreadyClaimed
		}
		return mapStoreErr(err)
	}
	log.Info().Int64("order", id).Str("status", to).Msg("Order transitioned")
	return nil
}

// MarkDelivered completes a pending order.
func (s *OrderService) MarkDelivered(ctx context.Context, id int64) error {
	return s.transition(ctx, id, model.OrderDelivered)
}

// Reject declines a pending order. The debit is not refunded automatically;
// an admin balance adjustment compensates the buyer when warranted.
func (s *OrderService) Reject(ctx context.Context, id int64) error {
	return s.transition(ctx, id, model.OrderRejected)
}

// ListPending returns the admin queue of undelivered orders.
func (s *OrderService) ListPending(ctx context.Context) ([]*model.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	orders, err := s.orders.ListPending(ctx)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return orders, nil
}

// ListForAccount returns an account's recent orders.
func (s *OrderService) ListForAccount(ctx context.Context, accountID int64, limit int) ([]*model.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	orders, err := s.orders.ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return orders, nil
}
