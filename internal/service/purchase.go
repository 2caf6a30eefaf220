package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"telegram-shop-bot/internal/config"
	"telegram-shop-bot/internal/model"
	"telegram-shop-bot/internal/repository"
)

// Dispatcher delivers a committed order to the buyer. Implementations send
// the product content over the chat transport; failures are logged and never
// unwind the purchase.
type Dispatcher interface {
	Dispatch(ctx context.Context, order *model.Order, product *model.Product) error
}

// PurchaseResult reports a committed purchase.
type PurchaseResult struct {
	Order   *model.Order
	Product *model.Product
}

// PurchaseService coordinates the buy flow: ban check, stock reservation,
// ledger debit and order creation commit as one transaction.
type PurchaseService struct {
	pool       *pgxpool.Pool
	accounts   *repository.AccountRepository
	ledger     *repository.LedgerRepository
	products   *repository.ProductRepository
	orders     *repository.OrderRepository
	runtime    *config.Runtime
	dispatcher Dispatcher
	opTimeout  time.Duration
}

// NewPurchaseService creates a new PurchaseService. The dispatcher may be
// nil; committed orders then wait for manual delivery.
func NewPurchaseService(
	pool *pgxpool.Pool,
	accounts *repository.AccountRepository,
	ledger *repository.LedgerRepository,
	products *repository.ProductRepository,
	orders *repository.OrderRepository,
	runtime *config.Runtime,
	dispatcher Dispatcher,
	opTimeout time.Duration,
) *PurchaseService {
	return &PurchaseService{
		pool:       pool,
		accounts:   accounts,
		ledger:     ledger,
		products:   products,
		orders:     orders,
		runtime:    runtime,
		dispatcher: dispatcher,
		opTimeout:  opTimeout,
	}
}

// SetDispatcher wires the delivery side after construction. The bot layer
// depends on the service, so the dispatcher arrives late.
func (s *PurchaseService) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

// Purchase buys one unit of a product for the account. Physical products
// require the shipping input up front; the debit never commits without it.
// Digital and file products are recorded delivered with the content frozen
// into the order; physical orders stay pending for manual handling. After
// commit the dispatcher runs best-effort.
func (s *PurchaseService) Purchase(ctx context.Context, accountID, productID int64, fulfillmentInput string) (*PurchaseResult, error) {
	snap := s.runtime.Current()
	if !snap.ShopEnabled {
		return nil, ErrFeatureDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	var result PurchaseResult
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		account, err := s.accounts.GetByID(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if account.Banned {
			return ErrBanned
		}

		product, err := s.products.GetProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		if product.Type == model.FulfillmentPhysical && fulfillmentInput == "" {
			return ErrAddressRequired
		}

		if err := s.products.Reserve(ctx, tx, productID, 1); err != nil {
			return err
		}

		desc := fmt.Sprintf("Purchase: %s", product.Name)
		if err := s.ledger.Apply(ctx, tx, accountID, product.Price.Neg(), model.TxKindPurchase, &desc); err != nil {
			return err
		}

		status := model.OrderDelivered
		data := product.Content
		if product.Type == model.FulfillmentPhysical {
			status = model.OrderPending
			data = fulfillmentInput
		}

		order, err := s.orders.Create(ctx, tx, accountID, productID, status, data)
		if err != nil {
			return err
		}
		order.ProductName = product.Name
		result.Order = order
		result.Product = product
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	log.Info().
		Int64("account", accountID).
		Int64("product", productID).
		Int64("order", result.Order.ID).
		Str("status", result.Order.Status).
		Msg("Purchase committed")

	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, result.Order, result.Product); err != nil {
			log.Error().Err(err).Int64("order", result.Order.ID).Msg("Fulfillment dispatch failed")
		}
	}

	return &result, nil
}

// Categories lists the shop's categories.
func (s *PurchaseService) Categories(ctx context.Context) ([]*model.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	cats, err := s.products.ListCategories(ctx)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return cats, nil
}

// ProductsIn lists a category's products.
func (s *PurchaseService) ProductsIn(ctx context.Context, categoryID int64) ([]*model.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	products, err := s.products.ListByCategory(ctx, categoryID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return products, nil
}

// Product returns a single product.
func (s *PurchaseService) Product(ctx context.Context, id int64) (*model.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	product, err := s.products.GetProduct(ctx, s.pool, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return product, nil
}
