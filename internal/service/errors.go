// Package service orchestrates the commerce engine. Every check-then-mutate
// sequence runs inside a single database transaction; callers observe either
// the full effect of an operation or none of it.
package service

import (
	"context"
	"errors"
	"fmt"

	"telegram-shop-bot/internal/repository"
)

// Engine error taxonomy. Handlers map these to user-facing messages.
var (
	ErrNotFound          = errors.New("not found")
	ErrBanned            = errors.New("account is banned")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOutOfStock        = errors.New("out of stock")
	ErrAlreadyClaimed    = errors.New("already claimed")
	ErrLimitReached      = errors.New("usage limit reached")
	ErrExpired           = errors.New("expired")
	ErrFeatureDisabled   = errors.New("feature disabled")
	ErrUnavailable       = errors.New("temporarily unavailable")
	ErrAddressRequired   = errors.New("shipping address required")
)

// mapStoreErr folds repository sentinels and transport failures into the
// engine taxonomy. A deadline or cancellation is reported as Unavailable so
// callers can retry; the transaction rollback guarantees nothing applied.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrAccountNotFound),
		errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrCategoryNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrPromoNotFound),
		errors.Is(err, repository.ErrTaskNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrInsufficientBalance):
		return ErrInsufficientFunds
	case errors.Is(err, repository.ErrStockExhausted):
		return ErrOutOfStock
	case errors.Is(err, repository.ErrPromoExhausted):
		return ErrLimitReached
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		return err
	}
}
