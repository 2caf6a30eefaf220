// Package handler provides Telegram bot command and callback handlers.
package handler

import (
	"errors"
	"sync"

	tele "gopkg.in/telebot.v3"

	"telegram-shop-bot/internal/service"
)

// errText maps engine errors to user-facing messages.
func errText(err error) string {
	switch {
	case errors.Is(err, service.ErrBanned):
		return "🚫 You are banned from using this bot."
	case errors.Is(err, service.ErrInsufficientFunds):
		return "❌ Insufficient balance."
	case errors.Is(err, service.ErrOutOfStock):
		return "❌ This product is out of stock."
	case errors.Is(err, service.ErrAlreadyClaimed):
		return "⏳ Already claimed. Come back later!"
	case errors.Is(err, service.ErrLimitReached):
		return "❌ This code has reached its usage limit."
	case errors.Is(err, service.ErrExpired):
		return "❌ This code has expired."
	case errors.Is(err, service.ErrFeatureDisabled):
		return "🚧 This feature is currently disabled."
	case errors.Is(err, service.ErrNotFound):
		return "❌ Not found."
	case errors.Is(err, service.ErrAddressRequired):
		return "📦 Please send your shipping address first."
	case errors.Is(err, service.ErrUnavailable):
		return "⚠️ Temporarily unavailable, please try again."
	default:
		return "❌ Something went wrong, please try again."
	}
}

// respondErr answers a callback with the mapped error message.
func respondErr(c tele.Context, err error) error {
	return c.Respond(&tele.CallbackResponse{Text: errText(err), ShowAlert: true})
}

// InputRouter directs a user's next free-text message to whichever flow
// asked for it (shipping address, promo code, captcha answer). One pending
// prompt per user; a new prompt replaces the old one.
type InputRouter struct {
	mu      sync.Mutex
	pending map[int64]func(c tele.Context, text string) error
}

// NewInputRouter creates a new InputRouter.
func NewInputRouter() *InputRouter {
	return &InputRouter{pending: make(map[int64]func(c tele.Context, text string) error)}
}

// Expect registers a consumer for the user's next text message.
func (r *InputRouter) Expect(userID int64, fn func(c tele.Context, text string) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[userID] = fn
}

// Cancel drops any pending prompt for the user.
func (r *InputRouter) Cancel(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, userID)
}

// Dispatch feeds a text message to the user's pending consumer. Returns
// false when nothing was waiting for input.
func (r *InputRouter) Dispatch(c tele.Context, userID int64, text string) (bool, error) {
	r.mu.Lock()
	fn, ok := r.pending[userID]
	if ok {
		delete(r.pending, userID)
	}
	r.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, fn(c, text)
}
