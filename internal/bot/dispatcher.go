package bot

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-shop-bot/internal/model"
)

// Dispatcher delivers committed orders over Telegram. Digital content goes
// out as text, file products by their stored file ID with a text fallback,
// and physical orders ping the admins for manual handling. Every send is
// best effort; the purchase has already committed.
type Dispatcher struct {
	bot      *tele.Bot
	adminIDs []int64
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(bot *tele.Bot, adminIDs []int64) *Dispatcher {
	return &Dispatcher{bot: bot, adminIDs: adminIDs}
}

// Dispatch implements service.Dispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, order *model.Order, product *model.Product) error {
	buyer := tele.ChatID(order.AccountID)

	switch product.Type {
	case model.FulfillmentDigital:
		msg := fmt.Sprintf("🎁 Your purchase of %s:\n\n%s", product.Name, product.Content)
		_, err := d.bot.Send(buyer, msg)
		return err

	case model.FulfillmentFile:
		doc := &tele.Document{File: tele.File{FileID: product.Content}}
		if _, err := d.bot.Send(buyer, doc); err != nil {
			log.Warn().Err(err).Int64("order", order.ID).Msg("File send failed, falling back to text")
			msg := fmt.Sprintf("🎁 Your purchase of %s:\n\n%s", product.Name, product.Content)
			_, err = d.bot.Send(buyer, msg)
			return err
		}
		return nil

	case model.FulfillmentPhysical:
		note := fmt.Sprintf(
			"📦 New physical order #%d\n🛒 %s\n👤 user %d\n📮 %s",
			order.ID, product.Name, order.AccountID, order.FulfillmentData,
		)
		var lastErr error
		for _, adminID := range d.adminIDs {
			if _, err := d.bot.Send(tele.ChatID(adminID), note); err != nil {
				lastErr = err
			}
		}
		return lastErr

	default:
		return fmt.Errorf("unknown fulfillment type %q", product.Type)
	}
}
