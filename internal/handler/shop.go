package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"telegram-shop-bot/internal/config"
	"telegram-shop-bot/internal/model"
	"telegram-shop-bot/internal/pkg/userlock"
	"telegram-shop-bot/internal/service"
)

// Callback data prefixes for the shop flow.
const (
	CallbackCategory = "cat_"
	CallbackProduct  = "prod_"
	CallbackBuy      = "buy_"
	CallbackShopHome = "shop_home"
)

// ShopHandler handles shop browsing and the buy flow.
type ShopHandler struct {
	purchases *service.PurchaseService
	runtime   *config.Runtime
	inputs    *InputRouter
	guard     *userlock.Guard
}

// NewShopHandler creates a new ShopHandler.
func NewShopHandler(purchases *service.PurchaseService, runtime *config.Runtime, inputs *InputRouter, guard *userlock.Guard) *ShopHandler {
	return &ShopHandler{purchases: purchases, runtime: runtime, inputs: inputs, guard: guard}
}

// HandleShop shows the category list.
func (h *ShopHandler) HandleShop(c tele.Context) error {
	snap := h.runtime.Current()
	if !snap.ShopEnabled {
		return c.Send(errText(service.ErrFeatureDisabled))
	}

	cats, err := h.purchases.Categories(context.Background())
	if err != nil {
		return c.Send(errText(err))
	}
	if len(cats) == 0 {
		return c.Send("🛍 The shop is empty right now, check back soon!")
	}

	markup := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, cat := range cats {
		rows = append(rows, markup.Row(
			markup.Data(cat.Name, CallbackCategory+strconv.FormatInt(cat.ID, 10)),
		))
	}
	markup.Inline(rows...)
	return c.Send("🛍 *Shop categories*", markup, tele.ModeMarkdown)
}

// HandleCategory lists a category's products.
func (h *ShopHandler) HandleCategory(c tele.Context, data string) error {
	id, err := strconv.ParseInt(strings.TrimPrefix(data, CallbackCategory), 10, 64)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Bad category."})
	}

	products, err := h.purchases.ProductsIn(context.Background(), id)
	if err != nil {
		return respondErr(c, err)
	}
	if len(products) == 0 {
		return c.Respond(&tele.CallbackResponse{Text: "No products here yet."})
	}

	snap := h.runtime.Current()
	markup := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, p := range products {
		label := fmt.Sprintf("%s — %s%s", p.Name, snap.Currency, p.Price.StringFixed(2))
		rows = append(rows, markup.Row(
			markup.Data(label, CallbackProduct+strconv.FormatInt(p.ID, 10)),
		))
	}
	rows = append(rows, markup.Row(markup.Data("⬅️ Back", CallbackShopHome)))
	markup.Inline(rows...)
	return c.Edit("📦 *Products*", markup, tele.ModeMarkdown)
}

// HandleProduct shows a product detail with a buy button.
func (h *ShopHandler) HandleProduct(c tele.Context, data string) error {
	id, err := strconv.ParseInt(strings.TrimPrefix(data, CallbackProduct), 10, 64)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Bad product."})
	}

	p, err := h.purchases.Product(context.Background(), id)
	if err != nil {
		return respondErr(c, err)
	}

	snap := h.runtime.Current()
	stock := "∞"
	if !p.Unlimited() {
		stock = strconv.Itoa(p.Stock)
	}
	text := fmt.Sprintf("*%s*\n\n%s\n\n💰 Price: %s%s\n📦 Stock: %s",
		p.Name, p.Description, snap.Currency, p.Price.StringFixed(2), stock)

	markup := &tele.ReplyMarkup{}
	markup.Inline(
		markup.Row(markup.Data("🛒 Buy", CallbackBuy+strconv.FormatInt(p.ID, 10))),
		markup.Row(markup.Data("⬅️ Back", CallbackCategory+strconv.FormatInt(p.CategoryID, 10))),
	)
	return c.Edit(text, markup, tele.ModeMarkdown)
}

// HandleBuy runs the purchase. Physical products collect a shipping address
// first; the debit only happens once the address arrives.
func (h *ShopHandler) HandleBuy(c tele.Context, data string) error {
	id, err := strconv.ParseInt(strings.TrimPrefix(data, CallbackBuy), 10, 64)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Bad product."})
	}
	sender := c.Sender()

	p, err := h.purchases.Product(context.Background(), id)
	if err != nil {
		return respondErr(c, err)
	}

	if p.Type == model.FulfillmentPhysical {
		h.inputs.Expect(sender.ID, func(c tele.Context, address string) error {
			return h.completePurchase(c, id, strings.TrimSpace(address))
		})
		if err := c.Respond(&tele.CallbackResponse{}); err != nil {
			return err
		}
		return c.Send("📦 Please send your shipping address as a message.")
	}

	if !h.guard.TryAcquire(sender.ID) {
		return c.Respond(&tele.CallbackResponse{Text: "⏳ Hold on..."})
	}
	defer h.guard.Release(sender.ID)
	return h.deliverResult(c, id, "")
}

func (h *ShopHandler) completePurchase(c tele.Context, productID int64, address string) error {
	sender := c.Sender()
	if address == "" {
		return c.Send(errText(service.ErrAddressRequired))
	}
	if !h.guard.TryAcquire(sender.ID) {
		return c.Send("⏳ Hold on...")
	}
	defer h.guard.Release(sender.ID)
	return h.deliverResult(c, productID, address)
}

func (h *ShopHandler) deliverResult(c tele.Context, productID int64, fulfillmentInput string) error {
	result, err := h.purchases.Purchase(context.Background(), c.Sender().ID, productID, fulfillmentInput)
	if err != nil {
		if c.Callback() != nil {
			return respondErr(c, err)
		}
		return c.Send(errText(err))
	}

	if result.Order.Status == model.OrderPending {
		return c.Send(fmt.Sprintf(
			"✅ Order #%d placed! We will process your delivery shortly.", result.Order.ID))
	}
	return c.Send(fmt.Sprintf("✅ Order #%d complete! Check your delivery below.", result.Order.ID))
}
