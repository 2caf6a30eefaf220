package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v3"

	"telegram-shop-bot/internal/config"
	"telegram-shop-bot/internal/model"
	"telegram-shop-bot/internal/service"
)

// AdminHandler handles the admin command surface. Access control is
// enforced by the admin middleware group in the bot wiring.
type AdminHandler struct {
	accounts *service.AccountService
	orders   *service.OrderService
	catalog  *service.CatalogService
	runtime  *config.Runtime
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(accounts *service.AccountService, orders *service.OrderService, catalog *service.CatalogService, runtime *config.Runtime) *AdminHandler {
	return &AdminHandler{accounts: accounts, orders: orders, catalog: catalog, runtime: runtime}
}

// HandleAdmin shows the admin command overview.
func (h *AdminHandler) HandleAdmin(c tele.Context) error {
	return c.Send(`🛠 Admin commands:

/orders - pending orders
/deliver <order_id> - mark delivered
/rejectorder <order_id> - reject order
/addcategory <name>
/delcategory <id>
/addproduct <category_id>|<type>|<name>|<price>|<stock>|<description>|<content>
/delproduct <id>
/setstock <id> <stock>  (-1 = unlimited)
/setprice <id> <price>
/addpromo <code> <reward> <max_usage> [expires_days]
/delpromo <code>
/addtask <reward>|<link>|<description>
/deltask <id>
/user <id or @username>
/ban <id> | /unban <id>
/addbalance <id> <amount> [reason]
/stats
/broadcast <text>`)
}

// HandleOrders lists pending orders.
func (h *AdminHandler) HandleOrders(c tele.Context) error {
	orders, err := h.orders.ListPending(context.Background())
	if err != nil {
		return c.Send(errText(err))
	}
	if len(orders) == 0 {
		return c.Send("📭 No pending orders.")
	}

	var sb strings.Builder
	sb.WriteString("📦 Pending orders:\n\n")
	for _, o := range orders {
		fmt.Fprintf(&sb, "#%d %s\n👤 user %d, %s\n📝 %s\n\n",
			o.ID, o.ProductName, o.AccountID, o.CreatedAt.Format("2006-01-02 15:04"), o.FulfillmentData)
	}
	return c.Send(sb.String())
}

func (h *AdminHandler) orderTransition(c tele.Context, fn func(context.Context, int64) error, verb string) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: provide the order id.")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Send("Bad order id.")
	}
	if err := fn(context.Background(), id); err != nil {
		return c.Send(errText(err))
	}

	// Tell the buyer; best effort.
	if order, err := h.orders.Get(context.Background(), id); err == nil {
		msg := fmt.Sprintf("📦 Your order #%d (%s) was %s.", order.ID, order.ProductName, verb)
		if _, err := c.Bot().Send(tele.ChatID(order.AccountID), msg); err != nil {
			log.Warn().Err(err).Int64("order", id).Msg("Buyer notification failed")
		}
	}
	return c.Send(fmt.Sprintf("✅ Order #%d %s.", id, verb))
}

// HandleDeliver marks a pending order delivered.
func (h *AdminHandler) HandleDeliver(c tele.Context) error {
	return h.orderTransition(c, h.orders.MarkDelivered, "delivered")
}

// HandleRejectOrder rejects a pending order.
func (h *AdminHandler) HandleRejectOrder(c tele.Context) error {
	return h.orderTransition(c, h.orders.Reject, "rejected")
}

// HandleAddCategory creates a category.
func (h *AdminHandler) HandleAddCategory(c tele.Context) error {
	name := strings.TrimSpace(c.Message().Payload)
	if name == "" {
		return c.Send("Usage: /addcategory <name>")
	}
	cat, err := h.catalog.AddCategory(context.Background(), name)
	if err != nil {
		return c.Send(errText(err))
	}
	return c.Send(fmt.Sprintf("✅ Category #%d %q created.", cat.ID, cat.Name))
}

// HandleDelCategory deletes a category and its products.
func (h *AdminHandler) HandleDelCategory(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /delcategory <id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Send("Bad category id.")
	}
	if err := h.catalog.RemoveCategory(context.Background(), id); err != nil {
		return c.Send(errText(err))
	}
	return c.Send("✅ Category deleted.")
}

// HandleAddProduct creates a product from a pipe-separated payload.
func (h *AdminHandler) HandleAddProduct(c tele.Context) error {
	parts := strings.Split(c.Message().Payload, "|")
	if len(parts) < 6 {
		return c.Send("Usage: /addproduct <category_id>|<type>|<name>|<price>|<stock>|<description>|<content>")
	}
	categoryID, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return c.Send("Bad category id.")
	}
	ptype := strings.TrimSpace(parts[1])
	switch ptype {
	case model.FulfillmentDigital, model.FulfillmentFile, model.FulfillmentPhysical:
	default:
		return c.Send("Type must be digital, file or physical.")
	}
	price, err := decimal.NewFromString(strings.TrimSpace(parts[3]))
	if err != nil || price.Sign() < 0 {
		return c.Send("Bad price.")
	}
	stock, err := strconv.Atoi(strings.TrimSpace(parts[4]))
	if err != nil || stock < model.UnlimitedStock {
		return c.Send("Bad stock (-1 = unlimited).")
	}
	content := ""
	if len(parts) >= 7 {
		content = strings.TrimSpace(parts[6])
	}

	p, err := h.catalog.AddProduct(context.Background(), &model.Product{
		CategoryID:  categoryID,
		Type:        ptype,
		Name:        strings.TrimSpace(parts[2]),
		Description: strings.TrimSpace(parts[5]),
		Price:       price,
		Content:     content,
		Stock:       stock,
	})
	if err != nil {
		return c.Send(errText(err))
	}
	return c.Send(fmt.Sprintf("✅ Product #%d %q created.", p.ID, p.Name))
}

// HandleDelProduct deletes a product.
func (h *AdminHandler) HandleDelProduct(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /delproduct <id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Send("Bad product id.")
	}
	if err := h.catalog.RemoveProduct(context.Background(), id); err != nil {
		return c.Send(errText(err))
	}
	return c.Send("✅ Product deleted.")
}

// HandleSetStock updates a product's stock.
func (h *AdminHandler) HandleSetStock(c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /setstock <id> <stock>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Send("Bad product id.")
	}
	stock, err := strconv.Atoi(args[1])
	if err != nil || stock < model.UnlimitedStock {
		return c.Send("Bad stock (-1 = unlimited).")
	}
	if err := h.catalog.SetStock(context.Background(), id, stock); err != nil {
		return c.Send(errText(err))
	}
	return c.Send("✅ Stock updated.")
}

// HandleSetPrice updates a product's price.
func (h *AdminHandler) HandleSetPrice(c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /setprice <id> <price>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Send("Bad product id.")
	}
	price, err := decimal.NewFromString(args[1])
	if err != nil || price.Sign() < 0 {
		return c.Send("Bad price.")
	}
	if err := h.catalog.SetPrice(context.Background(), id, price); err != nil {
		return c.Send(errText(err))
	}
	return c.Send("✅ Price updated.")
}

// HandleAddPromo creates a promo code.
func (h *AdminHandler) HandleAddPromo(c tele.Context) error {
	args := c.Args()
	if len(args) < 3 {
		return c.Send("Usage: /addpromo <code> <reward> <max_usage> [expires_days]")
	}
	reward, err := decimal.NewFromString(args[1])
	if err != nil || reward.Sign() <= 0 {
		return c.Send("Bad reward amount.")
	}
	maxUsage, err := strconv.Atoi(args[2])
	if err != nil || maxUsage < model.UnlimitedUsage || maxUsage == 0 {
		return c.Send("Bad max usage (-1 = unlimited).")
	}
	var expiresAt *time.Time
	if len(args) >= 4 {
		days, err := strconv.Atoi(args[3])
		if err != nil || days <= 0 {
			return c.Send("Bad expiry days.")
		}
		t := time.Now().UTC().AddDate(0, 0, days)
		expiresAt = &t
	}

	promo, err := h.catalog.AddPromo(context.Background(), args[0], reward, maxUsage, expiresAt)
	if err != nil {
		return c.Send(errText(err))
	}
	return c.Send(fmt.Sprintf("✅ Promo %q created.", promo.Code))
}

// HandleDelPromo deletes a promo code.
func (h *AdminHandler) HandleDelPromo(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /delpromo <code>")
	}
	if err := h.catalog.RemovePromo(context.Background(), args[0]); err != nil {
		return c.Send(errText(err))
	}
	return c.Send("✅ Promo deleted.")
}

// HandleAddTask creates a task from a pipe-separated payload.
func (h *AdminHandler) HandleAddTask(c tele.Context) error {
	parts := strings.SplitN(c.Message().Payload, "|", 3)
	if len(parts) != 3 {
		return c.Send("Usage: /addtask <reward>|<link>|<description>")
	}
	reward, err := decimal.NewFromString(strings.TrimSpace(parts[0]))
	if err != nil || reward.Sign() <= 0 {
		return c.Send("Bad reward amount.")
	}
	task, err := h.catalog.AddTask(context.Background(), &model.Task{
		Reward:      reward,
		Link:        strings.TrimSpace(parts[1]),
		Description: strings.TrimSpace(parts[2]),
	})
	if err != nil {
		return c.Send(errText(err))
	}
	return c.Send(fmt.Sprintf("✅ Task #%d created.", task.ID))
}

// HandleDelTask deletes a task.
func (h *AdminHandler) HandleDelTask(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /deltask <id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Send("Bad task id.")
	}
	if err := h.catalog.RemoveTask(context.Background(), id); err != nil {
		return c.Send(errText(err))
	}
	return c.Send("✅ Task deleted.")
}

// HandleUser looks up an account by ID or @username.
func (h *AdminHandler) HandleUser(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /user <id or @username>")
	}

	ctx := context.Background()
	var account *model.Account
	var err error
	if strings.HasPrefix(args[0], "@") {
		account, err = h.accounts.LookupByUsername(ctx, strings.TrimPrefix(args[0], "@"))
	} else {
		var id int64
		id, err = strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return c.Send("Bad user id.")
		}
		account, err = h.accounts.Lookup(ctx, id)
	}
	if err != nil {
		return c.Send(errText(err))
	}

	snap := h.runtime.Current()
	banned := "no"
	if account.Banned {
		banned = "yes"
	}
	return c.Send(fmt.Sprintf(
		"👤 %d @%s\n💰 %s%s | spent %s%s (%s)\n🚫 banned: %s\n📅 joined %s",
		account.ID, account.Username,
		snap.Currency, account.Balance.StringFixed(2),
		snap.Currency, account.TotalSpent.StringFixed(2),
		service.SpendLevel(account.TotalSpent),
		banned, account.JoinedAt.Format("2006-01-02"),
	))
}

func (h *AdminHandler) setBan(c tele.Context, banned bool) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: provide the user id.")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Send("Bad user id.")
	}
	if err := h.accounts.SetBanned(context.Background(), id, banned); err != nil {
		return c.Send(errText(err))
	}
	if banned {
		return c.Send("✅ User banned.")
	}
	return c.Send("✅ User unbanned.")
}

// HandleBan bans an account.
func (h *AdminHandler) HandleBan(c tele.Context) error { return h.setBan(c, true) }

// HandleUnban lifts a ban.
func (h *AdminHandler) HandleUnban(c tele.Context) error { return h.setBan(c, false) }

// HandleAddBalance applies a manual balance adjustment.
func (h *AdminHandler) HandleAddBalance(c tele.Context) error {
	args := c.Args()
	if len(args) < 2 {
		return c.Send("Usage: /addbalance <id> <amount> [reason]")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Send("Bad user id.")
	}
	amount, err := decimal.NewFromString(args[1])
	if err != nil || amount.IsZero() {
		return c.Send("Bad amount.")
	}
	reason := "Admin adjustment"
	if len(args) > 2 {
		reason = strings.Join(args[2:], " ")
	}
	if err := h.accounts.AdjustBalance(context.Background(), id, amount, reason); err != nil {
		return c.Send(errText(err))
	}
	return c.Send("✅ Balance adjusted.")
}

// HandleStats shows storefront-wide aggregates.
func (h *AdminHandler) HandleStats(c tele.Context) error {
	stats, err := h.accounts.Stats(context.Background())
	if err != nil {
		return c.Send(errText(err))
	}
	snap := h.runtime.Current()
	return c.Send(fmt.Sprintf(
		"📊 Shop stats\n\n👥 Users: %d\n📦 Completed orders: %d\n💵 Revenue: %s%s\n💰 Total balances: %s%s",
		stats.TotalAccounts, stats.CompletedOrders,
		snap.Currency, stats.Revenue.StringFixed(2),
		snap.Currency, stats.TotalBalance.StringFixed(2),
	))
}

// HandleBroadcast fans a message out to every non-banned user. Sends are
// throttled and best effort; a blocked bot just skips that user.
func (h *AdminHandler) HandleBroadcast(c tele.Context) error {
	text := strings.TrimSpace(c.Message().Payload)
	if text == "" {
		return c.Send("Usage: /broadcast <text>")
	}

	ids, err := h.accounts.BroadcastIDs(context.Background())
	if err != nil {
		return c.Send(errText(err))
	}

	bot := c.Bot()
	go func() {
		sent := 0
		for _, id := range ids {
			if _, err := bot.Send(tele.ChatID(id), text); err == nil {
				sent++
			}
			time.Sleep(50 * time.Millisecond)
		}
		log.Info().Int("sent", sent).Int("total", len(ids)).Msg("Broadcast finished")
	}()
	return c.Send(fmt.Sprintf("📣 Broadcasting to %d users...", len(ids)))
}
