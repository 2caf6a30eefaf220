package handler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-shop-bot/internal/config"
	"telegram-shop-bot/internal/model"
	"telegram-shop-bot/internal/service"
)

// Main menu button labels. The reply keyboard sends these back as plain
// text; the bot routes them to the matching handler.
const (
	MenuShop     = "🛍 Shop"
	MenuProfile  = "👤 Profile"
	MenuDaily    = "🎁 Daily Bonus"
	MenuScratch  = "🎰 Scratch Card"
	MenuTasks    = "📋 Tasks"
	MenuPromo    = "🎫 Promo Code"
	MenuReferral = "👥 Invite Friends"
	MenuRules    = "📜 Rules"
	MenuSupport  = "💬 Support"
)

// MainMenu builds the persistent reply keyboard.
func MainMenu() *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{ResizeKeyboard: true}
	menu.Reply(
		menu.Row(menu.Text(MenuShop), menu.Text(MenuProfile)),
		menu.Row(menu.Text(MenuDaily), menu.Text(MenuScratch)),
		menu.Row(menu.Text(MenuTasks), menu.Text(MenuPromo)),
		menu.Row(menu.Text(MenuReferral)),
		menu.Row(menu.Text(MenuRules), menu.Text(MenuSupport)),
	)
	return menu
}

// AccountHandler handles registration, profile and informational commands.
type AccountHandler struct {
	accounts *service.AccountService
	orders   *service.OrderService
	runtime  *config.Runtime
	inputs   *InputRouter

	mu       sync.Mutex
	verified map[int64]bool
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts *service.AccountService, orders *service.OrderService, runtime *config.Runtime, inputs *InputRouter) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		orders:   orders,
		runtime:  runtime,
		inputs:   inputs,
		verified: make(map[int64]bool),
	}
}

func senderName(u *tele.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}

// HandleStart registers the user and shows the main menu. The /start
// payload may carry the referrer's ID from an invite link. Captcha and
// force-join gates run first when enabled.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	var referrerID *int64
	if payload := strings.TrimSpace(c.Message().Payload); payload != "" {
		if id, err := strconv.ParseInt(payload, 10, 64); err == nil {
			referrerID = &id
		}
	}

	snap := h.runtime.Current()
	if snap.CaptchaEnabled && !h.isVerified(sender.ID) {
		return h.askCaptcha(c, referrerID)
	}
	if !h.checkJoined(c, snap.ForceJoinChannel) {
		return h.promptJoin(c, snap.ForceJoinChannel)
	}

	return h.finishStart(c, referrerID)
}

func (h *AccountHandler) isVerified(userID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verified[userID]
}

func (h *AccountHandler) markVerified(userID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.verified[userID] = true
}

// askCaptcha sends a small arithmetic challenge and waits for the answer.
func (h *AccountHandler) askCaptcha(c tele.Context, referrerID *int64) error {
	a, b := rand.IntN(9)+1, rand.IntN(9)+1
	want := a + b
	h.inputs.Expect(c.Sender().ID, func(c tele.Context, text string) error {
		got, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil || got != want {
			return h.askCaptcha(c, referrerID)
		}
		h.markVerified(c.Sender().ID)
		snap := h.runtime.Current()
		if !h.checkJoined(c, snap.ForceJoinChannel) {
			return h.promptJoin(c, snap.ForceJoinChannel)
		}
		return h.finishStart(c, referrerID)
	})
	return c.Send(fmt.Sprintf("🤖 Quick check: what is %d + %d?", a, b))
}

// checkJoined reports whether the sender is a member of the required
// channel. An empty channel or a lookup failure does not block the user.
func (h *AccountHandler) checkJoined(c tele.Context, channel string) bool {
	if channel == "" {
		return true
	}
	chat, err := c.Bot().ChatByUsername(channel)
	if err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("Force-join channel lookup failed")
		return true
	}
	member, err := c.Bot().ChatMemberOf(chat, c.Sender())
	if err != nil {
		return true
	}
	return member.Role != tele.Left && member.Role != tele.Kicked
}

func (h *AccountHandler) promptJoin(c tele.Context, channel string) error {
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(
		markup.URL("📢 Join channel", "https://t.me/"+strings.TrimPrefix(channel, "@")),
	))
	return c.Send("Please join our channel first, then send /start again.", markup)
}

func (h *AccountHandler) finishStart(c tele.Context, referrerID *int64) error {
	sender := c.Sender()
	account, created, err := h.accounts.Touch(context.Background(), sender.ID, sender.Username, senderName(sender), referrerID)
	if err != nil {
		return c.Send(errText(err))
	}
	if account.Banned {
		return c.Send(errText(service.ErrBanned))
	}
	if created {
		log.Info().Int64("account", account.ID).Msg("New user registered via /start")
	}

	snap := h.runtime.Current()
	welcome := strings.ReplaceAll(snap.WelcomeMessage, "{name}", senderName(sender))
	return c.Send(welcome, MainMenu())
}

// HandleProfile shows balance, spend level and recent activity.
func (h *AccountHandler) HandleProfile(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()

	account, err := h.accounts.Get(ctx, sender.ID)
	if err != nil {
		return c.Send(errText(err))
	}
	snap := h.runtime.Current()

	var sb strings.Builder
	fmt.Fprintf(&sb, "👤 *Your profile*\n\n")
	fmt.Fprintf(&sb, "💰 Balance: %s%s\n", snap.Currency, account.Balance.StringFixed(2))
	fmt.Fprintf(&sb, "🛒 Total spent: %s%s\n", snap.Currency, account.TotalSpent.StringFixed(2))
	fmt.Fprintf(&sb, "🏅 Level: %s\n", service.SpendLevel(account.TotalSpent))
	fmt.Fprintf(&sb, "📅 Joined: %s\n", account.JoinedAt.Format("2006-01-02"))

	markup := &tele.ReplyMarkup{}
	markup.Inline(
		markup.Row(markup.Data("🧾 Transactions", "history")),
		markup.Row(markup.Data("📦 My orders", "orders")),
	)
	return c.Send(sb.String(), markup, tele.ModeMarkdown)
}

// HandleHistory shows the last transactions as a callback edit.
func (h *AccountHandler) HandleHistory(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()

	txs, err := h.accounts.History(ctx, sender.ID, 10)
	if err != nil {
		return respondErr(c, err)
	}
	if len(txs) == 0 {
		return c.Respond(&tele.CallbackResponse{Text: "No transactions yet."})
	}

	snap := h.runtime.Current()
	var sb strings.Builder
	sb.WriteString("🧾 *Recent transactions*\n\n")
	for _, t := range txs {
		sign := "+"
		if t.Amount.Sign() < 0 {
			sign = ""
		}
		fmt.Fprintf(&sb, "%s %s%s%s (%s)\n",
			t.CreatedAt.Format("01-02 15:04"), sign, snap.Currency, t.Amount.StringFixed(2), t.Kind)
	}
	return c.Edit(sb.String(), tele.ModeMarkdown)
}

// HandleOrders shows the last orders as a callback edit.
func (h *AccountHandler) HandleOrders(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()

	orders, err := h.orders.ListForAccount(ctx, sender.ID, 10)
	if err != nil {
		return respondErr(c, err)
	}
	if len(orders) == 0 {
		return c.Respond(&tele.CallbackResponse{Text: "No orders yet."})
	}

	var sb strings.Builder
	sb.WriteString("📦 *Recent orders*\n\n")
	for _, o := range orders {
		icon := "⏳"
		switch o.Status {
		case model.OrderDelivered:
			icon = "✅"
		case model.OrderRejected:
			icon = "❌"
		}
		fmt.Fprintf(&sb, "%s #%d %s (%s)\n", icon, o.ID, o.ProductName, o.CreatedAt.Format("2006-01-02"))
	}
	return c.Edit(sb.String(), tele.ModeMarkdown)
}

// HandleReferral shows the user's invite link.
func (h *AccountHandler) HandleReferral(c tele.Context) error {
	snap := h.runtime.Current()
	if !snap.ReferralEnabled {
		return c.Send(errText(service.ErrFeatureDisabled))
	}
	me := c.Bot().Me
	link := fmt.Sprintf("https://t.me/%s?start=%d", me.Username, c.Sender().ID)
	return c.Send(fmt.Sprintf(
		"👥 Invite friends and earn %s%s per signup!\n\nYour link:\n%s",
		snap.Currency, snap.ReferralReward.StringFixed(2), link,
	))
}

// HandleRules shows the configured rules text.
func (h *AccountHandler) HandleRules(c tele.Context) error {
	return c.Send(h.runtime.Current().Rules)
}

// HandleSupport shows the support contact.
func (h *AccountHandler) HandleSupport(c tele.Context) error {
	return c.Send("💬 Need help? Contact us: " + h.runtime.Current().SupportLink)
}
