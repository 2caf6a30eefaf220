// Package bot provides the Telegram bot initialization and handler
// registration.
package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-shop-bot/internal/config"
	"telegram-shop-bot/internal/handler"
	"telegram-shop-bot/internal/pkg/userlock"
	"telegram-shop-bot/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot    *tele.Bot
	cfg    *config.Config
	inputs *handler.InputRouter

	accountHandler *handler.AccountHandler
	shopHandler    *handler.ShopHandler
	rewardHandler  *handler.RewardHandler
	adminHandler   *handler.AdminHandler
}

// Dependencies holds everything the bot handlers need.
type Dependencies struct {
	Config          *config.Config
	Runtime         *config.Runtime
	AccountService  *service.AccountService
	PurchaseService *service.PurchaseService
	RewardService   *service.RewardService
	OrderService    *service.OrderService
	CatalogService  *service.CatalogService
	Guard           *userlock.Guard
}

// New creates a new Bot instance with the given dependencies and wires the
// fulfillment dispatcher back into the purchase service.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	inputs := handler.NewInputRouter()
	b := &Bot{
		bot:    teleBot,
		cfg:    deps.Config,
		inputs: inputs,
	}

	b.accountHandler = handler.NewAccountHandler(deps.AccountService, deps.OrderService, deps.Runtime, inputs)
	b.shopHandler = handler.NewShopHandler(deps.PurchaseService, deps.Runtime, inputs, deps.Guard)
	b.rewardHandler = handler.NewRewardHandler(deps.RewardService, deps.CatalogService, deps.Runtime, inputs, deps.Guard)
	b.adminHandler = handler.NewAdminHandler(deps.AccountService, deps.OrderService, deps.CatalogService, deps.Runtime)

	deps.PurchaseService.SetDispatcher(NewDispatcher(teleBot, deps.Config.Admin.IDs))

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(LoggingMiddleware())
	b.bot.Use(PrivateOnlyMiddleware())
}

// registerHandlers registers all command, menu and callback handlers.
func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/shop", b.shopHandler.HandleShop)
	b.bot.Handle("/profile", b.accountHandler.HandleProfile)
	b.bot.Handle("/daily", b.rewardHandler.HandleDaily)
	b.bot.Handle("/scratch", b.rewardHandler.HandleScratch)
	b.bot.Handle("/tasks", b.rewardHandler.HandleTasks)
	b.bot.Handle("/promo", b.rewardHandler.HandlePromo)

	// Admin handlers (with admin middleware)
	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/admin", b.adminHandler.HandleAdmin)
	adminGroup.Handle("/orders", b.adminHandler.HandleOrders)
	adminGroup.Handle("/deliver", b.adminHandler.HandleDeliver)
	adminGroup.Handle("/rejectorder", b.adminHandler.HandleRejectOrder)
	adminGroup.Handle("/addcategory", b.adminHandler.HandleAddCategory)
	adminGroup.Handle("/delcategory", b.adminHandler.HandleDelCategory)
	adminGroup.Handle("/addproduct", b.adminHandler.HandleAddProduct)
	adminGroup.Handle("/delproduct", b.adminHandler.HandleDelProduct)
	adminGroup.Handle("/setstock", b.adminHandler.HandleSetStock)
	adminGroup.Handle("/setprice", b.adminHandler.HandleSetPrice)
	adminGroup.Handle("/addpromo", b.adminHandler.HandleAddPromo)
	adminGroup.Handle("/delpromo", b.adminHandler.HandleDelPromo)
	adminGroup.Handle("/addtask", b.adminHandler.HandleAddTask)
	adminGroup.Handle("/deltask", b.adminHandler.HandleDelTask)
	adminGroup.Handle("/user", b.adminHandler.HandleUser)
	adminGroup.Handle("/ban", b.adminHandler.HandleBan)
	adminGroup.Handle("/unban", b.adminHandler.HandleUnban)
	adminGroup.Handle("/addbalance", b.adminHandler.HandleAddBalance)
	adminGroup.Handle("/stats", b.adminHandler.HandleStats)
	adminGroup.Handle("/broadcast", b.adminHandler.HandleBroadcast)

	b.bot.Handle(tele.OnText, b.handleText)
	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

// handleText routes free text: pending prompts first, then the main menu
// buttons, which arrive as plain messages from the reply keyboard.
func (b *Bot) handleText(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	if handled, err := b.inputs.Dispatch(c, sender.ID, c.Text()); handled {
		return err
	}

	switch c.Text() {
	case handler.MenuShop:
		return b.shopHandler.HandleShop(c)
	case handler.MenuProfile:
		return b.accountHandler.HandleProfile(c)
	case handler.MenuDaily:
		return b.rewardHandler.HandleDaily(c)
	case handler.MenuScratch:
		return b.rewardHandler.HandleScratch(c)
	case handler.MenuTasks:
		return b.rewardHandler.HandleTasks(c)
	case handler.MenuPromo:
		return b.rewardHandler.HandlePromo(c)
	case handler.MenuReferral:
		return b.accountHandler.HandleReferral(c)
	case handler.MenuRules:
		return b.accountHandler.HandleRules(c)
	case handler.MenuSupport:
		return b.accountHandler.HandleSupport(c)
	}
	return nil
}

// handleCallback routes inline button callbacks by data prefix.
func (b *Bot) handleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}

	// Telebot v3 may add a \f prefix to callback data
	data := strings.TrimPrefix(callback.Data, "\f")

	switch {
	case data == handler.CallbackShopHome:
		return b.shopHandler.HandleShop(c)
	case strings.HasPrefix(data, handler.CallbackCategory):
		return b.shopHandler.HandleCategory(c, data)
	case strings.HasPrefix(data, handler.CallbackProduct):
		return b.shopHandler.HandleProduct(c, data)
	case strings.HasPrefix(data, handler.CallbackBuy):
		return b.shopHandler.HandleBuy(c, data)
	case strings.HasPrefix(data, handler.CallbackTask):
		return b.rewardHandler.HandleTaskComplete(c, data)
	case data == "history":
		return b.accountHandler.HandleHistory(c)
	case data == "orders":
		return b.accountHandler.HandleOrders(c)
	}

	log.Debug().Str("data", data).Msg("Unrouted callback")
	return c.Respond(&tele.CallbackResponse{})
}

// Start starts the bot polling.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
