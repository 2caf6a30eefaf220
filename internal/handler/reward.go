package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"telegram-shop-bot/internal/config"
	"telegram-shop-bot/internal/pkg/userlock"
	"telegram-shop-bot/internal/service"
)

// CallbackTask prefixes task completion buttons.
const CallbackTask = "task_"

// RewardHandler handles daily bonus, scratch cards, tasks and promo codes.
type RewardHandler struct {
	rewards *service.RewardService
	catalog *service.CatalogService
	runtime *config.Runtime
	inputs  *InputRouter
	guard   *userlock.Guard
}

// NewRewardHandler creates a new RewardHandler.
func NewRewardHandler(rewards *service.RewardService, catalog *service.CatalogService, runtime *config.Runtime, inputs *InputRouter, guard *userlock.Guard) *RewardHandler {
	return &RewardHandler{rewards: rewards, catalog: catalog, runtime: runtime, inputs: inputs, guard: guard}
}

// HandleDaily claims the daily bonus.
func (h *RewardHandler) HandleDaily(c tele.Context) error {
	sender := c.Sender()
	if !h.guard.TryAcquire(sender.ID) {
		return c.Send("⏳ Hold on...")
	}
	defer h.guard.Release(sender.ID)

	amount, err := h.rewards.ClaimDaily(context.Background(), sender.ID)
	if err != nil {
		return c.Send(errText(err))
	}
	snap := h.runtime.Current()
	return c.Send(fmt.Sprintf("🎁 Daily bonus claimed: +%s%s", snap.Currency, amount.StringFixed(2)))
}

// HandleScratch claims a scratch-card reward.
func (h *RewardHandler) HandleScratch(c tele.Context) error {
	sender := c.Sender()
	if !h.guard.TryAcquire(sender.ID) {
		return c.Send("⏳ Hold on...")
	}
	defer h.guard.Release(sender.ID)

	amount, err := h.rewards.ClaimScratch(context.Background(), sender.ID)
	if err != nil {
		return c.Send(errText(err))
	}
	snap := h.runtime.Current()
	return c.Send(fmt.Sprintf("🎰 You scratched and won +%s%s!", snap.Currency, amount.StringFixed(2)))
}

// HandleTasks lists the open tasks with completion buttons.
func (h *RewardHandler) HandleTasks(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()

	tasks, done, err := h.catalog.Tasks(ctx, sender.ID)
	if err != nil {
		return c.Send(errText(err))
	}
	if len(tasks) == 0 {
		return c.Send("📋 No tasks available right now.")
	}

	snap := h.runtime.Current()
	markup := &tele.ReplyMarkup{}
	var rows []tele.Row
	var sb strings.Builder
	sb.WriteString("📋 *Tasks*\n\n")
	for _, t := range tasks {
		status := ""
		if done[t.ID] {
			status = " ✅"
		}
		fmt.Fprintf(&sb, "#%d %s — %s%s%s\n", t.ID, t.Description, snap.Currency, t.Reward.StringFixed(2), status)
		if t.Link != "" {
			fmt.Fprintf(&sb, "🔗 %s\n", t.Link)
		}
		if !done[t.ID] {
			rows = append(rows, markup.Row(markup.Data(
				fmt.Sprintf("Complete #%d", t.ID), CallbackTask+strconv.FormatInt(t.ID, 10),
			)))
		}
	}
	markup.Inline(rows...)
	return c.Send(sb.String(), markup, tele.ModeMarkdown)
}

// HandleTaskComplete pays out a task reward.
func (h *RewardHandler) HandleTaskComplete(c tele.Context, data string) error {
	id, err := strconv.ParseInt(strings.TrimPrefix(data, CallbackTask), 10, 64)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Bad task."})
	}
	sender := c.Sender()
	if !h.guard.TryAcquire(sender.ID) {
		return c.Respond(&tele.CallbackResponse{Text: "⏳ Hold on..."})
	}
	defer h.guard.Release(sender.ID)

	amount, err := h.rewards.CompleteTask(context.Background(), sender.ID, id)
	if err != nil {
		return respondErr(c, err)
	}
	snap := h.runtime.Current()
	return c.Respond(&tele.CallbackResponse{
		Text: fmt.Sprintf("✅ Task complete: +%s%s", snap.Currency, amount.StringFixed(2)),
	})
}

// HandlePromo prompts for a promo code and redeems the next message.
func (h *RewardHandler) HandlePromo(c tele.Context) error {
	h.inputs.Expect(c.Sender().ID, func(c tele.Context, text string) error {
		code := strings.TrimSpace(text)
		if code == "" {
			return c.Send("🎫 That doesn't look like a code.")
		}
		amount, err := h.rewards.RedeemPromo(context.Background(), c.Sender().ID, code)
		if err != nil {
			return c.Send(errText(err))
		}
		snap := h.runtime.Current()
		return c.Send(fmt.Sprintf("🎉 Code redeemed: +%s%s", snap.Currency, amount.StringFixed(2)))
	})
	return c.Send("🎫 Send me your promo code.")
}
