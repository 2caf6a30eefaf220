package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"telegram-shop-bot/internal/config"
	"telegram-shop-bot/internal/model"
	"telegram-shop-bot/internal/repository"
)

// RewardService issues every kind of balance credit: daily bonus, scratch
// card, promo redemption and task completion. Each issuance couples its
// uniqueness mark and the ledger credit in one transaction, so a reward is
// paid exactly once or not at all.
type RewardService struct {
	pool          *pgxpool.Pool
	accounts      *repository.AccountRepository
	ledger        *repository.LedgerRepository
	promos        *repository.PromoRepository
	tasks         *repository.TaskRepository
	runtime       *config.Runtime
	opTimeout     time.Duration
	claimCooldown time.Duration
}

// NewRewardService creates a new RewardService.
func NewRewardService(
	pool *pgxpool.Pool,
	accounts *repository.AccountRepository,
	ledger *repository.LedgerRepository,
	promos *repository.PromoRepository,
	tasks *repository.TaskRepository,
	runtime *config.Runtime,
	opTimeout, claimCooldown time.Duration,
) *RewardService {
	return &RewardService{
		pool:          pool,
		accounts:      accounts,
		ledger:        ledger,
		promos:        promos,
		tasks:         tasks,
		runtime:       runtime,
		opTimeout:     opTimeout,
		claimCooldown: claimCooldown,
	}
}

// loadActive fetches the account inside the transaction and rejects banned
// accounts before any mutation.
func (s *RewardService) loadActive(ctx context.Context, tx pgx.Tx, accountID int64) (*model.Account, error) {
	account, err := s.accounts.GetByID(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Banned {
		return nil, ErrBanned
	}
	return account, nil
}

// ClaimDaily credits the daily bonus if the rolling window has elapsed.
// The window check and the timestamp advance are one conditional update, so
// concurrent claims race for a single winner.
func (s *RewardService) ClaimDaily(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	snap := s.runtime.Current()
	if !snap.DailyEnabled {
		return decimal.Zero, ErrFeatureDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	now := time.Now().UTC()
	cutoff := now.Add(-s.claimCooldown)

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := s.loadActive(ctx, tx, accountID); err != nil {
			return err
		}
		ok, err := s.accounts.ClaimDaily(ctx, tx, accountID, now, cutoff)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyClaimed
		}
		desc := "Daily bonus"
		return s.ledger.Apply(ctx, tx, accountID, snap.DailyReward, model.TxKindDaily, &desc)
	})
	if err != nil {
		return decimal.Zero, mapStoreErr(err)
	}

	log.Info().Int64("account", accountID).Str("amount", snap.DailyReward.String()).Msg("Daily bonus claimed")
	return snap.DailyReward, nil
}

// ClaimScratch credits a random scratch-card reward under the same rolling
// window as the daily bonus. The prize is drawn before the transaction opens
// to keep it short.
func (s *RewardService) ClaimScratch(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	snap := s.runtime.Current()
	if !snap.ScratchEnabled || len(snap.ScratchRewards) == 0 {
		return decimal.Zero, ErrFeatureDisabled
	}
	reward := snap.ScratchRewards[rand.IntN(len(snap.ScratchRewards))]

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	now := time.Now().UTC()
	cutoff := now.Add(-s.claimCooldown)

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := s.loadActive(ctx, tx, accountID); err != nil {
			return err
		}
		ok, err := s.accounts.ClaimScratch(ctx, tx, accountID, now, cutoff)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyClaimed
		}
		desc := "Scratch card win"
		return s.ledger.Apply(ctx, tx, accountID, reward, model.TxKindScratch, &desc)
	})
	if err != nil {
		return decimal.Zero, mapStoreErr(err)
	}

	log.Info().Int64("account", accountID).Str("amount", reward.String()).Msg("Scratch card claimed")
	return reward, nil
}

// RedeemPromo credits a promo code's reward once per account while the code
// is unexpired and under its usage cap. The usage mark, the counter bump and
// the credit commit together.
func (s *RewardService) RedeemPromo(ctx context.Context, accountID int64, code string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	var reward decimal.Decimal
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := s.loadActive(ctx, tx, accountID); err != nil {
			return err
		}
		promo, err := s.promos.Get(ctx, tx, code)
		if err != nil {
			return err
		}
		if promo.ExpiresAt != nil && promo.ExpiresAt.Before(time.Now().UTC()) {
			return ErrExpired
		}
		if promo.MaxUsage != model.UnlimitedUsage && promo.UsedCount >= promo.MaxUsage {
			return ErrLimitReached
		}
		used, err := s.promos.MarkUsed(ctx, tx, code, accountID)
		if err != nil {
			return err
		}
		if !used {
			return ErrAlreadyClaimed
		}
		if err := s.promos.IncrementUsage(ctx, tx, code); err != nil {
			return err
		}
		reward = promo.Reward
		desc := fmt.Sprintf("Promo code %s", code)
		return s.ledger.Apply(ctx, tx, accountID, reward, model.TxKindPromo, &desc)
	})
	if err != nil {
		return decimal.Zero, mapStoreErr(err)
	}

	log.Info().Int64("account", accountID).Str("code", code).Msg("Promo redeemed")
	return reward, nil
}

// CompleteTask credits a task's reward the first time the account completes
// it. The reward paid is the task's amount at completion time; later edits
// never adjust past payouts.
func (s *RewardService) CompleteTask(ctx context.Context, accountID, taskID int64) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	var reward decimal.Decimal
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := s.loadActive(ctx, tx, accountID); err != nil {
			return err
		}
		task, err := s.tasks.Get(ctx, tx, taskID)
		if err != nil {
			return err
		}
		done, err := s.tasks.MarkCompleted(ctx, tx, taskID, accountID)
		if err != nil {
			return err
		}
		if !done {
			return ErrAlreadyClaimed
		}
		reward = task.Reward
		desc := fmt.Sprintf("Task #%d reward", taskID)
		return s.ledger.Apply(ctx, tx, accountID, reward, model.TxKindTask, &desc)
	})
	if err != nil {
		return decimal.Zero, mapStoreErr(err)
	}

	log.Info().Int64("account", accountID).Int64("task", taskID).Msg("Task completed")
	return reward, nil
}
