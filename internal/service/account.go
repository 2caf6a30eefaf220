package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"telegram-shop-bot/internal/config"
	"telegram-shop-bot/internal/model"
	"telegram-shop-bot/internal/repository"
)

// Spend levels derived from lifetime spending.
const (
	LevelBronze = "bronze"
	LevelSilver = "silver"
	LevelGold   = "gold"
)

var (
	silverThreshold = decimal.NewFromInt(100)
	goldThreshold   = decimal.NewFromInt(500)
)

// SpendLevel maps lifetime spending to a level name.
func SpendLevel(totalSpent decimal.Decimal) string {
	switch {
	case totalSpent.GreaterThanOrEqual(goldThreshold):
		return LevelGold
	case totalSpent.GreaterThanOrEqual(silverThreshold):
		return LevelSilver
	default:
		return LevelBronze
	}
}

// AccountService manages account lifecycle and admin account operations.
type AccountService struct {
	pool      *pgxpool.Pool
	accounts  *repository.AccountRepository
	ledger    *repository.LedgerRepository
	runtime   *config.Runtime
	opTimeout time.Duration
}

// NewAccountService creates a new AccountService.
func NewAccountService(pool *pgxpool.Pool, accounts *repository.AccountRepository, ledger *repository.LedgerRepository, runtime *config.Runtime, opTimeout time.Duration) *AccountService {
	return &AccountService{
		pool:      pool,
		accounts:  accounts,
		ledger:    ledger,
		runtime:   runtime,
		opTimeout: opTimeout,
	}
}

// Touch ensures an account exists for the contacting user and returns it.
// On the contact that actually creates the row, a valid referrer is credited
// the configured bonus inside the same transaction, so the referral pays out
// exactly once no matter how often the user restarts.
func (s *AccountService) Touch(ctx context.Context, id int64, username, fullName string, referrerID *int64) (*model.Account, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	// Self-referral and dangling referrer IDs are dropped, not errors.
	ref := referrerID
	if ref != nil && *ref == id {
		ref = nil
	}
	snap := s.runtime.Current()
	if !snap.ReferralEnabled {
		ref = nil
	}

	var created bool
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if ref != nil {
			if _, err := s.accounts.GetByID(ctx, tx, *ref); err != nil {
				if !errors.Is(err, repository.ErrAccountNotFound) {
					return err
				}
				ref = nil
			}
		}
		var err error
		created, err = s.accounts.CreateIfAbsent(ctx, tx, id, username, fullName, ref)
		if err != nil {
			return err
		}
		if created && ref != nil && snap.ReferralReward.Sign() > 0 {
			desc := fmt.Sprintf("Referral bonus for inviting %d", id)
			if err := s.ledger.Apply(ctx, tx, *ref, snap.ReferralReward, model.TxKindReferral, &desc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, mapStoreErr(err)
	}

	if !created {
		if err := s.accounts.UpdateIdentity(ctx, id, username, fullName); err != nil {
			log.Warn().Err(err).Int64("account", id).Msg("Identity refresh failed")
		}
	} else {
		log.Info().Int64("account", id).Bool("referred", ref != nil).Msg("Account created")
	}

	account, err := s.accounts.GetByID(ctx, s.pool, id)
	if err != nil {
		return nil, false, mapStoreErr(err)
	}
	return account, created, nil
}

// Get returns an account, failing with ErrBanned for banned accounts.
func (s *AccountService) Get(ctx context.Context, id int64) (*model.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	account, err := s.accounts.GetByID(ctx, s.pool, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if account.Banned {
		return nil, ErrBanned
	}
	return account, nil
}

// Lookup returns an account regardless of ban state. Admin use.
func (s *AccountService) Lookup(ctx context.Context, id int64) (*model.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	account, err := s.accounts.GetByID(ctx, s.pool, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return account, nil
}

// LookupByUsername returns an account by username. Admin use.
func (s *AccountService) LookupByUsername(ctx context.Context, username string) (*model.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return account, nil
}

// History returns the account's recent ledger rows.
func (s *AccountService) History(ctx context.Context, id int64, limit int) ([]*model.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	txs, err := s.ledger.History(ctx, id, limit)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return txs, nil
}

// SetBanned toggles an account's ban flag.
func (s *AccountService) SetBanned(ctx context.Context, id int64, banned bool) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.accounts.SetBanned(ctx, id, banned); err != nil {
		return mapStoreErr(err)
	}
	log.Info().Int64("account", id).Bool("banned", banned).Msg("Ban flag updated")
	return nil
}

// AdjustBalance applies a manual admin correction through the ledger.
// Debits that would drive the balance negative are rejected whole.
func (s *AccountService) AdjustBalance(ctx context.Context, id int64, amount decimal.Decimal, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return s.ledger.Apply(ctx, tx, id, amount, model.TxKindAdminAdjust, &reason)
	})
	if err != nil {
		return mapStoreErr(err)
	}
	log.Info().Int64("account", id).Str("amount", amount.String()).Msg("Balance adjusted")
	return nil
}

// Stats returns storefront-wide aggregates.
func (s *AccountService) Stats(ctx context.Context) (*model.ShopStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	stats, err := s.accounts.Stats(ctx)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return stats, nil
}

// BroadcastIDs returns every non-banned account ID for fan-out.
func (s *AccountService) BroadcastIDs(ctx context.Context) ([]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	ids, err := s.accounts.ListIDs(ctx)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return ids, nil
}
