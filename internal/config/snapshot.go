package config

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Snapshot is an immutable view of the storefront settings. Callers read a
// whole snapshot at the start of an operation and never see a torn update.
type Snapshot struct {
	WelcomeMessage   string
	Currency         string
	SupportLink      string
	Rules            string
	ForceJoinChannel string
	CaptchaEnabled   bool
	ShopEnabled      bool
	DailyEnabled     bool
	ScratchEnabled   bool
	ReferralEnabled  bool
	ReferralReward   decimal.Decimal
	DailyReward      decimal.Decimal
	ScratchRewards   []decimal.Decimal
}

// Runtime publishes the current Snapshot and swaps in new ones on reload.
type Runtime struct {
	configPath string
	current    atomic.Pointer[Snapshot]
}

// NewRuntime builds a Runtime seeded with the given snapshot. configPath is
// re-read on every Reload.
func NewRuntime(configPath string, initial *Snapshot) *Runtime {
	r := &Runtime{configPath: configPath}
	r.current.Store(initial)
	return r
}

// Current returns the active snapshot. The returned value must not be
// mutated.
func (r *Runtime) Current() *Snapshot {
	return r.current.Load()
}

// Reload re-reads the config source and swaps the snapshot. A failed reload
// keeps the previous snapshot active.
func (r *Runtime) Reload() error {
	cfg, err := Load(r.configPath)
	if err != nil {
		return err
	}
	snap, err := cfg.Storefront.Parse()
	if err != nil {
		return err
	}
	r.current.Store(snap)
	return nil
}

// StartReloader reloads the snapshot on the given cadence until ctx is done.
func (r *Runtime) StartReloader(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.Reload(); err != nil {
					log.Error().Err(err).Msg("Settings reload failed, keeping previous snapshot")
				}
			}
		}
	}()
}
