package config

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 20, cfg.Database.PoolSize)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "24h0m0s", cfg.Engine.ClaimCooldown.String())
	assert.True(t, cfg.Storefront.ShopEnabled)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "shop"}
	assert.Equal(t, "postgres://u:p@db:5433/shop?sslmode=disable", d.DSN())
}

func TestConfig_IsAdmin(t *testing.T) {
	cfg := Config{Admin: AdminConfig{IDs: []int64{1, 7}}}
	assert.True(t, cfg.IsAdmin(7))
	assert.False(t, cfg.IsAdmin(2))
}

func TestStorefrontConfig_Parse(t *testing.T) {
	s := StorefrontConfig{
		ReferralReward: "5.0",
		DailyReward:    "2.50",
		ScratchRewards: "1.0, 5.0, 10.0",
		ScratchEnabled: true,
	}
	snap, err := s.Parse()
	require.NoError(t, err)
	assert.True(t, snap.ReferralReward.Equal(decimal.NewFromInt(5)))
	assert.True(t, snap.DailyReward.Equal(decimal.RequireFromString("2.5")))
	require.Len(t, snap.ScratchRewards, 3)
	assert.True(t, snap.ScratchRewards[2].Equal(decimal.NewFromInt(10)))
}

func TestStorefrontConfig_Parse_Rejections(t *testing.T) {
	_, err := (&StorefrontConfig{ReferralReward: "x", DailyReward: "1", ScratchRewards: "1"}).Parse()
	assert.Error(t, err)

	_, err = (&StorefrontConfig{ReferralReward: "1", DailyReward: "1", ScratchRewards: "-2"}).Parse()
	assert.Error(t, err)

	_, err = (&StorefrontConfig{ReferralReward: "1", DailyReward: "1", ScratchRewards: "", ScratchEnabled: true}).Parse()
	assert.Error(t, err)
}

// Property: any list of positive cent amounts survives the round trip
// through the comma-separated config form.
func TestStorefrontConfig_Parse_ScratchRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cents := rapid.SliceOfN(rapid.Int64Range(1, 1_000_00), 1, 10).Draw(t, "cents")

		parts := make([]string, len(cents))
		want := make([]decimal.Decimal, len(cents))
		for i, c := range cents {
			want[i] = decimal.New(c, -2)
			parts[i] = want[i].String()
		}

		s := StorefrontConfig{
			ReferralReward: "1",
			DailyReward:    "1",
			ScratchRewards: strings.Join(parts, ","),
			ScratchEnabled: true,
		}
		snap, err := s.Parse()
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if len(snap.ScratchRewards) != len(want) {
			t.Fatalf("got %d rewards, want %d", len(snap.ScratchRewards), len(want))
		}
		for i := range want {
			if !snap.ScratchRewards[i].Equal(want[i]) {
				t.Fatalf("reward %d: got %s, want %s", i, snap.ScratchRewards[i], want[i])
			}
		}
	})
}

func TestRuntime_SnapshotSwap(t *testing.T) {
	first := &Snapshot{Currency: "$"}
	r := NewRuntime("", first)
	assert.Same(t, first, r.Current())

	second := &Snapshot{Currency: "€"}
	r.current.Store(second)
	assert.Same(t, second, r.Current())
}
