package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func levelRank(level string) int {
	switch level {
	case LevelBronze:
		return 0
	case LevelSilver:
		return 1
	default:
		return 2
	}
}

// Property: spending more never lowers the level.
func TestSpendLevel_Monotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := decimal.New(rapid.Int64Range(0, 10_000_00).Draw(t, "a"), -2)
		extra := decimal.New(rapid.Int64Range(0, 10_000_00).Draw(t, "extra"), -2)
		b := a.Add(extra)

		if levelRank(SpendLevel(b)) < levelRank(SpendLevel(a)) {
			t.Fatalf("level dropped: %s -> %s for %s -> %s", SpendLevel(a), SpendLevel(b), a, b)
		}
	})
}

func TestSpendLevel_Thresholds(t *testing.T) {
	assert.Equal(t, LevelBronze, SpendLevel(decimal.Zero))
	assert.Equal(t, LevelBronze, SpendLevel(decimal.RequireFromString("99.99")))
	assert.Equal(t, LevelSilver, SpendLevel(decimal.NewFromInt(100)))
	assert.Equal(t, LevelSilver, SpendLevel(decimal.RequireFromString("499.99")))
	assert.Equal(t, LevelGold, SpendLevel(decimal.NewFromInt(500)))
	assert.Equal(t, LevelGold, SpendLevel(decimal.NewFromInt(100000)))
}
