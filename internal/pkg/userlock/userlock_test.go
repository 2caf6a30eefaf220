package userlock

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestGuard_TryAcquireRelease(t *testing.T) {
	g := NewGuard()

	assert.True(t, g.TryAcquire(1))
	assert.False(t, g.TryAcquire(1), "second acquire while busy must fail")
	assert.True(t, g.TryAcquire(2), "other users are independent")

	g.Release(1)
	assert.True(t, g.TryAcquire(1))
}

func TestGuard_DoMutualExclusion(t *testing.T) {
	g := NewGuard()

	var running, overlaps, ran int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Do(42, func() {
				if atomic.AddInt32(&running, 1) > 1 {
					atomic.AddInt32(&overlaps, 1)
				}
				atomic.AddInt32(&ran, 1)
				atomic.AddInt32(&running, -1)
			})
		}()
	}
	wg.Wait()

	assert.Zero(t, overlaps, "Do must never overlap for the same user")
	assert.GreaterOrEqual(t, ran, int32(1))
}

// Property: any sequence of acquire/release calls keeps the guard
// consistent with a plain map of busy users.
func TestGuard_ModelProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g := NewGuard()
		busy := map[int64]bool{}

		steps := rapid.IntRange(1, 50).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			user := rapid.Int64Range(1, 5).Draw(t, "user")
			if rapid.Bool().Draw(t, "acquire") {
				got := g.TryAcquire(user)
				want := !busy[user]
				if got != want {
					t.Fatalf("TryAcquire(%d) = %v, want %v", user, got, want)
				}
				if got {
					busy[user] = true
				}
			} else {
				g.Release(user)
				delete(busy, user)
			}
		}
	})
}
