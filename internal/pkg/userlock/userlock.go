// Package userlock provides a per-user in-flight guard for the chat layer.
// It suppresses double-taps on buttons while an operation is running. It is
// not a correctness mechanism: the database transactions in the service
// layer already serialize conflicting mutations.
package userlock

import "sync"

// Guard tracks which users have an operation in flight.
type Guard struct {
	inflight sync.Map // map[int64]struct{}
}

// NewGuard creates a new Guard.
func NewGuard() *Guard {
	return &Guard{}
}

// TryAcquire marks the user as busy. Returns false if an operation is
// already in flight for the user.
func (g *Guard) TryAcquire(userID int64) bool {
	_, loaded := g.inflight.LoadOrStore(userID, struct{}{})
	return !loaded
}

// Release clears the user's in-flight mark.
func (g *Guard) Release(userID int64) {
	g.inflight.Delete(userID)
}

// Do runs fn while holding the user's mark. Returns false without running
// fn when the user is already busy.
func (g *Guard) Do(userID int64, fn func()) bool {
	if !g.TryAcquire(userID) {
		return false
	}
	defer g.Release(userID)
	fn()
	return true
}
