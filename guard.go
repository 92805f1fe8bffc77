package multipay

import "sync/atomic"

// reentrancyGuard serializes state-mutating entry points against nested
// re-entry during outbound token and router calls. enter must be paired with
// a deferred leave so the lock is released on every exit path.
type reentrancyGuard struct {
	busy atomic.Bool
}

func (g *reentrancyGuard) enter() error {
	if !g.busy.CompareAndSwap(false, true) {
		return NewSettlementError(ErrCodeReentrantCall, "reentrant call detected", nil)
	}
	return nil
}

func (g *reentrancyGuard) leave() {
	g.busy.Store(false)
}
