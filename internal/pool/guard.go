package pool

import (
	"errors"
	"sync/atomic"
)

// ErrConcurrentAccess is returned when two simulations run at once on states that
// share an engine.
var ErrConcurrentAccess = errors.New("concurrent simulation on a shared pool engine")

// lineage is shared by a state and every state derived from it.
type lineage struct {
	busy atomic.Bool
}

func (l *lineage) enter() error {
	if !l.busy.CompareAndSwap(false, true) {
		return ErrConcurrentAccess
	}
	return nil
}

func (l *lineage) exit() {
	l.busy.Store(false)
}
