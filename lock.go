package synth

import "sync"

// Lock serializes access to a Synth. The engine never locks by itself: every
// entry point takes a Held obtained from the lock the Synth was created with.
type Lock struct {
	mu sync.Mutex
}

// Held proves that its Lock is held. The zero Held proves nothing and makes
// every entry point panic.
type Held struct {
	lock *Lock
}

// Acquire blocks until the lock is held.
func (l *Lock) Acquire() Held {
	l.mu.Lock()
	return Held{lock: l}
}

// TryAcquire takes the lock only if it is free. Real-time callers use it to
// output silence instead of waiting.
func (l *Lock) TryAcquire() (Held, bool) {
	if !l.mu.TryLock() {
		return Held{}, false
	}
	return Held{lock: l}, true
}

// Release unlocks the lock.
func (h Held) Release() {
	h.lock.mu.Unlock()
}

func (s *Synth) check(h Held) {
	if h.lock == nil || h.lock != s.lock {
		panic("synth: entry point called without holding the synth lock")
	}
}
