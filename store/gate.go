package store

import "sync"

// Gate coordinates whole-store operations that the DurableStore interface
// itself cannot order. Writers (sync apply, restore) hold the exclusive
// side; whole-store readers (backup sweeps, integrity scans) hold the
// shared side. Point reads through the cache are not gated; only restore
// could tear them, and restore is exclusive.
//
// One Gate instance must be shared by every component operating on the
// same DurableStore.
type Gate struct {
	mu sync.RWMutex
}

// NewGate constructs a Gate ready for use.
func NewGate() *Gate { return &Gate{} }

// LockExclusive blocks until no sweep or other writer holds the gate.
func (g *Gate) LockExclusive() { g.mu.Lock() }

// UnlockExclusive releases the exclusive side.
func (g *Gate) UnlockExclusive() { g.mu.Unlock() }

// LockShared blocks while a writer holds the gate. Multiple sweeps may
// hold the shared side simultaneously.
func (g *Gate) LockShared() { g.mu.RLock() }

// UnlockShared releases the shared side.
func (g *Gate) UnlockShared() { g.mu.RUnlock() }
