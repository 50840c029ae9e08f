package subscription

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger is an in-process Ledger backed by a map.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]time.Time)}
}

func (l *MemoryLedger) Reserve(ctx context.Context, eventID string, appliedAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[eventID]; ok {
		return false, nil
	}
	l.entries[eventID] = appliedAt
	return true, nil
}

func (l *MemoryLedger) Contains(ctx context.Context, eventID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.entries[eventID]
	return ok, nil
}

func (l *MemoryLedger) Release(ctx context.Context, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, eventID)
	return nil
}

// Len returns the number of recorded events.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
