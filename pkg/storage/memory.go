package storage

import (
	"context"
	"sync"
)

// MemoryEngine keeps the last saved snapshot in memory. Snapshots are copied
// on the way in and out so callers cannot alias stored state.
//
// Thread Safety:
//
//	Safe for concurrent use from multiple goroutines.
type MemoryEngine struct {
	mu     sync.RWMutex
	snap   *Snapshot
	closed bool
}

// NewMemoryEngine creates an empty in-memory engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{}
}

// Save implements Engine.
func (m *MemoryEngine) Save(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored, err := prepare(snap)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStorageClosed
	}
	m.snap = stored
	return nil
}

// Load implements Engine.
func (m *MemoryEngine) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStorageClosed
	}
	if m.snap == nil {
		return nil, ErrNotFound
	}

	out := m.snap.Clone()
	if err := out.VerifyDigest(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close implements Engine.
func (m *MemoryEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.snap = nil
	return nil
}
