// Package pool provides object pooling for traversal state to reduce allocations.
//
// Graph walks allocate the same short-lived structures over and over: explicit
// stacks, materialized collection arrays and identity seen-sets. Pooling them
// keeps GC pressure flat when iterators and cache fills run at high frequency.
//
// Usage:
//
//	var stacks = pool.NewSlicePool[*Node](64)
//
//	stack := stacks.Get(0)
//	defer stacks.Put(stack)
//
//	var seen = pool.NewSetPool[*Node](64)
//	visited := seen.Get()
//	defer seen.Put(visited)
package pool

import (
	"sync"
)

// PoolConfig configures object pooling behavior.
type PoolConfig struct {
	// Enabled controls whether pooling is active
	Enabled bool

	// MaxSize limits the capacity (slices) or length (sets) of objects kept
	// in a pool. Larger objects are dropped for the GC.
	MaxSize int
}

var (
	configMu     sync.RWMutex
	globalConfig = PoolConfig{
		Enabled: true,
		MaxSize: 4096,
	}
)

// Configure sets global pool configuration.
// Should be called early during initialization.
func Configure(config PoolConfig) {
	configMu.Lock()
	defer configMu.Unlock()
	globalConfig = config
}

// IsEnabled returns whether pooling is enabled.
func IsEnabled() bool {
	return currentConfig().Enabled
}

func currentConfig() PoolConfig {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

// =============================================================================
// Slice Pool
// =============================================================================

// SlicePool reuses slices of T.
type SlicePool[T any] struct {
	pool    sync.Pool
	initCap int
}

// NewSlicePool creates a pool whose fresh slices start with capacity initCap.
func NewSlicePool[T any](initCap int) *SlicePool[T] {
	if initCap <= 0 {
		initCap = 16
	}
	sp := &SlicePool[T]{initCap: initCap}
	sp.pool.New = func() any {
		s := make([]T, 0, sp.initCap)
		return &s
	}
	return sp
}

// Get returns an empty slice with capacity of at least minCap.
// Call Put when done.
func (sp *SlicePool[T]) Get(minCap int) []T {
	if !IsEnabled() {
		return make([]T, 0, max(minCap, sp.initCap))
	}
	s := *(sp.pool.Get().(*[]T))
	if cap(s) < minCap {
		return make([]T, 0, minCap)
	}
	return s[:0]
}

// Put returns a slice to the pool. Elements are zeroed so pooled slices do
// not keep graph nodes alive.
func (sp *SlicePool[T]) Put(s []T) {
	cfg := currentConfig()
	if !cfg.Enabled || s == nil {
		return
	}
	// Don't pool very large slices (memory leak prevention)
	if cap(s) > cfg.MaxSize {
		return
	}
	clear(s[:cap(s)])
	s = s[:0]
	sp.pool.Put(&s)
}

// =============================================================================
// Set Pool
// =============================================================================

// SetPool reuses identity sets keyed by K.
type SetPool[K comparable] struct {
	pool     sync.Pool
	initSize int
}

// NewSetPool creates a pool whose fresh sets are sized for initSize keys.
func NewSetPool[K comparable](initSize int) *SetPool[K] {
	if initSize <= 0 {
		initSize = 16
	}
	sp := &SetPool[K]{initSize: initSize}
	sp.pool.New = func() any {
		return make(map[K]struct{}, sp.initSize)
	}
	return sp
}

// Get returns an empty set. Call Put when done.
func (sp *SetPool[K]) Get() map[K]struct{} {
	if !IsEnabled() {
		return make(map[K]struct{}, sp.initSize)
	}
	m := sp.pool.Get().(map[K]struct{})
	clear(m)
	return m
}

// Put returns a set to the pool after clearing it.
func (sp *SetPool[K]) Put(m map[K]struct{}) {
	cfg := currentConfig()
	if !cfg.Enabled || m == nil {
		return
	}
	if len(m) > cfg.MaxSize {
		return
	}
	clear(m)
	sp.pool.Put(m)
}
