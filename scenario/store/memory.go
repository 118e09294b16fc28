// Package store provides CollectionStore implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/scenario-engine/scenario"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	collection *scenario.Collection
	saves      int
}

var _ scenario.CollectionStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{}
}

// NewMemoryWith returns a memory store already holding c.
func NewMemoryWith(c scenario.Collection) *Memory {
	m := &Memory{}
	stored := c.With()
	m.collection = &stored
	return m
}

// Load returns a copy of the stored collection.
func (m *Memory) Load(_ context.Context) (scenario.Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.collection == nil {
		return scenario.Collection{}, scenario.ErrCollectionNotFound
	}
	return m.collection.With(), nil
}

// Save replaces the stored collection with a copy of c.
func (m *Memory) Save(_ context.Context, c scenario.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := c.With()
	m.collection = &stored
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}
