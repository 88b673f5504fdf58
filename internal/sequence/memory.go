package sequence

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Issuer keyed by (SKU, location). It backs unit
// tests and local tooling; services use Store so numbers survive restarts.
type Memory struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewMemory constructs an empty in-memory issuer.
func NewMemory() *Memory {
	return &Memory{counters: make(map[string]int64)}
}

// Next returns the next sequence for the pair.
func (m *Memory) Next(ctx context.Context, skuID, locationID int64) (int64, error) {
	if skuID <= 0 || locationID <= 0 {
		return 0, fmt.Errorf("sequence: sku and location required")
	}
	key := fmt.Sprintf("%d:%d", skuID, locationID)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	return m.counters[key], nil
}
