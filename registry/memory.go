package registry

import (
	"context"
	"sync"

	"github.com/ruteri/collection-factory/interfaces"
)

// MemoryRegistry is an in-memory set of committed child accounts.
// Its contents do not survive a restart; use SQLiteRegistry for persistence.
type MemoryRegistry struct {
	mutex    sync.RWMutex
	children map[interfaces.AccountID]struct{}
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		children: make(map[interfaces.AccountID]struct{}),
	}
}

// Contains reports whether id was committed.
func (r *MemoryRegistry) Contains(ctx context.Context, id interfaces.AccountID) (bool, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	_, exists := r.children[id]
	return exists, nil
}

// Insert commits id. Inserting an existing id is a no-op.
func (r *MemoryRegistry) Insert(ctx context.Context, id interfaces.AccountID) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.children[id] = struct{}{}
	return nil
}

// Len returns the number of committed ids.
func (r *MemoryRegistry) Len(ctx context.Context) (int, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.children), nil
}
