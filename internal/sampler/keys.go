package sampler

import (
	"sync"

	"github.com/google/uuid"
)

// KeyAllocator hands out fresh primary keys per table. Integer keys are a
// monotonic sequence starting at 0; string keys are UUIDs. Safe for
// concurrent use.
type KeyAllocator struct {
	mu   sync.Mutex
	next map[string]int64
}

func NewKeyAllocator() *KeyAllocator {
	return &KeyAllocator{next: make(map[string]int64)}
}

// NextInt returns the next integer key for a table.
func (a *KeyAllocator) NextInt(table string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := a.next[table]
	a.next[table] = v + 1
	return v
}

// NextString returns a fresh string key. UUIDs need no per-table counter.
func (a *KeyAllocator) NextString(string) string {
	return uuid.NewString()
}

// Reset restarts every integer sequence at 0. Subsequent samples will then
// reuse key values already handed out, so callers reset only between
// independent datasets.
func (a *KeyAllocator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next = make(map[string]int64)
}
