package accounts

import (
	"context"
	"sync"
)

// MemoryDirectory is a map-backed Directory for development and tests.
type MemoryDirectory struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

func NewMemoryDirectory(seed ...Account) *MemoryDirectory {
	d := &MemoryDirectory{accounts: make(map[string]Account, len(seed))}
	for _, a := range seed {
		d.accounts[a.ID] = a
	}
	return d
}

// Put adds or replaces an account.
func (d *MemoryDirectory) Put(a Account) {
	d.mu.Lock()
	d.accounts[a.ID] = a
	d.mu.Unlock()
}

func (d *MemoryDirectory) Get(ctx context.Context, id string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

var _ Directory = (*MemoryDirectory)(nil)
