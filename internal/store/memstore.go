package store

import (
	"context"
	"sync"
)

// memstore is a development-only in-memory store used when no Redis is
// configured.
type memstore struct {
	mu   sync.RWMutex
	recs []Record
}

func NewMemoryStore() Store { return &memstore{} }

func (m *memstore) Save(ctx context.Context, recs []Record) error {
	copied := make([]Record, len(recs))
	copy(copied, recs)
	for i := range copied {
		copied[i].Secret = MaskedSecret
	}
	m.mu.Lock()
	m.recs = copied
	m.mu.Unlock()
	return nil
}

func (m *memstore) Load(ctx context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, len(m.recs))
	copy(out, m.recs)
	return out, nil
}
