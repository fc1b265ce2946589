package store

import (
	"context"
	"time"
)

// MaskedSecret is what gets persisted in place of an account secret. Real
// credentials never leave process memory.
const MaskedSecret = "********"

// Record is the durable shape of an account: no secret, no inbox.
type Record struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Secret       string     `json:"password"` // always MaskedSecret on disk
	Status       string     `json:"status"`
	ActiveRoom   string     `json:"active_room,omitempty"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
}

// Store persists account records. Save replaces the full set.
type Store interface {
	Save(ctx context.Context, recs []Record) error
	Load(ctx context.Context) ([]Record, error)
}
