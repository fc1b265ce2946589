package account

import (
	"errors"
	"time"

	"github.com/kapu/wolf-autobot-go/internal/wolf"
)

var (
	ErrUnknownAccount     = errors.New("unknown account")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotConnected       = errors.New("account not connected")
)

// Status is an account's platform connection state.
type Status string

const (
	StatusOffline Status = "offline"
	StatusOnline  Status = "online"
	StatusIdle    Status = "idle"
	StatusError   Status = "error"
)

// Account is one managed platform identity. SessionToken is present iff the
// status is online; ActiveRoom may only be set while online.
type Account struct {
	ID           string
	Username     string
	Secret       string // in-memory only, never persisted
	Status       Status
	ActiveRoom   string
	SessionToken string
	LastActiveAt time.Time
	Inbox        []wolf.PrivateMessage // most-recent-first, bounded
}

// Online reports whether the account holds a live session.
func (a *Account) Online() bool { return a != nil && a.Status == StatusOnline }

// OnlineWithRoom reports whether the account can send room commands.
func (a *Account) OnlineWithRoom() bool { return a.Online() && a.ActiveRoom != "" }

// Hooks let the automation service react to lifecycle transitions without the
// registry importing it. OnOffline fires for deactivation and deletion and is
// where all timers for the account get cancelled.
type Hooks struct {
	OnOnline  func(id string)
	OnOffline func(id string)
}
