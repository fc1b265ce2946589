package account

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/wolf-autobot-go/internal/obslog"
	"github.com/kapu/wolf-autobot-go/internal/store"
	"github.com/kapu/wolf-autobot-go/internal/wolf"
)

// Registry owns all managed accounts. All mutation goes through it so the
// token/status invariant holds; callers get defensive snapshots, never the
// live structs.
type Registry struct {
	mu         sync.RWMutex
	accounts   map[string]*Account
	order      []string // insertion order, drives train fan-out indexing
	selected   string
	gw         wolf.Gateway
	st         store.Store
	hooks      Hooks
	inboxLimit int
}

func NewRegistry(gw wolf.Gateway, st store.Store, inboxLimit int) *Registry {
	if inboxLimit <= 0 {
		inboxLimit = 50
	}
	return &Registry{
		accounts:   make(map[string]*Account),
		gw:         gw,
		st:         st,
		inboxLimit: inboxLimit,
	}
}

// Gateway exposes the platform transport for collaborators that fetch and
// mark messages on an account's behalf.
func (r *Registry) Gateway() wolf.Gateway { return r.gw }

// SetHooks installs the lifecycle callbacks. Must be called before any
// account goes online.
func (r *Registry) SetHooks(h Hooks) {
	r.mu.Lock()
	r.hooks = h
	r.mu.Unlock()
}

// LoadFromStore seeds the registry from persisted records. Every restored
// account starts offline regardless of its stored status; sessions do not
// survive a restart.
func (r *Registry) LoadFromStore(ctx context.Context) error {
	recs, err := r.st.Load(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range recs {
		if rec.ID == "" || rec.Username == "" {
			continue
		}
		if _, dup := r.accounts[rec.ID]; dup {
			continue
		}
		acct := &Account{
			ID:       rec.ID,
			Username: rec.Username,
			Secret:   rec.Secret, // masked on disk; a real secret arrives via re-add
			Status:   StatusOffline,
		}
		if rec.LastActiveAt != nil {
			acct.LastActiveAt = *rec.LastActiveAt
		}
		r.accounts[rec.ID] = acct
		r.order = append(r.order, rec.ID)
	}
	obslog.L().Info("accounts_restored", zap.Int("count", len(r.order)))
	return nil
}

// AddAccount verifies the credentials against the gateway and, if they hold,
// registers a new offline account. A platform-rejected login maps to
// ErrInvalidCredentials and nothing is created.
func (r *Registry) AddAccount(ctx context.Context, username, secret string) (Account, error) {
	sess, err := r.gw.Login(ctx, username, secret)
	if err != nil {
		var pe *wolf.PlatformError
		if errors.As(err, &pe) {
			return Account{}, fmt.Errorf("%w: %s", ErrInvalidCredentials, pe.Message)
		}
		return Account{}, fmt.Errorf("verify credentials: %w", err)
	}
	// the verification session is not kept; the account stays offline until
	// explicitly activated
	if sess != nil && sess.Token != "" {
		if err := r.gw.Logout(ctx, sess.Token); err != nil {
			obslog.L().Debug("verify_logout_failed", zap.String("username", username), zap.Error(err))
		}
	}

	acct := &Account{
		ID:       "acc-" + uuid.NewString(),
		Username: username,
		Secret:   secret,
		Status:   StatusOffline,
	}
	r.mu.Lock()
	r.accounts[acct.ID] = acct
	r.order = append(r.order, acct.ID)
	snap := snapshot(acct)
	r.mu.Unlock()

	r.persist(ctx)
	obslog.L().Info("account_added", zap.String("account_id", acct.ID), zap.String("username", username))
	return snap, nil
}

// DeleteAccount removes an account. Deleting an unknown id is a no-op. An
// online account is logged out best-effort and its timers are torn down via
// the offline hook before removal.
func (r *Registry) DeleteAccount(ctx context.Context, id string) {
	r.mu.Lock()
	acct, ok := r.accounts[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	token := acct.SessionToken
	wasOnline := acct.Status == StatusOnline
	offline := r.hooks.OnOffline
	delete(r.accounts, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.selected == id {
		r.selected = ""
	}
	r.mu.Unlock()

	if offline != nil {
		offline(id)
	}
	if wasOnline && token != "" {
		if err := r.gw.Logout(ctx, token); err != nil {
			obslog.L().Warn("delete_logout_failed", zap.String("account_id", id), zap.Error(err))
		}
	}
	r.persist(ctx)
	obslog.L().Info("account_deleted", zap.String("account_id", id))
}

// Toggle activates or deactivates an account. The bool result reports whether
// a state change happened; an already-satisfied request is a false no-op.
func (r *Registry) Toggle(ctx context.Context, id string, active bool) (bool, error) {
	r.mu.RLock()
	acct, ok := r.accounts[id]
	if !ok {
		r.mu.RUnlock()
		return false, ErrUnknownAccount
	}
	username, secret := acct.Username, acct.Secret
	status, token := acct.Status, acct.SessionToken
	r.mu.RUnlock()

	if active {
		if status == StatusOnline {
			return false, nil
		}
		sess, err := r.gw.Login(ctx, username, secret)
		if err != nil {
			var pe *wolf.PlatformError
			if errors.As(err, &pe) {
				// credentials rejected: account state untouched
				obslog.L().Warn("login_rejected", zap.String("account_id", id), zap.String("reason", pe.Message))
				return false, fmt.Errorf("%w: %s", ErrInvalidCredentials, pe.Message)
			}
			r.mutate(id, func(a *Account) {
				a.Status = StatusError
				a.SessionToken = ""
				a.ActiveRoom = ""
			})
			r.persist(ctx)
			return false, fmt.Errorf("login %s: %w", username, err)
		}
		var online func(string)
		r.mutate(id, func(a *Account) {
			a.Status = StatusOnline
			a.SessionToken = sess.Token
			a.ActiveRoom = ""
			a.LastActiveAt = time.Now()
			a.Inbox = nil
		})
		r.mu.RLock()
		online = r.hooks.OnOnline
		r.mu.RUnlock()
		r.persist(ctx)
		obslog.L().Info("account_online", zap.String("account_id", id), zap.String("username", username))
		if online != nil {
			online(id)
		}
		return true, nil
	}

	if status != StatusOnline {
		// deactivating an inactive account still normalizes error/idle back
		// to offline
		if status == StatusOffline {
			return false, nil
		}
		r.mutate(id, func(a *Account) {
			a.Status = StatusOffline
			a.SessionToken = ""
			a.ActiveRoom = ""
		})
		r.persist(ctx)
		return true, nil
	}

	r.mu.RLock()
	offline := r.hooks.OnOffline
	r.mu.RUnlock()
	if offline != nil {
		offline(id)
	}
	if token != "" {
		if err := r.gw.Logout(ctx, token); err != nil {
			obslog.L().Warn("logout_failed", zap.String("account_id", id), zap.Error(err))
		}
	}
	r.mutate(id, func(a *Account) {
		a.Status = StatusOffline
		a.SessionToken = ""
		a.ActiveRoom = ""
	})
	r.persist(ctx)
	obslog.L().Info("account_offline", zap.String("account_id", id))
	return true, nil
}

// ConnectToRoom joins the account to a room. A platform-rejected room leaves
// the account untouched and returns false without an error.
func (r *Registry) ConnectToRoom(ctx context.Context, id, roomRef string) (bool, error) {
	r.mu.RLock()
	acct, ok := r.accounts[id]
	if !ok {
		r.mu.RUnlock()
		return false, ErrUnknownAccount
	}
	if acct.Status != StatusOnline || acct.SessionToken == "" {
		r.mu.RUnlock()
		return false, ErrNotConnected
	}
	token := acct.SessionToken
	r.mu.RUnlock()

	if _, err := r.gw.ConnectToRoom(ctx, token, roomRef); err != nil {
		var pe *wolf.PlatformError
		if errors.As(err, &pe) {
			obslog.L().Warn("room_join_rejected", zap.String("account_id", id), zap.String("room", roomRef), zap.String("reason", pe.Message))
			return false, nil
		}
		return false, fmt.Errorf("join room %s: %w", roomRef, err)
	}

	// the account may have been toggled off or deleted while the call was in
	// flight; only mutate if it is still online
	changed := false
	r.mutate(id, func(a *Account) {
		if a.Status == StatusOnline {
			a.ActiveRoom = roomRef
			a.LastActiveAt = time.Now()
			changed = true
		}
	})
	if changed {
		r.persist(ctx)
		obslog.L().Info("room_joined", zap.String("account_id", id), zap.String("room", roomRef))
	}
	return changed, nil
}

// SendMessage sends text into the account's active room. Fails fast when the
// account holds no session or no room.
func (r *Registry) SendMessage(ctx context.Context, id, text string) error {
	token, room, err := r.sessionRoom(id)
	if err != nil {
		return err
	}
	if err := r.gw.SendMessage(ctx, token, room, text); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	r.mutate(id, func(a *Account) { a.LastActiveAt = time.Now() })
	return nil
}

// SendCommand sends a bot command into the account's active room.
func (r *Registry) SendCommand(ctx context.Context, id, command string) error {
	token, room, err := r.sessionRoom(id)
	if err != nil {
		return err
	}
	if err := r.gw.SendCommand(ctx, token, room, command); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	r.mutate(id, func(a *Account) { a.LastActiveAt = time.Now() })
	return nil
}

func (r *Registry) sessionRoom(id string) (token, room string, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.accounts[id]
	if !ok {
		return "", "", ErrUnknownAccount
	}
	if acct.Status != StatusOnline || acct.SessionToken == "" {
		return "", "", ErrNotConnected
	}
	if acct.ActiveRoom == "" {
		return "", "", fmt.Errorf("%w: no active room", ErrNotConnected)
	}
	return acct.SessionToken, acct.ActiveRoom, nil
}

// Token returns the live session token, or ErrNotConnected.
func (r *Registry) Token(id string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.accounts[id]
	if !ok {
		return "", ErrUnknownAccount
	}
	if acct.Status != StatusOnline || acct.SessionToken == "" {
		return "", ErrNotConnected
	}
	return acct.SessionToken, nil
}

// PushInbox prepends msgs to the account inbox, newest first, dropping
// messages already present and trimming to the configured cap. Returns the
// messages actually inserted.
func (r *Registry) PushInbox(id string, msgs []wolf.PrivateMessage) []wolf.PrivateMessage {
	if len(msgs) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[id]
	if !ok {
		return nil
	}
	known := make(map[string]struct{}, len(acct.Inbox))
	for _, m := range acct.Inbox {
		known[m.ID] = struct{}{}
	}
	fresh := make([]wolf.PrivateMessage, 0, len(msgs))
	for _, m := range msgs {
		if _, dup := known[m.ID]; dup {
			continue
		}
		known[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	if len(fresh) == 0 {
		return nil
	}
	acct.Inbox = append(fresh, acct.Inbox...)
	if len(acct.Inbox) > r.inboxLimit {
		acct.Inbox = acct.Inbox[:r.inboxLimit]
	}
	out := make([]wolf.PrivateMessage, len(fresh))
	copy(out, fresh)
	return out
}

// MarkInboxRead flips the read flag on one inbox message.
func (r *Registry) MarkInboxRead(id, messageID string) {
	r.mutate(id, func(a *Account) {
		for i := range a.Inbox {
			if a.Inbox[i].ID == messageID {
				a.Inbox[i].Read = true
				return
			}
		}
	})
}

// Inbox returns a copy of the account's inbox, newest first.
func (r *Registry) Inbox(id string) []wolf.PrivateMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.accounts[id]
	if !ok {
		return nil
	}
	out := make([]wolf.PrivateMessage, len(acct.Inbox))
	copy(out, acct.Inbox)
	return out
}

// UnreadCount reports the number of unread inbox messages.
func (r *Registry) UnreadCount(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.accounts[id]
	if !ok {
		return 0
	}
	n := 0
	for _, m := range acct.Inbox {
		if !m.Read {
			n++
		}
	}
	return n
}

// Get returns a snapshot of one account.
func (r *Registry) Get(id string) (Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.accounts[id]
	if !ok {
		return Account{}, false
	}
	return snapshot(acct), true
}

// List returns snapshots of every account in insertion order.
func (r *Registry) List() []Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Account, 0, len(r.order))
	for _, id := range r.order {
		if a, ok := r.accounts[id]; ok {
			out = append(out, snapshot(a))
		}
	}
	return out
}

// OnlineWithRoom returns the ids of accounts able to receive room commands,
// in insertion order. The position in this slice is the train fan-out index.
func (r *Registry) OnlineWithRoom() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if a, ok := r.accounts[id]; ok && a.OnlineWithRoom() {
			out = append(out, id)
		}
	}
	return out
}

// Select marks an account as the active selection for single-account
// operations. Selecting an unknown id clears the selection.
func (r *Registry) Select(id string) {
	r.mu.Lock()
	if _, ok := r.accounts[id]; ok {
		r.selected = id
	} else {
		r.selected = ""
	}
	r.mu.Unlock()
}

// Selected returns the selected account snapshot, if any.
func (r *Registry) Selected() (Account, bool) {
	r.mu.RLock()
	id := r.selected
	r.mu.RUnlock()
	if id == "" {
		return Account{}, false
	}
	return r.Get(id)
}

// mutate runs fn on the live account under the write lock. Unknown ids are
// ignored.
func (r *Registry) mutate(id string, fn func(*Account)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if acct, ok := r.accounts[id]; ok {
		fn(acct)
	}
}

// persist writes the current account set to the store. Persistence failures
// are logged, not propagated; the in-memory registry stays authoritative.
func (r *Registry) persist(ctx context.Context) {
	r.mu.RLock()
	recs := make([]store.Record, 0, len(r.order))
	for _, id := range r.order {
		acct, ok := r.accounts[id]
		if !ok {
			continue
		}
		rec := store.Record{
			ID:         acct.ID,
			Username:   acct.Username,
			Secret:     acct.Secret,
			Status:     string(acct.Status),
			ActiveRoom: acct.ActiveRoom,
		}
		if !acct.LastActiveAt.IsZero() {
			t := acct.LastActiveAt
			rec.LastActiveAt = &t
		}
		recs = append(recs, rec)
	}
	r.mu.RUnlock()

	if err := r.st.Save(ctx, recs); err != nil {
		obslog.L().Error("persist_accounts_failed", zap.Error(err))
	}
}

func snapshot(a *Account) Account {
	cp := *a
	cp.Inbox = make([]wolf.PrivateMessage, len(a.Inbox))
	copy(cp.Inbox, a.Inbox)
	return cp
}
