package sched

import (
	"sync"
	"time"

	"github.com/kapu/wolf-autobot-go/internal/obslog"
	"go.uber.org/zap"
)

// Registry owns every scheduled task in the process, keyed by
// (account, feature, role). It is the only component allowed to cancel or
// replace entries; engines hold no raw timer handles.
type Registry struct {
	mu      sync.Mutex
	entries map[Key]*entry
	closed  bool
}

type entry struct {
	key     Key
	kind    Kind
	payload any
	stop    chan struct{}
	stopped bool
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[Key]*entry)}
}

// Schedule installs fn under key. An existing entry for the same key is
// cancelled first: registration replaces, it never stacks. For Interval kind
// fn runs every period until cancelled; for Delayed kind the entry removes
// itself when the delay elapses, then fn runs once.
func (r *Registry) Schedule(key Key, kind Kind, period time.Duration, fn func(), payload any) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if prev, ok := r.entries[key]; ok {
		r.stopLocked(prev)
	}
	e := &entry{key: key, kind: kind, payload: payload, stop: make(chan struct{})}
	r.entries[key] = e
	r.mu.Unlock()

	switch kind {
	case Delayed:
		go r.runDelayed(e, period, fn)
	default:
		go r.runInterval(e, period, fn)
	}
}

func (r *Registry) runInterval(e *entry, period time.Duration, fn func()) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-t.C:
			runSafe(e.key, fn)
		}
	}
}

func (r *Registry) runDelayed(e *entry, delay time.Duration, fn func()) {
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-e.stop:
		return
	case <-t.C:
	}
	// Consume the entry before running so the key is free for re-registration
	// from inside fn. Skip fn entirely if the entry was replaced meanwhile.
	r.mu.Lock()
	if cur, ok := r.entries[e.key]; !ok || cur != e {
		r.mu.Unlock()
		return
	}
	r.stopLocked(e)
	r.mu.Unlock()
	runSafe(e.key, fn)
}

// runSafe guards a tick: a panicking callback is logged and does not take the
// timer down with it.
func runSafe(key Key, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			obslog.L().Error("timer_tick_panic", zap.String("key", key.String()), zap.Any("panic", rec))
		}
	}()
	fn()
}

// Mark installs an inert entry under key: no callback ever runs, the entry
// only carries the payload and makes Has/HasFeature report the key as live.
// Marker keys back the message-driven modes where all work happens in the
// router. Replace semantics match Schedule.
func (r *Registry) Mark(key Key, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if prev, ok := r.entries[key]; ok {
		r.stopLocked(prev)
	}
	r.entries[key] = &entry{key: key, kind: Marker, payload: payload, stop: make(chan struct{})}
}

// Cancel stops and removes the entry for key if present. Safe to call from
// inside the entry's own callback.
func (r *Registry) Cancel(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		r.stopLocked(e)
	}
}

// CancelAllForAccount removes every entry whose account component matches id,
// across all features and roles.
func (r *Registry) CancelAllForAccount(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, e := range r.entries {
		if k.AccountID == id {
			r.stopLocked(e)
		}
	}
}

func (r *Registry) stopLocked(e *entry) {
	if !e.stopped {
		e.stopped = true
		close(e.stop)
	}
	delete(r.entries, e.key)
}

// Has reports whether a live entry exists for key.
func (r *Registry) Has(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

// HasFeature reports whether any entry exists for the account+feature pair.
// Derived feature state is computed from this, never stored separately.
func (r *Registry) HasFeature(accountID string, f Feature) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.entries {
		if k.AccountID == accountID && k.Feature == f {
			return true
		}
	}
	return false
}

// Payload returns the configuration record stored with the entry.
func (r *Registry) Payload(key Key) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e.payload, true
	}
	return nil, false
}

// SetPayload swaps the configuration record on a live entry, leaving the
// schedule untouched. No-op when the key is absent.
func (r *Registry) SetPayload(key Key, payload any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		e.payload = payload
		return true
	}
	return false
}

// KeysForAccount enumerates live keys for an account.
func (r *Registry) KeysForAccount(id string) []Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Key
	for k := range r.entries {
		if k.AccountID == id {
			out = append(out, k)
		}
	}
	return out
}

// Close cancels everything. The registry rejects new schedules afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for _, e := range r.entries {
		r.stopLocked(e)
	}
}
