package account

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kapu/wolf-autobot-go/internal/store"
	"github.com/kapu/wolf-autobot-go/internal/wolf"
)

// fakeGateway scripts platform behavior per username/token.
type fakeGateway struct {
	mu           sync.Mutex
	rejectLogin  map[string]string // username -> platform message
	failLogin    map[string]error  // username -> transport error
	rejectRoom   map[string]string // roomRef -> platform message
	loginCount   int
	logoutTokens []string
	sent         []string // "room|text"
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		rejectLogin: make(map[string]string),
		failLogin:   make(map[string]error),
		rejectRoom:  make(map[string]string),
	}
}

func (g *fakeGateway) Login(_ context.Context, username, _ string) (*wolf.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if msg, ok := g.rejectLogin[username]; ok {
		return nil, &wolf.PlatformError{Message: msg}
	}
	if err, ok := g.failLogin[username]; ok {
		return nil, err
	}
	g.loginCount++
	return &wolf.Session{Token: fmt.Sprintf("tok-%s-%d", username, g.loginCount), UserID: "u-" + username}, nil
}

func (g *fakeGateway) Logout(_ context.Context, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.logoutTokens = append(g.logoutTokens, token)
	return nil
}

func (g *fakeGateway) ConnectToRoom(_ context.Context, _, roomRef string) (*wolf.RoomJoin, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if msg, ok := g.rejectRoom[roomRef]; ok {
		return nil, &wolf.PlatformError{Message: msg}
	}
	return &wolf.RoomJoin{RoomID: roomRef, JoinedAt: time.Now()}, nil
}

func (g *fakeGateway) SendMessage(_ context.Context, _, roomRef, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, roomRef+"|"+text)
	return nil
}

func (g *fakeGateway) SendCommand(ctx context.Context, token, roomRef, command string) error {
	return g.SendMessage(ctx, token, roomRef, command)
}

func (g *fakeGateway) PrivateMessages(context.Context, string) ([]wolf.PrivateMessage, error) {
	return nil, nil
}

func (g *fakeGateway) MarkMessageRead(context.Context, string, string) error { return nil }

func newTestRegistry(t *testing.T) (*Registry, *fakeGateway) {
	t.Helper()
	gw := newFakeGateway()
	return NewRegistry(gw, store.NewMemoryStore(), 5), gw
}

func mustAdd(t *testing.T, r *Registry, username string) string {
	t.Helper()
	acct, err := r.AddAccount(context.Background(), username, "secret-"+username)
	if err != nil {
		t.Fatalf("AddAccount(%s): %v", username, err)
	}
	return acct.ID
}

func TestAddAccountVerifiesCredentials(t *testing.T) {
	r, gw := newTestRegistry(t)
	gw.rejectLogin["badwolf"] = "Incorrect username or password"

	if _, err := r.AddAccount(context.Background(), "badwolf", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if len(r.List()) != 0 {
		t.Fatalf("rejected add must not create an account")
	}

	id := mustAdd(t, r, "goodwolf")
	acct, ok := r.Get(id)
	if !ok || acct.Status != StatusOffline || acct.SessionToken != "" {
		t.Fatalf("new account must start offline with no token: %+v", acct)
	}
}

func TestToggleOnline(t *testing.T) {
	r, _ := newTestRegistry(t)
	id := mustAdd(t, r, "wolf_one")

	var gotOnline string
	r.SetHooks(Hooks{OnOnline: func(aid string) { gotOnline = aid }})

	changed, err := r.Toggle(context.Background(), id, true)
	if err != nil || !changed {
		t.Fatalf("Toggle on: changed=%v err=%v", changed, err)
	}
	acct, _ := r.Get(id)
	if acct.Status != StatusOnline || acct.SessionToken == "" {
		t.Fatalf("expected online with token: %+v", acct)
	}
	if gotOnline != id {
		t.Fatalf("online hook not fired for %s (got %q)", id, gotOnline)
	}

	// already online: no-op
	changed, err = r.Toggle(context.Background(), id, true)
	if err != nil || changed {
		t.Fatalf("second Toggle on must be a no-op, changed=%v err=%v", changed, err)
	}
}

func TestToggleOnRejectedLeavesAccountUntouched(t *testing.T) {
	r, gw := newTestRegistry(t)
	id := mustAdd(t, r, "wolf_two")
	gw.rejectLogin["wolf_two"] = "Incorrect username or password"

	changed, err := r.Toggle(context.Background(), id, true)
	if changed || !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("changed=%v err=%v", changed, err)
	}
	acct, _ := r.Get(id)
	if acct.Status != StatusOffline || acct.SessionToken != "" {
		t.Fatalf("rejected login must not mutate the account: %+v", acct)
	}
}

func TestToggleOnTransportErrorMarksError(t *testing.T) {
	r, gw := newTestRegistry(t)
	id := mustAdd(t, r, "wolf_three")
	gw.failLogin["wolf_three"] = errors.New("connection refused")

	changed, err := r.Toggle(context.Background(), id, true)
	if changed || err == nil || errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("changed=%v err=%v", changed, err)
	}
	acct, _ := r.Get(id)
	if acct.Status != StatusError {
		t.Fatalf("expected error status, got %s", acct.Status)
	}
}

func TestToggleOfflineFiresHookAndLogsOut(t *testing.T) {
	r, gw := newTestRegistry(t)
	id := mustAdd(t, r, "wolf_four")

	var gotOffline string
	r.SetHooks(Hooks{OnOffline: func(aid string) { gotOffline = aid }})

	if _, err := r.Toggle(context.Background(), id, true); err != nil {
		t.Fatalf("Toggle on: %v", err)
	}
	if _, err := r.ConnectToRoom(context.Background(), id, "https://wolf.live/g/11111111"); err != nil {
		t.Fatalf("ConnectToRoom: %v", err)
	}

	changed, err := r.Toggle(context.Background(), id, false)
	if err != nil || !changed {
		t.Fatalf("Toggle off: changed=%v err=%v", changed, err)
	}
	if gotOffline != id {
		t.Fatalf("offline hook not fired")
	}
	acct, _ := r.Get(id)
	if acct.Status != StatusOffline || acct.SessionToken != "" || acct.ActiveRoom != "" {
		t.Fatalf("offline account must drop token and room: %+v", acct)
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if len(gw.logoutTokens) < 2 { // add-verification logout + toggle-off logout
		t.Fatalf("expected logout call on deactivation, got %v", gw.logoutTokens)
	}
}

func TestToggleUnknownAccount(t *testing.T) {
	r, _ := newTestRegistry(t)
	if _, err := r.Toggle(context.Background(), "acc-missing", true); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("expected ErrUnknownAccount, got %v", err)
	}
}

func TestConnectToRoomRequiresOnline(t *testing.T) {
	r, _ := newTestRegistry(t)
	id := mustAdd(t, r, "wolf_five")

	if _, err := r.ConnectToRoom(context.Background(), id, "https://wolf.live/g/22222222"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestConnectToRoomPlatformRejection(t *testing.T) {
	r, gw := newTestRegistry(t)
	id := mustAdd(t, r, "wolf_six")
	gw.rejectRoom["https://wolf.live/g/99999999"] = "Room not found"

	if _, err := r.Toggle(context.Background(), id, true); err != nil {
		t.Fatalf("Toggle on: %v", err)
	}
	ok, err := r.ConnectToRoom(context.Background(), id, "https://wolf.live/g/99999999")
	if err != nil || ok {
		t.Fatalf("rejected room: ok=%v err=%v", ok, err)
	}
	acct, _ := r.Get(id)
	if acct.ActiveRoom != "" {
		t.Fatalf("rejected room must not stick: %+v", acct)
	}
}

func TestSendRequiresActiveRoom(t *testing.T) {
	r, _ := newTestRegistry(t)
	id := mustAdd(t, r, "wolf_seven")
	if _, err := r.Toggle(context.Background(), id, true); err != nil {
		t.Fatalf("Toggle on: %v", err)
	}
	if err := r.SendMessage(context.Background(), id, "hello"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected without a room, got %v", err)
	}
	if _, err := r.ConnectToRoom(context.Background(), id, "https://wolf.live/g/33333333"); err != nil {
		t.Fatalf("ConnectToRoom: %v", err)
	}
	if err := r.SendCommand(context.Background(), id, "!س جلد"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
}

func TestInboxCapAndDedup(t *testing.T) {
	r, _ := newTestRegistry(t)
	id := mustAdd(t, r, "wolf_eight")

	batch := func(ids ...string) []wolf.PrivateMessage {
		msgs := make([]wolf.PrivateMessage, 0, len(ids))
		for _, mid := range ids {
			msgs = append(msgs, wolf.PrivateMessage{ID: mid, SenderID: "s", Content: "m-" + mid})
		}
		return msgs
	}

	if got := r.PushInbox(id, batch("m1", "m2")); len(got) != 2 {
		t.Fatalf("first push inserted %d", len(got))
	}
	// m2 is already known, only m3 is fresh
	if got := r.PushInbox(id, batch("m2", "m3")); len(got) != 1 || got[0].ID != "m3" {
		t.Fatalf("dedup failed: %+v", got)
	}
	// newest first
	inbox := r.Inbox(id)
	if inbox[0].ID != "m3" {
		t.Fatalf("expected m3 first, got %s", inbox[0].ID)
	}
	// cap at 5 (test registry limit)
	r.PushInbox(id, batch("m4", "m5", "m6", "m7"))
	if got := len(r.Inbox(id)); got != 5 {
		t.Fatalf("inbox not capped: %d", got)
	}
	if r.UnreadCount(id) != 5 {
		t.Fatalf("unread = %d", r.UnreadCount(id))
	}
	r.MarkInboxRead(id, "m7")
	if r.UnreadCount(id) != 4 {
		t.Fatalf("unread after mark = %d", r.UnreadCount(id))
	}
}

func TestToggleOnlineClearsInbox(t *testing.T) {
	r, _ := newTestRegistry(t)
	id := mustAdd(t, r, "wolf_nine")
	r.PushInbox(id, []wolf.PrivateMessage{{ID: "old", SenderID: "s"}})

	if _, err := r.Toggle(context.Background(), id, true); err != nil {
		t.Fatalf("Toggle on: %v", err)
	}
	if got := len(r.Inbox(id)); got != 0 {
		t.Fatalf("activation must reset the inbox, got %d messages", got)
	}
}

func TestDeleteAccountIdempotentAndCleansUp(t *testing.T) {
	r, _ := newTestRegistry(t)
	id := mustAdd(t, r, "wolf_ten")

	var offlineCalls int
	r.SetHooks(Hooks{OnOffline: func(string) { offlineCalls++ }})

	if _, err := r.Toggle(context.Background(), id, true); err != nil {
		t.Fatalf("Toggle on: %v", err)
	}
	r.Select(id)

	r.DeleteAccount(context.Background(), id)
	if _, ok := r.Get(id); ok {
		t.Fatalf("account still present after delete")
	}
	if _, ok := r.Selected(); ok {
		t.Fatalf("selection must clear when the selected account is deleted")
	}
	if offlineCalls != 1 {
		t.Fatalf("offline hook calls = %d", offlineCalls)
	}
	// second delete is a no-op
	r.DeleteAccount(context.Background(), id)
	if offlineCalls != 1 {
		t.Fatalf("delete must be idempotent, hook calls = %d", offlineCalls)
	}
}

func TestLoadFromStoreNormalizesOffline(t *testing.T) {
	gw := newFakeGateway()
	st := store.NewMemoryStore()
	now := time.Now()
	seed := []store.Record{
		{ID: "acc-a", Username: "alpha", Secret: store.MaskedSecret, Status: "online", ActiveRoom: "https://wolf.live/g/44444444", LastActiveAt: &now},
		{ID: "acc-b", Username: "beta", Secret: store.MaskedSecret, Status: "error"},
	}
	if err := st.Save(context.Background(), seed); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	r := NewRegistry(gw, st, 5)
	if err := r.LoadFromStore(context.Background()); err != nil {
		t.Fatalf("LoadFromStore: %v", err)
	}
	accounts := r.List()
	if len(accounts) != 2 {
		t.Fatalf("restored %d accounts", len(accounts))
	}
	for _, a := range accounts {
		if a.Status != StatusOffline || a.SessionToken != "" || a.ActiveRoom != "" {
			t.Fatalf("restored account not normalized: %+v", a)
		}
	}
}

func TestOnlineWithRoomKeepsInsertionOrder(t *testing.T) {
	r, _ := newTestRegistry(t)
	ids := []string{mustAdd(t, r, "a"), mustAdd(t, r, "b"), mustAdd(t, r, "c")}
	for _, id := range ids {
		if _, err := r.Toggle(context.Background(), id, true); err != nil {
			t.Fatalf("Toggle: %v", err)
		}
	}
	// only a and c join rooms
	for _, id := range []string{ids[0], ids[2]} {
		if _, err := r.ConnectToRoom(context.Background(), id, "https://wolf.live/g/55555555"); err != nil {
			t.Fatalf("ConnectToRoom: %v", err)
		}
	}
	got := r.OnlineWithRoom()
	if len(got) != 2 || got[0] != ids[0] || got[1] != ids[2] {
		t.Fatalf("OnlineWithRoom = %v, want [%s %s]", got, ids[0], ids[2])
	}
}
