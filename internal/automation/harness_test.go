package automation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kapu/wolf-autobot-go/internal/account"
	"github.com/kapu/wolf-autobot-go/internal/cmdcat"
	"github.com/kapu/wolf-autobot-go/internal/config"
	"github.com/kapu/wolf-autobot-go/internal/sched"
	"github.com/kapu/wolf-autobot-go/internal/store"
	"github.com/kapu/wolf-autobot-go/internal/wolf"
)

// fakeGateway records sends and serves scripted private-message batches.
type fakeGateway struct {
	mu         sync.Mutex
	loginCount int
	sends      []sendRec
	marked     []string
	inboxQueue [][]wolf.PrivateMessage
	joinedRoom map[string]string // token -> last joined room
}

type sendRec struct {
	Room string
	Text string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{joinedRoom: make(map[string]string)}
}

func (g *fakeGateway) Login(_ context.Context, username, _ string) (*wolf.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loginCount++
	return &wolf.Session{Token: fmt.Sprintf("tok-%s-%d", username, g.loginCount), UserID: "u-" + username}, nil
}

func (g *fakeGateway) Logout(context.Context, string) error { return nil }

func (g *fakeGateway) ConnectToRoom(_ context.Context, token, roomRef string) (*wolf.RoomJoin, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.joinedRoom[token] = roomRef
	return &wolf.RoomJoin{RoomID: roomRef, JoinedAt: time.Now()}, nil
}

func (g *fakeGateway) SendMessage(_ context.Context, _, roomRef, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sends = append(g.sends, sendRec{Room: roomRef, Text: text})
	return nil
}

func (g *fakeGateway) SendCommand(ctx context.Context, token, roomRef, command string) error {
	return g.SendMessage(ctx, token, roomRef, command)
}

func (g *fakeGateway) PrivateMessages(context.Context, string) ([]wolf.PrivateMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.inboxQueue) == 0 {
		return nil, nil
	}
	batch := g.inboxQueue[0]
	g.inboxQueue = g.inboxQueue[1:]
	return batch, nil
}

func (g *fakeGateway) MarkMessageRead(_ context.Context, _, messageID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.marked = append(g.marked, messageID)
	return nil
}

func (g *fakeGateway) queueBatch(msgs ...wolf.PrivateMessage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inboxQueue = append(g.inboxQueue, msgs)
}

func (g *fakeGateway) countSends(text string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, s := range g.sends {
		if s.Text == text {
			n++
		}
	}
	return n
}

func (g *fakeGateway) sendsToRoom(room string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, s := range g.sends {
		if s.Room == room {
			n++
		}
	}
	return n
}

func (g *fakeGateway) markedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.marked)
}

// testConfig shrinks every period so engines tick within test time.
func testConfig() *config.AppConfig {
	return &config.AppConfig{
		WolfBaseURL:     "http://wolf.test",
		RaceBotID:       "80277459",
		GuessBotID:      "79216477",
		FishBotID:       "76305584",
		PollInterval:    20 * time.Millisecond,
		RaceSkew:        15 * time.Millisecond,
		RaceCooldown:    30 * time.Millisecond,
		FishPeriod:      25 * time.Millisecond,
		GuessDetectTick: 15 * time.Millisecond,
		TrainStagger:    10 * time.Millisecond,
		InboxLimit:      50,
	}
}

func newTestService(t *testing.T) (*Service, *account.Registry, *sched.Registry, *fakeGateway) {
	t.Helper()
	gw := newFakeGateway()
	reg := account.NewRegistry(gw, store.NewMemoryStore(), 50)
	timers := sched.NewRegistry()
	t.Cleanup(timers.Close)
	catalog, err := cmdcat.New("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	svc := NewService(testConfig(), reg, timers, catalog)
	return svc, reg, timers, gw
}

// onlineWithRoom adds an account, brings it online and joins it to a room
// derived from the username.
func onlineWithRoom(t *testing.T, reg *account.Registry, username string) string {
	t.Helper()
	ctx := context.Background()
	acct, err := reg.AddAccount(ctx, username, "secret")
	if err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
	if _, err := reg.Toggle(ctx, acct.ID, true); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	room := "https://wolf.live/g/" + roomDigits(username)
	if _, err := reg.ConnectToRoom(ctx, acct.ID, room); err != nil {
		t.Fatalf("ConnectToRoom: %v", err)
	}
	return acct.ID
}

func roomDigits(username string) string {
	var b strings.Builder
	for _, r := range username {
		fmt.Fprintf(&b, "%d", int(r)%10)
	}
	for b.Len() < 8 {
		b.WriteByte('0')
	}
	return b.String()[:8]
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", d)
}
