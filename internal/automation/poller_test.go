package automation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kapu/wolf-autobot-go/internal/sched"
	"github.com/kapu/wolf-autobot-go/internal/wolf"
)

func TestPollerDeliversBatchesAndNotifies(t *testing.T) {
	svc, reg, _, gw := newTestService(t)

	var mu sync.Mutex
	var gotAccount string
	var gotBatch []wolf.PrivateMessage
	svc.SetEvents(Events{NewMessages: func(id string, msgs []wolf.PrivateMessage) {
		mu.Lock()
		gotAccount, gotBatch = id, msgs
		mu.Unlock()
	}})

	id := onlineWithRoom(t, reg, "reader")
	gw.queueBatch(
		wolf.PrivateMessage{ID: "p1", SenderID: "79216477", Content: "خمن"},
		wolf.PrivateMessage{ID: "p2", SenderID: "555", Content: "manual"},
	)

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotAccount == id && len(gotBatch) == 2
	})
	// recognized guess message marked read, human message untouched
	waitFor(t, time.Second, func() bool { return gw.markedCount() == 1 })
	inbox := reg.Inbox(id)
	if len(inbox) != 2 {
		t.Fatalf("inbox size = %d", len(inbox))
	}
}

func TestPollerDeduplicatesAcrossTicks(t *testing.T) {
	svc, reg, _, gw := newTestService(t)

	var mu sync.Mutex
	batches := 0
	svc.SetEvents(Events{NewMessages: func(string, []wolf.PrivateMessage) {
		mu.Lock()
		batches++
		mu.Unlock()
	}})

	id := onlineWithRoom(t, reg, "dedupe")
	same := wolf.PrivateMessage{ID: "p1", SenderID: "555", Content: "hi"}
	gw.queueBatch(same)
	gw.queueBatch(same) // platform re-serves the same unread message

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return batches >= 1
	})
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if batches != 1 {
		t.Fatalf("duplicate batch notified %d times", batches)
	}
	if got := len(reg.Inbox(id)); got != 1 {
		t.Fatalf("inbox holds %d copies", got)
	}
}

func TestPollerSelfCancelsWhenOffline(t *testing.T) {
	svc, reg, timers, _ := newTestService(t)
	_ = svc
	ctx := context.Background()
	id := onlineWithRoom(t, reg, "leaver")

	key := sched.Key{AccountID: id, Feature: sched.FeatureInbox, Role: sched.RolePoll}
	if !timers.Has(key) {
		t.Fatalf("poller not armed on activation")
	}
	if _, err := reg.Toggle(ctx, id, false); err != nil {
		t.Fatalf("Toggle off: %v", err)
	}
	waitFor(t, time.Second, func() bool { return !timers.Has(key) })
}

func TestFeedEventsShareTheRouterPath(t *testing.T) {
	svc, reg, _, gw := newTestService(t)
	id := onlineWithRoom(t, reg, "pushed")

	feed := wolf.NewFeed("ws://wolf.test/feed", 0, time.Second)
	svc.AttachFeed(feed)
	if err := svc.StartFish(context.Background(), id, "!صيد 3", FishBonus); err != nil {
		t.Fatalf("StartFish: %v", err)
	}

	// deliver a frame the way the listen loop would
	feed.Dispatch(&wolf.FeedEvent{
		AccountID: id,
		Message:   wolf.PrivateMessage{ID: "w1", SenderID: "76305584", Content: "(ID: 31415926)"},
	})

	waitFor(t, time.Second, func() bool { return gw.sendsToRoom("https://wolf.live/g/31415926") == 1 })
	acct, _ := reg.Get(id)
	if acct.ActiveRoom != "https://wolf.live/g/31415926" {
		t.Fatalf("feed event did not navigate: %q", acct.ActiveRoom)
	}
}
