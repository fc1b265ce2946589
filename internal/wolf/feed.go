package wolf

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// FeedState tracks the realtime feed connection lifecycle.
type FeedState string

const (
	FeedDisconnected FeedState = "disconnected"
	FeedConnecting   FeedState = "connecting"
	FeedConnected    FeedState = "connected"
	FeedReconnecting FeedState = "reconnecting"
	FeedFailed       FeedState = "failed"
)

// FeedEvent is one frame on the realtime feed: a private message addressed to
// one of the logged-in accounts. The poll loop remains authoritative; the feed
// only shortens latency between poll ticks.
type FeedEvent struct {
	AccountID string         `json:"account_id"`
	Message   PrivateMessage `json:"message"`
}

type FeedCallback func(ev *FeedEvent)

type FeedStateCallback func(state FeedState)

// HeaderProvider injects handshake headers (operator key, session ids).
type HeaderProvider func() map[string]string

// Feed is a reconnecting WebSocket subscription to the platform's private
// message stream.
type Feed struct {
	wsURL string

	conn   *websocket.Conn
	state  FeedState
	stateM sync.RWMutex

	msgCbs   []FeedCallback
	stateCbs []FeedStateCallback
	cbM      sync.RWMutex

	maxReconnectAttempts int
	reconnectDelay       time.Duration
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc

	headerProvider HeaderProvider
}

func NewFeed(wsURL string, maxReconnectAttempts int, reconnectDelay time.Duration) *Feed {
	return &Feed{
		wsURL:                wsURL,
		state:                FeedDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		reconnectDelay:       reconnectDelay,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
	}
}

// SetHeaderProvider injects headers into the WS handshake.
func (f *Feed) SetHeaderProvider(h HeaderProvider) { f.headerProvider = h }

func (f *Feed) Connect(ctx context.Context) error {
	f.stateM.Lock()
	if f.state == FeedConnected || f.state == FeedConnecting {
		f.stateM.Unlock()
		return nil
	}
	f.stateM.Unlock()

	f.rootCtx, f.rootCancel = context.WithCancel(context.Background())
	f.setState(FeedConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, f.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      f.buildHeaders(),
	})
	if err != nil {
		f.setState(FeedFailed)
		f.scheduleReconnect()
		return err
	}

	f.conn = conn
	f.setState(FeedConnected)

	f.wg.Add(2)
	go f.listen()
	go f.pingLoop()
	return nil
}

func (f *Feed) listen() {
	defer f.wg.Done()
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		if f.conn == nil {
			return
		}
		var ev FeedEvent
		if err := wsjson.Read(f.rootCtx, f.conn, &ev); err != nil {
			if f.isStopping() {
				return
			}
			f.setState(FeedDisconnected)
			_ = f.closeConn(websocket.StatusGoingAway, "reconnect")
			f.scheduleReconnect()
			return
		}

		f.Dispatch(&ev)
	}
}

// Dispatch fans one frame out to every registered event callback.
func (f *Feed) Dispatch(ev *FeedEvent) {
	f.cbM.RLock()
	callbacks := make([]FeedCallback, len(f.msgCbs))
	copy(callbacks, f.msgCbs)
	f.cbM.RUnlock()
	for _, cb := range callbacks {
		if cb != nil {
			cb(ev)
		}
	}
}

func (f *Feed) pingLoop() {
	defer f.wg.Done()
	t := time.NewTicker(f.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-f.stopCh:
			return
		case <-t.C:
			if f.conn == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(f.rootCtx, 3*time.Second)
			err := f.conn.Ping(ctx)
			cancel()
			if err != nil {
				failures++
				if failures >= 2 {
					if f.isStopping() {
						return
					}
					f.setState(FeedDisconnected)
					_ = f.closeConn(websocket.StatusGoingAway, "ping failure")
					f.scheduleReconnect()
					failures = 0
				}
				continue
			}
			failures = 0
		}
	}
}

func (f *Feed) scheduleReconnect() {
	if f.maxReconnectAttempts <= 0 {
		return
	}
	f.setState(FeedReconnecting)

	go func() {
		for attempt := 1; attempt <= f.maxReconnectAttempts; attempt++ {
			select {
			case <-f.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}

			dialCtx, cancel := context.WithTimeout(f.rootCtx, 10*time.Second)
			conn, _, err := websocket.Dial(dialCtx, f.wsURL, &websocket.DialOptions{
				CompressionMode: websocket.CompressionNoContextTakeover,
				HTTPHeader:      f.buildHeaders(),
			})
			cancel()
			if err != nil {
				continue
			}

			f.conn = conn
			f.setState(FeedConnected)

			f.wg.Add(2)
			go f.listen()
			go f.pingLoop()
			return
		}
		f.setState(FeedFailed)
	}()
}

func (f *Feed) OnEvent(cb FeedCallback) {
	f.cbM.Lock()
	f.msgCbs = append(f.msgCbs, cb)
	f.cbM.Unlock()
}

func (f *Feed) OnStateChange(cb FeedStateCallback) {
	f.cbM.Lock()
	f.stateCbs = append(f.stateCbs, cb)
	f.cbM.Unlock()
}

func (f *Feed) State() FeedState {
	f.stateM.RLock()
	defer f.stateM.RUnlock()
	return f.state
}

func (f *Feed) setState(state FeedState) {
	f.stateM.Lock()
	f.state = state
	f.stateM.Unlock()

	f.cbM.RLock()
	callbacks := make([]FeedStateCallback, len(f.stateCbs))
	copy(callbacks, f.stateCbs)
	f.cbM.RUnlock()
	for _, cb := range callbacks {
		if cb != nil {
			cb(state)
		}
	}
}

func (f *Feed) Close(ctx context.Context) error {
	f.stopOnce.Do(func() { close(f.stopCh) })
	_ = f.closeConn(websocket.StatusNormalClosure, "close")

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		if f.rootCancel != nil {
			f.rootCancel()
		}
		return nil
	}
}

func (f *Feed) closeConn(code websocket.StatusCode, reason string) error {
	if f.conn == nil {
		return nil
	}
	defer func() { f.conn = nil }()
	return f.conn.Close(code, reason)
}

func (f *Feed) isStopping() bool {
	select {
	case <-f.stopCh:
		return true
	default:
		return false
	}
}

func (f *Feed) buildHeaders() http.Header {
	hdr := http.Header{}
	if f.headerProvider == nil {
		return hdr
	}
	for k, v := range f.headerProvider() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
