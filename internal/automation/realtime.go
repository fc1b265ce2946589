package automation

import (
	"context"

	"go.uber.org/zap"

	"github.com/kapu/wolf-autobot-go/internal/obslog"
	"github.com/kapu/wolf-autobot-go/internal/wolf"
)

// AttachFeed subscribes the service to the realtime private-message stream.
// Feed events run through the same inbox/router path as poll batches; the
// inbox dedup makes the overlap between feed and poll harmless.
func (s *Service) AttachFeed(feed *wolf.Feed) {
	feed.OnEvent(func(ev *wolf.FeedEvent) {
		if ev == nil || ev.AccountID == "" {
			return
		}
		acct, ok := s.accounts.Get(ev.AccountID)
		if !ok || !acct.Online() {
			return
		}
		fresh := s.accounts.PushInbox(ev.AccountID, []wolf.PrivateMessage{ev.Message})
		if len(fresh) == 0 {
			return
		}
		if s.events.NewMessages != nil {
			s.events.NewMessages(ev.AccountID, fresh)
		}
		s.route(context.Background(), ev.AccountID, fresh)
	})
	feed.OnStateChange(func(state wolf.FeedState) {
		obslog.L().Info("feed_state", zap.String("state", string(state)))
	})
}
