package automation

import (
	"context"

	"go.uber.org/zap"

	"github.com/kapu/wolf-autobot-go/internal/obslog"
	"github.com/kapu/wolf-autobot-go/internal/sched"
)

// startPoller arms the recurring private-message fetch for an account that
// just went online. One poller per account; re-activation replaces the prior
// entry.
func (s *Service) startPoller(id string) {
	key := sched.Key{AccountID: id, Feature: sched.FeatureInbox, Role: sched.RolePoll}
	s.timers.Schedule(key, sched.Interval, s.cfg.PollInterval, func() {
		s.pollOnce(id, key)
	}, nil)
	obslog.L().Debug("poller_started", zap.String("account_id", id))
}

// pollOnce is one poller tick: fetch unread, push to the inbox, notify, and
// route. Fetch errors are logged and swallowed so the poller keeps running
// at its fixed period.
func (s *Service) pollOnce(id string, key sched.Key) {
	token, err := s.accounts.Token(id)
	if err != nil {
		// account went offline or away; the poller removes itself
		s.timers.Cancel(key)
		return
	}

	ctx := context.Background()
	msgs, err := s.accounts.Gateway().PrivateMessages(ctx, token)
	if err != nil {
		obslog.L().Warn("poll_fetch_failed", zap.String("account_id", id), zap.Error(err))
		return
	}
	if len(msgs) == 0 {
		return
	}

	fresh := s.accounts.PushInbox(id, msgs)
	if len(fresh) == 0 {
		return
	}
	if s.events.NewMessages != nil {
		s.events.NewMessages(id, fresh)
	}
	s.route(ctx, id, fresh)
}
