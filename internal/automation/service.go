package automation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/wolf-autobot-go/internal/account"
	"github.com/kapu/wolf-autobot-go/internal/cmdcat"
	"github.com/kapu/wolf-autobot-go/internal/config"
	"github.com/kapu/wolf-autobot-go/internal/obslog"
	"github.com/kapu/wolf-autobot-go/internal/sched"
)

// Service is the automation core: it wires the account registry, the timer
// registry, the command catalog and the feature engines together. One
// instance per process, created at startup and torn down by Close.
type Service struct {
	cfg      *config.AppConfig
	accounts *account.Registry
	timers   *sched.Registry
	catalog  *cmdcat.Catalog
	events   Events
	audit    *ActivityRepo

	// guessClassifier reports whether a fresh guess image is visible for the
	// account. External capability; the default never detects anything.
	guessClassifier func(accountID string) bool
}

func NewService(cfg *config.AppConfig, accounts *account.Registry, timers *sched.Registry, catalog *cmdcat.Catalog) *Service {
	s := &Service{
		cfg:      cfg,
		accounts: accounts,
		timers:   timers,
		catalog:  catalog,
	}
	accounts.SetHooks(account.Hooks{
		OnOnline:  s.startPoller,
		OnOffline: s.onAccountOffline,
	})
	return s
}

// SetEvents installs the outbound observer hooks.
func (s *Service) SetEvents(ev Events) { s.events = ev }

// SetAudit attaches the optional durable activity log.
func (s *Service) SetAudit(a *ActivityRepo) { s.audit = a }

// SetGuessClassifier installs the image-detection hook for the guess engine.
func (s *Service) SetGuessClassifier(fn func(accountID string) bool) { s.guessClassifier = fn }

// Accounts exposes the account registry for callers that manage lifecycle
// directly.
func (s *Service) Accounts() *account.Registry { return s.accounts }

func (s *Service) onAccountOffline(id string) {
	s.timers.CancelAllForAccount(id)
	s.activity(ActivityInfo, id, "automation stopped, all timers cancelled")
}

// activity emits one activity-log event to the observer hook, the structured
// log and, when configured, the durable audit trail.
func (s *Service) activity(level ActivityLevel, accountID, msg string) {
	switch level {
	case ActivityError:
		obslog.L().Error("activity", zap.String("account_id", accountID), zap.String("msg", msg))
	case ActivityWarn:
		obslog.L().Warn("activity", zap.String("account_id", accountID), zap.String("msg", msg))
	default:
		obslog.L().Info("activity", zap.String("account_id", accountID), zap.String("msg", msg))
	}
	if s.events.Activity != nil {
		s.events.Activity(level, accountID, msg)
	}
	if s.audit != nil {
		s.audit.Insert(context.Background(), string(level), accountID, msg)
	}
}

// command looks a literal command string up in the catalog, falling back to
// the key itself so a missing vocabulary entry degrades loudly in the room
// rather than silently dropping the send.
func (s *Service) command(key string) string {
	if v, ok := s.catalog.Get(key); ok {
		return v
	}
	obslog.L().Warn("command_vocab_missing", zap.String("key", key))
	return key
}

// SendCustomCommand sends an operator-provided command through the selected
// account's room, once or on a repeating schedule when every > 0.
func (s *Service) SendCustomCommand(ctx context.Context, accountID, command string, every time.Duration) error {
	if err := s.accounts.SendCommand(ctx, accountID, command); err != nil {
		return err
	}
	s.activity(ActivityInfo, accountID, fmt.Sprintf("custom command sent: %s", command))
	if every <= 0 {
		return nil
	}
	key := sched.Key{AccountID: accountID, Feature: sched.FeatureCustom, Role: sched.RolePeriodic}
	s.timers.Schedule(key, sched.Interval, every, func() {
		acct, ok := s.accounts.Get(accountID)
		if !ok || !acct.OnlineWithRoom() {
			s.timers.Cancel(key)
			return
		}
		if err := s.accounts.SendCommand(context.Background(), accountID, command); err != nil {
			s.activity(ActivityWarn, accountID, fmt.Sprintf("custom command failed: %v", err))
			return
		}
		s.activity(ActivityInfo, accountID, fmt.Sprintf("custom command sent: %s", command))
	}, command)
	return nil
}

// StopCustomCommand cancels a repeating custom command, if any.
func (s *Service) StopCustomCommand(accountID string) {
	s.timers.Cancel(sched.Key{AccountID: accountID, Feature: sched.FeatureCustom, Role: sched.RolePeriodic})
}

// Close tears the automation core down: every timer is cancelled and the
// timer registry rejects new work.
func (s *Service) Close() {
	s.timers.Close()
	if s.audit != nil {
		s.audit.Close()
	}
}
