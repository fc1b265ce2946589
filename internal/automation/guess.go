package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/kapu/wolf-autobot-go/internal/sched"
)

func guessKey(accountID string, role sched.Role) sched.Key {
	return sched.Key{AccountID: accountID, Feature: sched.FeatureGuess, Role: role}
}

// StartGuess starts the guess engine: selects a category once and, when
// autoAnswer is on, arms the image-detection poll. The category key's
// payload doubles as the active marker.
func (s *Service) StartGuess(ctx context.Context, accountID, category string, autoAnswer bool, responseDelay time.Duration) error {
	acct, ok := s.accounts.Get(accountID)
	if !ok || !acct.OnlineWithRoom() {
		return fmt.Errorf("start guess: %w", errNotSendable(ok))
	}
	s.StopGuess(accountID)

	catCmd, ok := s.catalog.Get("guess.categories." + category + ".command")
	if !ok {
		return fmt.Errorf("start guess: unknown category %q", category)
	}
	if err := s.accounts.SendCommand(ctx, accountID, catCmd); err != nil {
		return fmt.Errorf("start guess: %w", err)
	}

	cfg := GuessConfig{Category: category, AutoAnswer: autoAnswer, ResponseDelay: responseDelay}
	s.timers.Mark(guessKey(accountID, sched.RoleCategory), cfg)
	s.activity(ActivityInfo, accountID, fmt.Sprintf("guess started, category %s", category))

	if autoAnswer {
		detect := guessKey(accountID, sched.RoleDetect)
		s.timers.Schedule(detect, sched.Interval, s.cfg.GuessDetectTick, func() {
			s.guessDetectTick(accountID, cfg)
		}, cfg)
	}
	return nil
}

// guessDetectTick is one detection poll: when the classifier reports a fresh
// image, wait the configured response delay and answer. The engine is
// re-checked at both checkpoints since the operator may stop it mid-wait.
func (s *Service) guessDetectTick(accountID string, cfg GuessConfig) {
	acct, ok := s.accounts.Get(accountID)
	if !ok || !acct.OnlineWithRoom() {
		s.StopGuess(accountID)
		return
	}
	if !s.IsGuessActive(accountID) {
		s.timers.Cancel(guessKey(accountID, sched.RoleDetect))
		return
	}
	if s.guessClassifier == nil || !s.guessClassifier(accountID) {
		return
	}

	delayKey := guessKey(accountID, sched.RoleDelay)
	s.timers.Schedule(delayKey, sched.Delayed, cfg.ResponseDelay, func() {
		if !s.IsGuessActive(accountID) {
			return
		}
		answer, err := s.guessAnswer(cfg.Category)
		if err != nil {
			s.activity(ActivityWarn, accountID, fmt.Sprintf("guess answer unavailable: %v", err))
			return
		}
		if err := s.accounts.SendMessage(context.Background(), accountID, answer); err != nil {
			s.activity(ActivityWarn, accountID, fmt.Sprintf("guess answer failed: %v", err))
			return
		}
		s.activity(ActivityInfo, accountID, fmt.Sprintf("guess answer sent: %s", answer))
	}, cfg)
}

// guessAnswer renders the answer template with the category's display name.
func (s *Service) guessAnswer(category string) (string, error) {
	name, ok := s.catalog.Get("guess.categories." + category + ".name")
	if !ok {
		name = category
	}
	return s.catalog.Render("guess.answer", map[string]any{"Name": name})
}

// StopGuess cancels all guess-keyed timers.
func (s *Service) StopGuess(accountID string) {
	for _, role := range []sched.Role{sched.RoleCategory, sched.RoleDetect, sched.RoleDelay} {
		s.timers.Cancel(guessKey(accountID, role))
	}
}

// IsGuessActive reports whether the category marker is live.
func (s *Service) IsGuessActive(accountID string) bool {
	return s.timers.Has(guessKey(accountID, sched.RoleCategory))
}

// GuessConfigFor returns the live guess configuration, if the engine runs.
func (s *Service) GuessConfigFor(accountID string) (GuessConfig, bool) {
	p, ok := s.timers.Payload(guessKey(accountID, sched.RoleCategory))
	if !ok {
		return GuessConfig{}, false
	}
	cfg, ok := p.(GuessConfig)
	return cfg, ok
}

// GuessCategories lists the configured category ids.
func (s *Service) GuessCategories() []string {
	return s.catalog.Children("guess.categories")
}
