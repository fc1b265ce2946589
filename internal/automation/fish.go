package automation

import (
	"context"
	"fmt"

	"github.com/kapu/wolf-autobot-go/internal/sched"
)

func fishKey(accountID string, role sched.Role) sched.Key {
	return sched.Key{AccountID: accountID, Feature: sched.FeatureFish, Role: role}
}

// StartFish starts the fish engine. Default mode casts immediately and then
// on the long fixed period, re-reading the stored command each tick so it
// can be swapped without a restart. Bonus mode only arms the marker; casts
// are driven by inbound bonus-room messages.
func (s *Service) StartFish(ctx context.Context, accountID, command string, system FishSystem) error {
	acct, ok := s.accounts.Get(accountID)
	if !ok || !acct.OnlineWithRoom() {
		return fmt.Errorf("start fish: %w", errNotSendable(ok))
	}
	s.StopFish(accountID)

	if command == "" {
		rendered, err := s.catalog.Render("fish.command", map[string]any{"Bait": 3})
		if err != nil {
			return fmt.Errorf("start fish: %w", err)
		}
		command = rendered
	}
	cfg := FishConfig{Command: command, System: system}

	if system == FishBonus {
		s.timers.Mark(fishKey(accountID, sched.RoleSystem), cfg)
		s.activity(ActivityInfo, accountID, "fish started in bonus mode")
		return nil
	}

	if err := s.accounts.SendCommand(ctx, accountID, command); err != nil {
		return fmt.Errorf("start fish: %w", err)
	}
	s.activity(ActivityInfo, accountID, fmt.Sprintf("fish command sent: %s", command))

	key := fishKey(accountID, sched.RolePeriodic)
	s.timers.Schedule(key, sched.Interval, s.cfg.FishPeriod, func() {
		acct, ok := s.accounts.Get(accountID)
		if !ok || !acct.OnlineWithRoom() {
			s.StopFish(accountID)
			return
		}
		// the stored payload is the source of truth; it may have been
		// swapped since the last tick
		current, _ := s.FishConfigFor(accountID)
		if current.Command == "" {
			return
		}
		if err := s.accounts.SendCommand(context.Background(), accountID, current.Command); err != nil {
			s.activity(ActivityWarn, accountID, fmt.Sprintf("fish command failed: %v", err))
			return
		}
		s.activity(ActivityInfo, accountID, fmt.Sprintf("fish command sent: %s", current.Command))
	}, cfg)
	s.activity(ActivityInfo, accountID, fmt.Sprintf("fish started, period %s", s.cfg.FishPeriod))
	return nil
}

// SetFishCommand swaps the stored fish command on the live entry without
// touching the schedule. Returns false when the engine is idle.
func (s *Service) SetFishCommand(accountID, command string) bool {
	for _, role := range []sched.Role{sched.RolePeriodic, sched.RoleSystem} {
		key := fishKey(accountID, role)
		if p, ok := s.timers.Payload(key); ok {
			cfg, _ := p.(FishConfig)
			cfg.Command = command
			return s.timers.SetPayload(key, cfg)
		}
	}
	return false
}

// StopFish cancels all fish-keyed timers.
func (s *Service) StopFish(accountID string) {
	for _, role := range []sched.Role{sched.RolePeriodic, sched.RoleSystem} {
		s.timers.Cancel(fishKey(accountID, role))
	}
}

// IsFishActive reports whether any fish timer exists for the account.
func (s *Service) IsFishActive(accountID string) bool {
	return s.timers.HasFeature(accountID, sched.FeatureFish)
}

// FishConfigFor returns the live fish configuration, read straight from the
// timer payload.
func (s *Service) FishConfigFor(accountID string) (FishConfig, bool) {
	for _, role := range []sched.Role{sched.RolePeriodic, sched.RoleSystem} {
		if p, ok := s.timers.Payload(fishKey(accountID, role)); ok {
			cfg, ok := p.(FishConfig)
			return cfg, ok
		}
	}
	return FishConfig{}, false
}
