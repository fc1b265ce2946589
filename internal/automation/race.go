package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/kapu/wolf-autobot-go/internal/account"
	"github.com/kapu/wolf-autobot-go/internal/sched"
)

func raceKey(accountID string, role sched.Role) sched.Key {
	return sched.Key{AccountID: accountID, Feature: sched.FeatureRace, Role: role}
}

// StartRace starts the race engine for one account. A running engine is
// always stopped first, so restart is idempotent and never stacks timers.
// In auto-detect mode all sends are message-driven; otherwise the command
// goes out immediately and then on a fixed period derived from
// intervalMinutes plus the configured skew.
func (s *Service) StartRace(ctx context.Context, accountID string, intervalMinutes int, autoDetect bool, system RaceSystem) error {
	acct, ok := s.accounts.Get(accountID)
	if !ok || !acct.OnlineWithRoom() {
		return fmt.Errorf("start race: %w", errNotSendable(ok))
	}
	s.StopRace(accountID)

	cfg := RaceConfig{IntervalMinutes: intervalMinutes, AutoDetect: autoDetect, System: system}
	if autoDetect {
		s.timers.Mark(raceKey(accountID, sched.RoleAuto), cfg)
		s.activity(ActivityInfo, accountID, "race started in auto-detect mode")
		return nil
	}

	s.sendRaceNow(ctx, accountID)
	if system == RaceTrain {
		s.fanOutRaceTrain(accountID)
	}

	period := time.Duration(intervalMinutes)*time.Minute + s.cfg.RaceSkew
	key := raceKey(accountID, sched.RolePeriodic)
	s.timers.Schedule(key, sched.Interval, period, func() {
		acct, ok := s.accounts.Get(accountID)
		if !ok || !acct.OnlineWithRoom() {
			s.StopRace(accountID)
			return
		}
		s.sendRaceNow(context.Background(), accountID)
		if system == RaceTrain {
			s.fanOutRaceTrain(accountID)
		}
	}, cfg)
	s.activity(ActivityInfo, accountID, fmt.Sprintf("race started, period %s, system %s", period, system))
	return nil
}

// StopRace cancels every race-keyed timer for the account and returns the
// engine to idle.
func (s *Service) StopRace(accountID string) {
	for _, role := range []sched.Role{sched.RoleAuto, sched.RolePeriodic, sched.RoleCooldown, sched.RoleSystem, sched.RoleStagger} {
		s.timers.Cancel(raceKey(accountID, role))
	}
}

// IsRaceActive reports whether any race timer exists for the account. The
// timer registry is the only source of feature state.
func (s *Service) IsRaceActive(accountID string) bool {
	return s.timers.HasFeature(accountID, sched.FeatureRace)
}

// IsRaceAutoDetectActive reports whether the engine runs in auto-detect mode.
func (s *Service) IsRaceAutoDetectActive(accountID string) bool {
	return s.timers.Has(raceKey(accountID, sched.RoleAuto))
}

// sendRaceNow sends the race command through the account's active room.
func (s *Service) sendRaceNow(ctx context.Context, accountID string) {
	cmd := s.command("race.command")
	if err := s.accounts.SendCommand(ctx, accountID, cmd); err != nil {
		s.activity(ActivityWarn, accountID, fmt.Sprintf("race command failed: %v", err))
		return
	}
	s.activity(ActivityInfo, accountID, fmt.Sprintf("race command sent: %s", cmd))
}

// fanOutRaceTrain schedules one staggered one-shot send per other sendable
// account so the platform sees distinct send times, not a burst. Targets are
// re-validated at fire time; an account that dropped meanwhile is skipped.
func (s *Service) fanOutRaceTrain(originID string) {
	targets := s.accounts.OnlineWithRoom()
	slot := 0
	for _, id := range targets {
		if id == originID {
			continue
		}
		slot++
		target := id
		key := raceKey(target, sched.RoleStagger)
		s.timers.Schedule(key, sched.Delayed, time.Duration(slot)*s.cfg.TrainStagger, func() {
			acct, ok := s.accounts.Get(target)
			if !ok || !acct.OnlineWithRoom() {
				return
			}
			s.sendRaceNow(context.Background(), target)
		}, nil)
	}
	if slot > 0 {
		s.activity(ActivityInfo, originID, fmt.Sprintf("race train fan-out to %d accounts", slot))
	}
}

// armRaceCooldown schedules the one-shot post-round resend. The send only
// happens if the account still holds a room when the cooldown elapses.
func (s *Service) armRaceCooldown(accountID string) {
	key := raceKey(accountID, sched.RoleCooldown)
	s.timers.Schedule(key, sched.Delayed, s.cfg.RaceCooldown, func() {
		acct, ok := s.accounts.Get(accountID)
		if !ok || !acct.OnlineWithRoom() {
			return
		}
		s.sendRaceNow(context.Background(), accountID)
	}, nil)
	s.activity(ActivityInfo, accountID, fmt.Sprintf("race cooldown armed for %s", s.cfg.RaceCooldown))
}

func errNotSendable(known bool) error {
	if !known {
		return account.ErrUnknownAccount
	}
	return account.ErrNotConnected
}
