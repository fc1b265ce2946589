package automation

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/kapu/wolf-autobot-go/internal/obslog"
	"github.com/kapu/wolf-autobot-go/internal/sched"
	"github.com/kapu/wolf-autobot-go/internal/wolf"
)

var (
	roomURLPattern = regexp.MustCompile(`https?://wolf\.live/g/\d+`)
	roomIDPattern  = regexp.MustCompile(`\(ID:\s*(\d+)\)`)
)

// route classifies a batch of inbound private messages by sender identity
// and dispatches them to the feature engines. Unrecognized senders are left
// untouched for manual handling; every recognized message is marked read
// after dispatch regardless of whether any action fired.
func (s *Service) route(ctx context.Context, accountID string, msgs []wolf.PrivateMessage) {
	for _, m := range msgs {
		switch m.SenderID {
		case s.cfg.RaceBotID:
			s.routeRace(ctx, accountID, m)
		case s.cfg.GuessBotID:
			s.routeGuess(ctx, accountID, m)
		case s.cfg.FishBotID:
			s.routeFish(ctx, accountID, m)
		default:
			continue
		}
		s.markRead(ctx, accountID, m.ID)
	}
}

func (s *Service) markRead(ctx context.Context, accountID, messageID string) {
	token, err := s.accounts.Token(accountID)
	if err != nil {
		return
	}
	if err := s.accounts.Gateway().MarkMessageRead(ctx, token, messageID); err != nil {
		obslog.L().Warn("mark_read_failed", zap.String("account_id", accountID), zap.String("message_id", messageID), zap.Error(err))
		return
	}
	s.accounts.MarkInboxRead(accountID, messageID)
}

// routeRace handles race-bot traffic: configured trigger rules first, then
// the fixed energy/round patterns.
func (s *Service) routeRace(ctx context.Context, accountID string, m wolf.PrivateMessage) {
	if s.applyTriggerRules(ctx, accountID, m) {
		return
	}

	auto := s.IsRaceAutoDetectActive(accountID)
	switch {
	case containsAny(m.Content, s.catalog.List("race.patterns.energy_restored")):
		if auto {
			s.sendRaceNow(ctx, accountID)
		}
	case containsAny(m.Content, s.catalog.List("race.patterns.round_ended")):
		s.activity(ActivityInfo, accountID, "race round ended")
		if auto {
			s.armRaceCooldown(accountID)
		}
	}
}

// applyTriggerRules walks the configured rules.* entries and sends the first
// matching reply. Rules take precedence over the fixed patterns.
func (s *Service) applyTriggerRules(ctx context.Context, accountID string, m wolf.PrivateMessage) bool {
	for _, id := range s.catalog.Children("rules") {
		triggers := s.catalog.List("rules." + id + ".trigger")
		if !containsAny(m.Content, triggers) {
			continue
		}
		reply, ok := s.catalog.Get("rules." + id + ".reply")
		if !ok || reply == "" {
			continue
		}
		if err := s.accounts.SendCommand(ctx, accountID, reply); err != nil {
			s.activity(ActivityWarn, accountID, fmt.Sprintf("rule %s reply failed: %v", id, err))
			return true
		}
		s.activity(ActivityInfo, accountID, fmt.Sprintf("rule %s matched, replied %s", id, reply))
		return true
	}
	return false
}

// routeGuess only acknowledges the message. Image-based classification runs
// on the guess engine's own detection poll, not on inbound text.
func (s *Service) routeGuess(_ context.Context, accountID string, m wolf.PrivateMessage) {
	obslog.L().Debug("guess_message", zap.String("account_id", accountID), zap.String("message_id", m.ID))
}

// routeFish reacts to bonus-room advertisements: when the fish engine runs
// in bonus mode and the message yields a room reference, navigate there and
// cast with the configured command.
func (s *Service) routeFish(ctx context.Context, accountID string, m wolf.PrivateMessage) {
	roomRef := extractRoomRef(m)
	if roomRef == "" {
		s.activity(ActivityInfo, accountID, "fish message without room reference")
		return
	}
	cfg, ok := s.fishBonusConfig(accountID)
	if !ok {
		s.activity(ActivityInfo, accountID, "fish bonus room advertised, bonus mode inactive")
		return
	}

	moved, err := s.accounts.ConnectToRoom(ctx, accountID, roomRef)
	if err != nil || !moved {
		s.activity(ActivityWarn, accountID, fmt.Sprintf("bonus room navigation failed: %s", roomRef))
		return
	}
	if err := s.accounts.SendCommand(ctx, accountID, cfg.Command); err != nil {
		s.activity(ActivityWarn, accountID, fmt.Sprintf("fish command failed after navigation: %v", err))
		return
	}
	s.activity(ActivityInfo, accountID, fmt.Sprintf("navigated to bonus room %s and cast", roomRef))
}

func (s *Service) fishBonusConfig(accountID string) (FishConfig, bool) {
	p, ok := s.timers.Payload(sched.Key{AccountID: accountID, Feature: sched.FeatureFish, Role: sched.RoleSystem})
	if !ok {
		return FishConfig{}, false
	}
	cfg, ok := p.(FishConfig)
	if !ok || cfg.System != FishBonus {
		return FishConfig{}, false
	}
	return cfg, true
}

// extractRoomRef pulls a room reference out of a message. Order: structured
// link field, then an embedded room URL, then an "(ID: N)" pattern expanded
// through the canonical URL template. First match wins.
func extractRoomRef(m wolf.PrivateMessage) string {
	if strings.TrimSpace(m.RoomLink) != "" {
		return strings.TrimSpace(m.RoomLink)
	}
	if url := roomURLPattern.FindString(m.Content); url != "" {
		return url
	}
	if parts := roomIDPattern.FindStringSubmatch(m.Content); len(parts) == 2 {
		return fmt.Sprintf(wolf.RoomURLTemplate, parts[1])
	}
	return ""
}

func containsAny(content string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(content, n) {
			return true
		}
	}
	return false
}
