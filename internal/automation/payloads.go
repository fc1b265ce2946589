package automation

import "time"

// RaceSystem selects how race commands fan out.
type RaceSystem string

const (
	RaceQueue RaceSystem = "queue" // single account, sequential periodic sends
	RaceTrain RaceSystem = "train" // staggered fan-out to every sendable account
)

// FishSystem selects the fishing mode.
type FishSystem string

const (
	FishDefault FishSystem = "default" // fixed-period re-sends of the stored command
	FishBonus   FishSystem = "bonus"   // message-driven bonus-room navigation
)

// RaceConfig travels as the payload of the race auto/periodic keys.
type RaceConfig struct {
	IntervalMinutes int
	AutoDetect      bool
	System          RaceSystem
}

// GuessConfig travels as the payload of the guess category key. The payload
// is the engine's source of truth; no state is duplicated elsewhere.
type GuessConfig struct {
	Category      string
	AutoAnswer    bool
	ResponseDelay time.Duration
}

// FishConfig travels as the payload of the fish periodic/system keys. The
// command may be swapped on a live entry without restarting the engine.
type FishConfig struct {
	Command string
	System  FishSystem
}
