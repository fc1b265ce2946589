package sched

import "fmt"

// Feature names one automation behavior owning a set of timers.
type Feature string

const (
	FeatureRace   Feature = "race"
	FeatureGuess  Feature = "guess"
	FeatureFish   Feature = "fish"
	FeatureCustom Feature = "custom"
	FeatureInbox  Feature = "inbox"
)

// Role is a sub-purpose within a feature's timer set.
type Role string

const (
	RoleAuto     Role = "auto"
	RolePeriodic Role = "periodic"
	RoleCooldown Role = "cooldown"
	RoleSystem   Role = "system"
	RoleCategory Role = "category"
	RoleDelay    Role = "delay"
	RoleDetect   Role = "detect"
	RolePoll     Role = "poll"
	RoleStagger  Role = "stagger"
)

// Key identifies exactly one scheduled task. At most one live task exists per
// key at any time.
type Key struct {
	AccountID string
	Feature   Feature
	Role      Role
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.AccountID, k.Feature, k.Role)
}

// Kind distinguishes repeating tickers, one-shot delays and inert markers.
type Kind int

const (
	Interval Kind = iota
	Delayed
	Marker
)
