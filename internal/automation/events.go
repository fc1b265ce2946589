package automation

import "github.com/kapu/wolf-autobot-go/internal/wolf"

// ActivityLevel grades activity-log events.
type ActivityLevel string

const (
	ActivityInfo  ActivityLevel = "info"
	ActivityWarn  ActivityLevel = "warn"
	ActivityError ActivityLevel = "error"
)

// Events are the outbound observer hooks the service emits on. Nil hooks are
// skipped; hooks run synchronously on the emitting goroutine and must not
// block.
type Events struct {
	// NewMessages fires once per poll batch that produced fresh inbox entries.
	NewMessages func(accountID string, msgs []wolf.PrivateMessage)
	// Activity fires at every significant automation action.
	Activity func(level ActivityLevel, accountID, message string)
}
