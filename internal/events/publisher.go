package events

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/tmarchetti/goalbook/internal/domain"
)

const (
	TopicEntryRecorded = "ledger.entry_recorded"
	TopicGoalCompleted = "ledger.goal_completed"
)

// Publisher delivers domain events after a scope commits. Delivery is
// best-effort; a failed publish never unwinds a committed mutation.
type Publisher interface {
	Publish(topic string, event any) error
}

// EntryRecorded is emitted once per committed ledger entry.
type EntryRecorded struct {
	EventID    string           `json:"event_id"`
	EntryID    string           `json:"entry_id"`
	AccountID  int64            `json:"account_id"`
	GoalID     *int64           `json:"goal_id,omitempty"`
	Kind       domain.EntryKind `json:"kind"`
	Amount     decimal.Decimal  `json:"amount"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// GoalCompleted is emitted when a fund operation fills a goal.
type GoalCompleted struct {
	EventID      string          `json:"event_id"`
	GoalID       int64           `json:"goal_id"`
	AccountID    int64           `json:"account_id"`
	Title        string          `json:"title"`
	TargetAmount decimal.Decimal `json:"target_amount"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// Noop discards events; used when no broker is configured.
type Noop struct{}

func (Noop) Publish(string, any) error { return nil }

var _ Publisher = Noop{}
