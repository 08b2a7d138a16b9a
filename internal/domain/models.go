package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// GoalStatus tracks the lifecycle of a savings goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalAbandoned GoalStatus = "abandoned"
	GoalFailed    GoalStatus = "failed"
)

// EntryKind classifies a ledger entry by the operation that produced it.
type EntryKind string

const (
	EntryIncome           EntryKind = "income"
	EntryExpense          EntryKind = "expense"
	EntryGoalContribution EntryKind = "goal-contribution"
	EntryGoalWithdrawal   EntryKind = "goal-withdrawal"
)

// Account represents one user's spendable balance.
// Version is a monotonic write token: every balance update must assert the
// version it read, so a concurrent writer surfaces as a conflict instead of
// a silently lost update.
type Account struct {
	ID        int64           `json:"id"`
	Balance   decimal.Decimal `json:"balance"`
	Version   int64           `json:"-"`
	CreatedAt time.Time       `json:"created_at"`
}

// Goal is a named savings target owned by one account.
type Goal struct {
	ID            int64           `json:"id"`
	AccountID     int64           `json:"account_id"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	Status        GoalStatus      `json:"status"`
	TargetDate    *time.Time      `json:"target_date,omitempty"`
	Priority      string          `json:"priority"`
	Category      string          `json:"category"`
	Version       int64           `json:"-"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Remaining returns the amount still needed to reach the target.
func (g *Goal) Remaining() decimal.Decimal {
	return g.TargetAmount.Sub(g.CurrentAmount)
}

// Progress returns the funded percentage clamped to [0, 100].
func (g *Goal) Progress() float64 {
	if !g.TargetAmount.IsPositive() {
		return 0
	}
	pct := g.CurrentAmount.Div(g.TargetAmount).Mul(decimal.NewFromInt(100)).InexactFloat64()
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// LedgerEntry is the immutable record of one balance-affecting event.
// GoalID is a weak reference kept for lookup only; it never implies
// ownership.
type LedgerEntry struct {
	ID          string          `json:"id"`
	AccountID   int64           `json:"account_id"`
	GoalID      *int64          `json:"goal_id,omitempty"`
	Kind        EntryKind       `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Delta is the signed effect of the entry on the account balance.
func (e *LedgerEntry) Delta() decimal.Decimal {
	switch e.Kind {
	case EntryExpense, EntryGoalContribution:
		return e.Amount.Neg()
	default:
		return e.Amount
	}
}

// Expense is the denormalized expense row written alongside the expense
// ledger entry, kept for category-aggregation compatibility.
type Expense struct {
	ID          int64           `json:"id"`
	AccountID   int64           `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date"`
}
