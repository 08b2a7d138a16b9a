package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExpenseRequest is the DTO for POST /dashboard/expenses.
type ExpenseRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
}

// IncomeRequest is the DTO for POST /dashboard/incomes.
type IncomeRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
}

// CreateGoalRequest is the DTO for POST /dashboard/goals.
type CreateGoalRequest struct {
	Title        string          `json:"title"`
	TargetAmount decimal.Decimal `json:"targetAmount"`
	TargetDate   *time.Time      `json:"targetDate,omitempty"`
	Description  string          `json:"description,omitempty"`
	Category     string          `json:"category,omitempty"`
	Priority     string          `json:"priority,omitempty"`
}

// FundGoalRequest is the DTO for POST /dashboard/goals/{id}/fund.
type FundGoalRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// WithdrawGoalRequest is the DTO for POST /dashboard/goals/{id}/withdraw.
type WithdrawGoalRequest struct {
	Amount           decimal.Decimal `json:"amount"`
	IsFullWithdrawal bool            `json:"isFullWithdrawal"`
}

// GoalView is the canonical goal shape returned by goal endpoints.
type GoalView struct {
	ID            int64           `json:"id"`
	Title         string          `json:"title"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	TargetAmount  decimal.Decimal `json:"targetAmount"`
	Progress      float64         `json:"progress"`
	Status        GoalStatus      `json:"status"`
	TargetDate    *time.Time      `json:"targetDate,omitempty"`
	Priority      string          `json:"priority,omitempty"`
	Category      string          `json:"category,omitempty"`
}

// NewGoalView projects a Goal into its response shape.
func NewGoalView(g *Goal) GoalView {
	return GoalView{
		ID:            g.ID,
		Title:         g.Title,
		CurrentAmount: g.CurrentAmount,
		TargetAmount:  g.TargetAmount,
		Progress:      g.Progress(),
		Status:        g.Status,
		TargetDate:    g.TargetDate,
		Priority:      g.Priority,
		Category:      g.Category,
	}
}

// WithdrawResult summarizes a committed withdrawal.
type WithdrawResult struct {
	WithdrawalAmount   decimal.Decimal `json:"withdrawalAmount"`
	NewGoalBalance     decimal.Decimal `json:"newGoalBalance"`
	NewAccountBalance  decimal.Decimal `json:"newAccountBalance"`
	ProgressPercentage float64         `json:"progressPercentage"`
}

// IncomeView is the income shape returned by POST /dashboard/incomes.
type IncomeView struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	Date        time.Time       `json:"date"`
}

// NewIncomeView projects an income ledger entry into its response shape.
func NewIncomeView(e *LedgerEntry) IncomeView {
	return IncomeView{
		ID:          e.ID,
		Amount:      e.Amount,
		Category:    e.Category,
		Description: e.Description,
		Date:        e.CreatedAt,
	}
}

// Response envelopes for the mutating endpoints. The engines marshal these
// when an idempotency key is present, so the stored replay body and the
// handler's fresh body stay byte-identical.
type ExpenseResponse struct {
	Expense Expense `json:"expense"`
}

type IncomeResponse struct {
	Income IncomeView `json:"income"`
}

type FundGoalResponse struct {
	Goal GoalView `json:"goal"`
}

type WithdrawGoalResponse struct {
	Data WithdrawResult `json:"data"`
	Goal GoalView       `json:"goal"`
}
