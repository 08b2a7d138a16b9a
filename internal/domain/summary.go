package domain

import "github.com/shopspring/decimal"

// PeriodTotals holds the signed totals of one aggregation window.
type PeriodTotals struct {
	Income            decimal.Decimal `json:"income"`
	Expenses          decimal.Decimal `json:"expenses"`
	GoalContributions decimal.Decimal `json:"goalContributions"`
	GoalWithdrawals   decimal.Decimal `json:"goalWithdrawals"`
	Net               decimal.Decimal `json:"net"`
}

// CategorySummary is one expense category's share of a window.
type CategorySummary struct {
	Category   string          `json:"category"`
	Total      decimal.Decimal `json:"total"`
	Count      int             `json:"count"`
	Percentage float64         `json:"percentage"`
}

// Summary is the monthly aggregation with a prior-window comparison.
type Summary struct {
	Year       int               `json:"year"`
	Month      int               `json:"month"`
	Totals     PeriodTotals      `json:"totals"`
	Categories []CategorySummary `json:"categories"`
	Previous   PeriodTotals      `json:"previous"`
}
