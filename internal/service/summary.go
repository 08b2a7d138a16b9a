package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tmarchetti/goalbook/internal/domain"
	"github.com/tmarchetti/goalbook/internal/store"
)

// SummaryService derives monthly totals from the ledger. Read-only: it
// never opens an atomic scope, and each window is read in one statement so
// it cannot observe a half-committed operation.
type SummaryService struct {
	store store.Store
}

func NewSummaryService(st store.Store) *SummaryService {
	return &SummaryService{store: st}
}

// Summary aggregates one calendar month for the account and re-runs the
// same aggregation over the prior month for comparison.
func (s *SummaryService) Summary(ctx context.Context, accountID int64, year, month int) (*domain.Summary, error) {
	if month < 1 || month > 12 {
		return nil, NewValidationError("month", "must be between 1 and 12")
	}

	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	prevStart := start.AddDate(0, -1, 0)

	entries, err := s.store.ListEntries(ctx, accountID, start, end)
	if err != nil {
		return nil, err
	}
	prevEntries, err := s.store.ListEntries(ctx, accountID, prevStart, start)
	if err != nil {
		return nil, err
	}

	totals, categories := aggregate(entries)
	prevTotals, _ := aggregate(prevEntries)

	return &domain.Summary{
		Year:       year,
		Month:      month,
		Totals:     totals,
		Categories: categories,
		Previous:   prevTotals,
	}, nil
}

func aggregate(entries []domain.LedgerEntry) (domain.PeriodTotals, []domain.CategorySummary) {
	totals := domain.PeriodTotals{
		Income:            decimal.Zero,
		Expenses:          decimal.Zero,
		GoalContributions: decimal.Zero,
		GoalWithdrawals:   decimal.Zero,
		Net:               decimal.Zero,
	}

	type catAgg struct {
		total decimal.Decimal
		count int
	}
	byCategory := map[string]*catAgg{}

	for _, e := range entries {
		switch e.Kind {
		case domain.EntryIncome:
			totals.Income = totals.Income.Add(e.Amount)
		case domain.EntryExpense:
			totals.Expenses = totals.Expenses.Add(e.Amount)
			agg, ok := byCategory[e.Category]
			if !ok {
				agg = &catAgg{total: decimal.Zero}
				byCategory[e.Category] = agg
			}
			agg.total = agg.total.Add(e.Amount)
			agg.count++
		case domain.EntryGoalContribution:
			totals.GoalContributions = totals.GoalContributions.Add(e.Amount)
		case domain.EntryGoalWithdrawal:
			totals.GoalWithdrawals = totals.GoalWithdrawals.Add(e.Amount)
		}
		totals.Net = totals.Net.Add(e.Delta())
	}

	categories := make([]domain.CategorySummary, 0, len(byCategory))
	for cat, agg := range byCategory {
		pct := 0.0
		if totals.Expenses.IsPositive() {
			pct = agg.total.Div(totals.Expenses).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
		categories = append(categories, domain.CategorySummary{
			Category:   cat,
			Total:      agg.total,
			Count:      agg.count,
			Percentage: pct,
		})
	}
	sort.Slice(categories, func(i, j int) bool {
		if !categories[i].Total.Equal(categories[j].Total) {
			return categories[i].Total.GreaterThan(categories[j].Total)
		}
		return categories[i].Category < categories[j].Category
	})

	return totals, categories
}
