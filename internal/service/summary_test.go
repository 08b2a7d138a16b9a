package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmarchetti/goalbook/internal/domain"
	"github.com/tmarchetti/goalbook/internal/store"
)

// appendEntryAt writes a raw ledger entry with a chosen timestamp so tests
// can populate specific months.
func appendEntryAt(t *testing.T, env *testEnv, accountID int64, kind domain.EntryKind, amount, category string, at time.Time) {
	t.Helper()
	err := env.store.RunAtomic(context.Background(), func(uow store.UnitOfWork) error {
		return uow.AppendEntry(context.Background(), &domain.LedgerEntry{
			ID:        string(kind) + "-" + category + "-" + at.Format("20060102150405"),
			AccountID: accountID,
			Kind:      kind,
			Amount:    dec(amount),
			Category:  category,
			CreatedAt: at,
		})
	})
	require.NoError(t, err)
}

func TestSummaryGroupsByKindAndCategory(t *testing.T) {
	env := newTestEnv(t)
	accID := env.newAccount(t, "0")

	march := func(day int) time.Time {
		return time.Date(2026, 3, day, 10, 0, 0, 0, time.UTC)
	}
	appendEntryAt(t, env, accID, domain.EntryIncome, "1000", "salary", march(1))
	appendEntryAt(t, env, accID, domain.EntryExpense, "300", "food", march(3))
	appendEntryAt(t, env, accID, domain.EntryExpense, "100", "food", march(10))
	appendEntryAt(t, env, accID, domain.EntryExpense, "100", "transport", march(12))
	appendEntryAt(t, env, accID, domain.EntryGoalContribution, "200", "savings", march(15))
	appendEntryAt(t, env, accID, domain.EntryGoalWithdrawal, "50", "savings", march(20))

	summary, err := env.summary.Summary(context.Background(), accID, 2026, 3)
	require.NoError(t, err)

	assert.True(t, summary.Totals.Income.Equal(dec("1000")))
	assert.True(t, summary.Totals.Expenses.Equal(dec("500")))
	assert.True(t, summary.Totals.GoalContributions.Equal(dec("200")))
	assert.True(t, summary.Totals.GoalWithdrawals.Equal(dec("50")))
	// +1000 -500 -200 +50
	assert.True(t, summary.Totals.Net.Equal(dec("350")))

	require.Len(t, summary.Categories, 2)
	assert.Equal(t, "food", summary.Categories[0].Category)
	assert.True(t, summary.Categories[0].Total.Equal(dec("400")))
	assert.Equal(t, 2, summary.Categories[0].Count)
	assert.InDelta(t, 80.0, summary.Categories[0].Percentage, 0.0001)
	assert.Equal(t, "transport", summary.Categories[1].Category)
	assert.InDelta(t, 20.0, summary.Categories[1].Percentage, 0.0001)
}

func TestSummaryPreviousPeriod(t *testing.T) {
	env := newTestEnv(t)
	accID := env.newAccount(t, "0")

	appendEntryAt(t, env, accID, domain.EntryIncome, "500", "salary",
		time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC))
	appendEntryAt(t, env, accID, domain.EntryIncome, "700", "salary",
		time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	summary, err := env.summary.Summary(context.Background(), accID, 2026, 3)
	require.NoError(t, err)
	assert.True(t, summary.Totals.Income.Equal(dec("700")))
	assert.True(t, summary.Previous.Income.Equal(dec("500")))
}

func TestSummaryEmptyMonth(t *testing.T) {
	env := newTestEnv(t)
	accID := env.newAccount(t, "0")

	summary, err := env.summary.Summary(context.Background(), accID, 2026, 1)
	require.NoError(t, err)
	assert.True(t, summary.Totals.Income.IsZero())
	assert.True(t, summary.Totals.Net.IsZero())
	assert.Empty(t, summary.Categories)
}

func TestSummaryRejectsBadMonth(t *testing.T) {
	env := newTestEnv(t)
	accID := env.newAccount(t, "0")

	_, err := env.summary.Summary(context.Background(), accID, 2026, 13)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}
