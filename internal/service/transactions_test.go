package service

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmarchetti/goalbook/internal/domain"
)

func TestAddExpenseDebitsAndRecords(t *testing.T) {
	env := newTestEnv(t)
	accID := env.newAccount(t, "100")

	expense, _, err := env.transactions.AddExpense(context.Background(), accID, domain.ExpenseRequest{
		Amount:      dec("40"),
		Category:    "food",
		Description: "lunch",
	}, IdemKey{})
	require.NoError(t, err)
	assert.NotZero(t, expense.ID)
	assert.True(t, expense.Amount.Equal(dec("40")))

	assert.True(t, env.balanceOf(t, accID).Equal(dec("60")))

	entries := env.entriesOf(t, accID)
	require.Len(t, entries, 1)
	assert.Equal(t, string(domain.EntryExpense), entries[0].kind)
	assert.True(t, entries[0].amount.Equal(dec("40")))
}

func TestAddExpenseInsufficientBalance(t *testing.T) {
	env := newTestEnv(t)
	accID := env.newAccount(t, "20")

	_, _, err := env.transactions.AddExpense(context.Background(), accID, domain.ExpenseRequest{
		Amount:   dec("50"),
		Category: "food",
	}, IdemKey{})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	assert.True(t, env.balanceOf(t, accID).Equal(dec("20")))
	assert.Empty(t, env.entriesOf(t, accID))
}

func TestAddExpenseValidation(t *testing.T) {
	env := newTestEnv(t)
	accID := env.newAccount(t, "100")

	_, _, err := env.transactions.AddExpense(context.Background(), accID, domain.ExpenseRequest{
		Amount:   dec("-5"),
		Category: "lottery",
	}, IdemKey{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "amount")
	assert.Contains(t, verr.Fields, "category")
}

func TestAddExpenseIdempotentReplay(t *testing.T) {
	env := newTestEnv(t)
	accID := env.newAccount(t, "100")
	req := domain.ExpenseRequest{Amount: dec("40"), Category: "food", Description: "lunch"}
	key := IdemKey{Key: "exp-1", RequestHash: "abc"}

	expense, replay, err := env.transactions.AddExpense(context.Background(), accID, req, key)
	require.NoError(t, err)
	require.Nil(t, replay)
	require.NotZero(t, expense.ID)

	// Retrying the same request must not debit a second time.
	expense, replay, err = env.transactions.AddExpense(context.Background(), accID, req, key)
	require.NoError(t, err)
	assert.Nil(t, expense)
	require.NotNil(t, replay)
	assert.Equal(t, http.StatusCreated, replay.ResponseStatus)

	var resp domain.ExpenseResponse
	require.NoError(t, json.Unmarshal(replay.ResponseBody, &resp))
	assert.True(t, resp.Expense.Amount.Equal(dec("40")))

	assert.True(t, env.balanceOf(t, accID).Equal(dec("60")))
	assert.Len(t, env.entriesOf(t, accID), 1)
}

func TestAddIncomeCreditsAndRecords(t *testing.T) {
	env := newTestEnv(t)
	accID := env.newAccount(t, "10")

	entry, _, err := env.transactions.AddIncome(context.Background(), accID, domain.IncomeRequest{
		Amount:      dec("250"),
		Category:    "salary",
		Description: "august salary",
	}, IdemKey{})
	require.NoError(t, err)
	assert.Equal(t, domain.EntryIncome, entry.Kind)
	assert.NotEmpty(t, entry.ID)

	assert.True(t, env.balanceOf(t, accID).Equal(dec("260")))
}

func TestAddIncomeUnknownSource(t *testing.T) {
	env := newTestEnv(t)
	accID := env.newAccount(t, "0")

	_, _, err := env.transactions.AddIncome(context.Background(), accID, domain.IncomeRequest{
		Amount:   dec("10"),
		Category: "heist",
	}, IdemKey{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "category")
}

func TestAddIncomeIdempotentReplay(t *testing.T) {
	env := newTestEnv(t)
	accID := env.newAccount(t, "0")
	req := domain.IncomeRequest{Amount: dec("250"), Category: "salary"}
	key := IdemKey{Key: "inc-1", RequestHash: "abc"}

	_, replay, err := env.transactions.AddIncome(context.Background(), accID, req, key)
	require.NoError(t, err)
	require.Nil(t, replay)

	_, replay, err = env.transactions.AddIncome(context.Background(), accID, req, key)
	require.NoError(t, err)
	require.NotNil(t, replay)

	assert.True(t, env.balanceOf(t, accID).Equal(dec("250")))
	assert.Len(t, env.entriesOf(t, accID), 1)
}

// The signed sum of all ledger entries must equal the account's net balance
// change since creation, across every operation kind.
func TestLedgerReconciliation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accID := env.newAccount(t, "100")

	_, _, err := env.transactions.AddIncome(ctx, accID, domain.IncomeRequest{Amount: dec("200"), Category: "salary"}, IdemKey{})
	require.NoError(t, err)
	_, _, err = env.transactions.AddExpense(ctx, accID, domain.ExpenseRequest{Amount: dec("50"), Category: "food"}, IdemKey{})
	require.NoError(t, err)

	goal := createGoal(t, env, accID, "Vacation", "500")
	_, _, err = env.goals.FundGoal(ctx, accID, goal.ID, dec("100"), IdemKey{})
	require.NoError(t, err)
	_, _, _, err = env.goals.WithdrawFromGoal(ctx, accID, goal.ID, dec("30"), false, IdemKey{})
	require.NoError(t, err)

	sum := decimal.Zero
	entries, err := env.store.ListEntries(ctx, accID, timeZero(), timeFarFuture())
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for i := range entries {
		sum = sum.Add(entries[i].Delta())
	}

	delta := env.balanceOf(t, accID).Sub(dec("100"))
	assert.True(t, sum.Equal(delta), "entry sum %s != balance delta %s", sum, delta)
}
