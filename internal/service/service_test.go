package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/tmarchetti/goalbook/internal/config"
	"github.com/tmarchetti/goalbook/internal/events"
	"github.com/tmarchetti/goalbook/internal/store"
)

type testEnv struct {
	store        store.Store
	goals        *GoalEngine
	transactions *TransactionEngine
	summary      *SummaryService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)

	balance := NewBalanceService()
	return &testEnv{
		store:        st,
		goals:        NewGoalEngine(st, balance, events.Noop{}),
		transactions: NewTransactionEngine(st, balance, config.DefaultTaxonomy(), events.Noop{}),
		summary:      NewSummaryService(st),
	}
}

func (env *testEnv) newAccount(t *testing.T, balance string) int64 {
	t.Helper()
	id, err := env.store.CreateAccount(context.Background(), dec(balance))
	require.NoError(t, err)
	return id
}

func (env *testEnv) balanceOf(t *testing.T, accountID int64) decimal.Decimal {
	t.Helper()
	acc, err := env.store.GetAccount(context.Background(), accountID)
	require.NoError(t, err)
	return acc.Balance
}

func (env *testEnv) entriesOf(t *testing.T, accountID int64) []dumpedEntry {
	t.Helper()
	entries, err := env.store.ListEntries(context.Background(), accountID, time.Time{}, time.Now().Add(time.Hour))
	require.NoError(t, err)
	out := make([]dumpedEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, dumpedEntry{kind: string(e.Kind), amount: e.Amount})
	}
	return out
}

type dumpedEntry struct {
	kind   string
	amount decimal.Decimal
}

func timeZero() time.Time { return time.Time{} }

func timeFarFuture() time.Time { return time.Now().Add(24 * time.Hour) }

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
