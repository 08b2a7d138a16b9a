package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmarchetti/goalbook/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCreateAndGetAccount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateAccount(ctx, dec("100.50"))
	require.NoError(t, err)

	acc, err := s.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, acc.ID)
	assert.True(t, acc.Balance.Equal(dec("100.50")))
	assert.Equal(t, int64(0), acc.Version)

	_, err = s.GetAccount(ctx, id+99)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestRunAtomicRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateAccount(ctx, dec("100"))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.RunAtomic(ctx, func(uow UnitOfWork) error {
		require.NoError(t, uow.UpdateAccountBalance(ctx, id, dec("40"), 0))
		require.NoError(t, uow.AppendEntry(ctx, &domain.LedgerEntry{
			ID:        "entry-1",
			AccountID: id,
			Kind:      domain.EntryExpense,
			Amount:    dec("60"),
			Category:  "food",
			CreatedAt: time.Now().UTC(),
		}))
		return boom
	})
	// The closure's error propagates unchanged.
	assert.ErrorIs(t, err, boom)

	acc, err := s.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("100")), "balance must be untouched after abort")
	assert.Equal(t, int64(0), acc.Version)

	entries, err := s.ListEntries(ctx, id, time.Time{}, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, entries, "no entry may survive an aborted scope")
}

func TestRunAtomicCommits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateAccount(ctx, dec("100"))
	require.NoError(t, err)

	err = s.RunAtomic(ctx, func(uow UnitOfWork) error {
		if err := uow.UpdateAccountBalance(ctx, id, dec("150"), 0); err != nil {
			return err
		}
		return uow.AppendEntry(ctx, &domain.LedgerEntry{
			ID:        "entry-1",
			AccountID: id,
			Kind:      domain.EntryIncome,
			Amount:    dec("50"),
			Category:  "salary",
			CreatedAt: time.Now().UTC(),
		})
	})
	require.NoError(t, err)

	acc, err := s.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("150")))
	assert.Equal(t, int64(1), acc.Version)

	entries, err := s.ListEntries(ctx, id, time.Time{}, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EntryIncome, entries[0].Kind)
	assert.True(t, entries[0].Amount.Equal(dec("50")))
}

func TestStaleVersionWriteRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateAccount(ctx, dec("100"))
	require.NoError(t, err)

	// First writer commits and bumps the version.
	err = s.RunAtomic(ctx, func(uow UnitOfWork) error {
		return uow.UpdateAccountBalance(ctx, id, dec("90"), 0)
	})
	require.NoError(t, err)

	// Second writer asserts the version it read before the first committed.
	err = s.RunAtomic(ctx, func(uow UnitOfWork) error {
		return uow.UpdateAccountBalance(ctx, id, dec("80"), 0)
	})
	assert.ErrorIs(t, err, ErrVersionConflict)

	acc, err := s.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("90")), "stale write must not apply")
}

func TestGoalRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	accID, err := s.CreateAccount(ctx, dec("0"))
	require.NoError(t, err)

	target := time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)
	goal := &domain.Goal{
		AccountID:     accID,
		Title:         "Vacation",
		TargetAmount:  dec("500"),
		CurrentAmount: dec("0"),
		Status:        domain.GoalActive,
		TargetDate:    &target,
		Priority:      "medium",
		Category:      "savings",
		CreatedAt:     time.Now().UTC(),
	}
	err = s.RunAtomic(ctx, func(uow UnitOfWork) error {
		return uow.InsertGoal(ctx, goal)
	})
	require.NoError(t, err)
	require.NotZero(t, goal.ID)

	got, err := s.GetGoal(ctx, goal.ID)
	require.NoError(t, err)
	assert.Equal(t, "Vacation", got.Title)
	assert.True(t, got.TargetAmount.Equal(dec("500")))
	assert.Equal(t, domain.GoalActive, got.Status)
	require.NotNil(t, got.TargetDate)
	assert.Equal(t, target.Year(), got.TargetDate.Year())

	got.CurrentAmount = dec("500")
	got.Status = domain.GoalCompleted
	err = s.RunAtomic(ctx, func(uow UnitOfWork) error {
		return uow.UpdateGoal(ctx, got)
	})
	require.NoError(t, err)

	updated, err := s.GetGoal(ctx, goal.ID)
	require.NoError(t, err)
	assert.True(t, updated.CurrentAmount.Equal(dec("500")))
	assert.Equal(t, domain.GoalCompleted, updated.Status)
	assert.Equal(t, int64(1), updated.Version)

	_, err = s.GetGoal(ctx, goal.ID+99)
	assert.ErrorIs(t, err, ErrGoalNotFound)
}

func TestIdempotencyKeyLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Fresh key: no record yet.
	err := s.RunAtomic(ctx, func(uow UnitOfWork) error {
		rec, err := uow.GetIdempotencyRecord(ctx, "req-1")
		require.NoError(t, err)
		require.Nil(t, rec)

		if err := uow.ReserveIdempotencyKey(ctx, "req-1", "hash-1"); err != nil {
			return err
		}
		return uow.CompleteIdempotencyKey(ctx, "req-1", 201, []byte(`{"ok":true}`))
	})
	require.NoError(t, err)

	err = s.RunAtomic(ctx, func(uow UnitOfWork) error {
		rec, err := uow.GetIdempotencyRecord(ctx, "req-1")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "hash-1", rec.RequestHash)
		assert.Equal(t, domain.IdempotencyCompleted, rec.Status)
		assert.Equal(t, 201, rec.ResponseStatus)
		assert.JSONEq(t, `{"ok":true}`, string(rec.ResponseBody))
		return nil
	})
	require.NoError(t, err)

	// Re-inserting a committed key hits the primary key.
	err = s.RunAtomic(ctx, func(uow UnitOfWork) error {
		return uow.ReserveIdempotencyKey(ctx, "req-1", "hash-1")
	})
	assert.ErrorIs(t, err, ErrIdempotencyKeyReserved)
}

func TestListEntriesWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	accID, err := s.CreateAccount(ctx, dec("0"))
	require.NoError(t, err)

	appendAt := func(id string, at time.Time) {
		err := s.RunAtomic(ctx, func(uow UnitOfWork) error {
			return uow.AppendEntry(ctx, &domain.LedgerEntry{
				ID:        id,
				AccountID: accID,
				Kind:      domain.EntryIncome,
				Amount:    dec("10"),
				Category:  "salary",
				CreatedAt: at,
			})
		})
		require.NoError(t, err)
	}

	appendAt("jan", time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	appendAt("feb-early", time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC))
	appendAt("feb-late", time.Date(2026, 2, 20, 8, 0, 0, 0, time.UTC))
	appendAt("mar", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	entries, err := s.ListEntries(ctx, accID, from, to)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "feb-early", entries[0].ID)
	assert.Equal(t, "feb-late", entries[1].ID)
}
