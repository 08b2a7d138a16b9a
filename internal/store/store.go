package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tmarchetti/goalbook/internal/domain"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrGoalNotFound    = errors.New("goal not found")
	// ErrVersionConflict means the asserted record version no longer matches:
	// another scope committed between our read and write.
	ErrVersionConflict = errors.New("record version conflict")
	// ErrIdempotencyKeyReserved means another scope inserted the same key first.
	ErrIdempotencyKeyReserved = errors.New("idempotency key already reserved")
)

// UnitOfWork is the record API available inside an atomic scope. Every
// mutation of an Account or Goal goes through it; writes assert the version
// read at the start of the scope.
type UnitOfWork interface {
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	UpdateAccountBalance(ctx context.Context, id int64, balance decimal.Decimal, version int64) error

	GetGoal(ctx context.Context, id int64) (*domain.Goal, error)
	InsertGoal(ctx context.Context, g *domain.Goal) error
	UpdateGoal(ctx context.Context, g *domain.Goal) error

	AppendEntry(ctx context.Context, e *domain.LedgerEntry) error
	InsertExpense(ctx context.Context, e *domain.Expense) error

	// GetIdempotencyRecord returns nil when the key has never been seen.
	GetIdempotencyRecord(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
	ReserveIdempotencyKey(ctx context.Context, key, requestHash string) error
	CompleteIdempotencyKey(ctx context.Context, key string, responseStatus int, responseBody []byte) error
}

// TxRunner executes a closure inside one storage transaction. Either every
// write performed through the UnitOfWork becomes visible, or none do; any
// error from the closure aborts the scope and is returned unchanged.
type TxRunner interface {
	RunAtomic(ctx context.Context, fn func(UnitOfWork) error) error
}

// Store is the full persistence surface: the atomic scope plus the
// read-only paths that do not need one.
type Store interface {
	TxRunner

	CreateAccount(ctx context.Context, initialBalance decimal.Decimal) (int64, error)
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	GetGoal(ctx context.Context, id int64) (*domain.Goal, error)
	ListGoals(ctx context.Context, accountID int64) ([]domain.Goal, error)
	ListEntries(ctx context.Context, accountID int64, from, to time.Time) ([]domain.LedgerEntry, error)

	Close()
}
