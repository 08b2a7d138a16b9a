package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/tmarchetti/goalbook/internal/domain"
	"github.com/tmarchetti/goalbook/internal/store"
)

// BalanceService owns every read/validate/mutate of an account balance.
// Both operations must run inside an active atomic scope; the unit of work
// parameter makes calling them outside one impossible.
type BalanceService struct{}

func NewBalanceService() *BalanceService {
	return &BalanceService{}
}

// Credit increases the balance by amount. The upper balance is unbounded,
// so a positive amount never fails on the value itself.
func (s *BalanceService) Credit(ctx context.Context, uow store.UnitOfWork, accountID int64, amount decimal.Decimal) (*domain.Account, error) {
	if !amount.IsPositive() {
		return nil, NewValidationError("amount", "must be a positive number")
	}

	acc, err := uow.GetAccount(ctx, accountID)
	if err != nil {
		return nil, translateStoreErr(err)
	}

	acc.Balance = acc.Balance.Add(amount)
	if err := uow.UpdateAccountBalance(ctx, acc.ID, acc.Balance, acc.Version); err != nil {
		return nil, translateStoreErr(err)
	}
	acc.Version++
	return acc, nil
}

// Debit decreases the balance by amount, failing with
// ErrInsufficientBalance before any write if the balance would go negative.
func (s *BalanceService) Debit(ctx context.Context, uow store.UnitOfWork, accountID int64, amount decimal.Decimal) (*domain.Account, error) {
	if !amount.IsPositive() {
		return nil, NewValidationError("amount", "must be a positive number")
	}

	acc, err := uow.GetAccount(ctx, accountID)
	if err != nil {
		return nil, translateStoreErr(err)
	}

	if acc.Balance.LessThan(amount) {
		return nil, ErrInsufficientBalance
	}

	acc.Balance = acc.Balance.Sub(amount)
	if err := uow.UpdateAccountBalance(ctx, acc.ID, acc.Balance, acc.Version); err != nil {
		return nil, translateStoreErr(err)
	}
	acc.Version++
	return acc, nil
}

// translateStoreErr maps storage sentinels onto the service taxonomy.
// Anything unrecognized passes through as a server fault.
func translateStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrAccountNotFound), errors.Is(err, store.ErrGoalNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrVersionConflict):
		return ErrConflict
	default:
		return err
	}
}
