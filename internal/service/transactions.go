package service

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmarchetti/goalbook/internal/config"
	"github.com/tmarchetti/goalbook/internal/domain"
	"github.com/tmarchetti/goalbook/internal/events"
	"github.com/tmarchetti/goalbook/internal/store"
)

// TransactionEngine records plain income and expense events. No goal is
// involved; each operation debits or credits the account and appends one
// ledger entry inside a single atomic scope.
type TransactionEngine struct {
	store     store.Store
	balance   *BalanceService
	taxonomy  config.Taxonomy
	publisher events.Publisher
}

func NewTransactionEngine(st store.Store, balance *BalanceService, taxonomy config.Taxonomy, pub events.Publisher) *TransactionEngine {
	return &TransactionEngine{store: st, balance: balance, taxonomy: taxonomy, publisher: pub}
}

// AddExpense debits the account and records the expense. Alongside the
// ledger entry it writes the denormalized expense row used by category
// aggregation.
func (e *TransactionEngine) AddExpense(ctx context.Context, accountID int64, req domain.ExpenseRequest, idem IdemKey) (*domain.Expense, *domain.IdempotencyRecord, error) {
	fields := map[string]string{}
	if !req.Amount.IsPositive() {
		fields["amount"] = "must be a positive number"
	}
	if !e.taxonomy.ValidExpenseCategory(req.Category) {
		fields["category"] = "unknown expense category"
	}
	if len(fields) > 0 {
		return nil, nil, &ValidationError{Fields: fields}
	}

	now := time.Now().UTC()
	expense := &domain.Expense{
		AccountID:   accountID,
		Amount:      req.Amount,
		Category:    req.Category,
		Description: strings.TrimSpace(req.Description),
		Date:        now,
	}
	entry := &domain.LedgerEntry{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Kind:        domain.EntryExpense,
		Amount:      req.Amount,
		Category:    req.Category,
		Description: expense.Description,
		CreatedAt:   now,
	}

	var replay *domain.IdempotencyRecord
	err := e.store.RunAtomic(ctx, func(uow store.UnitOfWork) error {
		if !idem.empty() {
			rec, err := beginIdempotent(ctx, uow, idem)
			if err != nil {
				return err
			}
			if rec != nil {
				replay = rec
				return nil
			}
		}

		if _, err := e.balance.Debit(ctx, uow, accountID, req.Amount); err != nil {
			return err
		}
		if err := uow.AppendEntry(ctx, entry); err != nil {
			return err
		}
		if err := uow.InsertExpense(ctx, expense); err != nil {
			return err
		}

		if !idem.empty() {
			return finishIdempotent(ctx, uow, idem, http.StatusCreated,
				domain.ExpenseResponse{Expense: *expense})
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if replay != nil {
		return nil, replay, nil
	}

	e.emitEntry(entry)
	return expense, nil, nil
}

// AddIncome credits the account and records the income event.
func (e *TransactionEngine) AddIncome(ctx context.Context, accountID int64, req domain.IncomeRequest, idem IdemKey) (*domain.LedgerEntry, *domain.IdempotencyRecord, error) {
	fields := map[string]string{}
	if !req.Amount.IsPositive() {
		fields["amount"] = "must be a positive number"
	}
	if !e.taxonomy.ValidIncomeSource(req.Category) {
		fields["category"] = "unknown income source"
	}
	if len(fields) > 0 {
		return nil, nil, &ValidationError{Fields: fields}
	}

	entry := &domain.LedgerEntry{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Kind:        domain.EntryIncome,
		Amount:      req.Amount,
		Category:    req.Category,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   time.Now().UTC(),
	}

	var replay *domain.IdempotencyRecord
	err := e.store.RunAtomic(ctx, func(uow store.UnitOfWork) error {
		if !idem.empty() {
			rec, err := beginIdempotent(ctx, uow, idem)
			if err != nil {
				return err
			}
			if rec != nil {
				replay = rec
				return nil
			}
		}

		if _, err := e.balance.Credit(ctx, uow, accountID, req.Amount); err != nil {
			return err
		}
		if err := uow.AppendEntry(ctx, entry); err != nil {
			return err
		}

		if !idem.empty() {
			return finishIdempotent(ctx, uow, idem, http.StatusCreated,
				domain.IncomeResponse{Income: domain.NewIncomeView(entry)})
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if replay != nil {
		return nil, replay, nil
	}

	e.emitEntry(entry)
	return entry, nil, nil
}

func (e *TransactionEngine) emitEntry(entry *domain.LedgerEntry) {
	ev := events.EntryRecorded{
		EventID:    uuid.NewString(),
		EntryID:    entry.ID,
		AccountID:  entry.AccountID,
		Kind:       entry.Kind,
		Amount:     entry.Amount,
		OccurredAt: entry.CreatedAt,
	}
	if err := e.publisher.Publish(events.TopicEntryRecorded, ev); err != nil {
		log.Printf("event publish failed on %s: %v", events.TopicEntryRecorded, err)
	}
}
