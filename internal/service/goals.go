package service

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tmarchetti/goalbook/internal/domain"
	"github.com/tmarchetti/goalbook/internal/events"
	"github.com/tmarchetti/goalbook/internal/store"
)

// GoalEngine implements goal creation, funding, and withdrawal. Funding
// moves money from the account balance into the goal; withdrawal moves it
// back. Every movement debits/credits the account, mutates the goal, and
// appends a ledger entry inside one atomic scope.
type GoalEngine struct {
	store     store.Store
	balance   *BalanceService
	publisher events.Publisher
}

func NewGoalEngine(st store.Store, balance *BalanceService, pub events.Publisher) *GoalEngine {
	return &GoalEngine{store: st, balance: balance, publisher: pub}
}

// CreateGoal validates and persists a new active goal with zero funds.
func (e *GoalEngine) CreateGoal(ctx context.Context, accountID int64, req domain.CreateGoalRequest) (*domain.Goal, error) {
	fields := map[string]string{}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		fields["title"] = "is required"
	}
	if !req.TargetAmount.IsPositive() {
		fields["targetAmount"] = "must be a positive number"
	}
	priority := req.Priority
	switch priority {
	case "":
		priority = "medium"
	case "low", "medium", "high":
	default:
		fields["priority"] = "must be one of low, medium, high"
	}
	if req.TargetDate != nil && req.TargetDate.Before(time.Now()) {
		fields["targetDate"] = "must be in the future"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	category := req.Category
	if category == "" {
		category = "savings"
	}

	goal := &domain.Goal{
		AccountID:     accountID,
		Title:         title,
		Description:   req.Description,
		TargetAmount:  req.TargetAmount,
		CurrentAmount: decimal.Zero,
		Status:        domain.GoalActive,
		TargetDate:    req.TargetDate,
		Priority:      priority,
		Category:      category,
		CreatedAt:     time.Now().UTC(),
	}

	err := e.store.RunAtomic(ctx, func(uow store.UnitOfWork) error {
		if _, err := uow.GetAccount(ctx, accountID); err != nil {
			return translateStoreErr(err)
		}
		return uow.InsertGoal(ctx, goal)
	})
	if err != nil {
		return nil, err
	}
	return goal, nil
}

// FundGoal moves amount from the account balance into the goal. Filling the
// goal flips it to completed with the current amount clamped to the target.
// Abandoned and failed goals are retired and reject further funding.
func (e *GoalEngine) FundGoal(ctx context.Context, accountID, goalID int64, amount decimal.Decimal, idem IdemKey) (*domain.Goal, *domain.IdempotencyRecord, error) {
	if !amount.IsPositive() {
		return nil, nil, NewValidationError("amount", "must be a positive number")
	}

	var (
		goal         *domain.Goal
		entry        *domain.LedgerEntry
		completedNow bool
		replay       *domain.IdempotencyRecord
	)
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

		var err error
		goal, err = uow.GetGoal(ctx, goalID)
		if err != nil {
			return translateStoreErr(err)
		}
		// A goal owned by someone else is indistinguishable from a missing
		// one on the funding path.
		if goal.AccountID != accountID {
			return ErrNotFound
		}
		if goal.Status == domain.GoalAbandoned || goal.Status == domain.GoalFailed {
			return NewValidationError("goal", "cannot fund a retired goal")
		}
		if _, err = uow.GetAccount(ctx, accountID); err != nil {
			return translateStoreErr(err)
		}

		if amount.GreaterThan(goal.Remaining()) {
			return NewValidationError("amount", "cannot exceed target amount")
		}

		if _, err = e.balance.Debit(ctx, uow, accountID, amount); err != nil {
			return err
		}

		goal.CurrentAmount = goal.CurrentAmount.Add(amount)
		if goal.CurrentAmount.GreaterThanOrEqual(goal.TargetAmount) {
			goal.CurrentAmount = goal.TargetAmount
			if goal.Status != domain.GoalCompleted {
				completedNow = true
			}
			goal.Status = domain.GoalCompleted
		}
		if err = uow.UpdateGoal(ctx, goal); err != nil {
			return translateStoreErr(err)
		}

		entry = e.newGoalEntry(goal, domain.EntryGoalContribution, amount, "Contribution to "+goal.Title)
		if err = uow.AppendEntry(ctx, entry); err != nil {
			return err
		}

		if !idem.empty() {
			return finishIdempotent(ctx, uow, idem, http.StatusCreated,
				domain.FundGoalResponse{Goal: domain.NewGoalView(goal)})
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
	if completedNow {
		e.emit(events.TopicGoalCompleted, events.GoalCompleted{
			EventID:      uuid.NewString(),
			GoalID:       goal.ID,
			AccountID:    goal.AccountID,
			Title:        goal.Title,
			TargetAmount: goal.TargetAmount,
			OccurredAt:   entry.CreatedAt,
		})
	}
	return goal, nil, nil
}

// WithdrawFromGoal moves amount from the goal back to the account balance.
// A full withdrawal drains the goal and retires it as abandoned; a partial
// withdrawal from a completed goal reverts it to active.
func (e *GoalEngine) WithdrawFromGoal(ctx context.Context, accountID, goalID int64, amount decimal.Decimal, isFullWithdrawal bool, idem IdemKey) (*domain.WithdrawResult, *domain.Goal, *domain.IdempotencyRecord, error) {
	if !isFullWithdrawal && !amount.IsPositive() {
		return nil, nil, nil, NewValidationError("amount", "must be a positive number")
	}

	var (
		goal   *domain.Goal
		entry  *domain.LedgerEntry
		result *domain.WithdrawResult
		replay *domain.IdempotencyRecord
	)
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

		var err error
		goal, err = uow.GetGoal(ctx, goalID)
		if err != nil {
			return translateStoreErr(err)
		}
		if goal.AccountID != accountID {
			return ErrForbidden
		}

		if isFullWithdrawal {
			amount = goal.CurrentAmount
		}
		if !amount.IsPositive() {
			return NewValidationError("amount", "must be a positive number")
		}
		if amount.GreaterThan(goal.CurrentAmount) {
			return NewValidationError("amount", "cannot exceed current goal balance")
		}

		acc, err := e.balance.Credit(ctx, uow, accountID, amount)
		if err != nil {
			return err
		}

		goal.CurrentAmount = goal.CurrentAmount.Sub(amount)
		switch {
		case goal.CurrentAmount.IsZero():
			goal.Status = domain.GoalAbandoned
		case goal.Status == domain.GoalCompleted:
			goal.Status = domain.GoalActive
		}
		if err = uow.UpdateGoal(ctx, goal); err != nil {
			return translateStoreErr(err)
		}

		entry = e.newGoalEntry(goal, domain.EntryGoalWithdrawal, amount, "Withdrawal from "+goal.Title)
		if err = uow.AppendEntry(ctx, entry); err != nil {
			return err
		}

		result = &domain.WithdrawResult{
			WithdrawalAmount:   amount,
			NewGoalBalance:     goal.CurrentAmount,
			NewAccountBalance:  acc.Balance,
			ProgressPercentage: goal.Progress(),
		}

		if !idem.empty() {
			return finishIdempotent(ctx, uow, idem, http.StatusOK,
				domain.WithdrawGoalResponse{Data: *result, Goal: domain.NewGoalView(goal)})
		}
		return nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	if replay != nil {
		return nil, nil, replay, nil
	}

	e.emitEntry(entry)
	return result, goal, nil, nil
}

// GetGoal returns one goal, enforcing ownership.
func (e *GoalEngine) GetGoal(ctx context.Context, accountID, goalID int64) (*domain.Goal, error) {
	goal, err := e.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	if goal.AccountID != accountID {
		return nil, ErrForbidden
	}
	return goal, nil
}

// ListGoals returns all goals for the account, newest first.
func (e *GoalEngine) ListGoals(ctx context.Context, accountID int64) ([]domain.Goal, error) {
	return e.store.ListGoals(ctx, accountID)
}

func (e *GoalEngine) newGoalEntry(goal *domain.Goal, kind domain.EntryKind, amount decimal.Decimal, description string) *domain.LedgerEntry {
	goalID := goal.ID
	return &domain.LedgerEntry{
		ID:          uuid.NewString(),
		AccountID:   goal.AccountID,
		GoalID:      &goalID,
		Kind:        kind,
		Amount:      amount,
		Category:    goal.Category,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
}

func (e *GoalEngine) emitEntry(entry *domain.LedgerEntry) {
	e.emit(events.TopicEntryRecorded, events.EntryRecorded{
		EventID:    uuid.NewString(),
		EntryID:    entry.ID,
		AccountID:  entry.AccountID,
		GoalID:     entry.GoalID,
		Kind:       entry.Kind,
		Amount:     entry.Amount,
		OccurredAt: entry.CreatedAt,
	})
}

func (e *GoalEngine) emit(topic string, event any) {
	if err := e.publisher.Publish(topic, event); err != nil {
		log.Printf("event publish failed on %s: %v", topic, err)
	}
}
