package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/tmarchetti/goalbook/internal/domain"
)

// PostgresStore is the production implementation of Store over a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database, verifies the connection, and runs
// migrations.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id BIGSERIAL PRIMARY KEY,
			balance NUMERIC(20,4) NOT NULL,
			version BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS goals (
			id BIGSERIAL PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES accounts(id),
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			target_amount NUMERIC(20,4) NOT NULL,
			current_amount NUMERIC(20,4) NOT NULL,
			status TEXT NOT NULL,
			target_date TIMESTAMPTZ,
			priority TEXT NOT NULL,
			category TEXT NOT NULL,
			version BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id TEXT PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES accounts(id),
			goal_id BIGINT,
			kind TEXT NOT NULL,
			amount NUMERIC(20,4) NOT NULL,
			category TEXT NOT NULL,
			description TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS expenses (
			id BIGSERIAL PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES accounts(id),
			amount NUMERIC(20,4) NOT NULL,
			category TEXT NOT NULL,
			description TEXT NOT NULL,
			date TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
			key TEXT PRIMARY KEY,
			request_hash TEXT NOT NULL,
			status TEXT NOT NULL,
			response_status INT,
			response_body BYTEA,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_account_created
			ON ledger_entries(account_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// RunAtomic executes fn inside one RepeatableRead transaction. The
// closure's error aborts the scope and is propagated unchanged.
func (s *PostgresStore) RunAtomic(ctx context.Context, fn func(UnitOfWork) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgUow{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, initialBalance decimal.Decimal) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		"INSERT INTO accounts (balance) VALUES ($1) RETURNING id",
		initialBalance.String(),
	).Scan(&id)
	return id, err
}

func (s *PostgresStore) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return pgGetAccount(ctx, s.pool, id)
}

func (s *PostgresStore) GetGoal(ctx context.Context, id int64) (*domain.Goal, error) {
	return pgGetGoal(ctx, s.pool, id)
}

func (s *PostgresStore) ListGoals(ctx context.Context, accountID int64) ([]domain.Goal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, title, description, target_amount::text, current_amount::text,
			status, target_date, priority, category, version, created_at
		 FROM goals WHERE account_id = $1 ORDER BY created_at DESC, id DESC`,
		accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var goals []domain.Goal
	for rows.Next() {
		g, err := pgScanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, *g)
	}
	return goals, rows.Err()
}

func (s *PostgresStore) ListEntries(ctx context.Context, accountID int64, from, to time.Time) ([]domain.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, goal_id, kind, amount::text, category, description, created_at
		 FROM ledger_entries
		 WHERE account_id = $1 AND created_at >= $2 AND created_at < $3
		 ORDER BY created_at, id`,
		accountID, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var goalID *int64
		var kind, amount string
		if err := rows.Scan(&e.ID, &e.AccountID, &goalID, &kind, &amount,
			&e.Category, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("corrupt amount on entry %s: %w", e.ID, err)
		}
		e.Kind = domain.EntryKind(kind)
		e.GoalID = goalID
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// pgUow is the transactional record API handed to atomic closures.
type pgUow struct {
	tx pgx.Tx
}

func (u *pgUow) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return pgGetAccount(ctx, u.tx, id)
}

func (u *pgUow) UpdateAccountBalance(ctx context.Context, id int64, balance decimal.Decimal, version int64) error {
	tag, err := u.tx.Exec(ctx,
		"UPDATE accounts SET balance = $1, version = version + 1 WHERE id = $2 AND version = $3",
		balance.String(), id, version,
	)
	if err != nil {
		return err
	}
	// Existence was established by the read in this same scope, so a miss
	// here can only be a version mismatch.
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (u *pgUow) GetGoal(ctx context.Context, id int64) (*domain.Goal, error) {
	return pgGetGoal(ctx, u.tx, id)
}

func (u *pgUow) InsertGoal(ctx context.Context, g *domain.Goal) error {
	return u.tx.QueryRow(ctx,
		`INSERT INTO goals (account_id, title, description, target_amount, current_amount,
			status, target_date, priority, category, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10)
		 RETURNING id`,
		g.AccountID, g.Title, g.Description, g.TargetAmount.String(), g.CurrentAmount.String(),
		string(g.Status), g.TargetDate, g.Priority, g.Category, g.CreatedAt,
	).Scan(&g.ID)
}

func (u *pgUow) UpdateGoal(ctx context.Context, g *domain.Goal) error {
	tag, err := u.tx.Exec(ctx,
		`UPDATE goals SET current_amount = $1, status = $2, version = version + 1
		 WHERE id = $3 AND version = $4`,
		g.CurrentAmount.String(), string(g.Status), g.ID, g.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	g.Version++
	return nil
}

func (u *pgUow) AppendEntry(ctx context.Context, e *domain.LedgerEntry) error {
	_, err := u.tx.Exec(ctx,
		`INSERT INTO ledger_entries (id, account_id, goal_id, kind, amount, category, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.AccountID, e.GoalID, string(e.Kind), e.Amount.String(),
		e.Category, e.Description, e.CreatedAt,
	)
	return err
}

func (u *pgUow) InsertExpense(ctx context.Context, e *domain.Expense) error {
	return u.tx.QueryRow(ctx,
		`INSERT INTO expenses (account_id, amount, category, description, date)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		e.AccountID, e.Amount.String(), e.Category, e.Description, e.Date,
	).Scan(&e.ID)
}

func (u *pgUow) GetIdempotencyRecord(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	var respStatus *int
	err := u.tx.QueryRow(ctx,
		"SELECT key, request_hash, status, response_status, response_body FROM idempotency_keys WHERE key = $1",
		key,
	).Scan(&rec.Key, &rec.RequestHash, &rec.Status, &respStatus, &rec.ResponseBody)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if respStatus != nil {
		rec.ResponseStatus = *respStatus
	}
	return &rec, nil
}

func (u *pgUow) ReserveIdempotencyKey(ctx context.Context, key, requestHash string) error {
	_, err := u.tx.Exec(ctx,
		"INSERT INTO idempotency_keys (key, request_hash, status) VALUES ($1, $2, $3)",
		key, requestHash, domain.IdempotencyInProgress,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrIdempotencyKeyReserved
	}
	return err
}

func (u *pgUow) CompleteIdempotencyKey(ctx context.Context, key string, responseStatus int, responseBody []byte) error {
	_, err := u.tx.Exec(ctx,
		"UPDATE idempotency_keys SET status = $1, response_status = $2, response_body = $3 WHERE key = $4",
		domain.IdempotencyCompleted, responseStatus, responseBody, key,
	)
	return err
}

// Shared read helpers

func pgGetAccount(ctx context.Context, q pgQuerier, id int64) (*domain.Account, error) {
	var a domain.Account
	var balance string
	err := q.QueryRow(ctx,
		"SELECT id, balance::text, version, created_at FROM accounts WHERE id = $1", id,
	).Scan(&a.ID, &balance, &a.Version, &a.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("corrupt balance on account %d: %w", id, err)
	}
	return &a, nil
}

func pgGetGoal(ctx context.Context, q pgQuerier, id int64) (*domain.Goal, error) {
	row := q.QueryRow(ctx,
		`SELECT id, account_id, title, description, target_amount::text, current_amount::text,
			status, target_date, priority, category, version, created_at
		 FROM goals WHERE id = $1`, id)
	g, err := pgScanGoal(row)
	if err == pgx.ErrNoRows {
		return nil, ErrGoalNotFound
	}
	return g, err
}

func pgScanGoal(row pgx.Row) (*domain.Goal, error) {
	var g domain.Goal
	var target, current, status string
	var targetDate *time.Time
	err := row.Scan(&g.ID, &g.AccountID, &g.Title, &g.Description, &target, &current,
		&status, &targetDate, &g.Priority, &g.Category, &g.Version, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	if g.TargetAmount, err = decimal.NewFromString(target); err != nil {
		return nil, fmt.Errorf("corrupt target amount on goal %d: %w", g.ID, err)
	}
	if g.CurrentAmount, err = decimal.NewFromString(current); err != nil {
		return nil, fmt.Errorf("corrupt current amount on goal %d: %w", g.ID, err)
	}
	g.Status = domain.GoalStatus(status)
	g.TargetDate = targetDate
	return &g, nil
}

var _ Store = (*PostgresStore)(nil)
