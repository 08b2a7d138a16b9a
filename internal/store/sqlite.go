package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tmarchetti/goalbook/internal/domain"
	"modernc.org/sqlite"
)

// SQLiteStore is the embedded-database implementation of Store, used for
// local development and tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and runs migrations.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// The modernc driver does not serialize writers across connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("unable to ping sqlite database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			balance TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS goals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL REFERENCES accounts(id),
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			target_amount TEXT NOT NULL,
			current_amount TEXT NOT NULL,
			status TEXT NOT NULL,
			target_date DATETIME,
			priority TEXT NOT NULL,
			category TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id TEXT PRIMARY KEY,
			account_id INTEGER NOT NULL REFERENCES accounts(id),
			goal_id INTEGER,
			kind TEXT NOT NULL,
			amount TEXT NOT NULL,
			category TEXT NOT NULL,
			description TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS expenses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL REFERENCES accounts(id),
			amount TEXT NOT NULL,
			category TEXT NOT NULL,
			description TEXT NOT NULL,
			date DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
			key TEXT PRIMARY KEY,
			request_hash TEXT NOT NULL,
			status TEXT NOT NULL,
			response_status INTEGER,
			response_body BLOB,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_account_created
			ON ledger_entries(account_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() {
	s.db.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx so read helpers can be
// shared between the store and the unit of work.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RunAtomic executes fn inside one sqlite transaction. The closure's error
// is propagated unchanged and aborts every write made through the unit of
// work.
func (s *SQLiteStore) RunAtomic(ctx context.Context, fn func(UnitOfWork) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteUow{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateAccount(ctx context.Context, initialBalance decimal.Decimal) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO accounts (balance, created_at) VALUES (?, ?)",
		initialBalance.String(), time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return sqliteGetAccount(ctx, s.db, id)
}

func (s *SQLiteStore) GetGoal(ctx context.Context, id int64) (*domain.Goal, error) {
	return sqliteGetGoal(ctx, s.db, id)
}

func (s *SQLiteStore) ListGoals(ctx context.Context, accountID int64) ([]domain.Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, title, description, target_amount, current_amount,
			status, target_date, priority, category, version, created_at
		 FROM goals WHERE account_id = ? ORDER BY created_at DESC, id DESC`,
		accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var goals []domain.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, *g)
	}
	return goals, rows.Err()
}

func (s *SQLiteStore) ListEntries(ctx context.Context, accountID int64, from, to time.Time) ([]domain.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, goal_id, kind, amount, category, description, created_at
		 FROM ledger_entries
		 WHERE account_id = ? AND created_at >= ? AND created_at < ?
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
		var goalID sql.NullInt64
		var amount string
		if err := rows.Scan(&e.ID, &e.AccountID, &goalID, &e.Kind, &amount,
			&e.Category, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("corrupt amount on entry %s: %w", e.ID, err)
		}
		if goalID.Valid {
			e.GoalID = &goalID.Int64
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// sqliteUow is the transactional record API handed to atomic closures.
type sqliteUow struct {
	tx *sql.Tx
}

func (u *sqliteUow) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return sqliteGetAccount(ctx, u.tx, id)
}

func (u *sqliteUow) UpdateAccountBalance(ctx context.Context, id int64, balance decimal.Decimal, version int64) error {
	res, err := u.tx.ExecContext(ctx,
		"UPDATE accounts SET balance = ?, version = version + 1 WHERE id = ? AND version = ?",
		balance.String(), id, version,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	// Existence was established by the read in this same scope, so a miss
	// here can only be a version mismatch.
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (u *sqliteUow) GetGoal(ctx context.Context, id int64) (*domain.Goal, error) {
	return sqliteGetGoal(ctx, u.tx, id)
}

func (u *sqliteUow) InsertGoal(ctx context.Context, g *domain.Goal) error {
	var targetDate any
	if g.TargetDate != nil {
		targetDate = *g.TargetDate
	}
	res, err := u.tx.ExecContext(ctx,
		`INSERT INTO goals (account_id, title, description, target_amount, current_amount,
			status, target_date, priority, category, version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		g.AccountID, g.Title, g.Description, g.TargetAmount.String(), g.CurrentAmount.String(),
		string(g.Status), targetDate, g.Priority, g.Category, g.CreatedAt,
	)
	if err != nil {
		return err
	}
	g.ID, err = res.LastInsertId()
	return err
}

func (u *sqliteUow) UpdateGoal(ctx context.Context, g *domain.Goal) error {
	res, err := u.tx.ExecContext(ctx,
		`UPDATE goals SET current_amount = ?, status = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		g.CurrentAmount.String(), string(g.Status), g.ID, g.Version,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	g.Version++
	return nil
}

func (u *sqliteUow) AppendEntry(ctx context.Context, e *domain.LedgerEntry) error {
	var goalID any
	if e.GoalID != nil {
		goalID = *e.GoalID
	}
	_, err := u.tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, account_id, goal_id, kind, amount, category, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AccountID, goalID, string(e.Kind), e.Amount.String(),
		e.Category, e.Description, e.CreatedAt,
	)
	return err
}

func (u *sqliteUow) InsertExpense(ctx context.Context, e *domain.Expense) error {
	res, err := u.tx.ExecContext(ctx,
		"INSERT INTO expenses (account_id, amount, category, description, date) VALUES (?, ?, ?, ?, ?)",
		e.AccountID, e.Amount.String(), e.Category, e.Description, e.Date,
	)
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}

func (u *sqliteUow) GetIdempotencyRecord(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	var respStatus sql.NullInt64
	err := u.tx.QueryRowContext(ctx,
		"SELECT key, request_hash, status, response_status, response_body FROM idempotency_keys WHERE key = ?",
		key,
	).Scan(&rec.Key, &rec.RequestHash, &rec.Status, &respStatus, &rec.ResponseBody)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.ResponseStatus = int(respStatus.Int64)
	return &rec, nil
}

func (u *sqliteUow) ReserveIdempotencyKey(ctx context.Context, key, requestHash string) error {
	_, err := u.tx.ExecContext(ctx,
		"INSERT INTO idempotency_keys (key, request_hash, status) VALUES (?, ?, ?)",
		key, requestHash, domain.IdempotencyInProgress,
	)
	var serr *sqlite.Error
	if errors.As(err, &serr) && serr.Code()&0xff == 19 { // SQLITE_CONSTRAINT
		return ErrIdempotencyKeyReserved
	}
	return err
}

func (u *sqliteUow) CompleteIdempotencyKey(ctx context.Context, key string, responseStatus int, responseBody []byte) error {
	_, err := u.tx.ExecContext(ctx,
		"UPDATE idempotency_keys SET status = ?, response_status = ?, response_body = ? WHERE key = ?",
		domain.IdempotencyCompleted, responseStatus, responseBody, key,
	)
	return err
}

// Shared read helpers

func sqliteGetAccount(ctx context.Context, q querier, id int64) (*domain.Account, error) {
	var a domain.Account
	var balance string
	err := q.QueryRowContext(ctx,
		"SELECT id, balance, version, created_at FROM accounts WHERE id = ?", id,
	).Scan(&a.ID, &balance, &a.Version, &a.CreatedAt)
	if err == sql.ErrNoRows {
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

func sqliteGetGoal(ctx context.Context, q querier, id int64) (*domain.Goal, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, account_id, title, description, target_amount, current_amount,
			status, target_date, priority, category, version, created_at
		 FROM goals WHERE id = ?`, id)
	g, err := scanGoal(row)
	if err == sql.ErrNoRows {
		return nil, ErrGoalNotFound
	}
	return g, err
}

// rowScanner lets scanGoal work for both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanGoal(row rowScanner) (*domain.Goal, error) {
	var g domain.Goal
	var target, current, status string
	var targetDate sql.NullTime
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
	if targetDate.Valid {
		g.TargetDate = &targetDate.Time
	}
	return &g, nil
}

var _ Store = (*SQLiteStore)(nil)
