package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"finwatch/internal/core"
	"finwatch/internal/log"
	"finwatch/internal/sources"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour and migration set.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

var _ sources.Ledger = (*Repository)(nil)

// Repository reads the finance ledger and stores per-user documents. The
// same queries serve SQLite and Postgres; placeholders are rebound per
// driver.
type Repository struct {
	db      *sqlx.DB
	dialect Dialect
}

// PoolConfig tunes the Postgres connection pool.
type PoolConfig struct {
	MaxOpenConns int
	MaxIdleConns int
	MaxIdleTime  time.Duration
}

func NewRepository(db *sqlx.DB, dialect Dialect) *Repository {
	return &Repository{db: db, dialect: dialect}
}

// OpenSQLite creates the database file if needed, applies migrations and
// returns a ready repository.
func OpenSQLite(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if err := RunMigrations(DialectSQLite, dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return NewRepository(db, DialectSQLite), nil
}

// OpenPostgres connects through the pgx stdlib driver, pings with a bounded
// timeout and applies migrations.
func OpenPostgres(ctx context.Context, dsn string, pool PoolConfig) (*Repository, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.MaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pool.MaxIdleTime)
	}

	pingCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(DialectPostgres, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return NewRepository(db, DialectPostgres), nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// date renders a placeholder for a YYYY-MM-DD argument compared against a
// date column. SQLite stores dates as ISO text and compares lexically.
func (r *Repository) date() string {
	if r.dialect == DialectPostgres {
		return "CAST(? AS DATE)"
	}
	return "?"
}

type budgetRow struct {
	ID         string `db:"id"`
	Category   string `db:"category"`
	LimitCents int64  `db:"monthly_limit_cents"`
	SpentCents int64  `db:"spent_cents"`
}

// BudgetsWithSpend returns each budget with the sum of same-category
// expenses falling inside today's calendar month.
func (r *Repository) BudgetsWithSpend(ctx context.Context, userID string, today core.Date) ([]core.BudgetSpend, error) {
	start, end := today.MonthBounds()
	query := r.db.Rebind(`
		SELECT b.id, b.category, b.monthly_limit_cents,
			CAST(COALESCE((
				SELECT SUM(e.amount_cents) FROM expenses e
				WHERE e.user_id = b.user_id
					AND LOWER(e.category) = LOWER(b.category)
					AND e.spent_on >= ` + r.date() + `
					AND e.spent_on < ` + r.date() + `
			), 0) AS BIGINT) AS spent_cents
		FROM budgets b
		WHERE b.user_id = ?
		ORDER BY b.category, b.id`)

	var rows []budgetRow
	if err := r.db.SelectContext(ctx, &rows, query, start.String(), end.String(), userID); err != nil {
		return nil, fmt.Errorf("select budgets with spend: %w", err)
	}

	out := make([]core.BudgetSpend, len(rows))
	for i, row := range rows {
		out[i] = core.BudgetSpend{
			ID:             row.ID,
			Category:       row.Category,
			Limit:          core.Money{Cents: row.LimitCents},
			SpentThisMonth: core.Money{Cents: row.SpentCents},
		}
	}
	return out, nil
}

type billRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	AmountCents int64          `db:"amount_cents"`
	DueDate     sql.NullString `db:"due_date"`
}

// DueBills returns unpaid bills due between today and today+daysAhead
// inclusive, nearest first.
func (r *Repository) DueBills(ctx context.Context, userID string, today core.Date, daysAhead int) ([]core.DueBill, error) {
	until := core.Date{Time: today.AddDate(0, 0, daysAhead)}
	query := r.db.Rebind(`
		SELECT id, name, amount_cents, due_date
		FROM bills
		WHERE user_id = ?
			AND NOT is_paid
			AND due_date >= ` + r.date() + `
			AND due_date <= ` + r.date() + `
		ORDER BY due_date, id`)

	var rows []billRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, today.String(), until.String()); err != nil {
		return nil, fmt.Errorf("select due bills: %w", err)
	}

	out := make([]core.DueBill, 0, len(rows))
	for _, row := range rows {
		due, err := core.ParseDate(row.DueDate.String)
		if err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Skipping bill with unparseable due date",
				log.FieldComponent, log.ComponentStorage,
				"bill_id", row.ID, "due_date", row.DueDate.String, log.FieldError, err)
			continue
		}
		out = append(out, core.DueBill{
			ID:           row.ID,
			Name:         row.Name,
			Amount:       core.Money{Cents: row.AmountCents},
			DueDate:      due,
			DaysUntilDue: today.DaysUntil(due),
		})
	}
	return out, nil
}

type goalRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	CurrentCents int64          `db:"current_cents"`
	TargetCents  int64          `db:"target_cents"`
	TargetDate   sql.NullString `db:"target_date"`
}

func (r *Repository) ActiveGoals(ctx context.Context, userID string) ([]core.Goal, error) {
	query := r.db.Rebind(`
		SELECT id, name, current_cents, target_cents, target_date
		FROM goals
		WHERE user_id = ? AND status = 'active'
		ORDER BY id`)

	var rows []goalRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("select active goals: %w", err)
	}

	out := make([]core.Goal, len(rows))
	for i, row := range rows {
		out[i] = core.Goal{
			ID:            row.ID,
			Name:          row.Name,
			CurrentAmount: core.Money{Cents: row.CurrentCents},
			TargetAmount:  core.Money{Cents: row.TargetCents},
			TargetDate:    nullDate(row.TargetDate),
		}
	}
	return out, nil
}

type accountRow struct {
	ID           string `db:"id"`
	Name         string `db:"name"`
	BalanceCents int64  `db:"balance_cents"`
	MinimumCents int64  `db:"minimum_balance_cents"`
}

func (r *Repository) ActiveAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	query := r.db.Rebind(`
		SELECT id, name, balance_cents, minimum_balance_cents
		FROM accounts
		WHERE user_id = ? AND is_active
		ORDER BY id`)

	var rows []accountRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("select active accounts: %w", err)
	}

	out := make([]core.Account, len(rows))
	for i, row := range rows {
		out[i] = core.Account{
			ID:             row.ID,
			Name:           row.Name,
			Balance:        core.Money{Cents: row.BalanceCents},
			MinimumBalance: core.Money{Cents: row.MinimumCents},
		}
	}
	return out, nil
}

type loanRow struct {
	ID                 string         `db:"id"`
	AmountCents        int64          `db:"amount_cents"`
	AmountRepaidCents  int64          `db:"amount_repaid_cents"`
	PersonName         sql.NullString `db:"person_name"`
	BorrowerName       sql.NullString `db:"borrower_name"`
	Status             sql.NullString `db:"status"`
	RepaymentStatus    sql.NullString `db:"repayment_status"`
	DueDate            sql.NullString `db:"due_date"`
	ExpectedReturnDate sql.NullString `db:"expected_return_date"`
}

// ActiveLoans returns the user's loan rows with both column generations
// populated as stored. Activity depends on the coalesced status, which is
// resolved by the caller's normalization step.
func (r *Repository) ActiveLoans(ctx context.Context, userID string) ([]core.LoanRow, error) {
	query := r.db.Rebind(`
		SELECT id, amount_cents, amount_repaid_cents,
			person_name, borrower_name, status, repayment_status,
			due_date, expected_return_date
		FROM loans
		WHERE user_id = ?
		ORDER BY id`)

	var rows []loanRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("select loans: %w", err)
	}

	out := make([]core.LoanRow, len(rows))
	for i, row := range rows {
		out[i] = core.LoanRow{
			ID:                 row.ID,
			Amount:             core.Money{Cents: row.AmountCents},
			AmountRepaid:       core.Money{Cents: row.AmountRepaidCents},
			PersonName:         row.PersonName.String,
			BorrowerName:       row.BorrowerName.String,
			Status:             row.Status.String,
			RepaymentStatus:    row.RepaymentStatus.String,
			DueDate:            nullDate(row.DueDate),
			ExpectedReturnDate: nullDate(row.ExpectedReturnDate),
		}
	}
	return out, nil
}

// nullDate maps NULL, blank and unparseable values to the zero date.
func nullDate(s sql.NullString) core.Date {
	if !s.Valid || strings.TrimSpace(s.String) == "" {
		return core.Date{}
	}
	d, err := core.ParseDate(s.String)
	if err != nil {
		return core.Date{}
	}
	return d
}
