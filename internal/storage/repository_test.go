package storage

import (
	"context"
	"errors"
	"testing"

	"finwatch/internal/core"
	"finwatch/internal/kv"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockRepo(t *testing.T, dialect Dialect) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepository(sqlx.NewDb(db, dialect.driverName()), dialect), mock
}

func TestRepository_BudgetsWithSpend(t *testing.T) {
	repo, mock := newMockRepo(t, DialectSQLite)

	rows := sqlmock.NewRows([]string{"id", "category", "monthly_limit_cents", "spent_cents"}).
		AddRow("b-1", "Food", int64(20000), int64(21000)).
		AddRow("b-2", "Fun", int64(0), int64(500))

	mock.ExpectQuery("SELECT (.+) FROM budgets b").
		WithArgs("2025-03-01", "2025-04-01", "u-1").
		WillReturnRows(rows)

	got, err := repo.BudgetsWithSpend(context.Background(), "u-1", core.NewDate(2025, 3, 17))
	if err != nil {
		t.Fatalf("BudgetsWithSpend failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 budgets, got %d", len(got))
	}
	if got[0].Limit.Cents != 20000 || got[0].SpentThisMonth.Cents != 21000 {
		t.Errorf("unexpected budget: %+v", got[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepository_DueBills(t *testing.T) {
	repo, mock := newMockRepo(t, DialectSQLite)

	rows := sqlmock.NewRows([]string{"id", "name", "amount_cents", "due_date"}).
		AddRow("bill-1", "Rent", int64(90000), "2025-03-10").
		AddRow("bill-2", "Power", int64(4500), "2025-03-12T00:00:00Z").
		AddRow("bill-3", "Broken", int64(1), "not-a-date")

	mock.ExpectQuery("SELECT (.+) FROM bills").
		WithArgs("u-1", "2025-03-10", "2025-03-13").
		WillReturnRows(rows)

	got, err := repo.DueBills(context.Background(), "u-1", core.NewDate(2025, 3, 10), 3)
	if err != nil {
		t.Fatalf("DueBills failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected unparseable row to be skipped, got %+v", got)
	}
	if got[0].DaysUntilDue != 0 || got[1].DaysUntilDue != 2 {
		t.Errorf("unexpected days until due: %d, %d", got[0].DaysUntilDue, got[1].DaysUntilDue)
	}
}

func TestRepository_PostgresRebind(t *testing.T) {
	repo, mock := newMockRepo(t, DialectPostgres)

	mock.ExpectQuery(`FROM bills\s+WHERE user_id = \$1\s+AND NOT is_paid\s+AND due_date >= CAST\(\$2 AS DATE\)`).
		WithArgs("u-1", "2025-03-10", "2025-03-13").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "amount_cents", "due_date"}))

	if _, err := repo.DueBills(context.Background(), "u-1", core.NewDate(2025, 3, 10), 3); err != nil {
		t.Fatalf("DueBills failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepository_ActiveGoalsAndAccounts(t *testing.T) {
	repo, mock := newMockRepo(t, DialectSQLite)

	mock.ExpectQuery("SELECT (.+) FROM goals").
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "current_cents", "target_cents", "target_date"}).
			AddRow("g-1", "Bike", int64(9500), int64(10000), "2025-04-01").
			AddRow("g-2", "Trip", int64(0), int64(10000), nil))

	goals, err := repo.ActiveGoals(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("ActiveGoals failed: %v", err)
	}
	if goals[0].TargetDate.String() != "2025-04-01" || !goals[1].TargetDate.IsEmpty() {
		t.Errorf("unexpected target dates: %+v", goals)
	}

	mock.ExpectQuery("SELECT (.+) FROM accounts").
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "balance_cents", "minimum_balance_cents"}).
			AddRow("a-1", "Checking", int64(-500), int64(10000)))

	accounts, err := repo.ActiveAccounts(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("ActiveAccounts failed: %v", err)
	}
	if len(accounts) != 1 || accounts[0].Balance.Cents != -500 || accounts[0].MinimumBalance.Cents != 10000 {
		t.Errorf("unexpected accounts: %+v", accounts)
	}
}

func TestRepository_ActiveLoansKeepsBothColumnGenerations(t *testing.T) {
	repo, mock := newMockRepo(t, DialectSQLite)

	rows := sqlmock.NewRows([]string{
		"id", "amount_cents", "amount_repaid_cents", "person_name", "borrower_name",
		"status", "repayment_status", "due_date", "expected_return_date",
	}).
		AddRow("l-1", int64(5000), int64(0), "Ann", nil, "pending", nil, "2025-03-01", nil).
		AddRow("l-2", int64(8000), int64(2000), nil, "Bob", nil, "partial", nil, "2025-03-20")

	mock.ExpectQuery("SELECT (.+) FROM loans").WithArgs("u-1").WillReturnRows(rows)

	loans, err := repo.ActiveLoans(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("ActiveLoans failed: %v", err)
	}
	if loans[0].PersonName != "Ann" || loans[0].Status != "pending" || loans[0].DueDate.String() != "2025-03-01" {
		t.Errorf("unexpected first loan: %+v", loans[0])
	}
	if loans[1].BorrowerName != "Bob" || loans[1].RepaymentStatus != "partial" || loans[1].ExpectedReturnDate.String() != "2025-03-20" {
		t.Errorf("unexpected second loan: %+v", loans[1])
	}
	if !loans[1].DueDate.IsEmpty() {
		t.Errorf("NULL due_date should map to the zero date")
	}
}

func TestRepository_QueryErrorIsWrapped(t *testing.T) {
	repo, mock := newMockRepo(t, DialectSQLite)
	boom := errors.New("connection reset")

	mock.ExpectQuery("SELECT (.+) FROM goals").WithArgs("u-1").WillReturnError(boom)

	if _, err := repo.ActiveGoals(context.Background(), "u-1"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestRepository_Documents(t *testing.T) {
	repo, mock := newMockRepo(t, DialectSQLite)
	ctx := context.Background()

	mock.ExpectQuery("SELECT value FROM user_documents").
		WithArgs("u-1", "dismissed_notifications").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	if _, err := repo.Get(ctx, "u-1", "dismissed_notifications"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected kv.ErrNotFound, got %v", err)
	}

	mock.ExpectExec("INSERT INTO user_documents").
		WithArgs("u-1", "dismissed_notifications", `{"a":1}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Put(ctx, "u-1", "dismissed_notifications", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	mock.ExpectQuery("SELECT value FROM user_documents").
		WithArgs("u-1", "dismissed_notifications").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(`{"a":1}`))

	got, err := repo.Get(ctx, "u-1", "dismissed_notifications")
	if err != nil || string(got) != `{"a":1}` {
		t.Fatalf("Get = %q, %v", got, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
