package sources

import (
	"context"

	"finwatch/internal/core"
)

// Ports for the ledger the notification engine reads from. Each port is
// parameterized by the user the data belongs to; none of them mutate.
type (
	BudgetReader interface {
		// BudgetsWithSpend returns every budget of the user together with
		// the amount spent in the month containing today.
		BudgetsWithSpend(ctx context.Context, userID string, today core.Date) ([]core.BudgetSpend, error)
	}

	BillReader interface {
		// DueBills returns unpaid bills due between today and today+daysAhead
		// inclusive, with DaysUntilDue filled in.
		DueBills(ctx context.Context, userID string, today core.Date, daysAhead int) ([]core.DueBill, error)
	}

	GoalReader interface {
		ActiveGoals(ctx context.Context, userID string) ([]core.Goal, error)
	}

	AccountReader interface {
		ActiveAccounts(ctx context.Context, userID string) ([]core.Account, error)
	}

	// LoanReader returns loans in their stored shape; normalization between
	// the two column naming generations happens in the lending fetcher.
	LoanReader interface {
		ActiveLoans(ctx context.Context, userID string) ([]core.LoanRow, error)
	}

	// Ledger bundles every reader a backend must provide.
	Ledger interface {
		BudgetReader
		BillReader
		GoalReader
		AccountReader
		LoanReader
	}
)
