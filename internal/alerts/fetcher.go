// Package alerts turns ledger records into notifications. Each source
// category has its own Fetcher; fetchers never fail, they log and degrade to
// an empty result so one broken source cannot hide the others.
package alerts

import (
	"context"
	"time"

	"finwatch/internal/core"
	"finwatch/internal/log"
	"finwatch/internal/sources"
)

// Request identifies whose notifications to compute and the instant the
// aggregation cycle runs at. Every notification of the cycle carries Now as
// its timestamp.
type Request struct {
	UserID string
	Now    time.Time
}

// Today is the calendar day of Now in Now's location.
func (r Request) Today() core.Date {
	return core.DateOf(r.Now)
}

// Fetcher produces the notifications of one source category.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, req Request) []core.Notification
}

// Source names, also used as log fields.
const (
	SourceBudgets  = "budgets"
	SourceBills    = "bills"
	SourceGoals    = "goals"
	SourceBalances = "balances"
	SourceLending  = "lending"
)

// BillReminderWindow is how far ahead bill reminders look. The dashboard's
// weekly bill widget uses its own 7 day window.
const BillReminderWindow = 3

// NewSet builds the five fetchers over one ledger. The budget fetcher keeps
// per-budget tier memory for toasts, so build one set per user session.
func NewSet(ledger sources.Ledger, toaster Toaster, logger *log.Logger) []Fetcher {
	logger = logger.WithComponent(log.ComponentAlerts)
	return []Fetcher{
		NewBudgetFetcher(ledger, toaster, logger),
		NewBillFetcher(ledger, logger),
		NewGoalFetcher(ledger, logger),
		NewBalanceFetcher(ledger, logger),
		NewLoanFetcher(ledger, logger),
	}
}

func logFetchError(ctx context.Context, logger *log.Logger, source string, req Request, err error) {
	fields := log.NewFields().
		WithSource(source).
		WithUser(req.UserID).
		WithOperation(log.OpFetch).
		WithError(err)
	logger.ErrorContext(ctx, "Source query failed, contributing no notifications", fields.ToSlice()...)
}
