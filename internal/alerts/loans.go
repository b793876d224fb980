package alerts

import (
	"context"
	"fmt"
	"strings"

	"finwatch/internal/core"
	"finwatch/internal/log"
	"finwatch/internal/sources"
)

// LoanDueSoonWindow is how many days before the due date a loan reminder
// starts.
const LoanDueSoonWindow = 7

// NormalizeLoan maps either stored column generation onto the canonical
// loan record. The newer column wins when both are populated.
func NormalizeLoan(row core.LoanRow) core.Loan {
	return core.Loan{
		ID:           row.ID,
		PersonName:   coalesce(row.PersonName, row.BorrowerName),
		Amount:       row.Amount,
		AmountRepaid: row.AmountRepaid,
		DueDate:      coalesceDate(row.ExpectedReturnDate, row.DueDate),
		Status:       core.LoanStatus(strings.ToLower(coalesce(row.RepaymentStatus, row.Status))),
	}
}

func coalesce(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func coalesceDate(values ...core.Date) core.Date {
	for _, v := range values {
		if !v.IsEmpty() {
			return v
		}
	}
	return core.Date{}
}

type LoanFetcher struct {
	reader sources.LoanReader
	logger *log.Logger
}

func NewLoanFetcher(reader sources.LoanReader, logger *log.Logger) *LoanFetcher {
	return &LoanFetcher{reader: reader, logger: logger}
}

func (f *LoanFetcher) Name() string { return SourceLending }

func (f *LoanFetcher) Fetch(ctx context.Context, req Request) []core.Notification {
	rows, err := f.reader.ActiveLoans(ctx, req.UserID)
	if err != nil {
		logFetchError(ctx, f.logger, SourceLending, req, err)
		return nil
	}

	today := req.Today()
	var out []core.Notification
	for _, row := range rows {
		loan := NormalizeLoan(row)
		if !loan.Status.IsActive() || loan.DueDate.IsEmpty() {
			continue
		}
		daysOverdue := loan.DueDate.DaysUntil(today)
		outstanding := loan.Outstanding()

		switch {
		case daysOverdue > 0:
			out = append(out, core.Notification{
				ID:        "loan-overdue-" + loan.ID,
				Type:      core.LoanOverdue,
				Priority:  core.PriorityHigh,
				Title:     "Loan overdue",
				Message:   fmt.Sprintf("%s still owes you %s, %d days overdue", personOrUnknown(loan), outstanding, daysOverdue),
				Icon:      "hand-coins",
				Color:     "red",
				Timestamp: req.Now,
				ActionURL: "/lending",
				Metadata: core.Metadata{
					LoanID:      loan.ID,
					DaysOverdue: core.IntPtr(daysOverdue),
					AmountCents: core.Int64Ptr(outstanding.Cents),
				},
			})
		case daysOverdue < 0 && daysOverdue >= -LoanDueSoonWindow:
			daysUntil := -daysOverdue
			out = append(out, core.Notification{
				ID:        "loan-due-soon-" + loan.ID,
				Type:      core.LoanDueSoon,
				Priority:  core.PriorityMedium,
				Title:     "Loan due soon",
				Message:   fmt.Sprintf("%s's loan of %s is due in %d days", personOrUnknown(loan), outstanding, daysUntil),
				Icon:      "hand-coins",
				Color:     "orange",
				Timestamp: req.Now,
				ActionURL: "/lending",
				Metadata: core.Metadata{
					LoanID:      loan.ID,
					DaysUntil:   core.IntPtr(daysUntil),
					AmountCents: core.Int64Ptr(outstanding.Cents),
				},
			})
		}
	}
	return out
}

func personOrUnknown(l core.Loan) string {
	if l.PersonName == "" {
		return "Someone"
	}
	return l.PersonName
}
