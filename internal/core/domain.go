package core

import (
	"errors"
	"strings"
	"time"
)

// Loan repayment states. Only pending and partial loans are active.
const (
	LoanPending  LoanStatus = "pending"
	LoanPartial  LoanStatus = "partial"
	LoanRepaid   LoanStatus = "repaid"
	LoanForgiven LoanStatus = "forgiven"
)

type (
	LoanStatus string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// BudgetSpend is a monthly budget together with what was spent against it
	// in the current month.
	BudgetSpend struct {
		ID             string
		Category       string
		Limit          Money
		SpentThisMonth Money
	}

	// DueBill is an unpaid bill falling inside the reminder window.
	DueBill struct {
		ID           string
		Name         string
		Amount       Money
		DueDate      Date
		DaysUntilDue int
	}

	// Goal is an active savings goal. TargetDate is optional.
	Goal struct {
		ID            string
		Name          string
		CurrentAmount Money
		TargetAmount  Money
		TargetDate    Date
	}

	// Account is an active money account with an optional floor.
	Account struct {
		ID             string
		Name           string
		Balance        Money
		MinimumBalance Money
	}

	// LoanRow is a loan as stored. Two schema generations coexist in the
	// ledger, so every naming-sensitive column is optional.
	LoanRow struct {
		ID                 string
		Amount             Money
		AmountRepaid       Money
		PersonName         string
		BorrowerName       string
		Status             string
		RepaymentStatus    string
		DueDate            Date
		ExpectedReturnDate Date
	}

	// Loan is the canonical lending record used by the reminder rules.
	Loan struct {
		ID           string
		PersonName   string
		Amount       Money
		AmountRepaid Money
		DueDate      Date
		Status       LoanStatus
	}
)

var (
	ErrInvalidDay    = errors.New("invalid day")
	ErrInvalidMonth  = errors.New("invalid month")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyID       = errors.New("empty id")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its calendar day in the instant's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses YYYY-MM-DD. Longer inputs (timestamps) are cut to their
// date prefix.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > 10 {
		s = s[:10]
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// IsEmpty returns true if the date is zero (optional dates)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// DaysUntil returns the whole number of calendar days from d to other.
// Negative when other is before d.
func (d Date) DaysUntil(other Date) int {
	return int(other.Time.Sub(d.Time).Hours() / 24)
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

// MonthBounds returns the first day of d's month and the first day of the
// following month.
func (d Date) MonthBounds() (Date, Date) {
	start := NewDate(d.Year(), d.Month(), 1)
	return start, Date{Time: start.AddDate(0, 1, 0)}
}

func (b BudgetSpend) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return ErrEmptyID
	}
	return nil
}

// Percentage returns spent/limit*100. A non-positive limit has no meaningful
// percentage and reports false.
func (b BudgetSpend) Percentage() (float64, bool) {
	if b.Limit.Cents <= 0 {
		return 0, false
	}
	return float64(b.SpentThisMonth.Cents) / float64(b.Limit.Cents) * 100, true
}

// Progress returns current/target*100.
func (g Goal) Progress() (float64, bool) {
	if g.TargetAmount.Cents <= 0 {
		return 0, false
	}
	return float64(g.CurrentAmount.Cents) / float64(g.TargetAmount.Cents) * 100, true
}

// IsActive reports whether the loan is still awaiting repayment.
func (s LoanStatus) IsActive() bool {
	return s == LoanPending || s == LoanPartial
}

// Outstanding returns what is still owed on the loan.
func (l Loan) Outstanding() Money {
	return Money{Cents: l.Amount.Cents - l.AmountRepaid.Cents}
}
