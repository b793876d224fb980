package core

import "time"

// NotificationType identifies the condition a notification reports.
type NotificationType string

const (
	BudgetExceeded  NotificationType = "budget_exceeded"
	BudgetCritical  NotificationType = "budget_critical"
	BudgetWarning   NotificationType = "budget_warning"
	BillDueToday    NotificationType = "bill_due_today"
	BillDueTomorrow NotificationType = "bill_due_tomorrow"
	BillDueSoon     NotificationType = "bill_due_soon"
	GoalComplete    NotificationType = "goal_complete"
	GoalMilestone   NotificationType = "goal_milestone"
	GoalDeadline    NotificationType = "goal_deadline"
	LowBalance      NotificationType = "low_balance"
	BalanceWarning  NotificationType = "balance_warning"
	LoanOverdue     NotificationType = "loan_overdue"
	LoanDueSoon     NotificationType = "loan_due_soon"
)

// Priority drives sort order and urgent-only filtering.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities: high sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Metadata carries type-specific fields. Absent values are nil and omitted
// from JSON; the urgency heuristic distinguishes "absent" from zero.
type Metadata struct {
	DaysUntil   *int     `json:"daysUntil,omitempty"`
	DaysOverdue *int     `json:"daysOverdue,omitempty"`
	Percentage  *float64 `json:"percentage,omitempty"`
	BudgetID    string   `json:"budgetId,omitempty"`
	BillID      string   `json:"billId,omitempty"`
	GoalID      string   `json:"goalId,omitempty"`
	AccountID   string   `json:"accountId,omitempty"`
	LoanID      string   `json:"loanId,omitempty"`
	AmountCents *int64   `json:"amountCents,omitempty"`
}

// Notification is one entry of the aggregated feed.
//
// ID is derived from the identity of the underlying condition and is stable
// across aggregation cycles; suppression entries are keyed on it.
//
// Timestamp is the instant the condition was last recomputed, not a creation
// time: every notification built in one aggregation cycle carries that
// cycle's instant. Actioned suppression compares against it.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Priority  Priority         `json:"priority"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Icon      string           `json:"icon"`
	Color     string           `json:"color"`
	Timestamp time.Time        `json:"timestamp"`
	IsRead    bool             `json:"isRead"`
	ActionURL string           `json:"actionUrl"`
	Metadata  Metadata         `json:"metadata"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 { return &v }

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 { return &v }
