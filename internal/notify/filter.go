package notify

import "finwatch/internal/core"

// Suppression answers whether a notification is hidden by a dismissal or an
// earlier action. suppression.View implements it.
type Suppression interface {
	IsDismissed(id string) bool
	IsActioned(n core.Notification) bool
}

// Filter derives the displayed list from the canonical set. It drops
// suppressed notifications and, in urgent-only mode, everything IsUrgent
// rejects. Order is preserved and the input is not modified.
func Filter(all []core.Notification, urgentOnly bool, s Suppression) []core.Notification {
	out := make([]core.Notification, 0, len(all))
	for _, n := range all {
		if s.IsActioned(n) || s.IsDismissed(n.ID) {
			continue
		}
		if urgentOnly && !IsUrgent(n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// IsUrgent is the urgent-only heuristic. High priority always qualifies and
// low never does. Medium qualifies when it is overdue, due within two days,
// or a budget_exceeded/budget_critical alert; budget_warning is low priority
// and therefore always excluded.
func IsUrgent(n core.Notification) bool {
	switch n.Priority {
	case core.PriorityHigh:
		return true
	case core.PriorityMedium:
		md := n.Metadata
		return (md.DaysOverdue != nil && *md.DaysOverdue >= 0) ||
			(md.DaysUntil != nil && *md.DaysUntil <= 2) ||
			n.Type == core.BudgetExceeded ||
			n.Type == core.BudgetCritical
	default:
		return false
	}
}
