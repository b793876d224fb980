package alerts

import (
	"sort"

	"finwatch/internal/core"
)

// Tier describes one notification band of a percentage-driven rule. A value
// falls into the first tier whose Threshold it reaches, scanning from the
// highest threshold down.
type Tier struct {
	Level     int
	Threshold float64
	Type      core.NotificationType
	Priority  core.Priority
	IDPrefix  string
	Title     string
	Icon      string
	Color     string
}

// TierSet is an ordered list of tiers for one rule.
type TierSet []Tier

// Classify returns the tier a percentage falls into. ok is false below the
// lowest threshold.
func (ts TierSet) Classify(pct float64) (Tier, bool) {
	for _, t := range ts {
		if pct >= t.Threshold {
			return t, true
		}
	}
	return Tier{}, false
}

func newTierSet(tiers ...Tier) TierSet {
	ts := TierSet(tiers)
	sort.SliceStable(ts, func(i, j int) bool { return ts[i].Threshold > ts[j].Threshold })
	return ts
}

var budgetTiers = newTierSet(
	Tier{Level: 3, Threshold: 100, Type: core.BudgetExceeded, Priority: core.PriorityHigh,
		IDPrefix: "budget-exceeded", Title: "Budget exceeded", Icon: "alert-circle", Color: "red"},
	Tier{Level: 2, Threshold: 90, Type: core.BudgetCritical, Priority: core.PriorityMedium,
		IDPrefix: "budget-critical", Title: "Budget almost spent", Icon: "alert-triangle", Color: "orange"},
	Tier{Level: 1, Threshold: 75, Type: core.BudgetWarning, Priority: core.PriorityLow,
		IDPrefix: "budget-warning", Title: "Budget warning", Icon: "info", Color: "yellow"},
)

var goalTiers = newTierSet(
	Tier{Level: 3, Threshold: 100, Type: core.GoalComplete, Priority: core.PriorityHigh,
		IDPrefix: "goal-complete", Title: "Goal reached", Icon: "trophy", Color: "green"},
	Tier{Level: 2, Threshold: 90, Type: core.GoalMilestone, Priority: core.PriorityMedium,
		IDPrefix: "goal-near", Title: "Almost there", Icon: "target", Color: "blue"},
	Tier{Level: 1, Threshold: 75, Type: core.GoalMilestone, Priority: core.PriorityLow,
		IDPrefix: "goal-progress", Title: "Goal progress", Icon: "trending-up", Color: "blue"},
)

// DayBand describes a bill reminder bucket keyed on days until due.
type DayBand struct {
	Type     core.NotificationType
	Priority core.Priority
	IDPrefix string
	Title    string
	Color    string
}

// billBands maps days-until-due to its reminder bucket. Two days out is
// grouped with three days out as "due soon".
var billBands = map[int]DayBand{
	0: {Type: core.BillDueToday, Priority: core.PriorityHigh, IDPrefix: "bill-due-today", Title: "Bill due today", Color: "red"},
	1: {Type: core.BillDueTomorrow, Priority: core.PriorityMedium, IDPrefix: "bill-due-tomorrow", Title: "Bill due tomorrow", Color: "orange"},
	2: {Type: core.BillDueSoon, Priority: core.PriorityLow, IDPrefix: "bill-due-soon", Title: "Bill due soon", Color: "yellow"},
	3: {Type: core.BillDueSoon, Priority: core.PriorityLow, IDPrefix: "bill-due-soon", Title: "Bill due soon", Color: "yellow"},
}

// BillBand returns the reminder bucket for a bill due in days days.
func BillBand(days int) (DayBand, bool) {
	b, ok := billBands[days]
	return b, ok
}
