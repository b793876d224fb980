package alerts

import (
	"context"
	"fmt"

	"finwatch/internal/core"
	"finwatch/internal/log"
	"finwatch/internal/sources"
)

// GoalDeadlineWindow is how many days before a goal's target date the
// deadline reminder starts.
const GoalDeadlineWindow = 7

// GoalFetcher emits up to two notifications per goal: one for its progress
// tier and, independently, one when the target date is near and the goal is
// not yet funded.
type GoalFetcher struct {
	reader sources.GoalReader
	logger *log.Logger
}

func NewGoalFetcher(reader sources.GoalReader, logger *log.Logger) *GoalFetcher {
	return &GoalFetcher{reader: reader, logger: logger}
}

func (f *GoalFetcher) Name() string { return SourceGoals }

func (f *GoalFetcher) Fetch(ctx context.Context, req Request) []core.Notification {
	goals, err := f.reader.ActiveGoals(ctx, req.UserID)
	if err != nil {
		logFetchError(ctx, f.logger, SourceGoals, req, err)
		return nil
	}

	today := req.Today()
	var out []core.Notification
	for _, g := range goals {
		progress, ok := g.Progress()
		if !ok {
			continue
		}

		if tier, hit := goalTiers.Classify(progress); hit {
			out = append(out, core.Notification{
				ID:        tier.IDPrefix + "-" + g.ID,
				Type:      tier.Type,
				Priority:  tier.Priority,
				Title:     tier.Title,
				Message:   goalMessage(g, progress),
				Icon:      tier.Icon,
				Color:     tier.Color,
				Timestamp: req.Now,
				ActionURL: "/goals",
				Metadata: core.Metadata{
					GoalID:     g.ID,
					Percentage: core.Float64Ptr(progress),
				},
			})
		}

		if g.TargetDate.IsEmpty() || progress >= 100 {
			continue
		}
		days := today.DaysUntil(g.TargetDate)
		if days <= 0 || days > GoalDeadlineWindow {
			continue
		}
		out = append(out, core.Notification{
			ID:        "goal-deadline-" + g.ID,
			Type:      core.GoalDeadline,
			Priority:  core.PriorityMedium,
			Title:     "Goal deadline approaching",
			Message:   fmt.Sprintf("%s is due in %d days and is %.0f%% funded", g.Name, days, progress),
			Icon:      "clock",
			Color:     "orange",
			Timestamp: req.Now,
			ActionURL: "/goals",
			Metadata: core.Metadata{
				GoalID:     g.ID,
				DaysUntil:  core.IntPtr(days),
				Percentage: core.Float64Ptr(progress),
			},
		})
	}
	return out
}

func goalMessage(g core.Goal, progress float64) string {
	if progress >= 100 {
		return fmt.Sprintf("%s has reached its target of %s", g.Name, g.TargetAmount)
	}
	return fmt.Sprintf("%s is %.0f%% funded (%s of %s)", g.Name, progress, g.CurrentAmount, g.TargetAmount)
}
