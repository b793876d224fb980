package alerts

import (
	"context"
	"fmt"
	"sync"

	"finwatch/internal/core"
	"finwatch/internal/log"
	"finwatch/internal/sources"
)

// BudgetFetcher emits at most one alert per budget, for the highest tier the
// month's spend reaches. It also remembers each budget's tier between cycles
// and toasts when a budget climbs to a higher tier.
type BudgetFetcher struct {
	reader  sources.BudgetReader
	toaster Toaster
	logger  *log.Logger

	mu        sync.Mutex
	lastLevel map[string]int
}

func NewBudgetFetcher(reader sources.BudgetReader, toaster Toaster, logger *log.Logger) *BudgetFetcher {
	return &BudgetFetcher{
		reader:    reader,
		toaster:   toaster,
		logger:    logger,
		lastLevel: make(map[string]int),
	}
}

func (f *BudgetFetcher) Name() string { return SourceBudgets }

func (f *BudgetFetcher) Fetch(ctx context.Context, req Request) []core.Notification {
	budgets, err := f.reader.BudgetsWithSpend(ctx, req.UserID, req.Today())
	if err != nil {
		logFetchError(ctx, f.logger, SourceBudgets, req, err)
		return nil
	}

	var out []core.Notification
	for _, b := range budgets {
		pct, ok := b.Percentage()
		if !ok {
			continue
		}
		tier, hit := budgetTiers.Classify(pct)
		f.observe(ctx, req, b, pct, tier, hit)
		if !hit {
			continue
		}
		out = append(out, core.Notification{
			ID:        tier.IDPrefix + "-" + b.ID,
			Type:      tier.Type,
			Priority:  tier.Priority,
			Title:     tier.Title,
			Message:   budgetMessage(b, pct, tier.Type),
			Icon:      tier.Icon,
			Color:     tier.Color,
			Timestamp: req.Now,
			ActionURL: "/budgets",
			Metadata: core.Metadata{
				BudgetID:    b.ID,
				Percentage:  core.Float64Ptr(pct),
				AmountCents: core.Int64Ptr(b.SpentThisMonth.Cents),
			},
		})
	}
	return out
}

// observe records the budget's current level and toasts on upward
// crossings. The first observation of a budget only primes the memory.
func (f *BudgetFetcher) observe(ctx context.Context, req Request, b core.BudgetSpend, pct float64, tier Tier, hit bool) {
	level := 0
	if hit {
		level = tier.Level
	}

	f.mu.Lock()
	prev, seen := f.lastLevel[b.ID]
	f.lastLevel[b.ID] = level
	f.mu.Unlock()

	if !seen || level <= prev || f.toaster == nil {
		return
	}

	toast := Toast{
		UserID:     req.UserID,
		BudgetID:   b.ID,
		Category:   b.Category,
		Type:       tier.Type,
		Priority:   tier.Priority,
		Percentage: pct,
		Message:    budgetMessage(b, pct, tier.Type),
		At:         req.Now,
	}
	if err := f.toaster.Toast(ctx, toast); err != nil {
		f.logger.WarnContext(ctx, "Budget toast delivery failed",
			log.NewFields().WithUser(req.UserID).WithOperation(log.OpToast).WithError(err).ToSlice()...)
	}
}

func budgetMessage(b core.BudgetSpend, pct float64, typ core.NotificationType) string {
	switch typ {
	case core.BudgetExceeded:
		return fmt.Sprintf("You've spent %.0f%% of your %s budget (%s of %s)", pct, b.Category, b.SpentThisMonth, b.Limit)
	case core.BudgetCritical:
		return fmt.Sprintf("Only %s left in your %s budget (%.0f%% used)", core.Money{Cents: b.Limit.Cents - b.SpentThisMonth.Cents}, b.Category, pct)
	default:
		return fmt.Sprintf("You've used %.0f%% of your %s budget", pct, b.Category)
	}
}
