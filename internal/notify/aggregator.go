package notify

import (
	"context"
	"fmt"
	"sort"

	"finwatch/internal/alerts"
	"finwatch/internal/core"
	"finwatch/internal/log"

	"golang.org/x/sync/errgroup"
)

// Aggregator runs every fetcher concurrently and merges their output into
// one priority-ordered list.
type Aggregator struct {
	fetchers []alerts.Fetcher
	logger   *log.Logger
}

func NewAggregator(fetchers []alerts.Fetcher, logger *log.Logger) *Aggregator {
	return &Aggregator{fetchers: fetchers, logger: logger}
}

// Run waits for all fetchers. A fetcher that panics contributes nothing; the
// others are unaffected. The error is non-nil only when ctx ends first.
func (a *Aggregator) Run(ctx context.Context, req alerts.Request) ([]core.Notification, error) {
	results := make([][]core.Notification, len(a.fetchers))

	var g errgroup.Group
	for i, f := range a.fetchers {
		i, f := i, f
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					a.logger.ErrorContext(ctx, "Fetcher panicked, contributing no notifications",
						log.NewFields().
							WithSource(f.Name()).
							WithUser(req.UserID).
							WithOperation(log.OpFetch).
							WithError(fmt.Errorf("panic: %v", r)).
							ToSlice()...)
				}
			}()
			results[i] = f.Fetch(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var merged []core.Notification
	for _, r := range results {
		merged = append(merged, r...)
	}
	SortByPriority(merged)
	return merged, nil
}

// SortByPriority stable-sorts by priority rank, then newest timestamp first.
func SortByPriority(ns []core.Notification) {
	sort.SliceStable(ns, func(i, j int) bool {
		ri, rj := ns[i].Priority.Rank(), ns[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return ns[i].Timestamp.After(ns[j].Timestamp)
	})
}
