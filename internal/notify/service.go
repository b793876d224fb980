// Package notify owns one user's notification feed: it aggregates the
// source fetchers, keeps the canonical and displayed sets, applies the
// suppression store and exposes the mutations the UI calls.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"finwatch/internal/alerts"
	"finwatch/internal/core"
	"finwatch/internal/log"
	"finwatch/internal/suppression"
)

// DefaultRefreshInterval is the periodic re-aggregation interval.
const DefaultRefreshInterval = 5 * time.Minute

// ErrUnknownNotification is returned by mutations naming an id absent from
// the canonical set.
var ErrUnknownNotification = errors.New("unknown notification")

// ErrStaleAggregation is returned by Refresh when a newer aggregation
// started before this one finished; its result was discarded.
var ErrStaleAggregation = errors.New("aggregation superseded by a newer request")

type Config struct {
	RefreshInterval time.Duration
	Clock           func() time.Time
	Logger          *log.Logger
}

// Service is one user's feed. All state is guarded by mu; fetchers run
// outside the lock so mutations stay responsive while an aggregation is in
// flight.
type Service struct {
	userID   string
	agg      *Aggregator
	supp     *suppression.Store
	clock    func() time.Time
	interval time.Duration
	logger   *log.Logger
	events   *log.StructuredLogger

	mu         sync.Mutex
	all        []core.Notification
	displayed  []core.Notification
	total      int
	urgentOnly bool
	lastRun    time.Time

	token atomic.Uint64

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewService(userID string, fetchers []alerts.Fetcher, supp *suppression.Store, cfg Config) *Service {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Discard()
	}
	logger := cfg.Logger.WithComponent(log.ComponentNotify).WithUser(userID)

	return &Service{
		userID:   userID,
		agg:      NewAggregator(fetchers, logger),
		supp:     supp,
		clock:    cfg.Clock,
		interval: cfg.RefreshInterval,
		logger:   logger,
		events:   log.NewStructuredLogger(logger),
		done:     make(chan struct{}),
	}
}

func (s *Service) UserID() string { return s.userID }

// Start runs the initial aggregation and then starts the refresh timer.
// Both run on a context owned by the service, so cancelling ctx does not
// abort the first fetch. Calling Start more than once has no further effect.
func (s *Service) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.cancel = cancel

		if err := s.Refresh(loopCtx); err != nil {
			s.logger.WarnContext(loopCtx, "Initial aggregation failed", log.FieldError, err)
		}
		go s.loop(loopCtx)
	})
}

func (s *Service) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := s.Refresh(ctx)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrStaleAggregation) {
				s.logger.WarnContext(ctx, "Periodic aggregation failed", log.FieldError, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close stops the refresh timer and waits for the loop to exit. In-flight
// aggregations are cancelled and will not publish.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.startOnce.Do(func() { close(s.done) })
		if s.cancel != nil {
			s.cancel()
		}
		<-s.done
		s.logger.Debug("Notification service closed")
	})
}

// Refresh re-runs every fetcher and publishes the result as the canonical
// set, unless a newer aggregation started meanwhile. On failure the previous
// canonical set stays in place.
func (s *Service) Refresh(ctx context.Context) (err error) {
	token := s.token.Add(1)
	now := s.clock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("aggregation panic: %v", r)
			s.logger.ErrorContext(ctx, "Aggregation failed, keeping previous notifications",
				log.FieldOperation, log.OpAggregate, log.FieldError, err)
		}
	}()

	result, err := s.agg.Run(ctx, alerts.Request{UserID: s.userID, Now: now})
	if err != nil {
		return fmt.Errorf("aggregate notifications: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if token != s.token.Load() {
		s.logger.DebugContext(ctx, "Discarding stale aggregation", log.FieldToken, token)
		return ErrStaleAggregation
	}

	s.all = result
	s.lastRun = now
	s.refilterLocked(ctx)

	s.logger.DebugContext(ctx, "Aggregation published",
		log.FieldToken, token, log.FieldCount, len(result), "displayed", len(s.displayed))
	return nil
}

// refilterLocked recomputes the displayed list and the unsuppressed total
// from the canonical set and one suppression snapshot.
func (s *Service) refilterLocked(ctx context.Context) {
	view := s.supp.Load(ctx)
	s.displayed = Filter(s.all, s.urgentOnly, view)
	s.total = len(Filter(s.all, false, view))
}

func (s *Service) indexLocked(id string) int {
	for i, n := range s.all {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// MarkAsRead records an action for id at the current instant, flips its
// read flag and re-filters. The action hides the notification until its
// condition is recomputed after that instant.
func (s *Service) MarkAsRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return ErrUnknownNotification
	}
	s.supp.Action(ctx, id, s.clock())
	s.all[i].IsRead = true
	s.refilterLocked(ctx)

	s.events.LogMutation(ctx, log.OpMarkRead, s.userID, id)
	return nil
}

// MarkAllAsRead flips every read flag for this session only. Nothing is
// persisted, so the next aggregation brings the notifications back unread.
// Individual MarkAsRead does persist; the two differ on purpose until the
// intended behaviour is settled.
func (s *Service) MarkAllAsRead() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.all {
		s.all[i].IsRead = true
	}
	for i := range s.displayed {
		s.displayed[i].IsRead = true
	}
	s.events.LogMutation(context.Background(), log.OpMarkAll, s.userID, "")
}

// Clear dismisses id and removes it from the displayed list.
func (s *Service) Clear(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(id) < 0 {
		return ErrUnknownNotification
	}
	s.supp.Dismiss(ctx, id)

	kept := s.displayed[:0:0]
	for _, n := range s.displayed {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	s.displayed = kept
	s.total = len(Filter(s.all, false, s.supp.Load(ctx)))

	s.events.LogMutation(ctx, log.OpClear, s.userID, id)
	return nil
}

// ClearAll dismisses every currently displayed notification. Notifications
// hidden by urgent-only mode are left untouched.
func (s *Service) ClearAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(s.displayed))
	for i, n := range s.displayed {
		ids[i] = n.ID
	}
	s.supp.DismissAll(ctx, ids)
	s.displayed = nil
	s.total = len(Filter(s.all, false, s.supp.Load(ctx)))

	s.events.LogMutation(ctx, log.OpClearAll, s.userID, "")
}

// ToggleUrgentOnly flips the display mode and returns the new value.
func (s *Service) ToggleUrgentOnly(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setUrgentOnlyLocked(ctx, !s.urgentOnly)
	return s.urgentOnly
}

func (s *Service) SetUrgentOnly(ctx context.Context, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setUrgentOnlyLocked(ctx, v)
}

func (s *Service) setUrgentOnlyLocked(ctx context.Context, v bool) {
	s.urgentOnly = v
	s.refilterLocked(ctx)
	s.logger.DebugContext(ctx, "Display mode changed", log.FieldUrgentOnly, v)
}

// Notifications returns a copy of the displayed list.
func (s *Service) Notifications() []core.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Notification(nil), s.displayed...)
}

// UnreadCount counts displayed notifications not marked read.
func (s *Service) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range s.displayed {
		if !d.IsRead {
			n++
		}
	}
	return n
}

// TotalCount is the number of unsuppressed notifications regardless of
// display mode.
func (s *Service) TotalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *Service) UrgentOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.urgentOnly
}

// Snapshot is a consistent read of the feed for one response.
type Snapshot struct {
	Notifications []core.Notification `json:"notifications"`
	UnreadCount   int                 `json:"unread_count"`
	TotalCount    int                 `json:"total_count"`
	UrgentOnly    bool                `json:"urgent_only"`
	LastRefreshed time.Time           `json:"last_refreshed"`
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	unread := 0
	for _, d := range s.displayed {
		if !d.IsRead {
			unread++
		}
	}
	displayed := make([]core.Notification, len(s.displayed))
	copy(displayed, s.displayed)
	return Snapshot{
		Notifications: displayed,
		UnreadCount:   unread,
		TotalCount:    s.total,
		UrgentOnly:    s.urgentOnly,
		LastRefreshed: s.lastRun,
	}
}
