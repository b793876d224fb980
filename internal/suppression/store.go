// Package suppression keeps the durable per-user record of which
// notifications the user dismissed (temporarily) or actioned.
//
// Two JSON documents are stored per user:
//
//	dismissed_notifications  {"<id>": <expiry, epoch milliseconds>}
//	actioned_notifications   {"<id>": "<action instant, RFC 3339>"}
//
// A dismissed id is hidden while now < expiry. An actioned id hides a
// notification only while the notification's timestamp (the instant its
// condition was last recomputed) is not after the action instant. Actions
// older than the retention window are pruned on load: every aggregation since
// then carries a later timestamp, so they can no longer hide anything.
package suppression

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"time"

	"finwatch/internal/core"
	"finwatch/internal/kv"
	"finwatch/internal/log"
)

const (
	DismissedKey = "dismissed_notifications"
	ActionedKey  = "actioned_notifications"

	DefaultDismissDuration   = 2 * time.Hour
	DefaultActionedRetention = 24 * time.Hour
)

// Store is one user's suppression state over a kv.Store. Storage failures
// never propagate: reads degrade to empty maps and writes are logged.
type Store struct {
	docs       kv.Store
	userID     string
	clock      func() time.Time
	dismissFor time.Duration
	keepAction time.Duration
	logger     *log.Logger

	mu sync.Mutex
}

type Option func(*Store)

func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

func WithDismissDuration(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.dismissFor = d
		}
	}
}

// WithActionedRetention sets how long an action is kept. It should exceed
// the refresh interval.
func WithActionedRetention(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.keepAction = d
		}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func New(docs kv.Store, userID string, opts ...Option) *Store {
	s := &Store{
		docs:       docs,
		userID:     userID,
		clock:      time.Now,
		dismissFor: DefaultDismissDuration,
		keepAction: DefaultActionedRetention,
		logger:     log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent(log.ComponentSuppression).WithUser(userID)
	return s
}

// Dismiss hides id until now plus the dismiss duration.
func (s *Store) Dismiss(ctx context.Context, id string) {
	s.DismissAll(ctx, []string{id})
}

// DismissAll dismisses several ids with a single document write.
func (s *Store) DismissAll(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dismissed := s.readDismissed(ctx)
	expiry := s.clock().Add(s.dismissFor)
	for _, id := range ids {
		dismissed[id] = expiry
	}
	s.writeDismissed(ctx, dismissed)
}

// Action records that the user acted on id at instant at.
func (s *Store) Action(ctx context.Context, id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	actioned := s.readActioned(ctx)
	s.pruneActioned(actioned, s.clock())
	actioned[id] = at
	s.writeActioned(ctx, actioned)
}

// IsDismissed reports whether id is currently dismissed. Expired entries are
// pruned as a side effect.
func (s *Store) IsDismissed(ctx context.Context, id string) bool {
	return s.Load(ctx).IsDismissed(id)
}

// IsActioned reports whether n is hidden by an earlier action.
func (s *Store) IsActioned(ctx context.Context, n core.Notification) bool {
	return s.Load(ctx).IsActioned(n)
}

// Load reads both documents once, prunes expired dismissals and stale
// actions, and returns a snapshot for a filter pass.
func (s *Store) Load(ctx context.Context) View {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	dismissed := s.readDismissed(ctx)
	pruned := false
	for id, expiry := range dismissed {
		if !expiry.After(now) {
			delete(dismissed, id)
			pruned = true
		}
	}
	if pruned {
		s.writeDismissed(ctx, dismissed)
	}

	actioned := s.readActioned(ctx)
	if s.pruneActioned(actioned, now) {
		s.writeActioned(ctx, actioned)
	}

	return View{
		now:       now,
		dismissed: dismissed,
		actioned:  actioned,
	}
}

func (s *Store) read(ctx context.Context, key string, into any) bool {
	raw, err := s.docs.Get(ctx, s.userID, key)
	if errors.Is(err, kv.ErrNotFound) {
		return false
	}
	if err != nil {
		s.logger.WarnContext(ctx, "Suppression document unavailable, treating as empty",
			"document", key, log.FieldError, err)
		return false
	}
	if err := json.Unmarshal(raw, into); err != nil {
		s.logger.WarnContext(ctx, "Suppression document corrupt, treating as empty",
			"document", key, log.FieldError, err)
		return false
	}
	return true
}

func (s *Store) write(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.ErrorContext(ctx, "Encode suppression document failed", "document", key, log.FieldError, err)
		return
	}
	if err := s.docs.Put(ctx, s.userID, key, raw); err != nil {
		s.logger.ErrorContext(ctx, "Persist suppression document failed", "document", key, log.FieldError, err)
	}
}

func (s *Store) readDismissed(ctx context.Context) map[string]time.Time {
	out := make(map[string]time.Time)
	var doc map[string]float64
	if !s.read(ctx, DismissedKey, &doc) {
		return out
	}
	for id, ms := range doc {
		if math.IsNaN(ms) || math.IsInf(ms, 0) {
			continue
		}
		out[id] = time.UnixMilli(int64(ms))
	}
	return out
}

func (s *Store) writeDismissed(ctx context.Context, dismissed map[string]time.Time) {
	doc := make(map[string]int64, len(dismissed))
	for id, expiry := range dismissed {
		doc[id] = expiry.UnixMilli()
	}
	s.write(ctx, DismissedKey, doc)
}

func (s *Store) readActioned(ctx context.Context) map[string]time.Time {
	out := make(map[string]time.Time)
	var doc map[string]string
	if !s.read(ctx, ActionedKey, &doc) {
		return out
	}
	for id, ts := range doc {
		at, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			continue
		}
		out[id] = at
	}
	return out
}

func (s *Store) pruneActioned(actioned map[string]time.Time, now time.Time) bool {
	cutoff := now.Add(-s.keepAction)
	pruned := false
	for id, at := range actioned {
		if at.Before(cutoff) {
			delete(actioned, id)
			pruned = true
		}
	}
	return pruned
}

func (s *Store) writeActioned(ctx context.Context, actioned map[string]time.Time) {
	doc := make(map[string]string, len(actioned))
	for id, at := range actioned {
		doc[id] = at.UTC().Format(time.RFC3339Nano)
	}
	s.write(ctx, ActionedKey, doc)
}

// View is a point-in-time snapshot of one user's suppression state.
type View struct {
	now       time.Time
	dismissed map[string]time.Time
	actioned  map[string]time.Time
}

// IsDismissed is true iff id has an expiry strictly after the snapshot
// instant.
func (v View) IsDismissed(id string) bool {
	expiry, ok := v.dismissed[id]
	return ok && expiry.After(v.now)
}

// IsActioned is true iff n's id was actioned at or after n.Timestamp.
func (v View) IsActioned(n core.Notification) bool {
	at, ok := v.actioned[n.ID]
	return ok && !n.Timestamp.After(at)
}
