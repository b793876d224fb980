package suppression

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"finwatch/internal/core"
	"finwatch/internal/kv"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newStore(t *testing.T) (*Store, *kv.Memory, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	docs := kv.NewMemory()
	return New(docs, "u-1", WithClock(clock.Now)), docs, clock
}

func TestDismissExpiresAfterTwoHours(t *testing.T) {
	s, _, clock := newStore(t)
	ctx := context.Background()

	s.Dismiss(ctx, "bill-due-today-1")
	if !s.IsDismissed(ctx, "bill-due-today-1") {
		t.Fatal("expected dismissed immediately")
	}

	clock.Advance(2*time.Hour - time.Second)
	if !s.IsDismissed(ctx, "bill-due-today-1") {
		t.Fatal("expected still dismissed one second before expiry")
	}

	clock.Advance(time.Second)
	if s.IsDismissed(ctx, "bill-due-today-1") {
		t.Fatal("expected dismissal to lapse at expiry")
	}
}

func TestExpiredDismissalsArePruned(t *testing.T) {
	s, docs, clock := newStore(t)
	ctx := context.Background()

	s.Dismiss(ctx, "a")
	clock.Advance(time.Hour)
	s.Dismiss(ctx, "b")
	clock.Advance(90 * time.Minute)

	s.Load(ctx)

	raw, err := docs.Get(ctx, "u-1", DismissedKey)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var doc map[string]int64
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := doc["a"]; ok {
		t.Error("expired entry should have been pruned")
	}
	if _, ok := doc["b"]; !ok {
		t.Error("live entry should have been kept")
	}
}

func TestPersistedLayout(t *testing.T) {
	s, docs, clock := newStore(t)
	ctx := context.Background()

	s.Dismiss(ctx, "x")
	s.Action(ctx, "y", clock.Now())

	raw, _ := docs.Get(ctx, "u-1", DismissedKey)
	var dismissed map[string]int64
	if err := json.Unmarshal(raw, &dismissed); err != nil {
		t.Fatalf("dismissed document: %v", err)
	}
	if want := clock.Now().Add(2 * time.Hour).UnixMilli(); dismissed["x"] != want {
		t.Errorf("dismissed expiry = %d, want %d", dismissed["x"], want)
	}

	raw, _ = docs.Get(ctx, "u-1", ActionedKey)
	var actioned map[string]string
	if err := json.Unmarshal(raw, &actioned); err != nil {
		t.Fatalf("actioned document: %v", err)
	}
	if actioned["y"] != "2025-03-10T09:00:00Z" {
		t.Errorf("actioned timestamp = %q", actioned["y"])
	}
}

func TestIsActionedComparesNotificationTimestamp(t *testing.T) {
	s, _, clock := newStore(t)
	ctx := context.Background()

	fetchedAt := clock.Now()
	clock.Advance(30 * time.Second)
	s.Action(ctx, "n", clock.Now())

	tests := []struct {
		name string
		ts   time.Time
		want bool
	}{
		{"computed before action", fetchedAt, true},
		{"computed at action instant", clock.Now(), true},
		{"recomputed after action", clock.Now().Add(5 * time.Minute), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := core.Notification{ID: "n", Timestamp: tt.ts}
			if got := s.IsActioned(ctx, n); got != tt.want {
				t.Errorf("IsActioned() = %v, want %v", got, tt.want)
			}
		})
	}

	if s.IsActioned(ctx, core.Notification{ID: "other", Timestamp: fetchedAt}) {
		t.Error("unknown id must not be actioned")
	}
}

func TestStaleActionsArePruned(t *testing.T) {
	s, docs, clock := newStore(t)
	ctx := context.Background()

	s.Action(ctx, "old", clock.Now())
	clock.Advance(20 * time.Hour)
	s.Action(ctx, "recent", clock.Now())
	clock.Advance(5 * time.Hour)

	s.Load(ctx)

	raw, err := docs.Get(ctx, "u-1", ActionedKey)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var doc map[string]string
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := doc["old"]; ok {
		t.Error("action older than the retention window should have been pruned")
	}
	if _, ok := doc["recent"]; !ok {
		t.Error("action within the retention window should have been kept")
	}
}

func TestWithActionedRetention(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	s := New(kv.NewMemory(), "u-1", WithClock(clock.Now), WithActionedRetention(time.Hour))
	ctx := context.Background()

	actedAt := clock.Now()
	s.Action(ctx, "n", actedAt)
	clock.Advance(61 * time.Minute)

	if s.IsActioned(ctx, core.Notification{ID: "n", Timestamp: actedAt}) {
		t.Error("action past the retention window should no longer apply")
	}
}

func TestActionKeepsSubSecondPrecision(t *testing.T) {
	s, _, clock := newStore(t)
	ctx := context.Background()

	clock.Advance(500 * time.Millisecond)
	fetchedAt := clock.Now()
	clock.Advance(200 * time.Millisecond)
	s.Action(ctx, "n", clock.Now())

	if !s.IsActioned(ctx, core.Notification{ID: "n", Timestamp: fetchedAt}) {
		t.Fatal("action within the same second as the fetch must still suppress")
	}
}

type brokenKV struct{}

func (brokenKV) Get(context.Context, string, string) ([]byte, error) {
	return nil, errors.New("storage unavailable")
}
func (brokenKV) Put(context.Context, string, string, []byte) error {
	return errors.New("storage unavailable")
}

func TestUnavailableStorageDegradesToEmpty(t *testing.T) {
	s := New(brokenKV{}, "u-1")
	ctx := context.Background()

	s.Dismiss(ctx, "a")
	s.Action(ctx, "a", time.Now())
	if s.IsDismissed(ctx, "a") || s.IsActioned(ctx, core.Notification{ID: "a"}) {
		t.Fatal("unavailable storage must read as empty")
	}
}

func TestCorruptDocumentsDegradeToEmpty(t *testing.T) {
	s, docs, clock := newStore(t)
	ctx := context.Background()

	_ = docs.Put(ctx, "u-1", DismissedKey, []byte("{not json"))
	_ = docs.Put(ctx, "u-1", ActionedKey, []byte(`{"a": "yesterday", "b": "2025-03-10T09:00:00Z"}`))

	view := s.Load(ctx)
	if view.IsDismissed("anything") {
		t.Error("corrupt dismissed document must read as empty")
	}
	if view.IsActioned(core.Notification{ID: "a", Timestamp: clock.Now()}) {
		t.Error("unparseable actioned entry must be ignored")
	}
	if !view.IsActioned(core.Notification{ID: "b", Timestamp: clock.Now()}) {
		t.Error("valid actioned entry must survive a bad sibling")
	}

	s.Dismiss(ctx, "c")
	if !s.IsDismissed(ctx, "c") {
		t.Error("dismiss must recover from a corrupt document")
	}
}

func TestStateSurvivesNewStoreInstance(t *testing.T) {
	s, docs, clock := newStore(t)
	ctx := context.Background()
	s.Dismiss(ctx, "a")

	restarted := New(docs, "u-1", WithClock(clock.Now))
	if !restarted.IsDismissed(ctx, "a") {
		t.Fatal("dismissal must persist across instances")
	}

	other := New(docs, "u-2", WithClock(clock.Now))
	if other.IsDismissed(ctx, "a") {
		t.Fatal("suppression must be scoped per user")
	}
}

func TestWithDismissDuration(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	s := New(kv.NewMemory(), "u-1", WithClock(clock.Now), WithDismissDuration(10*time.Minute))
	ctx := context.Background()

	s.Dismiss(ctx, "a")
	clock.Advance(10 * time.Minute)
	if s.IsDismissed(ctx, "a") {
		t.Fatal("custom dismiss duration not applied")
	}
}
