package cache

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestLRUCapacityEvictsOldest(t *testing.T) {
	var evicted []string
	c := NewLRUCache[int](2, time.Hour, OnEvict(func(k string, _ int) { evicted = append(evicted, k) }))

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted as least recently used")
	}
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Errorf("evicted = %v, want [b]", evicted)
	}
	if c.Size() != 2 {
		t.Errorf("size = %d, want 2", c.Size())
	}
}

func TestLRUIdleExpirySlides(t *testing.T) {
	clk := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	evicted := 0
	c := NewLRUCache[string](10, time.Minute,
		WithClock[string](clk.Now),
		OnEvict(func(string, string) { evicted++ }))

	c.Set("k", "v")
	clk.Advance(50 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry expired too early")
	}
	clk.Advance(50 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("Get should have extended the idle expiry")
	}
	clk.Advance(61 * time.Second)
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired = %d, want 1", n)
	}
	if evicted != 1 {
		t.Errorf("evict callback calls = %d, want 1", evicted)
	}
}

func TestGetOrCreate(t *testing.T) {
	c := NewLRUCache[int](10, time.Hour)
	calls := 0
	create := func() (int, error) {
		calls++
		return 42, nil
	}

	v, created, err := c.GetOrCreate("k", create)
	if err != nil || !created || v != 42 {
		t.Fatalf("first call = %d %v %v", v, created, err)
	}
	v, created, err = c.GetOrCreate("k", create)
	if err != nil || created || v != 42 {
		t.Fatalf("second call = %d %v %v", v, created, err)
	}
	if calls != 1 {
		t.Errorf("create ran %d times", calls)
	}

	boom := errors.New("boom")
	if _, _, err := c.GetOrCreate("x", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected create error, got %v", err)
	}
	if c.Size() != 1 {
		t.Error("failed create must not store anything")
	}
}

func TestDeleteAndDrainNotify(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	c := NewLRUCache[int](10, time.Hour, OnEvict(func(k string, v int) {
		mu.Lock()
		seen[k] = v
		mu.Unlock()
	}))
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	c.Delete("a")
	if seen["a"] != 1 {
		t.Error("Delete should invoke the callback")
	}
	if n := c.Drain(); n != 2 {
		t.Errorf("Drain = %d, want 2", n)
	}
	if len(seen) != 3 || c.Size() != 0 {
		t.Errorf("seen = %v size = %d", seen, c.Size())
	}
}

func TestManagerSweep(t *testing.T) {
	clk := &fakeClock{t: time.Now()}
	c := NewLRUCache[int](10, time.Second, WithClock[int](clk.Now))
	c.Set("a", 1)

	m := NewManager(nil)
	m.Register(c)
	clk.Advance(2 * time.Second)
	if n := m.Sweep(); n != 1 {
		t.Fatalf("Sweep = %d, want 1", n)
	}

	m.StartCleanup(time.Millisecond)
	m.Stop()
	m.Stop()
}
