package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"finwatch/internal/core"
	"finwatch/internal/kv"
	"finwatch/internal/notify"
	"finwatch/internal/sources/memory"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testDeps() Deps {
	ledger := memory.New()
	ledger.AddAccount("u-1", memory.Account{
		Account: core.Account{ID: "acc", Name: "Checking", Balance: core.Money{Cents: -500}},
		Active:  true,
	})
	return Deps{Ledger: ledger, Documents: kv.NewMemory(), RefreshInterval: time.Hour}
}

func TestGetCreatesAndReusesSession(t *testing.T) {
	m := NewManager(testDeps().Factory(), Config{})
	defer m.Close()
	ctx := context.Background()

	a, err := m.Get(ctx, "u-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(a.Notifications()) != 1 {
		t.Fatalf("initial aggregation should run on first access, got %d notifications", len(a.Notifications()))
	}
	b, _ := m.Get(ctx, "u-1")
	if a != b {
		t.Fatal("second Get should return the same service")
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}

func TestCancelledFirstRequestStillLoadsSession(t *testing.T) {
	m := NewManager(testDeps().Factory(), Config{})
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Get(ctx, "u-1"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	svc, err := m.Get(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := len(svc.Notifications()); got != 1 {
		t.Errorf("notifications after cancelled first request = %d, want 1", got)
	}
}

func TestSessionsAreIsolatedPerUser(t *testing.T) {
	m := NewManager(testDeps().Factory(), Config{})
	defer m.Close()
	ctx := context.Background()

	u1, _ := m.Get(ctx, "u-1")
	u2, _ := m.Get(ctx, "u-2")
	if len(u2.Notifications()) != 0 {
		t.Fatal("u-2 must not see u-1's ledger")
	}
	id := u1.Notifications()[0].ID
	if err := u1.Clear(ctx, id); err != nil {
		t.Fatal(err)
	}
	if len(u1.Notifications()) != 0 {
		t.Fatal("clear did not hide the notification")
	}
}

func TestLogoutClosesService(t *testing.T) {
	m := NewManager(testDeps().Factory(), Config{})
	defer m.Close()

	if m.Logout("nobody") {
		t.Fatal("Logout of unknown user should report false")
	}
	a, _ := m.Get(context.Background(), "u-1")
	if !m.Logout("u-1") {
		t.Fatal("Logout should report an existing session")
	}
	if m.Len() != 0 {
		t.Fatal("session still registered after logout")
	}
	b, _ := m.Get(context.Background(), "u-1")
	if a == b {
		t.Fatal("a new session should be created after logout")
	}
}

func TestDismissalsSurviveLogout(t *testing.T) {
	m := NewManager(testDeps().Factory(), Config{})
	defer m.Close()
	ctx := context.Background()

	svc, _ := m.Get(ctx, "u-1")
	if err := svc.Clear(ctx, svc.Notifications()[0].ID); err != nil {
		t.Fatal(err)
	}
	m.Logout("u-1")

	svc, _ = m.Get(ctx, "u-1")
	if n := len(svc.Notifications()); n != 0 {
		t.Fatalf("dismissal should persist across sessions, got %d notifications", n)
	}
}

func TestIdleSessionsAreSwept(t *testing.T) {
	clk := &clock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	m := NewManager(testDeps().Factory(), Config{IdleTTL: time.Minute, Clock: clk.Now})
	defer m.Close()

	if _, err := m.Get(context.Background(), "u-1"); err != nil {
		t.Fatal(err)
	}
	clk.Advance(2 * time.Minute)
	if n := m.Sweep(); n != 1 {
		t.Fatalf("Sweep = %d, want 1", n)
	}
	if m.Len() != 0 {
		t.Fatal("idle session not evicted")
	}
}

func TestMaxSessionsEvictsLeastRecent(t *testing.T) {
	m := NewManager(testDeps().Factory(), Config{MaxSessions: 2})
	defer m.Close()
	ctx := context.Background()

	m.Get(ctx, "a")
	m.Get(ctx, "b")
	m.Get(ctx, "a")
	m.Get(ctx, "c")
	if m.Len() != 2 {
		t.Fatalf("Len = %d, want 2", m.Len())
	}
	if m.Logout("b") {
		t.Fatal("b should have been evicted")
	}
}

func TestFactoryError(t *testing.T) {
	boom := errors.New("boom")
	m := NewManager(func(string) (*notify.Service, error) { return nil, boom }, Config{})
	defer m.Close()
	if _, err := m.Get(context.Background(), "u-1"); !errors.Is(err, boom) {
		t.Fatalf("expected factory error, got %v", err)
	}
}

func TestIncompleteDeps(t *testing.T) {
	if _, err := (Deps{}).Factory()("u-1"); err == nil {
		t.Fatal("expected error for missing ledger")
	}
}
