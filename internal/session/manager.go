// Package session keeps one live notification service per signed-in user.
// A service is created on first access, started immediately and torn down
// on logout, idle expiry or when the registry is full.
package session

import (
	"context"
	"fmt"
	"time"

	"finwatch/internal/alerts"
	"finwatch/internal/cache"
	"finwatch/internal/kv"
	"finwatch/internal/log"
	"finwatch/internal/notify"
	"finwatch/internal/sources"
	"finwatch/internal/suppression"
)

const (
	DefaultIdleTTL     = 30 * time.Minute
	DefaultMaxSessions = 1000
)

// Factory builds an unstarted service for userID.
type Factory func(userID string) (*notify.Service, error)

// Deps are the collaborators shared by every user's service.
type Deps struct {
	Ledger          sources.Ledger
	Documents       kv.Store
	Toaster         alerts.Toaster
	Logger          *log.Logger
	RefreshInterval time.Duration
	DismissDuration time.Duration
}

// Factory returns a Factory wiring a fresh fetcher set and suppression store
// per user. Toast tier memory therefore lives as long as the session.
func (d Deps) Factory() Factory {
	logger := d.Logger
	if logger == nil {
		logger = log.Discard()
	}
	toaster := d.Toaster
	if toaster == nil {
		toaster = alerts.NewLogToaster(logger)
	}
	return func(userID string) (*notify.Service, error) {
		if d.Ledger == nil || d.Documents == nil {
			return nil, fmt.Errorf("session deps incomplete")
		}
		opts := []suppression.Option{suppression.WithLogger(logger)}
		if d.DismissDuration > 0 {
			opts = append(opts, suppression.WithDismissDuration(d.DismissDuration))
		}
		if keep := 2 * d.RefreshInterval; keep > suppression.DefaultActionedRetention {
			opts = append(opts, suppression.WithActionedRetention(keep))
		}
		supp := suppression.New(d.Documents, userID, opts...)
		fetchers := alerts.NewSet(d.Ledger, toaster, logger)
		return notify.NewService(userID, fetchers, supp, notify.Config{
			RefreshInterval: d.RefreshInterval,
			Logger:          logger,
		}), nil
	}
}

type Config struct {
	IdleTTL     time.Duration
	MaxSessions int
	Logger      *log.Logger
	Clock       func() time.Time
}

type Manager struct {
	factory  Factory
	sessions *cache.LRUCache[*notify.Service]
	sweeper  *cache.Manager
	logger   *log.Logger
}

func NewManager(factory Factory, cfg Config) *Manager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Discard()
	}
	logger := cfg.Logger.WithComponent(log.ComponentSession)

	opts := []cache.Option[*notify.Service]{
		cache.OnEvict(func(userID string, svc *notify.Service) {
			svc.Close()
			logger.Info("Session closed", log.FieldUserID, userID)
		}),
	}
	if cfg.Clock != nil {
		opts = append(opts, cache.WithClock[*notify.Service](cfg.Clock))
	}

	m := &Manager{
		factory:  factory,
		sessions: cache.NewLRUCache[*notify.Service](cfg.MaxSessions, cfg.IdleTTL, opts...),
		sweeper:  cache.NewManager(cfg.Logger),
		logger:   logger,
	}
	m.sweeper.Register(m.sessions)
	return m
}

// StartSweeper evicts idle sessions every interval until Close.
func (m *Manager) StartSweeper(interval time.Duration) {
	m.sweeper.StartCleanup(interval)
}

// Get returns the user's service, creating and starting it on first access.
// Start blocks concurrent callers until the initial aggregation finished.
func (m *Manager) Get(ctx context.Context, userID string) (*notify.Service, error) {
	svc, created, err := m.sessions.GetOrCreate(userID, func() (*notify.Service, error) {
		return m.factory(userID)
	})
	if err != nil {
		return nil, fmt.Errorf("create session for %s: %w", userID, err)
	}
	if created {
		m.logger.InfoContext(ctx, "Session opened", log.FieldUserID, userID)
	}
	svc.Start(ctx)
	return svc, nil
}

// Logout tears down the user's service. It reports whether one existed.
func (m *Manager) Logout(userID string) bool {
	if _, ok := m.sessions.Get(userID); !ok {
		return false
	}
	m.sessions.Delete(userID)
	return true
}

// Sweep evicts idle sessions now.
func (m *Manager) Sweep() int {
	return m.sweeper.Sweep()
}

func (m *Manager) Len() int {
	return m.sessions.Size()
}

// Close stops the sweeper and every live service.
func (m *Manager) Close() {
	m.sweeper.Stop()
	if n := m.sessions.Drain(); n > 0 {
		m.logger.Info("Closed sessions on shutdown", log.FieldCount, n)
	}
}
