// Package backend assembles the ledger, the suppression document store and
// the toast sink selected by configuration.
package backend

import (
	"context"
	"errors"

	"finwatch/internal/alerts"
	"finwatch/internal/kv"
	"finwatch/internal/sources"
)

type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	SheetsBackend   BackendType = "sheets"
)

func (t BackendType) IsValid() bool {
	switch t {
	case MemoryBackend, SQLiteBackend, PostgresBackend, SheetsBackend:
		return true
	}
	return false
}

func (t BackendType) String() string { return string(t) }

// IsDatabase reports whether the ledger lives in a SQL database that can
// also hold suppression documents.
func (t BackendType) IsDatabase() bool {
	return t == SQLiteBackend || t == PostgresBackend
}

type KVType string

const (
	KVDatabase KVType = "database"
	KVRedis    KVType = "redis"
	KVMemory   KVType = "memory"
)

func (t KVType) IsValid() bool {
	switch t {
	case KVDatabase, KVRedis, KVMemory:
		return true
	}
	return false
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Check is a readiness probe for one dependency.
type Check func(ctx context.Context) error

// Result holds the assembled collaborators. Close releases them in reverse
// creation order.
type Result struct {
	Ledger    sources.Ledger
	Documents kv.Store
	Toaster   alerts.Toaster
	Checks    map[string]Check

	cleanups []CleanupFunc
}

func (r *Result) addCleanup(fn CleanupFunc) {
	r.cleanups = append(r.cleanups, fn)
}

func (r *Result) addCheck(name string, c Check) {
	if r.Checks == nil {
		r.Checks = map[string]Check{}
	}
	r.Checks[name] = c
}

func (r *Result) Close() error {
	var errs []error
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		if err := r.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.cleanups = nil
	return errors.Join(errs...)
}

// Factory creates backends based on configuration
type Factory interface {
	Create(ctx context.Context, config Config) (*Result, error)
}
