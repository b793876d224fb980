package kv

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Get(ctx, "u1", "doc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	value := []byte(`{"a":1}`)
	if err := m.Put(ctx, "u1", "doc", value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 'x'

	got, err := m.Get(ctx, "u1", "doc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Errorf("stored value aliased caller slice: %s", got)
	}

	if _, err := m.Get(ctx, "u2", "doc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("documents must be scoped per user, got %v", err)
	}
}
