package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"finwatch/internal/kv"
)

var _ kv.Store = (*Repository)(nil)

// Get reads a per-user document from user_documents.
func (r *Repository) Get(ctx context.Context, userID, key string) ([]byte, error) {
	query := r.db.Rebind(`SELECT value FROM user_documents WHERE user_id = ? AND doc_key = ?`)

	var value string
	err := r.db.GetContext(ctx, &value, query, userID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", key, err)
	}
	return []byte(value), nil
}

// Put upserts a per-user document.
func (r *Repository) Put(ctx context.Context, userID, key string, value []byte) error {
	query := r.db.Rebind(`
		INSERT INTO user_documents (user_id, doc_key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, doc_key)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)

	if _, err := r.db.ExecContext(ctx, query, userID, key, string(value), time.Now().UTC()); err != nil {
		return fmt.Errorf("put document %s: %w", key, err)
	}
	return nil
}
