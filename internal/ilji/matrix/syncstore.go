package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/ilji/internal/ilji/store"
)

var _ mautrix.SyncStore = (*SyncStore)(nil)

// SyncStore persists the sync filter and next_batch token in the
// matrix_sync_state table, one row per user.
type SyncStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSyncStore returns a SyncStore on db. The store migrations must have
// been applied.
func NewSyncStore(db *sql.DB) *SyncStore {
	return &SyncStore{db: db, now: time.Now}
}

// SaveFilterID implements mautrix.SyncStore.
func (s *SyncStore) SaveFilterID(ctx context.Context, userID id.UserID, filterID string) error {
	return s.upsert(ctx, "filter_id", userID, filterID)
}

// LoadFilterID implements mautrix.SyncStore; "" means none saved.
func (s *SyncStore) LoadFilterID(ctx context.Context, userID id.UserID) (string, error) {
	return s.load(ctx, "filter_id", userID)
}

// SaveNextBatch implements mautrix.SyncStore.
func (s *SyncStore) SaveNextBatch(ctx context.Context, userID id.UserID, token string) error {
	return s.upsert(ctx, "next_batch", userID, token)
}

// LoadNextBatch implements mautrix.SyncStore; "" means first run.
func (s *SyncStore) LoadNextBatch(ctx context.Context, userID id.UserID) (string, error) {
	return s.load(ctx, "next_batch", userID)
}

// column is one of the two fixed column names above, never user input.
func (s *SyncStore) upsert(ctx context.Context, column string, userID id.UserID, value string) error {
	q := fmt.Sprintf(`
		INSERT INTO matrix_sync_state (user_id, %[1]s, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET %[1]s = excluded.%[1]s, updated_at = excluded.updated_at`, column)
	if _, err := s.db.ExecContext(ctx, q, userID.String(), value, s.now().UTC().Format(store.TimeLayout)); err != nil {
		return fmt.Errorf("matrix: save %s: %w", column, err)
	}
	return nil
}

func (s *SyncStore) load(ctx context.Context, column string, userID id.UserID) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM matrix_sync_state WHERE user_id = ?", column),
		userID.String(),
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("matrix: load %s: %w", column, err)
	}
	return v, nil
}
