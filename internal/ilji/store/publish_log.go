package store

import (
	"context"
	"fmt"
	"time"
)

// TimeLayout is the fixed-width UTC layout used for every stored timestamp.
// Fixed width keeps lexical order equal to chronological order in SQL.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// PublishRecord is one row of the publish log.
type PublishRecord struct {
	ID              int64
	ConversationKey string
	Adapter         string
	EntryDate       string
	// Digest identifies the entry content; see publish.Entry.Digest.
	Digest          string
	OK              bool
	Error           string
	CreatedAt       time.Time
}

// RecordPublish appends one adapter outcome.
func (s *Store) RecordPublish(ctx context.Context, r PublishRecord) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	ok := 0
	if r.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO publish_log (conversation_key, adapter, entry_date, digest, ok, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ConversationKey, r.Adapter, r.EntryDate, r.Digest, ok, r.Error, r.CreatedAt.UTC().Format(TimeLayout))
	if err != nil {
		return fmt.Errorf("store: record publish: %w", err)
	}
	return nil
}

// RecentPublishes returns up to limit rows, newest first.
func (s *Store) RecentPublishes(ctx context.Context, limit int) ([]PublishRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_key, adapter, entry_date, digest, ok, error, created_at
		FROM publish_log
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent publishes: %w", err)
	}
	defer rows.Close()

	var out []PublishRecord
	for rows.Next() {
		var (
			r       PublishRecord
			ok      int
			created string
		)
		if err := rows.Scan(&r.ID, &r.ConversationKey, &r.Adapter, &r.EntryDate, &r.Digest, &ok, &r.Error, &created); err != nil {
			return nil, fmt.Errorf("store: scan publish: %w", err)
		}
		r.OK = ok == 1
		r.CreatedAt, _ = time.Parse(TimeLayout, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// PublishFailuresSince counts failed pushes at or after since.
func (s *Store) PublishFailuresSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM publish_log WHERE ok = 0 AND created_at >= ?",
		since.UTC().Format(TimeLayout),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count publish failures: %w", err)
	}
	return n, nil
}

// Published reports whether adapter already accepted the entry with digest
// for key. An empty digest never matches.
func (s *Store) Published(ctx context.Context, key, adapter, digest string) (bool, error) {
	if digest == "" {
		return false, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM publish_log
		WHERE conversation_key = ? AND adapter = ? AND digest = ? AND ok = 1
	`, key, adapter, digest).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: published: %w", err)
	}
	return n > 0, nil
}
