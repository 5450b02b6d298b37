package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bdobrica/ilji/internal/ilji/store"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore persists turns in the turns/conversations tables created by
// the store migrations.
type SQLiteStore struct {
	db   *sql.DB
	opts Options
}

// NewSQLite returns a SQLiteStore over an already-migrated database.
func NewSQLite(db *sql.DB, opts Options) *SQLiteStore {
	return &SQLiteStore{db: db, opts: opts.withDefaults()}
}

// Append inserts the turn, deletes everything older than the newest Ceiling
// turns for key, and bumps the conversation's last activity, all in one
// transaction.
func (s *SQLiteStore) Append(ctx context.Context, key string, role Role, content string) (Turn, error) {
	if !role.Valid() {
		return Turn{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	now := s.opts.Now()
	stamp := now.UTC().Format(store.TimeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Turn{}, &StorageError{Op: "append", Key: key, Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		INSERT INTO turns (conversation_key, role, content, created_at, day)
		VALUES (?, ?, ?, ?, ?)
	`, key, string(role), content, stamp, DayOf(now, s.opts.Location))
	if err != nil {
		return Turn{}, &StorageError{Op: "append", Key: key, Err: err}
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Turn{}, &StorageError{Op: "append", Key: key, Err: err}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM turns
		WHERE conversation_key = ?
		  AND seq NOT IN (
			SELECT seq FROM turns
			WHERE conversation_key = ?
			ORDER BY seq DESC
			LIMIT ?
		  )
	`, key, key, s.opts.Ceiling); err != nil {
		return Turn{}, &StorageError{Op: "trim", Key: key, Err: err}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (conversation_key, last_activity)
		VALUES (?, ?)
		ON CONFLICT(conversation_key) DO UPDATE SET last_activity = excluded.last_activity
	`, key, stamp); err != nil {
		return Turn{}, &StorageError{Op: "append", Key: key, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return Turn{}, &StorageError{Op: "append", Key: key, Err: err}
	}
	return Turn{Seq: seq, Role: role, Content: content, Timestamp: now}, nil
}

// ReadAll returns every retained turn for key in write order.
func (s *SQLiteStore) ReadAll(ctx context.Context, key string) ([]Turn, error) {
	turns, err := s.query(ctx, `
		SELECT seq, role, content, created_at FROM turns
		WHERE conversation_key = ?
		ORDER BY seq ASC
	`, key)
	if err != nil {
		return nil, &StorageError{Op: "read", Key: key, Err: err}
	}
	return turns, nil
}

// ReadToday returns the key's turns from the current calendar day.
func (s *SQLiteStore) ReadToday(ctx context.Context, key string) ([]Turn, error) {
	today := DayOf(s.opts.Now(), s.opts.Location)
	turns, err := s.query(ctx, `
		SELECT seq, role, content, created_at FROM turns
		WHERE conversation_key = ? AND day = ?
		ORDER BY seq ASC
	`, key, today)
	if err != nil {
		return nil, &StorageError{Op: "read today", Key: key, Err: err}
	}
	return turns, nil
}

// Clear removes the key's turns and conversation row.
func (s *SQLiteStore) Clear(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "clear", Key: key, Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE conversation_key = ?", key); err != nil {
		return &StorageError{Op: "clear", Key: key, Err: err}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE conversation_key = ?", key); err != nil {
		return &StorageError{Op: "clear", Key: key, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "clear", Key: key, Err: err}
	}
	return nil
}

// Count returns the number of retained turns for key.
func (s *SQLiteStore) Count(ctx context.Context, key string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM turns WHERE conversation_key = ?", key).Scan(&n)
	if err != nil {
		return 0, &StorageError{Op: "count", Key: key, Err: err}
	}
	return n, nil
}

// Touch upserts the conversation row with the given label and mode.
func (s *SQLiteStore) Touch(ctx context.Context, key, label, mode string) error {
	stamp := s.opts.Now().UTC().Format(store.TimeLayout)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (conversation_key, label, mode, last_activity)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(conversation_key) DO UPDATE SET
			label = excluded.label,
			mode = excluded.mode,
			last_activity = excluded.last_activity
	`, key, label, mode, stamp)
	if err != nil {
		return &StorageError{Op: "touch", Key: key, Err: err}
	}
	return nil
}

// Conversations lists conversations active at or after since.
func (s *SQLiteStore) Conversations(ctx context.Context, since time.Time) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_key, label, mode, last_activity FROM conversations
		WHERE last_activity >= ?
		ORDER BY last_activity DESC
	`, since.UTC().Format(store.TimeLayout))
	if err != nil {
		return nil, &StorageError{Op: "list conversations", Err: err}
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var (
			c     Conversation
			stamp string
		)
		if err := rows.Scan(&c.Key, &c.Label, &c.Mode, &stamp); err != nil {
			return nil, &StorageError{Op: "list conversations", Err: err}
		}
		c.LastActivity = parseStamp(stamp)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list conversations", Err: err}
	}
	return out, nil
}

// ConversationCount returns the number of conversation rows.
func (s *SQLiteStore) ConversationCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations").Scan(&n); err != nil {
		return 0, &StorageError{Op: "count conversations", Err: err}
	}
	return n, nil
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var (
			t     Turn
			role  string
			stamp string
		)
		if err := rows.Scan(&t.Seq, &role, &t.Content, &stamp); err != nil {
			return nil, err
		}
		t.Role = Role(role)
		t.Timestamp = parseStamp(stamp)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func parseStamp(s string) time.Time {
	t, err := time.Parse(store.TimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
