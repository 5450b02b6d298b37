package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bdobrica/ilji/internal/ilji/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "ilji-test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_AppliesMigrations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.Version(ctx)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v != 4 {
		t.Errorf("schema version = %d, want 4", v)
	}

	for _, table := range []string{"turns", "conversations", "matrix_sync_state", "publish_log"} {
		var name string
		err := s.DB().QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestOpen_Idempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reopen.db")
	ctx := context.Background()

	s1, err := store.Open(ctx, path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	s1.Close()

	s2, err := store.Open(ctx, path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()

	var n int
	if err := s2.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 4 {
		t.Errorf("migration rows = %d, want 4 (no re-apply)", n)
	}
}

func TestPublishLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 18, 21, 0, 0, 0, time.UTC)

	records := []store.PublishRecord{
		{ConversationKey: "room:!a", Adapter: "notion", EntryDate: "2026-02-18", OK: true, CreatedAt: base},
		{ConversationKey: "room:!a", Adapter: "calendar", EntryDate: "2026-02-18", OK: false, Error: "403", CreatedAt: base.Add(time.Second)},
		{ConversationKey: "room:!b", Adapter: "archive", EntryDate: "2026-02-19", OK: false, Error: "disk full", CreatedAt: base.Add(time.Hour)},
	}
	for _, r := range records {
		if err := s.RecordPublish(ctx, r); err != nil {
			t.Fatalf("RecordPublish: %v", err)
		}
	}

	recent, err := s.RecentPublishes(ctx, 2)
	if err != nil {
		t.Fatalf("RecentPublishes: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d rows, want 2", len(recent))
	}
	if recent[0].Adapter != "archive" || recent[1].Adapter != "calendar" {
		t.Errorf("order = %s,%s; want archive,calendar", recent[0].Adapter, recent[1].Adapter)
	}
	if !recent[0].CreatedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("CreatedAt = %v", recent[0].CreatedAt)
	}

	n, err := s.PublishFailuresSince(ctx, base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("PublishFailuresSince: %v", err)
	}
	if n != 1 {
		t.Errorf("failures since = %d, want 1", n)
	}
}

func TestPublished(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, r := range []store.PublishRecord{
		{ConversationKey: "room:!a", Adapter: "notion", EntryDate: "2026-02-18", Digest: "d1", OK: true},
		{ConversationKey: "room:!a", Adapter: "calendar", EntryDate: "2026-02-18", Digest: "d1", Error: "403"},
	} {
		if err := s.RecordPublish(ctx, r); err != nil {
			t.Fatalf("RecordPublish: %v", err)
		}
	}

	tests := []struct {
		key, adapter, digest string
		want                 bool
	}{
		{"room:!a", "notion", "d1", true},
		{"room:!a", "calendar", "d1", false},
		{"room:!a", "notion", "d2", false},
		{"room:!b", "notion", "d1", false},
		{"room:!a", "notion", "", false},
	}
	for _, tt := range tests {
		got, err := s.Published(ctx, tt.key, tt.adapter, tt.digest)
		if err != nil {
			t.Fatalf("Published: %v", err)
		}
		if got != tt.want {
			t.Errorf("Published(%s, %s, %q) = %v, want %v", tt.key, tt.adapter, tt.digest, got, tt.want)
		}
	}

	recent, err := s.RecentPublishes(ctx, 1)
	if err != nil || len(recent) != 1 || recent[0].Digest != "d1" {
		t.Errorf("RecentPublishes = %+v, %v", recent, err)
	}
}
