package publish

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bdobrica/ilji/internal/ilji/observability"
	"github.com/bdobrica/ilji/internal/ilji/store"
)

// ErrNotConfigured is returned by adapters missing required settings.
var ErrNotConfigured = errors.New("publish: adapter not configured")

// Adapter creates one external record per entry.
type Adapter interface {
	Name() string
	CreateRecord(ctx context.Context, e Entry) error
}

// Outcome is the result of one adapter on one entry. Skipped outcomes are
// repeats the adapter had already accepted; they count as OK.
type Outcome struct {
	Adapter string
	Date    string
	OK      bool
	Skipped bool
	Err     error
}

// Recorder persists outcomes and answers whether an entry was already
// published. *store.Store satisfies it.
type Recorder interface {
	RecordPublish(ctx context.Context, r store.PublishRecord) error
	Published(ctx context.Context, key, adapter, digest string) (bool, error)
}

// Dispatcher fans entries out to its adapters. Adapters run concurrently;
// each adapter receives the entries in order.
type Dispatcher struct {
	adapters []Adapter
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewDispatcher returns a Dispatcher over adapters. A nil recorder keeps the
// publish ledger in memory for the process lifetime.
func NewDispatcher(adapters []Adapter, recorder Recorder, logger *slog.Logger) *Dispatcher {
	if recorder == nil {
		recorder = newMemoryLedger()
	}
	return &Dispatcher{adapters: adapters, recorder: recorder, logger: logger, now: time.Now}
}

// Adapters returns the configured adapter names.
func (d *Dispatcher) Adapters() []string {
	names := make([]string, len(d.adapters))
	for i, a := range d.adapters {
		names[i] = a.Name()
	}
	return names
}

// Push sends every entry to every adapter and returns one Outcome per
// (adapter, entry), grouped by adapter in configuration order. Entries an
// adapter already accepted for the same key are skipped. Failures are
// logged and reported, never returned.
func (d *Dispatcher) Push(ctx context.Context, entries []Entry) []Outcome {
	if len(entries) == 0 || len(d.adapters) == 0 {
		return nil
	}
	log := observability.Logger(ctx, d.logger)

	results := make([][]Outcome, len(d.adapters))
	var g errgroup.Group
	for i, a := range d.adapters {
		g.Go(func() error {
			out := make([]Outcome, 0, len(entries))
			for _, e := range entries {
				if d.published(ctx, log, a.Name(), e) {
					log.Debug("publish: entry already published", "adapter", a.Name(), "date", e.Date, "key", e.Key)
					out = append(out, Outcome{Adapter: a.Name(), Date: e.Date, OK: true, Skipped: true})
					continue
				}
				err := a.CreateRecord(ctx, e)
				o := Outcome{Adapter: a.Name(), Date: e.Date, OK: err == nil, Err: err}
				if err != nil {
					log.Warn("publish: adapter failed", "adapter", a.Name(), "date", e.Date, "key", e.Key, "err", err)
				} else {
					log.Info("publish: record created", "adapter", a.Name(), "date", e.Date, "key", e.Key)
				}
				d.record(ctx, log, e, o)
				out = append(out, o)
			}
			results[i] = out
			return nil
		})
	}
	_ = g.Wait()

	var all []Outcome
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

// published reports a repeat. On a ledger failure the entry is pushed.
func (d *Dispatcher) published(ctx context.Context, log *slog.Logger, adapter string, e Entry) bool {
	ok, err := d.recorder.Published(ctx, e.Key, adapter, e.Digest())
	if err != nil {
		log.Warn("publish: failed to read publish ledger", "adapter", adapter, "err", err)
		return false
	}
	return ok
}

func (d *Dispatcher) record(ctx context.Context, log *slog.Logger, e Entry, o Outcome) {
	rec := store.PublishRecord{
		ConversationKey: e.Key,
		Adapter:         o.Adapter,
		EntryDate:       e.Date,
		Digest:          e.Digest(),
		OK:              o.OK,
		CreatedAt:       d.now(),
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	if err := d.recorder.RecordPublish(ctx, rec); err != nil {
		log.Warn("publish: failed to record outcome", "adapter", o.Adapter, "err", err)
	}
}

// memoryLedger is the Recorder of a dispatcher without a database.
type memoryLedger struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{seen: make(map[string]bool)}
}

func ledgerKey(key, adapter, digest string) string {
	return key + "\x00" + adapter + "\x00" + digest
}

func (m *memoryLedger) RecordPublish(_ context.Context, r store.PublishRecord) error {
	if !r.OK || r.Digest == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[ledgerKey(r.ConversationKey, r.Adapter, r.Digest)] = true
	return nil
}

func (m *memoryLedger) Published(_ context.Context, key, adapter, digest string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[ledgerKey(key, adapter, digest)], nil
}
