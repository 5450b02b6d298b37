package publish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bdobrica/ilji/internal/ilji/journal"
	"github.com/bdobrica/ilji/internal/ilji/store"
)

// fakeAdapter records entries and fails on the dates in failOn.
type fakeAdapter struct {
	name   string
	failOn map[string]bool

	mu      sync.Mutex
	entries []Entry
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) CreateRecord(_ context.Context, e Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	if f.failOn[e.Date] {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeAdapter) dates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.Date
	}
	return out
}

type fakeRecorder struct {
	mu   sync.Mutex
	recs []store.PublishRecord
	err  error
}

func (f *fakeRecorder) RecordPublish(_ context.Context, r store.PublishRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, r)
	return f.err
}

func (f *fakeRecorder) Published(context.Context, string, string, string) (bool, error) {
	return false, f.err
}

func threeDays() []Entry {
	return []Entry{
		{Key: "room:!a", Date: "2026-02-16"},
		{Key: "room:!a", Date: "2026-02-17"},
		{Key: "room:!a", Date: "2026-02-18"},
	}
}

func TestDispatcher_PushFansOutInOrder(t *testing.T) {
	ok := &fakeAdapter{name: "ok"}
	flaky := &fakeAdapter{name: "flaky", failOn: map[string]bool{"2026-02-17": true}}
	rec := &fakeRecorder{}
	d := NewDispatcher([]Adapter{ok, flaky}, rec, nil)

	outcomes := d.Push(context.Background(), threeDays())
	if len(outcomes) != 6 {
		t.Fatalf("outcomes = %d, want 6", len(outcomes))
	}
	for i, o := range outcomes[:3] {
		if o.Adapter != "ok" || !o.OK || o.Err != nil {
			t.Errorf("outcome %d = %+v", i, o)
		}
	}
	wantOK := []bool{true, false, true}
	for i, o := range outcomes[3:] {
		if o.Adapter != "flaky" || o.OK != wantOK[i] {
			t.Errorf("flaky outcome %d = %+v", i, o)
		}
	}

	for _, a := range []*fakeAdapter{ok, flaky} {
		got := a.dates()
		want := []string{"2026-02-16", "2026-02-17", "2026-02-18"}
		if len(got) != len(want) {
			t.Fatalf("%s received %v", a.name, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s entry %d = %s, want %s", a.name, i, got[i], want[i])
			}
		}
	}

	if len(rec.recs) != 6 {
		t.Fatalf("recorded = %d, want 6", len(rec.recs))
	}
	failures := 0
	for _, r := range rec.recs {
		if !r.OK {
			failures++
			if r.Error != "boom" || r.Adapter != "flaky" || r.EntryDate != "2026-02-17" {
				t.Errorf("failure record = %+v", r)
			}
		}
		if r.ConversationKey != "room:!a" {
			t.Errorf("key = %q", r.ConversationKey)
		}
	}
	if failures != 1 {
		t.Errorf("failure records = %d, want 1", failures)
	}
}

func TestDispatcher_RecorderErrorsAreIgnored(t *testing.T) {
	d := NewDispatcher([]Adapter{&fakeAdapter{name: "a"}}, &fakeRecorder{err: errors.New("disk full")}, nil)
	outcomes := d.Push(context.Background(), threeDays()[:1])
	if len(outcomes) != 1 || !outcomes[0].OK {
		t.Fatalf("outcomes = %+v", outcomes)
	}
}

func TestDispatcher_NothingToDo(t *testing.T) {
	if got := NewDispatcher(nil, nil, nil).Push(context.Background(), threeDays()); got != nil {
		t.Errorf("no adapters: %v", got)
	}
	d := NewDispatcher([]Adapter{&fakeAdapter{name: "a"}}, nil, nil)
	if got := d.Push(context.Background(), nil); got != nil {
		t.Errorf("no entries: %v", got)
	}
	if names := d.Adapters(); len(names) != 1 || names[0] != "a" {
		t.Errorf("Adapters = %v", names)
	}
}

func TestDispatcher_RecordsToStore(t *testing.T) {
	s, err := store.Open(context.Background(), t.TempDir()+"/ilji.db")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	flaky := &fakeAdapter{name: "flaky", failOn: map[string]bool{"2026-02-18": true}}
	NewDispatcher([]Adapter{flaky}, s, nil).Push(context.Background(), threeDays())

	n, err := s.PublishFailuresSince(context.Background(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("PublishFailuresSince: %v", err)
	}
	if n != 1 {
		t.Errorf("failures = %d, want 1", n)
	}
}

func TestDispatcher_SkipsRepeatedEntries(t *testing.T) {
	flaky := &fakeAdapter{name: "flaky", failOn: map[string]bool{"2026-02-17": true}}
	d := NewDispatcher([]Adapter{flaky}, nil, nil)
	ctx := context.Background()

	d.Push(ctx, threeDays())
	delete(flaky.failOn, "2026-02-17")
	second := d.Push(ctx, threeDays())

	if got := flaky.dates(); len(got) != 4 || got[3] != "2026-02-17" {
		t.Errorf("adapter received %v, want the failed day retried once", got)
	}
	wantSkipped := []bool{true, false, true}
	for i, o := range second {
		if !o.OK || o.Skipped != wantSkipped[i] {
			t.Errorf("second push outcome %d = %+v", i, o)
		}
	}

	changed := threeDays()[:1]
	changed[0].Body = "수정된 내용"
	if out := d.Push(ctx, changed); len(out) != 1 || out[0].Skipped {
		t.Errorf("changed entry outcome = %+v, want a fresh push", out)
	}
}

func TestDispatcher_SkipsRepeatsAcrossRestarts(t *testing.T) {
	s, err := store.Open(context.Background(), t.TempDir()+"/ilji.db")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	notion := &fakeAdapter{name: "notion"}
	NewDispatcher([]Adapter{notion}, s, nil).Push(ctx, threeDays())
	out := NewDispatcher([]Adapter{notion}, s, nil).Push(ctx, threeDays())

	if got := len(notion.dates()); got != 3 {
		t.Errorf("adapter received %d entries over two dispatchers, want 3", got)
	}
	for i, o := range out {
		if !o.Skipped {
			t.Errorf("outcome %d = %+v, want skipped", i, o)
		}
	}
	recent, _ := s.RecentPublishes(ctx, 10)
	if len(recent) != 3 {
		t.Errorf("publish log rows = %d, want 3 (skips are not logged)", len(recent))
	}
}

func TestEntry_Digest(t *testing.T) {
	e := Entry{Key: "room:!a", Date: "2026-02-18", Title: "t", Body: "b"}
	same := e
	same.Key, same.Label = "room:!b", "other"
	if e.Digest() != same.Digest() {
		t.Error("digest depends only on date, title and body")
	}
	for _, mut := range []func(*Entry){
		func(x *Entry) { x.Date = "2026-02-19" },
		func(x *Entry) { x.Title = "t2" },
		func(x *Entry) { x.Body = "b2" },
		func(x *Entry) { x.Title, x.Body = "tb", "" },
	} {
		x := e
		mut(&x)
		if x.Digest() == e.Digest() {
			t.Errorf("digest unchanged for %+v", x)
		}
	}
}

func TestEntriesFrom(t *testing.T) {
	now := time.Date(2026, 2, 18, 21, 0, 0, 0, time.UTC)

	if got := EntriesFrom("k", "운동", "운동", journal.Result{Kind: journal.KindEmpty}, now); got != nil {
		t.Errorf("empty result: %v", got)
	}

	text := EntriesFrom("room:!a", "일정", "일정", journal.Result{Kind: journal.KindText, Text: "요약"}, now)
	if len(text) != 1 {
		t.Fatalf("text entries = %d", len(text))
	}
	if e := text[0]; e.Date != "2026-02-18" || e.Title != "일정 일지 - 2026-02-18" || e.Body != "요약" || e.Record != nil || e.Key != "room:!a" {
		t.Errorf("text entry = %+v", e)
	}

	recs := []journal.Record{
		{Date: "2026-02-17", Weekday: "화", WorkoutPart: "하체"},
		{Date: "2026-02-18", Weekday: "수", Breakfast: "오트밀"},
	}
	got := EntriesFrom("room:!b", "운동", "운동", journal.Result{Kind: journal.KindRecords, Records: recs}, now)
	if len(got) != 2 {
		t.Fatalf("record entries = %d", len(got))
	}
	for i, e := range got {
		if e.Date != recs[i].Date || e.Record == nil || e.Record.Date != recs[i].Date {
			t.Errorf("entry %d = %+v", i, e)
		}
		if e.Body != journal.Render(recs[i]) {
			t.Errorf("entry %d body not rendered from record", i)
		}
	}
	if got[0].Record == got[1].Record {
		t.Error("entries share one record pointer")
	}
}

func TestTitle(t *testing.T) {
	if got := Title("", "2026-02-18"); got != "대화 일지 - 2026-02-18" {
		t.Errorf("Title = %q", got)
	}
}
