package publish

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bdobrica/ilji/internal/ilji/journal"
	"github.com/bdobrica/ilji/internal/ilji/mode"
	"github.com/bdobrica/ilji/internal/ilji/observability"
)

const (
	savedHeader    = "📝 **일지 저장 완료!**"
	noRecordsFound = "📝 오늘 대화에서 저장할 기록을 찾지 못했어요."
)

// adapterLabels are the user-facing adapter names in save reports.
var adapterLabels = map[string]string{
	"notion":   "노션",
	"calendar": "캘린더",
	"archive":  "파일",
}

// Summarizer produces and commits the day's summary. *journal.Pipeline
// satisfies it.
type Summarizer interface {
	Summarize(ctx context.Context, key string, m mode.Mode) (journal.Result, error)
	Commit(ctx context.Context, key string, res journal.Result) error
}

// Target names the conversation to save.
type Target struct {
	Key   string
	Label string
	Mode  mode.Mode
}

// Report is the outcome of one save.
type Report struct {
	Result   journal.Result
	Entries  []Entry
	Outcomes []Outcome
	// Message is the reply shown to the user.
	Message string
}

// Repeat reports whether every adapter had already published every entry.
func (r *Report) Repeat() bool {
	if len(r.Outcomes) == 0 {
		return false
	}
	for _, o := range r.Outcomes {
		if !o.Skipped {
			return false
		}
	}
	return true
}

// Saver runs the save flow: summarize, commit, publish.
type Saver struct {
	summarizer Summarizer
	dispatcher *Dispatcher
	location   *time.Location
	now        func() time.Time
	logger     *slog.Logger
}

// NewSaver returns a Saver. dispatcher may be nil, in which case nothing is
// published.
func NewSaver(s Summarizer, d *Dispatcher, loc *time.Location, logger *slog.Logger) *Saver {
	if loc == nil {
		loc = time.Local
	}
	return &Saver{summarizer: s, dispatcher: d, location: loc, now: time.Now, logger: logger}
}

// Save summarizes the target's day and publishes the resulting entries.
// Only a summary failure is returned; publishing and commit failures are
// reported in the Report and logged.
func (s *Saver) Save(ctx context.Context, t Target) (*Report, error) {
	log := observability.Logger(ctx, s.logger).With("key", t.Key, "mode", t.Mode.Name)

	res, err := s.summarizer.Summarize(ctx, t.Key, t.Mode)
	if err != nil {
		return nil, err
	}
	rep := &Report{Result: res}

	if res.Kind == journal.KindEmpty {
		rep.Message = res.Text
		return rep, nil
	}
	if res.Kind == journal.KindRecords && len(res.Records) == 0 {
		rep.Message = noRecordsFound
		return rep, nil
	}

	if err := s.summarizer.Commit(ctx, t.Key, res); err != nil {
		log.Warn("publish: failed to commit summary to history", "err", err)
	}

	rep.Entries = EntriesFrom(t.Key, t.Label, t.Mode.Name, res, s.now().In(s.location))
	if s.dispatcher != nil {
		rep.Outcomes = s.dispatcher.Push(ctx, rep.Entries)
	}
	rep.Message = formatReport(res.Text, rep.Outcomes)
	log.Info("publish: saved",
		"strategy", res.Strategy,
		"entries", len(rep.Entries),
		"outcomes", len(rep.Outcomes),
		"repeat", rep.Repeat(),
	)
	return rep, nil
}

// formatReport renders the save reply: header, summary, one status line per
// adapter.
func formatReport(summary string, outcomes []Outcome) string {
	var b strings.Builder
	b.WriteString(savedHeader)
	b.WriteString("\n\n")
	b.WriteString(summary)

	type tally struct{ ok, skipped, total int }
	var order []string
	counts := make(map[string]*tally)
	for _, o := range outcomes {
		c, seen := counts[o.Adapter]
		if !seen {
			c = &tally{}
			counts[o.Adapter] = c
			order = append(order, o.Adapter)
		}
		c.total++
		if o.OK {
			c.ok++
		}
		if o.Skipped {
			c.skipped++
		}
	}
	if len(order) > 0 {
		b.WriteString("\n")
	}
	for _, name := range order {
		label := adapterLabels[name]
		if label == "" {
			label = name
		}
		c := counts[name]
		switch {
		case c.skipped == c.total:
			fmt.Fprintf(&b, "\n☑️ %s 이미 저장됨 (%d건)", label, c.total)
		case c.ok == c.total:
			fmt.Fprintf(&b, "\n✅ %s 저장 완료 (%d건)", label, c.total)
		default:
			fmt.Fprintf(&b, "\n⚠️ %s 저장 실패 (%d/%d건 성공)", label, c.ok, c.total)
		}
	}
	return b.String()
}
