package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bdobrica/ilji/internal/ilji/history"
	"github.com/bdobrica/ilji/internal/ilji/llm"
	"github.com/bdobrica/ilji/internal/ilji/mode"
	"github.com/bdobrica/ilji/internal/ilji/observability"
	"github.com/bdobrica/ilji/internal/ilji/text"
)

// ReuseMinRunes is the length an earlier assistant answer must exceed to
// be reused as the day's summary.
const ReuseMinRunes = 150

// EmptyMessage is the summary text when today has no turns.
const EmptyMessage = "대화 내용이 없어요!"

// triggerPhrases mark a user turn that already asked for a summary or save.
// Only requests count: nouns like "일지" or "summary" appear in ordinary
// questions too.
var triggerPhrases = []string{
	"요약해줘", "요약해 줘", "요약 해줘",
	"정리해줘", "정리해 줘", "정리 해줘",
	"저장해줘", "저장해 줘", "저장 해줘",
	"일지 써줘", "일지 작성해줘", "일지로 남겨줘",
	"summarize today", "summarize the day", "summarize our chat",
	"save today", "save the journal",
}

// recordsFence opens the machine-readable copy of committed records inside
// the assistant turn.
const recordsFence = "```ilji-records"

// Kind describes what a Result carries.
type Kind string

const (
	KindEmpty   Kind = "empty"
	KindText    Kind = "text"
	KindRecords Kind = "records"
)

// Strategy names the step that produced a Result.
type Strategy string

const (
	StrategyEmpty     Strategy = "empty"
	StrategyReuse     Strategy = "reuse"
	StrategyExtract   Strategy = "extract"
	StrategySummarize Strategy = "summarize"
)

// Result is the outcome of one Summarize call. Text is always the
// human-readable form; for KindRecords it is RenderAll(Records).
type Result struct {
	Kind     Kind
	Strategy Strategy
	Text     string
	Records  []Record
}

// Config wires a Pipeline.
type Config struct {
	History   history.Store
	Model     llm.Completer
	Tiers     llm.Tiers
	MaxTokens int
	// Location is the calendar-day zone. Default: time.Local.
	Location *time.Location
	// Now is the clock. Default: time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Pipeline runs the save strategies over a conversation's turns of today.
type Pipeline struct {
	cfg Config
}

// New returns a Pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{cfg: cfg}
}

// Summarize turns today's history for key into a journal entry. Strategies
// run in order and the first that applies wins:
//
//  1. no turns today: KindEmpty, no model call;
//  2. turn reuse: the day ends with a user request for a summary answered by
//     a long assistant turn; that answer (or the records Commit stored with
//     it) is returned, no model call;
//  3. extraction (modes with the extract strategy): structured records;
//  4. free-text summary at temperature 0 with the mode's instruction.
//
// Model failures propagate. Malformed extraction output does not: it yields
// a KindRecords result with no records.
func (p *Pipeline) Summarize(ctx context.Context, key string, m mode.Mode) (Result, error) {
	turns, err := p.cfg.History.ReadToday(ctx, key)
	if err != nil {
		return Result{}, err
	}
	now := p.cfg.Now().In(p.cfg.Location)
	log := observability.Logger(ctx, p.cfg.Logger).With("key", key, "mode", m.Name)

	if len(turns) == 0 {
		return Result{Kind: KindEmpty, Strategy: StrategyEmpty, Text: EmptyMessage}, nil
	}

	if answer, ok := reusable(turns); ok {
		log.Debug("journal: reusing earlier summary", "runes", text.Len(answer))
		return reuse(answer, m, now), nil
	}

	if m.Extracts() {
		return p.extract(ctx, log, turns, m, now)
	}
	return p.summarize(ctx, turns, m)
}

// SaveRequest is the user turn Commit writes ahead of a saved summary. It
// contains a trigger phrase, so a second save the same day reuses the
// summary instead of calling the model again.
const SaveRequest = "오늘 대화를 일지로 정리해줘."

// Commit appends a produced summary to the conversation as a
// (SaveRequest, summary) turn pair. Empty and reused results are skipped.
// Records follow the rendered text in a fenced JSON block, so reusing the
// turn yields the same records instead of a re-parse of the rendering.
func (p *Pipeline) Commit(ctx context.Context, key string, res Result) error {
	if res.Strategy == StrategyEmpty || res.Strategy == StrategyReuse || strings.TrimSpace(res.Text) == "" {
		return nil
	}
	content := res.Text
	if res.Kind == KindRecords && len(res.Records) > 0 {
		raw, err := json.Marshal(res.Records)
		if err != nil {
			return fmt.Errorf("journal: encode records: %w", err)
		}
		content = fmt.Sprintf("%s\n\n%s\n%s\n```", res.Text, recordsFence, raw)
	}
	if _, err := p.cfg.History.Append(ctx, key, history.RoleUser, SaveRequest); err != nil {
		return err
	}
	_, err := p.cfg.History.Append(ctx, key, history.RoleAssistant, content)
	return err
}

// reuse builds the result for an earlier answer. Committed records are
// decoded as stored; any other answer is sectioned by date in extract modes.
func reuse(answer string, m mode.Mode, now time.Time) Result {
	visible, recs, committed := committedRecords(answer)
	switch {
	case !m.Extracts():
		return Result{Kind: KindText, Strategy: StrategyReuse, Text: visible}
	case committed:
		return Result{Kind: KindRecords, Strategy: StrategyReuse, Text: RenderAll(recs), Records: recs}
	default:
		return Result{Kind: KindRecords, Strategy: StrategyReuse, Text: answer, Records: SectionByDate(answer, now)}
	}
}

// committedRecords splits an assistant turn written by Commit into its
// rendered text and records. ok is false when s holds no valid records block.
func committedRecords(s string) (visible string, recs []Record, ok bool) {
	at := strings.LastIndex(s, recordsFence+"\n")
	if at < 0 {
		return s, nil, false
	}
	recs, err := ParseRecords(s[at:])
	if err != nil || len(recs) == 0 {
		return s, nil, false
	}
	return strings.TrimSpace(s[:at]), recs, true
}

// visibleContent drops a committed records block from s.
func visibleContent(s string) string {
	visible, _, _ := committedRecords(s)
	return visible
}

// reusable reports whether the last two turns are a trigger request and a
// long enough answer.
func reusable(turns []history.Turn) (string, bool) {
	user, assistant, ok := history.LastPair(turns)
	if !ok {
		return "", false
	}
	if !HasTrigger(user.Content) {
		return "", false
	}
	if text.Len(assistant.Content) <= ReuseMinRunes {
		return "", false
	}
	return assistant.Content, true
}

// HasTrigger reports whether s contains a summarize/save trigger phrase.
func HasTrigger(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range triggerPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func (p *Pipeline) extract(ctx context.Context, log *slog.Logger, turns []history.Turn, m mode.Mode, now time.Time) (Result, error) {
	req := llm.Request{
		Model:       p.cfg.Tiers.Model(m.Tier),
		System:      ExtractionPrompt(now),
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: Transcript(turns, p.cfg.Location)}},
		Temperature: llm.Temperature(0),
		MaxTokens:   p.cfg.MaxTokens,
	}
	raw, err := p.cfg.Model.Complete(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("journal: extract: %w", err)
	}

	recs, err := ParseRecords(raw)
	if err != nil {
		log.Warn("journal: discarding malformed extraction", "err", err, "bytes", len(raw))
		recs = nil
	}
	return Result{
		Kind:     KindRecords,
		Strategy: StrategyExtract,
		Text:     RenderAll(recs),
		Records:  recs,
	}, nil
}

func (p *Pipeline) summarize(ctx context.Context, turns []history.Turn, m mode.Mode) (Result, error) {
	msgs := Messages(turns)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: m.SummaryInstruction})

	out, err := p.cfg.Model.Complete(ctx, llm.Request{
		Model:       p.cfg.Tiers.Model(m.Tier),
		System:      m.SystemPrompt,
		Messages:    msgs,
		Temperature: llm.Temperature(0),
		MaxTokens:   p.cfg.MaxTokens,
	})
	if err != nil {
		return Result{}, fmt.Errorf("journal: summarize: %w", err)
	}
	return Result{Kind: KindText, Strategy: StrategySummarize, Text: out}, nil
}

// Messages converts history turns into model messages. Leading assistant
// turns, which trimming can leave at the head of a log, are dropped: the
// model APIs expect the first message to be the user's.
func Messages(turns []history.Turn) []llm.Message {
	for len(turns) > 0 && turns[0].Role == history.RoleAssistant {
		turns = turns[1:]
	}
	out := make([]llm.Message, len(turns))
	for i, t := range turns {
		role := llm.RoleUser
		if t.Role == history.RoleAssistant {
			role = llm.RoleAssistant
		}
		out[i] = llm.Message{Role: role, Content: visibleContent(t.Content)}
	}
	return out
}

// Transcript renders turns as "role: content" lines for the extraction
// call, which sees the conversation as data rather than as dialogue.
func Transcript(turns []history.Turn, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s] %s: %s", t.Timestamp.In(loc).Format("15:04"), t.Role, visibleContent(t.Content))
	}
	return b.String()
}
