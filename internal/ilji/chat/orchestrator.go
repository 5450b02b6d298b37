// Package chat is the conversation orchestrator: it takes one inbound chat
// message through the guard, the mode table, the history store and the
// model, and produces the reply to deliver.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bdobrica/ilji/internal/ilji/guard"
	"github.com/bdobrica/ilji/internal/ilji/history"
	"github.com/bdobrica/ilji/internal/ilji/journal"
	"github.com/bdobrica/ilji/internal/ilji/llm"
	"github.com/bdobrica/ilji/internal/ilji/mode"
	"github.com/bdobrica/ilji/internal/ilji/observability"
	"github.com/bdobrica/ilji/internal/ilji/text"
)

// MinTranslationSourceRunes is the source length, after trimming, below
// which a translation is not forwarded.
const MinTranslationSourceRunes = 8

// defaultTranslationTimeout bounds one forwarded translation write.
const defaultTranslationTimeout = 30 * time.Second

// TruncatedNotice is attached to a reply whose input was cut.
const TruncatedNotice = "✂️ 메시지가 너무 길어서 앞부분만 읽었어요."

// TranslationSink receives (source, translated) pairs from translation
// modes. Calls happen off the reply path; errors are only logged.
type TranslationSink interface {
	SaveTranslation(ctx context.Context, source, translated string) error
}

// Inbound is one chat message addressed to the assistant.
type Inbound struct {
	RoomID string
	Actor  string
	// Label is the room's display name; it selects the mode.
	Label string
	Text  string
}

// Reply is the orchestrator's answer to one Inbound.
type Reply struct {
	Key     string
	Mode    mode.Mode
	Text    string
	Chunks  []string
	Notices []string
}

// Cooldowns maps rate classes to windows.
type Cooldowns struct {
	Standard time.Duration
	Heavy    time.Duration
}

// Window returns the cooldown for class.
func (c Cooldowns) Window(class mode.RateClass) time.Duration {
	if class == mode.RateHeavy {
		if c.Heavy > 0 {
			return c.Heavy
		}
		return guard.DefaultHeavyCooldown
	}
	if c.Standard > 0 {
		return c.Standard
	}
	return guard.DefaultStandardCooldown
}

// Config wires an Orchestrator. History, Model and Modes are required.
type Config struct {
	History   history.Store
	Model     llm.Completer
	Modes     *mode.Table
	Tiers     llm.Tiers
	Limiter   *guard.Limiter
	Input     guard.Input
	Cooldowns Cooldowns
	// ChunkSize is the delivery chunk bound in runes. Default: 1900.
	ChunkSize int
	MaxTokens int
	// Translations is optional; nil disables the side channel.
	Translations       TranslationSink
	TranslationTimeout time.Duration
	Logger             *slog.Logger
}

// Orchestrator handles chat messages. It is safe for concurrent use.
type Orchestrator struct {
	cfg Config
	wg  sync.WaitGroup
}

// New returns an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Limiter == nil {
		cfg.Limiter = guard.NewLimiter()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = text.DefaultChunkSize
	}
	if cfg.TranslationTimeout <= 0 {
		cfg.TranslationTimeout = defaultTranslationTimeout
	}
	return &Orchestrator{cfg: cfg}
}

// Mode resolves the mode for a room label.
func (o *Orchestrator) Mode(label string) mode.Mode {
	return o.cfg.Modes.Resolve(label)
}

// Key returns the conversation key for in under m's scope.
func (o *Orchestrator) Key(in Inbound, m mode.Mode) string {
	return Key(in.RoomID, in.Actor, m)
}

// Key derives a conversation key: "room:<id>" for channel-scoped modes,
// "actor:<id>" for actor-scoped ones.
func Key(roomID, actor string, m mode.Mode) string {
	if m.Scope == mode.ScopeActor {
		return "actor:" + actor
	}
	return "room:" + roomID
}

// HandleMessage runs one message through the pipeline:
// input guard, mode, cooldown, user turn, model, assistant turn, chunking.
//
// A rejected message (*InputError, *guard.RateLimitedError) leaves history
// untouched. A model failure leaves the user turn recorded without reply.
func (o *Orchestrator) HandleMessage(ctx context.Context, in Inbound) (*Reply, error) {
	body, truncated, err := o.cfg.Input.Check(in.Text)
	if err != nil {
		if errors.Is(err, guard.ErrEmptyInput) {
			return nil, &InputError{Reason: "empty message"}
		}
		return nil, err
	}

	m := o.cfg.Modes.Resolve(in.Label)
	if remaining, ok := o.cfg.Limiter.Allow(in.Actor, o.cfg.Cooldowns.Window(m.Rate)); !ok {
		return nil, &guard.RateLimitedError{Remaining: remaining}
	}

	key := o.Key(in, m)
	log := observability.Logger(ctx, o.cfg.Logger).With("key", key, "mode", m.Name)

	if err := o.cfg.History.Touch(ctx, key, in.Label, m.Name); err != nil {
		return nil, err
	}
	if _, err := o.cfg.History.Append(ctx, key, history.RoleUser, body); err != nil {
		return nil, err
	}
	turns, err := o.cfg.History.ReadAll(ctx, key)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	answer, err := o.cfg.Model.Complete(ctx, llm.Request{
		Model:     o.cfg.Tiers.Model(m.Tier),
		System:    m.SystemPrompt,
		Messages:  journal.Messages(turns),
		MaxTokens: o.cfg.MaxTokens,
	})
	if err != nil {
		log.Warn("chat: model call failed", "err", err, "turns", len(turns))
		return nil, &CollaboratorError{Collaborator: "model", Err: err}
	}
	log.Info("chat: reply generated",
		"turns", len(turns),
		"in_runes", text.Len(body),
		"out_runes", text.Len(answer),
		"latency_ms", time.Since(started).Milliseconds(),
	)

	if _, err := o.cfg.History.Append(ctx, key, history.RoleAssistant, answer); err != nil {
		return nil, err
	}

	reply := &Reply{
		Key:    key,
		Mode:   m,
		Text:   answer,
		Chunks: text.Chunk(answer, o.cfg.ChunkSize),
	}
	if truncated {
		reply.Notices = append(reply.Notices, TruncatedNotice)
	}

	if m.ForwardTranslations && o.cfg.Translations != nil && looksTranslated(body, answer) {
		o.forward(ctx, log, body, answer)
	}
	return reply, nil
}

// looksTranslated is the translation side-channel condition: the reply
// contains Han ideographs and the source is not trivially short.
func looksTranslated(source, reply string) bool {
	return text.HasHanRun(reply) && text.Len(strings.TrimSpace(source)) >= MinTranslationSourceRunes
}

// forward hands the pair to the sink on its own goroutine. The caller's
// cancellation does not reach it; Wait drains it on shutdown.
func (o *Orchestrator) forward(ctx context.Context, log *slog.Logger, source, translated string) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.TranslationTimeout)
		defer cancel()
		if err := o.cfg.Translations.SaveTranslation(ctx, source, translated); err != nil {
			log.Warn("chat: translation sync failed", "err", err)
			return
		}
		log.Debug("chat: translation forwarded")
	}()
}

// Reset clears the conversation's history.
func (o *Orchestrator) Reset(ctx context.Context, key string) error {
	return o.cfg.History.Clear(ctx, key)
}

// Wait blocks until every forwarded translation has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}
