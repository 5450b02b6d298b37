package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bdobrica/ilji/internal/ilji/chat"
	"github.com/bdobrica/ilji/internal/ilji/mode"
	"github.com/bdobrica/ilji/internal/ilji/observability"
	"github.com/bdobrica/ilji/internal/ilji/publish"
)

// Replies.
const (
	ResetReply = "🔄 이 채널의 대화 히스토리를 초기화했어요!"
	modeReply  = "%s 현재 채널 모드: **%s**"
)

// Conversations is the part of the orchestrator commands use.
type Conversations interface {
	Mode(label string) mode.Mode
	Reset(ctx context.Context, key string) error
}

// Saver runs a save. *publish.Saver satisfies it.
type Saver interface {
	Save(ctx context.Context, t publish.Target) (*publish.Report, error)
}

// Handlers implements the built-in commands.
type Handlers struct {
	convs  Conversations
	saver  Saver
	logger *slog.Logger
}

// NewHandlers returns the built-in command handlers.
func NewHandlers(convs Conversations, saver Saver, logger *slog.Logger) *Handlers {
	return &Handlers{convs: convs, saver: saver, logger: logger}
}

// Register adds /저장, /초기화 and /모드 with their English aliases.
func (h *Handlers) Register(r *Router) {
	r.Register("저장", h.Save, "save")
	r.Register("초기화", h.Reset, "reset")
	r.Register("모드", h.Mode, "mode")
}

func (h *Handlers) target(inv Invocation) publish.Target {
	m := h.convs.Mode(inv.Label)
	return publish.Target{Key: chat.Key(inv.RoomID, inv.Actor, m), Label: inv.Label, Mode: m}
}

// Save summarizes the conversation's day and publishes it.
func (h *Handlers) Save(ctx context.Context, _ *Command, inv Invocation) (string, error) {
	t := h.target(inv)
	observability.Logger(ctx, h.logger).Info("commands: save", "key", t.Key, "mode", t.Mode.Name)
	rep, err := h.saver.Save(ctx, t)
	if err != nil {
		return "", err
	}
	return rep.Message, nil
}

// Reset clears the conversation's history.
func (h *Handlers) Reset(ctx context.Context, _ *Command, inv Invocation) (string, error) {
	t := h.target(inv)
	if err := h.convs.Reset(ctx, t.Key); err != nil {
		return "", err
	}
	observability.Logger(ctx, h.logger).Info("commands: history reset", "key", t.Key)
	return ResetReply, nil
}

// Mode reports the room's resolved mode.
func (h *Handlers) Mode(_ context.Context, _ *Command, inv Invocation) (string, error) {
	m := h.convs.Mode(inv.Label)
	return ModeReply(m), nil
}

// ModeReply formats the /모드 reply for m.
func ModeReply(m mode.Mode) string {
	emoji := m.Emoji
	if emoji == "" {
		emoji = "🤖"
	}
	return fmt.Sprintf(modeReply, emoji, m.Name)
}

// UnknownReply is the reply to an unregistered command.
func UnknownReply(name string, known []string) string {
	list := make([]string, len(known))
	for i, k := range known {
		list[i] = Prefix + k
	}
	return fmt.Sprintf("❓ 알 수 없는 명령어예요: %s%s\n사용 가능한 명령어: %s", Prefix, name, strings.Join(list, ", "))
}
