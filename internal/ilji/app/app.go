// Package app wires the ilji components together and runs the bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bdobrica/ilji/common/trace"
	"github.com/bdobrica/ilji/internal/ilji/chat"
	"github.com/bdobrica/ilji/internal/ilji/commands"
	"github.com/bdobrica/ilji/internal/ilji/config"
	"github.com/bdobrica/ilji/internal/ilji/guard"
	"github.com/bdobrica/ilji/internal/ilji/history"
	"github.com/bdobrica/ilji/internal/ilji/journal"
	"github.com/bdobrica/ilji/internal/ilji/llm"
	"github.com/bdobrica/ilji/internal/ilji/matrix"
	"github.com/bdobrica/ilji/internal/ilji/mode"
	"github.com/bdobrica/ilji/internal/ilji/observability"
	"github.com/bdobrica/ilji/internal/ilji/publish"
	"github.com/bdobrica/ilji/internal/ilji/store"
	"github.com/bdobrica/ilji/internal/ilji/text"
)

const (
	sweepInterval   = time.Minute
	shutdownTimeout = 10 * time.Second
)

// Transport is the chat network. *matrix.Client satisfies it.
type Transport interface {
	Start(ctx context.Context, h matrix.Handler) error
	Stop()
	RoomName(ctx context.Context, roomID string) (string, error)
	SendMarkdown(ctx context.Context, roomID, text string) error
	Typing(ctx context.Context, roomID string, typing bool) error
}

// Components are the collaborators an App runs. Build assembles them from
// a Config; tests assemble their own.
type Components struct {
	Transport Transport
	History   history.Store
	Modes     *mode.Table
	Model     llm.Completer
	Tiers     llm.Tiers
	Limiter   *guard.Limiter
	Input     guard.Input
	Cooldowns chat.Cooldowns
	ChunkSize int
	MaxTokens int
	Location  *time.Location
	Adapters  []publish.Adapter
	// Translations receives forwarded translations; nil disables them.
	Translations chat.TranslationSink
	// Store is the SQLite database when history is persistent.
	Store *store.Store
	// AutosaveSchedule enables nightly saves when set.
	AutosaveSchedule string
	HTTPAddr         string
	Logger           *slog.Logger
}

// App is a running bot.
type App struct {
	c         Components
	logger    *slog.Logger
	chat      *chat.Orchestrator
	router    *commands.Router
	saver     *publish.Saver
	scheduler *publish.Scheduler
	health    *HealthServer
	inflight  sync.WaitGroup
}

// New assembles an App from components.
func New(c Components) (*App, error) {
	if c.Transport == nil || c.History == nil || c.Model == nil {
		return nil, errors.New("app: transport, history and model are required")
	}
	if c.Modes == nil {
		c.Modes = mode.Default()
	}
	if c.Limiter == nil {
		c.Limiter = guard.NewLimiter()
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = text.DefaultChunkSize
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Tiers == (llm.Tiers{}) {
		c.Tiers = llm.DefaultTiers
	}

	a := &App{c: c, logger: c.Logger}
	a.chat = chat.New(chat.Config{
		History:      c.History,
		Model:        c.Model,
		Modes:        c.Modes,
		Tiers:        c.Tiers,
		Limiter:      c.Limiter,
		Input:        c.Input,
		Cooldowns:    c.Cooldowns,
		ChunkSize:    c.ChunkSize,
		MaxTokens:    c.MaxTokens,
		Translations: c.Translations,
		Logger:       c.Logger,
	})

	pipeline := journal.New(journal.Config{
		History:   c.History,
		Model:     c.Model,
		Tiers:     c.Tiers,
		MaxTokens: c.MaxTokens,
		Location:  c.Location,
		Logger:    c.Logger,
	})
	var recorder publish.Recorder
	if c.Store != nil {
		recorder = c.Store
	}
	dispatcher := publish.NewDispatcher(c.Adapters, recorder, c.Logger)
	a.saver = publish.NewSaver(pipeline, dispatcher, c.Location, c.Logger)

	a.router = commands.NewRouter(commands.Prefix)
	commands.NewHandlers(a.chat, a.saver, c.Logger).Register(a.router)

	if c.AutosaveSchedule != "" {
		s, err := publish.NewScheduler(publish.SchedulerConfig{
			Spec:     c.AutosaveSchedule,
			History:  c.History,
			Modes:    c.Modes,
			Saver:    a.saver,
			Location: c.Location,
			Notify:   a.notifySaved,
			Logger:   c.Logger,
		})
		if err != nil {
			return nil, err
		}
		a.scheduler = s
	}

	if c.HTTPAddr != "" {
		var stats PublishStats
		if c.Store != nil {
			stats = c.Store
		}
		a.health = NewHealthServer(c.HTTPAddr, c.History, stats, dispatcher.Adapters(), c.Logger)
	}
	return a, nil
}

// Run starts every component and blocks until ctx ends, then shuts down.
func (a *App) Run(ctx context.Context) error {
	if a.health != nil {
		if err := a.health.Start(); err != nil {
			a.logger.Warn("health server failed to start; continuing without it", "err", err)
			a.health = nil
		}
	}
	if err := a.c.Transport.Start(ctx, a.dispatch); err != nil {
		return fmt.Errorf("app: start transport: %w", err)
	}
	if a.scheduler != nil {
		a.scheduler.Start()
	}

	sweeps := time.NewTicker(sweepInterval)
	defer sweeps.Stop()
	a.logger.Info("ilji is running")
	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return nil
		case <-sweeps.C:
			if n := a.c.Limiter.Sweep(2 * a.c.Cooldowns.Window(mode.RateHeavy)); n > 0 {
				a.logger.Debug("app: swept idle rate-limit entries", "removed", n)
			}
		}
	}
}

func (a *App) shutdown() {
	a.logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.c.Transport.Stop()
	if a.scheduler != nil {
		a.scheduler.Stop(ctx)
	}
	a.inflight.Wait()
	a.chat.Wait()
	if a.health != nil {
		a.health.Stop(ctx)
	}
}

// dispatch handles one inbound message on its own goroutine so a slow
// model call does not stall the sync loop.
func (a *App) dispatch(ctx context.Context, msg matrix.Message) {
	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		a.Handle(context.WithoutCancel(ctx), msg)
	}()
}

// Handle routes msg to a command or the orchestrator and sends the reply.
func (a *App) Handle(ctx context.Context, msg matrix.Message) {
	ctx, _ = trace.Ensure(ctx)
	log := observability.Logger(ctx, a.logger).With("room", msg.RoomID)

	label, err := a.c.Transport.RoomName(ctx, msg.RoomID)
	if err != nil {
		log.Warn("app: room name lookup failed; using default mode", "err", err)
	}

	if a.router.IsCommand(msg.Body) {
		a.handleCommand(ctx, log, msg, label)
		return
	}

	a.typing(ctx, log, msg.RoomID, true)
	reply, err := a.chat.HandleMessage(ctx, chat.Inbound{
		RoomID: msg.RoomID,
		Actor:  msg.Sender,
		Label:  label,
		Text:   msg.Body,
	})
	a.typing(ctx, log, msg.RoomID, false)
	if err != nil {
		log.Info("app: message not answered", "err", err)
		a.send(ctx, log, msg.RoomID, chat.UserMessage(err))
		return
	}
	for _, chunk := range reply.Chunks {
		if !a.send(ctx, log, msg.RoomID, chunk) {
			return
		}
	}
	for _, n := range reply.Notices {
		a.send(ctx, log, msg.RoomID, n)
	}
}

func (a *App) handleCommand(ctx context.Context, log *slog.Logger, msg matrix.Message, label string) {
	a.typing(ctx, log, msg.RoomID, true)
	reply, err := a.router.Route(ctx, msg.Body, commands.Invocation{
		RoomID: msg.RoomID,
		Actor:  msg.Sender,
		Label:  label,
	})
	a.typing(ctx, log, msg.RoomID, false)

	var unknown *commands.UnknownCommandError
	switch {
	case errors.As(err, &unknown):
		reply = commands.UnknownReply(unknown.Name, a.router.Names())
	case err != nil:
		log.Warn("app: command failed", "err", err)
		reply = chat.UserMessage(err)
	}
	a.sendAll(ctx, log, msg.RoomID, reply)
}

// notifySaved posts scheduled save reports to channel-scoped rooms.
func (a *App) notifySaved(ctx context.Context, c history.Conversation, rep *publish.Report) {
	roomID, ok := strings.CutPrefix(c.Key, "room:")
	if !ok {
		return
	}
	a.sendAll(ctx, observability.Logger(ctx, a.logger).With("room", roomID), roomID, rep.Message)
}

func (a *App) sendAll(ctx context.Context, log *slog.Logger, roomID, body string) {
	for _, chunk := range text.Chunk(body, a.c.ChunkSize) {
		if !a.send(ctx, log, roomID, chunk) {
			return
		}
	}
}

func (a *App) send(ctx context.Context, log *slog.Logger, roomID, body string) bool {
	if err := a.c.Transport.SendMarkdown(ctx, roomID, body); err != nil {
		log.Error("app: send failed", "err", err)
		return false
	}
	return true
}

func (a *App) typing(ctx context.Context, log *slog.Logger, roomID string, on bool) {
	if err := a.c.Transport.Typing(ctx, roomID, on); err != nil {
		log.Debug("app: typing indicator failed", "err", err)
	}
}

// Build assembles production components from cfg. The returned cleanup
// closes the database.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Components, func(), error) {
	c := Components{
		Tiers:            cfg.LLM.Tiers,
		Input:            guard.Input{MaxRunes: cfg.MaxInputChars},
		Cooldowns:        chat.Cooldowns{Standard: cfg.CooldownStandard, Heavy: cfg.CooldownHeavy},
		ChunkSize:        cfg.MaxChunkChars,
		MaxTokens:        cfg.LLM.MaxTokens,
		Location:         cfg.Location,
		AutosaveSchedule: cfg.AutosaveSchedule,
		HTTPAddr:         cfg.HTTPAddr,
		Logger:           logger,
	}
	cleanup := func() {}

	modes := mode.Default()
	if cfg.ModesFile != "" {
		var err error
		if modes, err = mode.LoadFile(cfg.ModesFile); err != nil {
			return c, cleanup, err
		}
	}
	c.Modes = modes

	histOpts := history.Options{Ceiling: cfg.HistoryCeiling, Location: cfg.Location}
	if cfg.DatabasePath != "" {
		st, err := store.Open(ctx, cfg.DatabasePath)
		if err != nil {
			return c, cleanup, err
		}
		cleanup = func() { _ = st.Close() }
		c.Store = st
		c.History = history.NewSQLite(st.DB(), histOpts)
	} else {
		logger.Warn("app: no database path; history is kept in memory only")
		c.History = history.NewMemory(histOpts)
	}

	switch cfg.LLM.Provider {
	case config.ProviderOpenAI:
		c.Model = llm.NewOpenAI(llm.OpenAIConfig{APIKey: cfg.LLM.OpenAIAPIKey, BaseURL: cfg.LLM.OpenAIBaseURL})
	default:
		c.Model = llm.NewAnthropic(llm.AnthropicConfig{APIKey: cfg.LLM.AnthropicAPIKey})
	}

	archive, err := publish.NewArchive(cfg.JournalDir)
	if err != nil {
		cleanup()
		return c, func() {}, err
	}
	c.Adapters = append(c.Adapters, archive)

	if cfg.NotionEnabled() {
		n, err := publish.NewNotion(publish.NotionConfig{
			Token:                 cfg.Notion.Token,
			DatabaseID:            cfg.Notion.DatabaseID,
			TranslationDatabaseID: cfg.Notion.TranslationDatabaseID,
		})
		if err != nil {
			cleanup()
			return c, func() {}, err
		}
		c.Adapters = append(c.Adapters, n)
		c.Translations = n
	}
	if cfg.CalendarEnabled() {
		cal, err := publish.NewCalendar(ctx, publish.CalendarConfig{
			CredentialsFile: cfg.Google.CredentialsFile,
			CalendarID:      cfg.Google.CalendarID,
		})
		if err != nil {
			cleanup()
			return c, func() {}, err
		}
		c.Adapters = append(c.Adapters, cal)
	}

	mcfg := matrix.Config{
		Homeserver:  cfg.Matrix.Homeserver,
		UserID:      cfg.Matrix.UserID,
		AccessToken: cfg.Matrix.AccessToken,
		Rooms:       cfg.Matrix.Rooms,
		Logger:      logger,
	}
	if c.Store != nil {
		mcfg.DB = c.Store.DB()
	}
	mx, err := matrix.New(mcfg)
	if err != nil {
		cleanup()
		return c, func() {}, err
	}
	c.Transport = mx
	return c, cleanup, nil
}
