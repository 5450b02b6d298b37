package publish

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/bdobrica/ilji/common/trace"
	"github.com/bdobrica/ilji/internal/ilji/history"
	"github.com/bdobrica/ilji/internal/ilji/mode"
	"github.com/bdobrica/ilji/internal/ilji/observability"
)

// NotifyFunc receives each scheduled save's report.
type NotifyFunc func(ctx context.Context, c history.Conversation, rep *Report)

// SchedulerConfig wires a Scheduler.
type SchedulerConfig struct {
	// Spec is a standard five-field cron expression.
	Spec     string
	History  history.Store
	Modes    *mode.Table
	Saver    *Saver
	Location *time.Location
	// Notify is optional.
	Notify NotifyFunc
	Now    func() time.Time
	Logger *slog.Logger
}

// Scheduler saves every conversation active today on a cron schedule.
type Scheduler struct {
	cfg  SchedulerConfig
	cron *cronlib.Cron
	// mu keeps runs from overlapping.
	mu sync.Mutex
}

// NewScheduler validates the cron expression and returns a stopped Scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if _, err := cronlib.ParseStandard(cfg.Spec); err != nil {
		return nil, fmt.Errorf("scheduler: invalid autosave schedule %q: %w", cfg.Spec, err)
	}
	s := &Scheduler{cfg: cfg, cron: cronlib.New(cronlib.WithLocation(cfg.Location))}
	if _, err := s.cron.AddFunc(cfg.Spec, func() {
		ctx, _ := trace.Ensure(context.Background())
		if _, err := s.RunOnce(ctx); err != nil {
			cfg.Logger.Error("scheduler: autosave run failed", "err", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("scheduler: add job: %w", err)
	}
	return s, nil
}

// Start runs the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.cfg.Logger.Info("scheduler: autosave enabled", "schedule", s.cfg.Spec)
}

// Stop halts the schedule and waits for a running save to finish or ctx
// to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce saves every conversation with activity since the start of today
// and returns how many were saved. Failures of one conversation are logged
// and do not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Now().In(s.cfg.Location)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.cfg.Location)
	convs, err := s.cfg.History.Conversations(ctx, start)
	if err != nil {
		return 0, fmt.Errorf("scheduler: list conversations: %w", err)
	}

	log := observability.Logger(ctx, s.cfg.Logger)
	saved := 0
	for _, c := range convs {
		if err := ctx.Err(); err != nil {
			return saved, err
		}
		m, ok := s.cfg.Modes.Lookup(c.Mode)
		if !ok {
			m = s.cfg.Modes.Resolve(c.Label)
		}
		rep, err := s.cfg.Saver.Save(ctx, Target{Key: c.Key, Label: c.Label, Mode: m})
		if err != nil {
			log.Warn("scheduler: save failed", "key", c.Key, "err", err)
			continue
		}
		saved++
		if s.cfg.Notify != nil && len(rep.Entries) > 0 && !rep.Repeat() {
			s.cfg.Notify(ctx, c, rep)
		}
	}
	log.Info("scheduler: autosave finished", "conversations", len(convs), "saved", saved)
	return saved, nil
}
