// Package schedule starts the bot on cron windows and stops it again after
// the window's maximum duration.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hochfrequenz/linkbot/internal/bot"
	"github.com/hochfrequenz/linkbot/internal/domain"
	"github.com/hochfrequenz/linkbot/internal/logbus"
	"github.com/robfig/cron/v3"
)

// Controller is the part of the orchestrator the scheduler drives
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() domain.BotState
}

// Scheduler manages scheduled bot runs
type Scheduler struct {
	bot     Controller
	bus     logbus.Recorder
	logger  *slog.Logger
	tick    time.Duration
	now     func() time.Time
	windows map[string]Window
	plans   map[string]cron.Schedule

	mu      sync.Mutex
	lastRun map[string]time.Time
	owned   string
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler for windows. Windows are validated and
// their names must be unique.
func NewScheduler(windows []Window, b Controller, bus logbus.Recorder, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		bot:     b,
		bus:     bus,
		logger:  logger,
		tick:    time.Minute,
		now:     time.Now,
		windows: make(map[string]Window),
		plans:   make(map[string]cron.Schedule),
		lastRun: make(map[string]time.Time),
	}
	for i := range windows {
		w := windows[i]
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("window %d: %w", i, err)
		}
		if _, dup := s.windows[w.Name]; dup {
			return nil, fmt.Errorf("window %q defined twice", w.Name)
		}
		plan, _ := ParseCron(w.Cron)
		s.windows[w.Name] = w
		s.plans[w.Name] = plan
	}
	return s, nil
}

// SetTick changes how often windows are evaluated
func (s *Scheduler) SetTick(d time.Duration) {
	s.tick = d
}

// ListWindows returns all window names, sorted
func (s *Scheduler) ListWindows() []string {
	names := make([]string, 0, len(s.windows))
	for name := range s.windows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextRun returns the next scheduled start of a window
func (s *Scheduler) NextRun(name string) time.Time {
	plan, ok := s.plans[name]
	if !ok {
		return time.Time{}
	}
	return plan.Next(s.now())
}

// ShouldRun returns true if a window's start time has passed since it last
// fired. A window that never fired only looks back one tick, so a restart
// does not replay yesterday's run.
func (s *Scheduler) ShouldRun(name string) bool {
	plan, ok := s.plans[name]
	if !ok {
		return false
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owned != "" {
		return false
	}
	last := s.lastRun[name]
	if last.IsZero() {
		last = now.Add(-s.tick)
	}
	return !plan.Next(last).After(now)
}

// Run evaluates windows every tick until ctx is done
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.windows) == 0 {
		<-ctx.Done()
		return nil
	}
	s.logger.Info("scheduler started", "windows", s.ListWindows())

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return nil
		case <-ticker.C:
			for _, name := range s.ListWindows() {
				if s.ShouldRun(name) {
					s.fire(ctx, s.windows[name])
				}
			}
		}
	}
}

// fire starts the bot for w unless it is already active
func (s *Scheduler) fire(ctx context.Context, w Window) {
	s.mu.Lock()
	s.lastRun[w.Name] = s.now()
	s.mu.Unlock()

	if s.bot.State().Phase != domain.PhaseIdle {
		s.logger.Info("scheduled start skipped, bot is active", "window", w.Name)
		return
	}
	s.bus.Record(domain.Info(fmt.Sprintf("Scheduled start: %s", w.Name), "Starting bot on schedule"))
	if err := s.bot.Start(ctx); err != nil {
		if !errors.Is(err, bot.ErrAlreadyRunning) {
			s.logger.Warn("scheduled start failed", "window", w.Name, "error", err)
		}
		return
	}
	if w.MaxDuration <= 0 {
		return
	}

	s.mu.Lock()
	s.owned = w.Name
	s.mu.Unlock()
	s.wg.Add(1)
	go s.stopAfter(ctx, w)
}

func (s *Scheduler) stopAfter(ctx context.Context, w Window) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.owned = ""
		s.mu.Unlock()
	}()

	t := time.NewTimer(w.MaxDuration)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return
	case <-t.C:
	}

	s.bus.Record(domain.Info(fmt.Sprintf("Scheduled window %s ended after %s", w.Name, w.MaxDuration), "Stopping bot on schedule"))
	err := s.bot.Stop(context.WithoutCancel(ctx))
	if err != nil && !errors.Is(err, bot.ErrNotRunning) && !errors.Is(err, bot.ErrAlreadyStopping) {
		s.logger.Warn("scheduled stop failed", "window", w.Name, "error", err)
	}
}
