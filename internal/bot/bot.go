// Package bot owns the lifecycle of the single browser bot: it accepts start
// and stop requests, runs the pipeline and is the only writer of BotState.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hochfrequenz/linkbot/internal/domain"
	"github.com/hochfrequenz/linkbot/internal/driver"
	"github.com/hochfrequenz/linkbot/internal/logbus"
	"github.com/hochfrequenz/linkbot/internal/notify"
	"github.com/hochfrequenz/linkbot/internal/pipeline"
	"github.com/hochfrequenz/linkbot/internal/profile"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrAlreadyRunning  = errors.New("bot is already running")
	ErrNotRunning      = errors.New("bot is not running")
	ErrAlreadyStopping = errors.New("bot is already stopping")
	ErrNeedsReset      = errors.New("bot failed; stop it before starting again")
)

// Bus is the part of the log bus the orchestrator drives
type Bus interface {
	logbus.Recorder
	StartSession() string
	EndSession()
}

// TransitionHook observes every phase change
type TransitionHook func(from, to domain.Phase)

// Orchestrator is safe for concurrent use. Phase checks and transitions
// happen under one mutex; the pipeline runs outside it.
type Orchestrator struct {
	driver   driver.Driver
	bus      Bus
	profile  func() *profile.Profile
	settings pipeline.Settings
	runner   *pipeline.Runner
	tracer   trace.Tracer
	notifier notify.Notifier
	logger   *slog.Logger
	stopWait time.Duration
	hooks    []TransitionHook
	now      func() time.Time

	mu        sync.Mutex
	state     domain.BotState
	session   string
	run       *pipeline.Context
	started   chan struct{}
	cancelRun context.CancelFunc
	runDone   chan struct{}
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithProfile sets where the target profile is read from at every start
func WithProfile(current func() *profile.Profile) Option {
	return func(o *Orchestrator) { o.profile = current }
}

// WithSettings overrides the pipeline timings
func WithSettings(s pipeline.Settings) Option {
	return func(o *Orchestrator) { o.settings = s }
}

// WithTracer records a span per pipeline step
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithNotifier sets who hears about failures and pending logins
func WithNotifier(n notify.Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithLogger sets the process logger
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithStopTimeout bounds how long Stop waits for background steps
func WithStopTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.stopWait = d }
}

// WithTransitionHook registers an observer of phase changes. Hooks run with
// the orchestrator lock held and must not call back into it.
func WithTransitionHook(h TransitionHook) Option {
	return func(o *Orchestrator) { o.hooks = append(o.hooks, h) }
}

// New creates an idle Orchestrator
func New(d driver.Driver, bus Bus, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		driver:   d,
		bus:      bus,
		profile:  profile.Default,
		settings: pipeline.DefaultSettings(),
		notifier: notify.NoopNotifier{},
		logger:   slog.Default(),
		stopWait: 10 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.runner = pipeline.NewRunner(bus, o.tracer)
	o.state = domain.BotState{Phase: domain.PhaseIdle, Message: pipeline.MsgIdle.Technical, UpdatedAt: o.now()}
	setPhaseGauge(domain.PhaseIdle)
	return o
}

// State returns a copy of the current state
func (o *Orchestrator) State() domain.BotState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Start launches the browser and opens the target. It returns once the bot
// is running; login and feed steps continue in the background.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	switch o.state.Phase {
	case domain.PhaseIdle:
	case domain.PhaseFailed:
		o.mu.Unlock()
		o.bus.Record(pipeline.MsgNeedsReset.Warning())
		return ErrNeedsReset
	default:
		o.mu.Unlock()
		o.bus.Record(pipeline.MsgAlreadyRunning.Warning())
		return ErrAlreadyRunning
	}

	o.session = o.bus.StartSession()
	o.transitionLocked(domain.PhaseStarting, pipeline.MsgStarting.Technical)
	run := pipeline.NewContext(o.driver, o.bus, o.profile(), o.settings, o.State)
	run.Notify = o.notifyMessage
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	started := make(chan struct{})
	o.run, o.cancelRun, o.started = run, cancel, started
	o.mu.Unlock()

	o.bus.Record(pipeline.MsgStarting.Info())
	err := o.runner.Run(runCtx, run, pipeline.Mandatory())

	o.mu.Lock()
	defer o.mu.Unlock()
	defer close(started)
	if err != nil {
		cancel()
		o.failLocked(pipeline.StartError(err))
		return err
	}
	o.transitionLocked(domain.PhaseRunning, pipeline.MsgRunning.Technical)
	done := make(chan struct{})
	o.runDone = done
	go o.runBackground(runCtx, run, done)
	return nil
}

// runBackground runs the best-effort steps. A failure moves a running bot to
// Failed; cancellation by Stop is not a failure.
func (o *Orchestrator) runBackground(ctx context.Context, run *pipeline.Context, done chan struct{}) {
	defer close(done)

	err := o.runner.Run(ctx, run, pipeline.Background())
	if ctx.Err() != nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Phase != domain.PhaseRunning || o.run != run {
		return
	}
	if err != nil {
		o.failLocked(pipeline.RunError(err))
		return
	}
	if run.SignedIn() {
		o.transitionLocked(domain.PhaseRunning, pipeline.MsgSignInVerified.Technical)
	} else {
		o.transitionLocked(domain.PhaseRunning, pipeline.MsgSignInPending.Technical)
	}
}

// Stop releases the browser and ends the session. A bot that is still
// starting is stopped once its mandatory steps return.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	for o.state.Phase == domain.PhaseStarting {
		started := o.started
		o.mu.Unlock()
		select {
		case <-started:
		case <-ctx.Done():
			return ctx.Err()
		}
		o.mu.Lock()
	}

	switch o.state.Phase {
	case domain.PhaseIdle:
		o.mu.Unlock()
		o.bus.Record(pipeline.MsgNotRunning.Warning())
		return ErrNotRunning
	case domain.PhaseStopping:
		o.mu.Unlock()
		o.bus.Record(pipeline.MsgAlreadyStop.Warning())
		return ErrAlreadyStopping
	}

	o.transitionLocked(domain.PhaseStopping, pipeline.MsgStopping.Technical)
	run, cancel, done := o.run, o.cancelRun, o.runDone
	o.run, o.cancelRun, o.runDone, o.started = nil, nil, nil, nil
	o.mu.Unlock()

	o.bus.Record(pipeline.MsgStopping.Info())
	if cancel != nil {
		cancel()
	}
	o.awaitBackground(done)
	o.release(run)

	o.mu.Lock()
	o.transitionLocked(domain.PhaseIdle, pipeline.MsgStopped.Technical)
	o.session = ""
	o.mu.Unlock()

	o.bus.Record(pipeline.MsgStopped.Success())
	o.bus.EndSession()
	return nil
}

// Close stops an active bot, for process shutdown
func (o *Orchestrator) Close(ctx context.Context) error {
	err := o.Stop(ctx)
	if errors.Is(err, ErrNotRunning) || errors.Is(err, ErrAlreadyStopping) {
		return nil
	}
	return err
}

func (o *Orchestrator) awaitBackground(done chan struct{}) {
	if done == nil {
		return
	}
	t := time.NewTimer(o.stopWait)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		o.logger.Warn("background steps did not stop in time", "timeout", o.stopWait)
		o.bus.Record(pipeline.MsgStopTimedOut.Warning().AsAdvanced())
	}
}

// release closes page then browser. Failures are logged and dropped.
func (o *Orchestrator) release(run *pipeline.Context) {
	if run == nil {
		return
	}
	browser, page := run.Release()
	if page != nil {
		if err := page.Close(); err != nil {
			o.cleanupFailed(err)
		} else {
			o.bus.Record(pipeline.MsgPageClosed.Info().AsAdvanced())
		}
	}
	if browser != nil {
		if err := browser.Close(); err != nil {
			o.cleanupFailed(err)
		} else {
			o.bus.Record(pipeline.MsgBrowserClosed.Info())
		}
	}
}

func (o *Orchestrator) cleanupFailed(err error) {
	o.logger.Warn("cleanup failed", "error", err)
	o.bus.Record(pipeline.CleanupError(err).Warning().AsAdvanced())
}

// failLocked moves to Failed and keeps the browser open for inspection
func (o *Orchestrator) failLocked(m pipeline.Message) {
	o.transitionLocked(domain.PhaseFailed, m.Technical)
	o.bus.Record(m.Error())
	o.send(notify.Notification{
		Title:   "linkbot failed",
		Message: m.User,
		Type:    notify.NotifyError,
		Session: o.session,
	})
}

func (o *Orchestrator) transitionLocked(next domain.Phase, message string) {
	from := o.state.Phase
	if !from.CanTransition(next) {
		o.logger.Error("illegal phase transition", "from", from, "to", next)
		return
	}
	o.state = domain.BotState{Phase: next, Message: message, UpdatedAt: o.now()}
	setPhaseGauge(next)
	o.bus.Record(pipeline.BotStatus(next, message).Info().AsAdvanced())
	for _, h := range o.hooks {
		h(from, next)
	}
}

// notifyMessage forwards step notifications to the notifier, linking the
// target site the operator has to act on
func (o *Orchestrator) notifyMessage(m pipeline.Message) {
	o.mu.Lock()
	session := o.session
	var target string
	if o.run != nil && o.run.Profile != nil {
		target = o.run.Profile.BaseURL
	}
	o.mu.Unlock()
	o.send(notify.Notification{
		Title:   "linkbot needs you",
		Message: m.User,
		Type:    notify.NotifyInfo,
		Session: session,
		URL:     target,
	})
}

// send delivers n without blocking the caller
func (o *Orchestrator) send(n notify.Notification) {
	go func() {
		if err := o.notifier.Send(n); err != nil {
			o.logger.Warn("notification failed", "title", n.Title, "error", err)
		}
	}()
}
