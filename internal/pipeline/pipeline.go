// Package pipeline runs the bot's ordered browser steps over a shared
// Context and reports every attempt to the log bus.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hochfrequenz/linkbot/internal/detect"
	"github.com/hochfrequenz/linkbot/internal/domain"
	"github.com/hochfrequenz/linkbot/internal/driver"
	"github.com/hochfrequenz/linkbot/internal/logbus"
	"github.com/hochfrequenz/linkbot/internal/profile"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Step is one named unit of browser work
type Step interface {
	Name() string
	// CanExecute reports whether the step's preconditions hold
	CanExecute(c *Context) bool
	Execute(ctx context.Context, c *Context) error
}

// Settings bounds every wait the steps perform
type Settings struct {
	Launch            driver.LaunchOptions
	LaunchTimeout     time.Duration
	NavigationTimeout time.Duration
	WaitUntil         driver.WaitUntil
	// ActionTimeout bounds a single click, script or page setup call
	ActionTimeout time.Duration

	FrameScan      detect.FrameScan
	FrameButton    time.Duration
	FallbackProbe  time.Duration
	Window         detect.WindowWait
	SignInInterval time.Duration
	SignInDeadline time.Duration
	SignalProbe    time.Duration

	Scroll ScrollSettings
}

// ScrollSettings configures the feed scroll step
type ScrollSettings struct {
	Enabled     bool
	Pixels      int
	Interval    time.Duration
	MaxDuration time.Duration
}

// DefaultSettings returns the timings the bot ships with
func DefaultSettings() Settings {
	return Settings{
		LaunchTimeout:     30 * time.Second,
		NavigationTimeout: 30 * time.Second,
		WaitUntil:         driver.WaitLoad,
		ActionTimeout:     5 * time.Second,
		FrameScan:         detect.FrameScan{Settle: 2 * time.Second, Attempts: 3},
		FrameButton:       5 * time.Second,
		FallbackProbe:     3 * time.Second,
		Window: detect.WindowWait{
			AppearWithin: 10 * time.Second,
			Poll:         time.Second,
			MaxOpen:      5 * time.Minute,
		},
		SignInInterval: 2 * time.Second,
		SignInDeadline: 2 * time.Minute,
		SignalProbe:    500 * time.Millisecond,
		Scroll: ScrollSettings{
			Pixels:      600,
			Interval:    3 * time.Second,
			MaxDuration: 10 * time.Minute,
		},
	}
}

// bounded derives a context that expires after d; d <= 0 only inherits ctx
func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Context is the state steps share during one run. Steps read the lifecycle
// state through State and never change it.
type Context struct {
	Bus      logbus.Recorder
	Profile  *profile.Profile
	Settings Settings
	Driver   driver.Driver
	Notify   func(Message)

	state func() domain.BotState

	mu       sync.Mutex
	browser  driver.Browser
	page     driver.Page
	signedIn bool
}

// NewContext returns a Context reading lifecycle state from state
func NewContext(d driver.Driver, bus logbus.Recorder, p *profile.Profile, s Settings, state func() domain.BotState) *Context {
	return &Context{
		Bus:      bus,
		Profile:  p,
		Settings: s,
		Driver:   d,
		state:    state,
	}
}

// State returns a copy of the lifecycle state
func (c *Context) State() domain.BotState {
	if c.state == nil {
		return domain.BotState{}
	}
	return c.state()
}

// Browser returns the open browser, or nil
func (c *Context) Browser() driver.Browser {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.browser
}

// Page returns the open page, or nil
func (c *Context) Page() driver.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

func (c *Context) setBrowser(b driver.Browser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.browser = b
}

func (c *Context) setPage(p driver.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.page = p
}

// Release hands the handles to the caller and forgets them
func (c *Context) Release() (driver.Browser, driver.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, p := c.browser, c.page
	c.browser, c.page = nil, nil
	c.signedIn = false
	return b, p
}

// SignedIn reports the latest sign-in observation
func (c *Context) SignedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signedIn
}

// SetSignedIn records a sign-in observation
func (c *Context) SetSignedIn(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signedIn = v
}

func (c *Context) record(e domain.Entry) {
	if c.Bus != nil {
		c.Bus.Record(e)
	}
}

func (c *Context) notify(m Message) {
	if c.Notify != nil {
		c.Notify(m)
	}
}

// Runner executes steps in order
type Runner struct {
	bus    logbus.Recorder
	tracer trace.Tracer
}

// NewRunner returns a Runner. A nil tracer disables spans.
func NewRunner(bus logbus.Recorder, tracer trace.Tracer) *Runner {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Runner{bus: bus, tracer: tracer}
}

// Run executes steps strictly in order. The first failing step aborts the
// run with a *StepError. Cancellation of ctx between or inside steps
// returns the context error instead.
func (r *Runner) Run(ctx context.Context, c *Context, steps []Step) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := step.Name()
		if !step.CanExecute(c) {
			r.bus.Record(StepSkipped(name).Info().AsAdvanced())
			stepDuration.WithLabelValues(name, resultSkipped).Observe(0)
			continue
		}
		if err := r.runStep(ctx, c, step); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runStep(ctx context.Context, c *Context, step Step) error {
	name := step.Name()
	ctx, span := r.tracer.Start(ctx, "step "+name, trace.WithAttributes(attribute.String("step.name", name)))
	defer span.End()

	r.bus.Record(StepAttempting(name).Info().AsAdvanced())
	start := time.Now()
	err := step.Execute(ctx, c)
	elapsed := time.Since(start).Seconds()

	if err == nil {
		r.bus.Record(StepSucceeded(name).Success().AsAdvanced())
		stepDuration.WithLabelValues(name, resultSucceeded).Observe(elapsed)
		span.SetStatus(codes.Ok, "")
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		stepDuration.WithLabelValues(name, resultCancelled).Observe(elapsed)
		span.SetStatus(codes.Unset, "cancelled")
		return ctxErr
	}

	r.bus.Record(StepFailed(name, err).Error().AsAdvanced())
	stepDuration.WithLabelValues(name, resultFailed).Observe(elapsed)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return &StepError{Step: name, Err: err}
}
