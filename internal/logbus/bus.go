// Package logbus is the observability bus of the bot: a bounded in-memory
// event log with per-session durable append and synchronous fan-out to live
// subscribers.
package logbus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hochfrequenz/linkbot/internal/domain"
	"github.com/oklog/ulid/v2"
)

// Recorder is implemented by anything that accepts log entries
type Recorder interface {
	Record(entry domain.Entry) domain.LogEvent
}

// Subscriber receives the event stream of the bus. Methods are called while
// the bus lock is held, so implementations must return quickly and must not
// call back into the bus.
type Subscriber interface {
	// Replay is called once on attach with the retained events, oldest first
	Replay(events []domain.LogEvent)
	// Event is called for every event recorded after attach
	Event(event domain.LogEvent)
	// Cleared is called when the retained events were dropped
	Cleared()
}

type session struct {
	id   string
	sink Sink
}

// Bus is safe for concurrent use
type Bus struct {
	mu      sync.Mutex
	ring    *ring
	subs    map[uint64]Subscriber
	nextSub uint64
	session *session

	openSink SinkOpener
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Bus
type Option func(*Bus)

// WithCapacity sets how many events are retained for replay
func WithCapacity(n int) Option {
	return func(b *Bus) { b.ring = newRing(n) }
}

// WithSinkOpener sets how session sinks are created. Without one, sessions
// are tracked but nothing is persisted.
func WithSinkOpener(open SinkOpener) Option {
	return func(b *Bus) { b.openSink = open }
}

// WithLogDir persists sessions as files in dir
func WithLogDir(dir string) Option {
	return WithSinkOpener(FileSinkOpener(dir))
}

// WithLogger sets the process logger used for the bus's own failures
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// New creates a Bus
func New(opts ...Option) *Bus {
	b := &Bus{
		ring:   newRing(DefaultCapacity),
		subs:   make(map[uint64]Subscriber),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Record creates an event from entry, retains it, persists it when a
// session is open and delivers it to every subscriber
func (b *Bus) Record(entry domain.Entry) domain.LogEvent {
	level := entry.Level
	if level == "" {
		level = domain.LevelInfo
	}
	event := domain.LogEvent{
		ID:               uuid.NewString(),
		Level:            level,
		TechnicalMessage: entry.Message,
		UserMessage:      entry.UserMessage,
		IsAdvanced:       entry.Advanced,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// stamped under the lock so retained order is timestamp order
	event.Timestamp = b.now()
	b.ring.push(event)
	b.writeLocked(event.Line())
	for _, sub := range b.subs {
		sub.Event(event)
	}
	eventsRecorded.WithLabelValues(string(level)).Inc()
	return event
}

// Attach registers sub and hands it the retained events. Replay and
// registration happen in one critical section so no event recorded
// concurrently can reach sub before its replay batch.
func (b *Bus) Attach(sub Subscriber) (detach func()) {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	sub.Replay(b.ring.snapshot())
	b.subs[id] = sub
	subscribersGauge.Set(float64(len(b.subs)))
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			subscribersGauge.Set(float64(len(b.subs)))
			b.mu.Unlock()
		})
	}
}

// Events returns a copy of the retained events, oldest first
func (b *Bus) Events() []domain.LogEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ring.snapshot()
}

// Len returns the number of retained events
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ring.len()
}

// Subscribers returns the number of attached subscribers
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Clear drops the retained events and tells subscribers to reset their view.
// No event is recorded for the clear itself.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ring.reset()
	b.writeLocked(markerLogsCleared)
	for _, sub := range b.subs {
		sub.Cleared()
	}
}

// StartSession opens a new durable session and returns its ID. An open
// session is ended first. Failing to open the sink is not fatal: the session
// then only exists in memory.
func (b *Bus) StartSession() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.endLocked()

	started := b.now()
	id := ulid.Make().String()
	s := &session{id: id}
	if b.openSink != nil {
		sink, err := b.openSink(id, started)
		if err != nil {
			b.logger.Error("session log unavailable, continuing in memory", "session", id, "error", err)
		} else {
			s.sink = sink
		}
	}
	b.session = s
	b.writeLocked(markerSessionStarted)
	sessionsOpened.Inc()
	return id
}

// EndSession writes the end marker and closes the sink. Calling it without
// an open session is a no-op.
func (b *Bus) EndSession() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endLocked()
}

// Session returns the open session's ID and log file path
func (b *Bus) Session() (id, path string, open bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return "", "", false
	}
	if b.session.sink != nil {
		path = b.session.sink.Path()
	}
	return b.session.id, path, true
}

func (b *Bus) endLocked() {
	if b.session == nil {
		return
	}
	b.writeLocked(markerSessionEnded)
	if b.session.sink != nil {
		if err := b.session.sink.Close(); err != nil {
			b.logger.Error("closing session log", "session", b.session.id, "error", err)
		}
	}
	b.session = nil
}

// writeLocked appends to the session sink. Failures go to the process
// logger, never back onto the bus.
func (b *Bus) writeLocked(s string) {
	if b.session == nil || b.session.sink == nil {
		return
	}
	if err := b.session.sink.WriteString(s); err != nil {
		sinkErrors.Inc()
		b.logger.Error("writing session log", "path", b.session.sink.Path(), "error", err)
	}
}
