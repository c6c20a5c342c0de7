package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hochfrequenz/linkbot/internal/bot"
	"github.com/hochfrequenz/linkbot/internal/domain"
	"github.com/hochfrequenz/linkbot/internal/logbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	mu     sync.Mutex
	phase  domain.Phase
	starts int
	stops  int
	err    error
}

func (f *fakeBot) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.phase != domain.PhaseIdle {
		return bot.ErrAlreadyRunning
	}
	f.starts++
	f.phase = domain.PhaseRunning
	return nil
}

func (f *fakeBot) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.phase == domain.PhaseIdle {
		return bot.ErrNotRunning
	}
	f.stops++
	f.phase = domain.PhaseIdle
	return nil
}

func (f *fakeBot) State() domain.BotState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.BotState{Phase: f.phase}
}

func (f *fakeBot) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

func TestParseCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 8 * * *", false},    // 8 AM daily
		{"30 9 * * 1-5", false}, // weekdays
		{"*/5 * * * *", false},
		{"invalid", true},
		{"0 8 * * * *", true}, // seconds field not accepted
	}

	for _, tt := range tests {
		_, err := ParseCron(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}

func TestWindow_Validate(t *testing.T) {
	w := Window{Name: "morning", Cron: "0 8 * * 1-5", MaxDuration: time.Hour}
	if err := w.Validate(); err != nil {
		t.Errorf("Valid window should not error: %v", err)
	}

	w.Name = ""
	if err := w.Validate(); err == nil {
		t.Error("Empty name should error")
	}

	w = Window{Name: "x", Cron: "0 8 * * *", MaxDuration: -time.Second}
	if err := w.Validate(); err == nil {
		t.Error("Negative duration should error")
	}
}

func TestNewScheduler_RejectsDuplicates(t *testing.T) {
	windows := []Window{{Name: "a", Cron: "0 8 * * *"}, {Name: "a", Cron: "0 9 * * *"}}
	_, err := NewScheduler(windows, &fakeBot{phase: domain.PhaseIdle}, logbus.New(), nil)
	assert.ErrorContains(t, err, "defined twice")
}

func TestScheduler_NextRun(t *testing.T) {
	s, err := NewScheduler([]Window{{Name: "morning", Cron: "0 8 * * *"}}, &fakeBot{}, logbus.New(), nil)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 3, 2, 7, 0, 0, 0, time.Local) }

	assert.Equal(t, time.Date(2026, 3, 2, 8, 0, 0, 0, time.Local), s.NextRun("morning"))
	assert.True(t, s.NextRun("unknown").IsZero())
	assert.Equal(t, []string{"morning"}, s.ListWindows())
}

func TestScheduler_ShouldRun(t *testing.T) {
	s, err := NewScheduler([]Window{{Name: "morning", Cron: "0 8 * * *"}}, &fakeBot{}, logbus.New(), nil)
	require.NoError(t, err)

	s.now = func() time.Time { return time.Date(2026, 3, 2, 7, 59, 30, 0, time.Local) }
	assert.False(t, s.ShouldRun("morning"), "before the window")

	s.now = func() time.Time { return time.Date(2026, 3, 2, 8, 0, 10, 0, time.Local) }
	assert.True(t, s.ShouldRun("morning"), "within one tick after the window")

	s.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local) }
	assert.False(t, s.ShouldRun("morning"), "missed windows are not replayed")

	s.lastRun["morning"] = time.Date(2026, 3, 1, 8, 0, 0, 0, time.Local)
	assert.True(t, s.ShouldRun("morning"), "due since the last run")
}

func TestScheduler_FireSkipsActiveBot(t *testing.T) {
	b := &fakeBot{phase: domain.PhaseRunning}
	bus := logbus.New()
	s, err := NewScheduler([]Window{{Name: "w", Cron: "* * * * *"}}, b, bus, nil)
	require.NoError(t, err)

	s.fire(context.Background(), s.windows["w"])

	starts, _ := b.counts()
	assert.Equal(t, 0, starts)
	assert.Zero(t, bus.Len())
	assert.False(t, s.lastRun["w"].IsZero())
}

func TestScheduler_FireStartFailure(t *testing.T) {
	b := &fakeBot{phase: domain.PhaseIdle, err: errors.New("chrome not found")}
	s, err := NewScheduler([]Window{{Name: "w", Cron: "* * * * *", MaxDuration: time.Millisecond}}, b, logbus.New(), nil)
	require.NoError(t, err)

	s.fire(context.Background(), s.windows["w"])

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.owned, "a failed start owns no window")
}

func TestScheduler_RunStartsAndStops(t *testing.T) {
	b := &fakeBot{phase: domain.PhaseIdle}
	bus := logbus.New()
	s, err := NewScheduler([]Window{{Name: "every-minute", Cron: "* * * * *", MaxDuration: 10 * time.Millisecond}}, b, bus, nil)
	require.NoError(t, err)

	// each reading of the clock lands on the next minute boundary
	var clockMu sync.Mutex
	clock := time.Date(2026, 3, 2, 8, 0, 0, 0, time.Local)
	s.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		clock = clock.Add(time.Minute)
		return clock
	}
	s.SetTick(2 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		starts, stops := b.counts()
		return starts >= 1 && stops >= 1
	}, 2*time.Second, 2*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	var sawStart bool
	for _, e := range bus.Events() {
		if e.TechnicalMessage == "Scheduled start: every-minute" {
			sawStart = true
		}
	}
	assert.True(t, sawStart)
}

func TestScheduler_RunWithoutWindows(t *testing.T) {
	s, err := NewScheduler(nil, &fakeBot{}, logbus.New(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.NoError(t, s.Run(ctx))
}
