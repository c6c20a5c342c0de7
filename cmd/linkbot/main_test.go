package main

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hochfrequenz/linkbot/internal/bot"
	"github.com/hochfrequenz/linkbot/internal/detect"
	"github.com/hochfrequenz/linkbot/internal/domain"
	"github.com/hochfrequenz/linkbot/internal/driver/drivertest"
	"github.com/hochfrequenz/linkbot/internal/logbus"
	"github.com/hochfrequenz/linkbot/internal/pipeline"
	"github.com/hochfrequenz/linkbot/internal/protocol"
	"github.com/hochfrequenz/linkbot/web/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewMode(t *testing.T) {
	userFacing := domain.LogEvent{Level: domain.LevelSuccess, TechnicalMessage: "Browser launched successfully", UserMessage: "Browser opened"}
	advanced := domain.LogEvent{Level: domain.LevelInfo, TechnicalMessage: "User agent set", IsAdvanced: true}
	technicalOnly := domain.LogEvent{Level: domain.LevelInfo, TechnicalMessage: "Attempting step: open-target"}

	simple := viewMode{}
	assert.True(t, simple.visible(userFacing))
	assert.False(t, simple.visible(advanced))
	assert.False(t, simple.visible(technicalOnly))

	tech := viewMode{technical: true}
	assert.True(t, tech.visible(advanced))

	assert.Contains(t, formatEvent(userFacing, simple), "Browser opened")
	assert.Contains(t, formatEvent(userFacing, tech), "Browser launched successfully")
	assert.Contains(t, formatEvent(userFacing, simple), "SUCCESS")
}

func TestFormatState(t *testing.T) {
	line := formatState(domain.BotState{Phase: domain.PhaseRunning, Message: "Bot is running", UpdatedAt: time.Now()})
	assert.Contains(t, line, "running")
	assert.Contains(t, line, "Bot is running")
	assert.Contains(t, line, "since")
}

// newLiveServer runs the real control surface over a bot with a fake browser
func newLiveServer(t *testing.T, d *drivertest.Driver) (*client, *logbus.Bus) {
	t.Helper()
	s := pipeline.DefaultSettings()
	s.FrameScan = detect.FrameScan{Settle: time.Millisecond, Attempts: 1}
	s.FrameButton = 20 * time.Millisecond
	s.Window = detect.WindowWait{AppearWithin: 10 * time.Millisecond, Poll: 2 * time.Millisecond, MaxOpen: 50 * time.Millisecond}
	s.SignInInterval = 5 * time.Millisecond
	s.SignalProbe = 2 * time.Millisecond

	bus := logbus.New()
	orch := bot.New(d, bus, bot.WithSettings(s), bot.WithStopTimeout(time.Second))
	ts := httptest.NewServer(api.NewServer(orch, bus, "", nil).Handler())
	t.Cleanup(func() {
		ts.Close()
		orch.Close(t.Context())
	})
	return newClient(ts.URL + "/"), bus
}

func TestClient_Lifecycle(t *testing.T) {
	d := drivertest.New(func(b *drivertest.Browser) {
		b.Page().AddFrame("https://accounts.google.com/gsi/button").Show(`div[role="button"]`)
	})
	c, _ := newLiveServer(t, d)

	st, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseIdle, st.Phase)

	st, err = c.Start()
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseRunning, st.Phase)

	_, err = c.Start()
	assert.ErrorContains(t, err, bot.ErrAlreadyRunning.Error())

	st, err = c.Stop()
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseIdle, st.Phase)

	events, err := c.Logs()
	require.NoError(t, err)
	assert.NotEmpty(t, events)

	require.NoError(t, c.ClearLogs())
	events, err = c.Logs()
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestClient_StartFailureReported(t *testing.T) {
	d := drivertest.New(nil)
	d.FailLaunch(errors.New("chrome not found"))
	c, _ := newLiveServer(t, d)

	_, err := c.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chrome not found")

	st, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseFailed, st.Phase)
}

func TestClient_Follow(t *testing.T) {
	c, bus := newLiveServer(t, drivertest.New(nil))
	bus.Record(domain.Info("already there", ""))

	errStop := errors.New("enough")
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- c.Follow(func(msg *protocol.Message) error {
			switch msg.Type {
			case protocol.TypeInitLogs:
				for _, e := range msg.Events {
					got = append(got, e.TechnicalMessage)
				}
				bus.Record(domain.Info("live", ""))
			case protocol.TypeNewLog:
				got = append(got, msg.Event.TechnicalMessage)
				return errStop
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errStop)
	case <-time.After(2 * time.Second):
		t.Fatal("follow did not deliver a live event")
	}
	assert.Equal(t, []string{"already there", "live"}, got)
}

func TestClient_Unreachable(t *testing.T) {
	_, err := newClient("http://127.0.0.1:1").Status()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "contacting linkbot"))
}
