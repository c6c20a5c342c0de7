package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hochfrequenz/linkbot/internal/bot"
	"github.com/hochfrequenz/linkbot/internal/domain"
	"github.com/hochfrequenz/linkbot/internal/logbus"
	"github.com/hochfrequenz/linkbot/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockBot struct {
	mu       sync.Mutex
	phase    domain.Phase
	startErr error
	stopErr  error
}

func (m *mockBot) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.phase = domain.PhaseRunning
	return nil
}

func (m *mockBot) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopErr != nil {
		return m.stopErr
	}
	m.phase = domain.PhaseIdle
	return nil
}

func (m *mockBot) State() domain.BotState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.BotState{Phase: m.phase, Message: "test"}
}

type stateResponse struct {
	Success bool            `json:"success"`
	Data    domain.BotState `json:"data"`
	Error   string          `json:"error"`
}

func newTestServer(t *testing.T, b Bot, bus Bus) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(b, bus, "127.0.0.1:0", nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func do(t *testing.T, method, url string) (*http.Response, stateResponse) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body stateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestStartAndStop(t *testing.T) {
	b := &mockBot{phase: domain.PhaseIdle}
	_, ts := newTestServer(t, b, logbus.New())

	resp, body := do(t, http.MethodPost, ts.URL+"/api/bot/start")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)
	assert.Equal(t, domain.PhaseRunning, body.Data.Phase)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/bot/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.PhaseRunning, body.Data.Phase)

	resp, body = do(t, http.MethodPost, ts.URL+"/api/bot/stop")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.PhaseIdle, body.Data.Phase)
}

func TestLifecycleErrors(t *testing.T) {
	tests := []struct {
		name     string
		startErr error
		stopErr  error
		path     string
		wantCode int
	}{
		{"already running", bot.ErrAlreadyRunning, nil, "/api/bot/start", http.StatusConflict},
		{"needs reset", bot.ErrNeedsReset, nil, "/api/bot/start", http.StatusConflict},
		{"step failure", errors.New("step open-target: navigation failed"), nil, "/api/bot/start", http.StatusInternalServerError},
		{"not running", nil, bot.ErrNotRunning, "/api/bot/stop", http.StatusConflict},
		{"already stopping", nil, bot.ErrAlreadyStopping, "/api/bot/stop", http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &mockBot{phase: domain.PhaseIdle, startErr: tt.startErr, stopErr: tt.stopErr}
			_, ts := newTestServer(t, b, logbus.New())

			resp, body := do(t, http.MethodPost, ts.URL+tt.path)
			assert.Equal(t, tt.wantCode, resp.StatusCode)
			assert.False(t, body.Success)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t, &mockBot{}, logbus.New())

	resp, err := http.Get(ts.URL + "/api/bot/start")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestListAndClearLogs(t *testing.T) {
	bus := logbus.New()
	bus.Record(domain.Info("first", ""))
	bus.Record(domain.Warning("second", "Second"))
	_, ts := newTestServer(t, &mockBot{}, bus)

	resp, err := http.Get(ts.URL + "/api/logs")
	require.NoError(t, err)
	var list struct {
		Success bool              `json:"success"`
		Data    []domain.LogEvent `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list.Data, 2)
	assert.Equal(t, "first", list.Data[0].TechnicalMessage)
	assert.Equal(t, domain.LevelWarning, list.Data[1].Level)

	resp, err = http.Post(ts.URL+"/api/logs/clear", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, bus.Len())
}

func TestHealthzAndMetrics(t *testing.T) {
	_, ts := newTestServer(t, &mockBot{phase: domain.PhaseIdle}, logbus.New())

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func readMessage(t *testing.T, conn *websocket.Conn) *protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.Decode(data)
	require.NoError(t, err)
	return msg
}

func TestWebSocket_ReplayThenLive(t *testing.T) {
	bus := logbus.New()
	bus.Record(domain.Info("before attach", ""))
	_, ts := newTestServer(t, &mockBot{}, bus)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readMessage(t, conn)
	require.Equal(t, protocol.TypeInitLogs, first.Type)
	require.Len(t, first.Events, 1)
	assert.Equal(t, "before attach", first.Events[0].TechnicalMessage)

	// client messages are ignored
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"START"}`)))

	bus.Record(domain.Success("after attach", "Done"))
	live := readMessage(t, conn)
	require.Equal(t, protocol.TypeNewLog, live.Type)
	assert.Equal(t, "after attach", live.Event.TechnicalMessage)
	assert.Equal(t, "Done", live.Event.UserMessage)

	bus.Clear()
	assert.Equal(t, protocol.TypeLogsCleared, readMessage(t, conn).Type)
}

func TestWebSocket_DetachOnClose(t *testing.T) {
	bus := logbus.New()
	_, ts := newTestServer(t, &mockBot{}, bus)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	readMessage(t, conn)
	assert.Equal(t, 1, bus.Subscribers())

	conn.Close()
	assert.Eventually(t, func() bool { return bus.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestWebSocket_Ping(t *testing.T) {
	bus := logbus.New()
	s := NewServer(&mockBot{}, bus, "127.0.0.1:0", nil)
	s.pingInterval = 10 * time.Millisecond
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
}

func TestSSE_ReplayThenLive(t *testing.T) {
	bus := logbus.New()
	bus.Record(domain.Info("before attach", ""))
	_, ts := newTestServer(t, &mockBot{}, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	nextEvent := func() (string, *protocol.Message) {
		var name string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				msg, err := protocol.Decode([]byte(strings.TrimPrefix(line, "data: ")))
				require.NoError(t, err)
				return name, msg
			}
		}
	}

	name, msg := nextEvent()
	assert.Equal(t, protocol.TypeInitLogs, name)
	require.Len(t, msg.Events, 1)

	bus.Record(domain.Error("boom", "Something went wrong"))
	name, msg = nextEvent()
	assert.Equal(t, protocol.TypeNewLog, name)
	assert.Equal(t, domain.LevelError, msg.Event.Level)
}

func TestObserver_KeepsOrder(t *testing.T) {
	o := newObserver()
	o.Replay(nil)
	o.Event(domain.LogEvent{TechnicalMessage: "a"})
	o.Cleared()
	o.Event(domain.LogEvent{TechnicalMessage: "b"})

	<-o.ready
	got := o.drain()
	require.Len(t, got, 4)
	assert.Equal(t, protocol.TypeInitLogs, got[0].Type)
	assert.Equal(t, protocol.TypeNewLog, got[1].Type)
	assert.Equal(t, protocol.TypeLogsCleared, got[2].Type)
	assert.Empty(t, o.drain())
}
