package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hochfrequenz/linkbot/internal/domain"
	"github.com/hochfrequenz/linkbot/internal/protocol"
)

// client talks to a running linkbot server
type client struct {
	base string
	http *http.Client
}

func newClient(base string) *client {
	return &client{
		base: strings.TrimRight(base, "/"),
		// start waits for the browser and the first navigation
		http: &http.Client{Timeout: 2 * time.Minute},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (c *client) do(method, path string, out interface{}) error {
	req, err := http.NewRequest(method, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting linkbot at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("unexpected response (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if !env.Success {
		return fmt.Errorf("%s", env.Error)
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (c *client) Start() (domain.BotState, error) {
	var st domain.BotState
	err := c.do(http.MethodPost, "/api/bot/start", &st)
	return st, err
}

func (c *client) Stop() (domain.BotState, error) {
	var st domain.BotState
	err := c.do(http.MethodPost, "/api/bot/stop", &st)
	return st, err
}

func (c *client) Status() (domain.BotState, error) {
	var st domain.BotState
	err := c.do(http.MethodGet, "/api/bot/status", &st)
	return st, err
}

func (c *client) Logs() ([]domain.LogEvent, error) {
	var events []domain.LogEvent
	err := c.do(http.MethodGet, "/api/logs", &events)
	return events, err
}

func (c *client) ClearLogs() error {
	return c.do(http.MethodPost, "/api/logs/clear", nil)
}

// Follow streams live messages to fn until the connection ends or fn
// returns an error
func (c *client) Follow(fn func(*protocol.Message) error) error {
	url := "ws" + strings.TrimPrefix(c.base, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", url, err)
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}
