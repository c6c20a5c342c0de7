package api

import (
	"sync"

	"github.com/hochfrequenz/linkbot/internal/domain"
	"github.com/hochfrequenz/linkbot/internal/protocol"
)

// observer buffers bus messages for one connection. The bus calls it under
// its lock, so pushes never block; a writer goroutine drains it.
type observer struct {
	mu      sync.Mutex
	pending []protocol.Envelope
	ready   chan struct{}
}

func newObserver() *observer {
	return &observer{ready: make(chan struct{}, 1)}
}

func (o *observer) Replay(events []domain.LogEvent) {
	o.push(protocol.InitLogs(events))
}

func (o *observer) Event(event domain.LogEvent) {
	o.push(protocol.NewLog(event))
}

func (o *observer) Cleared() {
	o.push(protocol.LogsCleared())
}

func (o *observer) push(env protocol.Envelope) {
	o.mu.Lock()
	o.pending = append(o.pending, env)
	o.mu.Unlock()

	select {
	case o.ready <- struct{}{}:
	default:
	}
}

// drain returns everything queued so far, in order
func (o *observer) drain() []protocol.Envelope {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.pending
	o.pending = nil
	return out
}
