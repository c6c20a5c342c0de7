package logbus

import "github.com/hochfrequenz/linkbot/internal/domain"

// DefaultCapacity is the number of events kept for replay
const DefaultCapacity = 100

// ring is a fixed-capacity FIFO of events. Oldest entries are overwritten.
type ring struct {
	buf   []domain.LogEvent
	start int
	size  int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ring{buf: make([]domain.LogEvent, capacity)}
}

func (r *ring) push(e domain.LogEvent) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = e
		r.size++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

// snapshot returns the events oldest first
func (r *ring) snapshot() []domain.LogEvent {
	out := make([]domain.LogEvent, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

func (r *ring) reset() {
	clear(r.buf)
	r.start = 0
	r.size = 0
}

func (r *ring) len() int { return r.size }
