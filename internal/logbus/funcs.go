package logbus

import "github.com/hochfrequenz/linkbot/internal/domain"

// Funcs adapts plain functions to a Subscriber. Nil fields are ignored.
type Funcs struct {
	OnReplay  func(events []domain.LogEvent)
	OnEvent   func(event domain.LogEvent)
	OnCleared func()
}

func (f Funcs) Replay(events []domain.LogEvent) {
	if f.OnReplay != nil {
		f.OnReplay(events)
	}
}

func (f Funcs) Event(event domain.LogEvent) {
	if f.OnEvent != nil {
		f.OnEvent(event)
	}
}

func (f Funcs) Cleared() {
	if f.OnCleared != nil {
		f.OnCleared()
	}
}
