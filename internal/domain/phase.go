package domain

import "time"

// Phase is one state of the bot lifecycle
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseStarting Phase = "starting"
	PhaseRunning  Phase = "running"
	PhaseStopping Phase = "stopping"
	PhaseFailed   Phase = "failed"
)

// Phases lists every phase in lifecycle order
var Phases = []Phase{PhaseIdle, PhaseStarting, PhaseRunning, PhaseStopping, PhaseFailed}

// transitions holds the legal edges of the lifecycle graph.
// Running may be re-entered from Running to update the status message.
var transitions = map[Phase][]Phase{
	PhaseIdle:     {PhaseStarting},
	PhaseStarting: {PhaseRunning, PhaseFailed},
	PhaseRunning:  {PhaseRunning, PhaseStopping, PhaseFailed},
	PhaseStopping: {PhaseIdle},
	PhaseFailed:   {PhaseStopping},
}

// CanTransition reports whether moving from p to next is a legal edge
func (p Phase) CanTransition(next Phase) bool {
	for _, allowed := range transitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// BotState is a read-only snapshot of the bot lifecycle
type BotState struct {
	Phase     Phase     `json:"phase"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updatedAt"`
}
