package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPhase_CanTransition(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseIdle, PhaseStarting, true},
		{PhaseIdle, PhaseRunning, false},
		{PhaseStarting, PhaseRunning, true},
		{PhaseStarting, PhaseFailed, true},
		{PhaseRunning, PhaseRunning, true},
		{PhaseRunning, PhaseIdle, false},
		{PhaseRunning, PhaseStopping, true},
		{PhaseStopping, PhaseIdle, true},
		{PhaseFailed, PhaseStarting, false},
		{PhaseFailed, PhaseStopping, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestLevel_Upper(t *testing.T) {
	assert.Equal(t, "WARNING", LevelWarning.Upper())
}

func TestLogEvent_Line(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	e := LogEvent{Timestamp: ts, Level: LevelError, TechnicalMessage: "Failed to start bot: boom"}

	assert.Equal(t, "[2026-03-01T12:30:00Z] [ERROR] Failed to start bot: boom\n", e.Line())
}

func TestEntry_AsAdvanced(t *testing.T) {
	e := Info("Launching Chrome", "")
	adv := e.AsAdvanced()

	assert.False(t, e.Advanced)
	assert.True(t, adv.Advanced)
	assert.Equal(t, LevelInfo, adv.Level)
}
