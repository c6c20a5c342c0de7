package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/hochfrequenz/linkbot/internal/domain"
)

var (
	timeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	levelStyle = map[domain.Level]lipgloss.Style{
		domain.LevelInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		domain.LevelSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		domain.LevelWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		domain.LevelError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
	phaseStyle = map[domain.Phase]lipgloss.Style{
		domain.PhaseIdle:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		domain.PhaseStarting: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		domain.PhaseRunning:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		domain.PhaseStopping: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		domain.PhaseFailed:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
)

// viewMode selects what a log line shows
type viewMode struct {
	// technical shows the technical text and advanced events
	technical bool
}

// visible reports whether e belongs in the view
func (v viewMode) visible(e domain.LogEvent) bool {
	if v.technical {
		return true
	}
	return !e.IsAdvanced && e.UserMessage != ""
}

// formatEvent renders one event; the simplified view prints the user text
func formatEvent(e domain.LogEvent, v viewMode) string {
	text := e.UserMessage
	if v.technical || text == "" {
		text = e.TechnicalMessage
	}
	badge := fmt.Sprintf("%-7s", e.Level.Upper())
	if style, ok := levelStyle[e.Level]; ok {
		badge = style.Render(badge)
	}
	return fmt.Sprintf("%s %s %s", timeStyle.Render(e.Timestamp.Local().Format(time.TimeOnly)), badge, text)
}

func formatState(st domain.BotState) string {
	phase := string(st.Phase)
	if style, ok := phaseStyle[st.Phase]; ok {
		phase = style.Render(phase)
	}
	line := fmt.Sprintf("%s  %s", phase, st.Message)
	if !st.UpdatedAt.IsZero() {
		line += timeStyle.Render(fmt.Sprintf("  (since %s)", st.UpdatedAt.Local().Format(time.TimeOnly)))
	}
	return line
}
