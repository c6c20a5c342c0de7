package api

import (
	"errors"
	"net/http"

	"github.com/hochfrequenz/linkbot/internal/bot"
	"github.com/hochfrequenz/linkbot/internal/domain"
)

// statusFor maps lifecycle errors to HTTP codes. Rejected commands are
// conflicts; anything else is a failed run.
func statusFor(err error) int {
	switch {
	case errors.Is(err, bot.ErrAlreadyRunning),
		errors.Is(err, bot.ErrAlreadyStopping),
		errors.Is(err, bot.ErrNotRunning),
		errors.Is(err, bot.ErrNeedsReset):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.bot.Start(r.Context()); err != nil {
		s.logger.Warn("start request failed", "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.bot.State())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.bot.Stop(r.Context()); err != nil {
		s.logger.Warn("stop request failed", "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.bot.State())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bot.State())
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	events := s.bus.Events()
	if events == nil {
		events = []domain.LogEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	s.bus.Clear()
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"phase": string(s.bot.State().Phase)})
}
