package detect

import (
	"context"
	"strings"
	"time"

	"github.com/hochfrequenz/linkbot/internal/driver"
)

// WindowOutcome is the result of WaitForWindowClosure
type WindowOutcome int

const (
	// NotOpened means no matching window showed up in time. Some login flows
	// finish without a popup, so callers carry on.
	NotOpened WindowOutcome = iota
	// Closed means a matching window appeared and went away again
	Closed
	// StillOpen means a matching window was still open when the bound was reached
	StillOpen
)

func (o WindowOutcome) String() string {
	switch o {
	case NotOpened:
		return "not opened"
	case Closed:
		return "closed"
	case StillOpen:
		return "still open"
	default:
		return "unknown"
	}
}

// WindowWait bounds WaitForWindowClosure
type WindowWait struct {
	AppearWithin time.Duration
	Poll         time.Duration
	MaxOpen      time.Duration
}

// WaitForWindowClosure polls the browser's windows for one whose address
// contains substr and, once found, until none is left
func WaitForWindowClosure(ctx context.Context, browser driver.Browser, substr string, w WindowWait) WindowOutcome {
	poll := w.Poll
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}

	appeared := pollUntil(ctx, poll, w.AppearWithin, func() bool {
		return windowOpen(ctx, browser, substr)
	})
	if !appeared {
		return NotOpened
	}

	gone := pollUntil(ctx, poll, w.MaxOpen, func() bool {
		return !windowOpen(ctx, browser, substr)
	})
	if gone {
		return Closed
	}
	return StillOpen
}

// windowOpen reports a matching window. A browser that cannot be asked has
// no windows.
func windowOpen(ctx context.Context, browser driver.Browser, substr string) bool {
	windows, err := browser.Windows(ctx)
	if err != nil {
		return false
	}
	for _, w := range windows {
		if strings.Contains(w.URL, substr) {
			return true
		}
	}
	return false
}

// pollUntil evaluates cond immediately and then every interval until it
// holds, limit elapses or ctx is done
func pollUntil(ctx context.Context, interval, limit time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(limit)
	for {
		if ctx.Err() != nil {
			return false
		}
		if cond() {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		if !sleep(ctx, min(interval, remaining)) {
			return false
		}
	}
}
