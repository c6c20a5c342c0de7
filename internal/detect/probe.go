// Package detect turns observable page state into bounded yes/no/timeout
// answers. Nothing here blocks without a deadline, and a miss is a value,
// not an error.
package detect

import (
	"context"
	"strings"
	"time"

	"github.com/hochfrequenz/linkbot/internal/driver"
)

// ProbeSelectors tries selectors in order, each bounded by perSelector, and
// returns the first that resolves
func ProbeSelectors(ctx context.Context, doc driver.Document, selectors []string, perSelector time.Duration) (string, bool) {
	for _, sel := range selectors {
		if ctx.Err() != nil {
			return "", false
		}
		if err := doc.WaitForSelector(ctx, sel, perSelector); err == nil {
			return sel, true
		}
	}
	return "", false
}

// FrameScan bounds a frame search
type FrameScan struct {
	// Settle is waited before every enumeration, since embedded documents
	// attach after the parent reports loaded
	Settle time.Duration
	// Attempts is the number of enumerations, at least one
	Attempts int
}

// FindFrame returns the first frame of page whose address contains substr
func FindFrame(ctx context.Context, page driver.Page, substr string, scan FrameScan) (driver.Document, bool) {
	attempts := scan.Attempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if !sleep(ctx, scan.Settle) {
			return nil, false
		}
		frames, err := page.Frames(ctx)
		if err != nil {
			continue
		}
		for _, frame := range frames {
			url, err := frame.URL(ctx)
			if err == nil && strings.Contains(url, substr) {
				return frame, true
			}
		}
	}
	return nil, false
}

// sleep waits d or until ctx is done. It returns false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
