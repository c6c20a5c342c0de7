package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Window is one scheduled bot run
type Window struct {
	Name string `toml:"name" mapstructure:"name"`
	Cron string `toml:"cron" mapstructure:"cron"`
	// MaxDuration stops the bot this long after a scheduled start. Zero
	// leaves it running.
	MaxDuration time.Duration `toml:"max_duration" mapstructure:"max_duration"`
}

// Validate checks if the window is valid
func (w *Window) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("window name is required")
	}
	if w.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(w.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if w.MaxDuration < 0 {
		return fmt.Errorf("max_duration must not be negative")
	}
	return nil
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	return parser.Parse(expr)
}
