package pipeline

import (
	"errors"
	"fmt"

	"github.com/hochfrequenz/linkbot/internal/driver"
)

var (
	// ErrLoginButtonNotFound is returned when neither the sign-in widget nor
	// any fallback selector resolved
	ErrLoginButtonNotFound = errors.New("gmail login button not found")
	// ErrNoPage is returned by steps that run without an open page
	ErrNoPage = errors.New("no page available")
)

// StepError is a step failure. It wraps the driver or step error.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

var userReasons = map[string]string{
	StepLaunchBrowser:    "could not open the browser",
	StepOpenTarget:       "could not open the site",
	StepFederatedLogin:   "could not find the Google login",
	StepAwaitLoginWindow: "the Google login window failed",
	StepAwaitSignIn:      "could not check the login status",
	StepScrollFeed:       "could not browse the feed",
}

// UserReason simplifies err for people who do not read stack traces
func UserReason(err error) string {
	var se *StepError
	if !errors.As(err, &se) {
		return MsgUnknownError.User
	}
	reason, ok := userReasons[se.Step]
	if !ok {
		reason = "step " + se.Step + " failed"
	}
	if driver.IsTimeout(err) {
		reason += " (timed out)"
	}
	return reason
}
