package driver

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrClosed           = errors.New("browser closed")
	ErrSelectorTimeout  = errors.New("selector timeout")
	ErrNavigation       = errors.New("navigation failed")
	ErrUnsupportedFrame = errors.New("frame not attachable")
)

// OpError wraps a failed driver operation with what was attempted
type OpError struct {
	Op     string
	Target string
	Err    error
}

func (e *OpError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// IsTimeout returns true if err came from an elapsed deadline
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrSelectorTimeout)
}
