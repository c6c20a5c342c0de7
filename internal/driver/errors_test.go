package driver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpError(t *testing.T) {
	err := &OpError{Op: "click", Target: `div[role="button"]`, Err: ErrSelectorTimeout}

	assert.Equal(t, `click div[role="button"]: selector timeout`, err.Error())
	assert.ErrorIs(t, err, ErrSelectorTimeout)
	assert.Equal(t, "launch: boom", (&OpError{Op: "launch", Err: errors.New("boom")}).Error())
}

func TestIsTimeout(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("goto: %w", context.DeadlineExceeded), true},
		{"selector", &OpError{Op: "wait", Err: ErrSelectorTimeout}, true},
		{"canceled", context.Canceled, false},
		{"navigation", ErrNavigation, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTimeout(tt.err))
		})
	}
}
