package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", ErrRateLimited, true},
		{"unavailable", ErrUnavailable, true},
		{"wrapped rate limited", fmt.Errorf("%w: 状态码 429", ErrRateLimited), true},
		{"wrapped unavailable", fmt.Errorf("%w: 状态码 503", ErrUnavailable), true},
		{"context too long", ErrContextTooLong, false},
		{"canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"plain error", errors.New("bad request"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifierHelpers(t *testing.T) {
	wrapped := fmt.Errorf("调用失败: %w", ErrContextTooLong)
	if !IsContextTooLong(wrapped) {
		t.Error("expected wrapped error to classify as context too long")
	}
	if IsRateLimited(wrapped) {
		t.Error("context-too-long should not classify as rate limited")
	}
	if !IsUnavailable(fmt.Errorf("%w: connection refused", ErrUnavailable)) {
		t.Error("expected wrapped error to classify as unavailable")
	}
}
