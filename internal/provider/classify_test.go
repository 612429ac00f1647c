package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want FailureClass
	}{
		{"deadline", context.DeadlineExceeded, FailureRetryable},
		{"canceled", context.Canceled, FailureRetryable},
		{"unauthorized", errors.New("openai: unexpected status 401 Unauthorized"), FailureKey},
		{"quota", errors.New("insufficient_quota: you exceeded your current quota"), FailureKey},
		{"throttled", errors.New("429 Too Many Requests"), FailureKey},
		{"server error", errors.New("unexpected status 500 Internal Server Error"), FailureRetryable},
		{"bad gateway", errors.New("502 Bad Gateway"), FailureRetryable},
		{"refused", errors.New("dial tcp: connection refused"), FailureRetryable},
		{"bad request", errors.New("unexpected status 400 Bad Request"), FailureTerminal},
		{"not found", errors.New("model not found"), FailureTerminal},
		{"unknown", errors.New("something odd"), FailureRetryable},
		{"wrapped", fmt.Errorf("gemini: %w", errors.New("403 Forbidden")), FailureKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}
