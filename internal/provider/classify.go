package provider

import (
	"context"
	"errors"
	"strings"
)

// FailureClass tags an adapter failure for the chain's fallback decision.
type FailureClass int

const (
	// FailureRetryable covers timeouts, transient network errors and
	// upstream overload; the chain moves on to the next adapter.
	FailureRetryable FailureClass = iota
	// FailureTerminal covers bad requests and malformed payloads; the
	// same request will not succeed elsewhere in this adapter.
	FailureTerminal
	// FailureKey covers quota and auth failures tied to the key used for
	// the attempt; the rotator puts the key into cooldown.
	FailureKey
)

// Classify maps an adapter error onto a failure class. Upstream errors
// arrive as wrapped HTTP failures, so classification is substring based,
// the same way the upstream status line reads.
func Classify(err error) FailureClass {
	if err == nil {
		return FailureRetryable
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureRetryable
	}

	msg := strings.ToLower(err.Error())

	if containsAny(msg, []string{
		"401", "403", "invalid api key", "unauthorized", "forbidden",
		"quota", "insufficient_quota", "429", "rate limit", "too many requests",
	}) {
		return FailureKey
	}

	if containsAny(msg, []string{
		"timeout", "connection refused", "connection reset", "no such host",
		"temporary failure", "context deadline exceeded",
		"500", "502", "503", "504",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout",
	}) {
		return FailureRetryable
	}

	if containsAny(msg, []string{
		"400", "404", "bad request", "not found", "unprocessable",
	}) {
		return FailureTerminal
	}

	// Unknown failures are treated as retryable so the fallback chain gets
	// its chance; the last error still surfaces if everything fails.
	return FailureRetryable
}

func containsAny(s string, substrings []string) bool {
	for _, substr := range substrings {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
