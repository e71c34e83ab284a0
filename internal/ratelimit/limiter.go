package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrLimited = errors.New("rate limit exceeded")

// Limiter is a fixed-window counter keyed by a caller-chosen string.
// A denied call does not consume quota.
type Limiter interface {
	Check(ctx context.Context, key string, max int, window time.Duration) (Result, error)
}

type Result struct {
	Allowed bool
	// Whole seconds until the window resets. Zero when Allowed.
	RetryAfter int
}

// LimitedError reports a denied check. It matches ErrLimited with errors.Is.
type LimitedError struct {
	RetryAfter int
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %ds", e.RetryAfter)
}

func (e *LimitedError) Is(target error) bool {
	return target == ErrLimited
}

type Rule struct {
	Max    int
	Window time.Duration
}

// Key scopes a client identity to one action so unrelated endpoints never
// share quota.
func Key(action, client string) string {
	return action + ":" + client
}

// Enforce runs a check and converts a denial into a *LimitedError.
func Enforce(ctx context.Context, l Limiter, key string, rule Rule) error {
	res, err := l.Check(ctx, key, rule.Max, rule.Window)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return &LimitedError{RetryAfter: res.RetryAfter}
	}
	return nil
}

func retryAfterSeconds(remaining time.Duration) int {
	if remaining <= 0 {
		return 1
	}
	secs := int(remaining / time.Second)
	if remaining%time.Second != 0 {
		secs++
	}
	return secs
}
