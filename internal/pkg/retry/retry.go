// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package retry runs an operation a bounded number of times with a
// caller-supplied delay between attempts.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	retrygo "github.com/avast/retry-go/v4"
)

// DelayFunc returns the pause before the next attempt. attempt is zero based
// and err is the error the previous attempt returned.
type DelayFunc func(attempt uint, err error) time.Duration

// Policy bounds a retry loop.
type Policy struct {
	Attempts uint
	Delay    DelayFunc
	// RetryIf decides whether err is worth another attempt. Nil retries every error.
	RetryIf func(err error) bool
	OnRetry func(attempt uint, err error)
}

// Do calls fn until it succeeds, the policy gives up or ctx is done. The
// error of the final attempt is returned unwrapped.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}

	delay := p.Delay
	if delay == nil {
		delay = Fixed(0)
	}

	opts := []retrygo.Option{
		retrygo.Context(ctx),
		retrygo.Attempts(attempts),
		retrygo.LastErrorOnly(true),
		retrygo.DelayType(func(n uint, err error, _ *retrygo.Config) time.Duration {
			return delay(n, err)
		}),
	}
	if p.RetryIf != nil {
		opts = append(opts, retrygo.RetryIf(p.RetryIf))
	}
	if p.OnRetry != nil {
		opts = append(opts, retrygo.OnRetry(p.OnRetry))
	}

	return retrygo.DoWithData(func() (T, error) {
		return fn(ctx)
	}, opts...)
}

// Fixed waits d between every attempt.
func Fixed(d time.Duration) DelayFunc {
	return func(uint, error) time.Duration {
		return d
	}
}

// Jitter waits a uniformly random duration in [min, max].
func Jitter(min, max time.Duration) DelayFunc {
	return func(uint, error) time.Duration {
		return RandomBetween(min, max)
	}
}

// RandomBetween returns a uniformly random duration in [min, max].
func RandomBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min+1)
}
