// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package retry wraps fallible operations in an exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/poiesic/mailrag/core"
)

var (
	// ErrInvalidMaxAttempts is returned when MaxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrInvalidBaseDelay is returned when BaseDelay is <= 0
	ErrInvalidBaseDelay = errors.New("baseDelay must be greater than 0")
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Policy retries an operation with exponential backoff.
// The delay before attempt n+1 is BaseDelay * 2^(n-1), capped at MaxDelay when set.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps a single backoff interval. Zero disables the cap.
	MaxDelay time.Duration

	// Retryable decides whether a failure is worth another attempt.
	// Defaults to core.IsTransient.
	Retryable func(error) bool

	Logger *slog.Logger
}

// DefaultPolicy returns 3 attempts with a 1s base delay, retrying transient failures only.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Retryable:   core.IsTransient,
	}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	if p.BaseDelay <= 0 {
		return ErrInvalidBaseDelay
	}
	return nil
}

// Do runs op until it succeeds, fails with a non-retryable error, or the attempts run out.
// op receives the 1-based attempt number.
//
// Non-retryable errors are returned unchanged. When every attempt failed with a
// retryable error the result wraps both core.ErrMaxRetriesExceeded and the last error.
// Context cancellation during a backoff returns the context error.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	if err := p.Validate(); err != nil {
		return err
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = core.IsTransient
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backoff := goretry.WithMaxRetries(uint64(p.MaxAttempts-1), goretry.NewExponential(p.BaseDelay))
	if p.MaxDelay > 0 {
		backoff = goretry.WithCappedDuration(p.MaxDelay, backoff)
	}

	attempt := 0
	var lastErr error
	err := goretry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		lastErr = op(ctx, attempt)
		if lastErr == nil {
			if attempt > 1 {
				logger.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		logger.Debug("operation failed, will retry", "attempt", attempt, "maxAttempts", p.MaxAttempts, "err", lastErr)
		return goretry.RetryableError(lastErr)
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	if attempt >= p.MaxAttempts && retryable(lastErr) {
		return fmt.Errorf("%w after %d attempts: %w", core.ErrMaxRetriesExceeded, attempt, lastErr)
	}
	return err
}
