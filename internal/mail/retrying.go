// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package mail

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Retry configuration for outbound dispatch.
const (
	// AttemptTimeout bounds one call to the underlying transport.
	AttemptTimeout = 15 * time.Second

	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries = 2

	backoffBase = 500 * time.Millisecond
)

// Retrying wraps a Dispatcher with a per-attempt timeout and bounded
// fibonacci backoff. A deadline expiry surfaces as ErrTimeout so callers can
// distinguish a slow transport from a broken one.
type Retrying struct {
	next    Dispatcher
	timeout time.Duration
}

// NewRetrying creates a Retrying dispatcher around next. A non-positive
// timeout falls back to AttemptTimeout.
func NewRetrying(next Dispatcher, timeout time.Duration) *Retrying {
	if timeout <= 0 {
		timeout = AttemptTimeout
	}
	return &Retrying{next: next, timeout: timeout}
}

// Send implements Dispatcher.
func (r *Retrying) Send(ctx context.Context, kind Kind, recipient string, data map[string]any) error {
	backoff := retry.WithMaxRetries(MaxRetries, retry.NewFibonacci(backoffBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		sendErr := r.next.Send(attemptCtx, kind, recipient, data)
		if sendErr == nil {
			return nil
		}
		if errors.Is(sendErr, context.DeadlineExceeded) {
			sendErr = oops.Code("MAIL_TIMEOUT").
				With("kind", string(kind)).
				With("timeout", r.timeout.String()).
				Wrap(ErrTimeout)
		}
		return retry.RetryableError(sendErr)
	})
	if err != nil {
		return oops.Code("MAIL_DISPATCH_FAILED").
			With("kind", string(kind)).
			Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ Dispatcher = (*Retrying)(nil)
