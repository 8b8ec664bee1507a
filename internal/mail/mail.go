// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package mail defines the outbound email port. The actual transport lives
// outside the core; Gatehouse only requests "send mail of kind K" and treats
// delivery as best-effort notification, never as a transactional participant.
package mail

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
)

// Kind selects the template an email is rendered from.
type Kind string

// Email kinds the core dispatches.
const (
	KindWelcome           Kind = "welcome"
	KindPasswordResetCode Kind = "password-reset-code"
)

// ErrTimeout is returned when the transport did not answer within the
// per-attempt deadline.
var ErrTimeout = errors.New("mail dispatch timed out")

// Dispatcher sends one email. Implementations must honor ctx cancellation.
type Dispatcher interface {
	Send(ctx context.Context, kind Kind, recipient string, data map[string]any) error
}

// LogDispatcher writes would-be emails to the structured log instead of a
// transport. It backs local development and is the operator channel of last
// resort: payloads are logged in full, so secrets remain recoverable when no
// transport is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher creates a LogDispatcher. A nil logger uses slog.Default.
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

// Send implements Dispatcher.
func (d *LogDispatcher) Send(ctx context.Context, kind Kind, recipient string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("MAIL_CANCELED").Wrap(err)
	}
	d.logger.InfoContext(ctx, "mail dispatch (log transport)",
		"kind", string(kind),
		"recipient", recipient,
		"data", data)
	return nil
}

// Compile-time interface check.
var _ Dispatcher = (*LogDispatcher)(nil)
