// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package audit provides the append-only audit trail for security-relevant
// state transitions.
package audit

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Action tags every audit entry with the state transition it records.
type Action string

// Audit actions.
const (
	ActionUserCreated        Action = "USER_CREATED"
	ActionLoginSuccess       Action = "LOGIN_SUCCESS"
	ActionLoginFailed        Action = "LOGIN_FAILED"
	ActionSessionTerminated  Action = "SESSION_TERMINATED"
	ActionSessionLimitSweep  Action = "SESSION_LIMIT_ENFORCED"
	ActionPasswordChanged    Action = "PASSWORD_CHANGED"
	ActionResetRequested     Action = "PASSWORD_RESET_REQUESTED"
	ActionResetCodeResent    Action = "PASSWORD_RESET_CODE_RESENT"
	ActionResetCodeVerified  Action = "PASSWORD_RESET_CODE_VERIFIED"
	ActionResetCompleted     Action = "PASSWORD_RESET_COMPLETED"
	ActionMailDeliveryFailed Action = "MAIL_DELIVERY_FAILED"
)

// Entry is one immutable audit record. ActorID is nil for system actions.
type Entry struct {
	ID        ulid.ULID
	ActorID   *ulid.ULID
	Action    Action
	Details   map[string]any
	IP        string
	UserAgent string
	At        time.Time
}

// NewEntry creates an audit entry stamped with the current time.
func NewEntry(actorID *ulid.ULID, action Action, details map[string]any, ip, userAgent string) Entry {
	return Entry{
		ID:        ulid.Make(),
		ActorID:   actorID,
		Action:    action,
		Details:   details,
		IP:        ip,
		UserAgent: userAgent,
		At:        time.Now(),
	}
}

// Recorder is the side-effect port services record through. Recording is
// fire-and-forget: it never fails the surrounding state transition.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// Sink persists audit entries behind the dispatcher.
type Sink interface {
	Write(ctx context.Context, entry Entry) error
}

// NopRecorder discards every entry. Used when auditing is disabled and in
// tests that don't assert on the trail.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(context.Context, Entry) {}
