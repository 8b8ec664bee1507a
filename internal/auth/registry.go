// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/audit"
)

// DefaultMaxSessions is the session cap enforced on login. The whole
// registry exists to hold this at one.
const DefaultMaxSessions = 1

// DeviceRegistry enforces the single-active-session policy over device
// session rows. All session truth lives in the repository; the registry owns
// the only safe transitions.
type DeviceRegistry struct {
	sessions DeviceSessionRepository
	recorder audit.Recorder
	logger   *slog.Logger
}

// NewDeviceRegistry creates a DeviceRegistry. The session repository is
// required; a nil recorder disables auditing.
func NewDeviceRegistry(sessions DeviceSessionRepository, recorder audit.Recorder, logger *slog.Logger) (*DeviceRegistry, error) {
	if sessions == nil {
		return nil, oops.Code("REGISTRY_INVALID_DEPS").Errorf("session repository is required")
	}
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceRegistry{sessions: sessions, recorder: recorder, logger: logger}, nil
}

// Login runs the login transition for a user: every prior active session is
// deactivated and the new device row becomes the single active session.
// Returns the new session and the number of prior sessions terminated.
//
// The repository provides the per-user serialization point, so two
// concurrent logins cannot both observe "no active sessions" and both stay
// active. A failure mid-transition leaves the user logged out everywhere,
// never with two active rows.
func (r *DeviceRegistry) Login(ctx context.Context, userID ulid.ULID, info DeviceInfo) (*DeviceSession, int64, error) {
	session, err := NewDeviceSession(userID, info)
	if err != nil {
		return nil, 0, err
	}

	terminated, err := r.sessions.Activate(ctx, session)
	if err != nil {
		return nil, 0, oops.Code("REGISTRY_LOGIN_FAILED").
			With("operation", "activate session").
			With("user_id", userID.String()).
			Wrap(err)
	}

	return session, terminated, nil
}

// Heartbeat refreshes LastActive for the caller's still-active session.
// Returns ErrNotFound when the session was replaced or terminated.
func (r *DeviceRegistry) Heartbeat(ctx context.Context, userID ulid.ULID, sessionFingerprint string) error {
	err := r.sessions.Heartbeat(ctx, userID, sessionFingerprint, time.Now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("SESSION_NOT_FOUND").
				With("user_id", userID.String()).
				Wrap(err)
		}
		return oops.Code("REGISTRY_HEARTBEAT_FAILED").
			With("operation", "refresh last active").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// IsSessionValid reports whether an active row exists with exactly this
// fingerprint. A missing or replaced row is invalid: the registry hard-fails
// on a miss rather than soft-allowing through login race windows.
func (r *DeviceRegistry) IsSessionValid(ctx context.Context, userID ulid.ULID, sessionFingerprint string) (bool, error) {
	session, err := r.sessions.Get(ctx, userID, sessionFingerprint)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, oops.Code("REGISTRY_CHECK_FAILED").
			With("operation", "get session").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return session.IsActive, nil
}

// Terminate deactivates one session immediately.
// Returns ErrNotFound when no active row matches.
func (r *DeviceRegistry) Terminate(ctx context.Context, userID ulid.ULID, sessionFingerprint string) error {
	err := r.sessions.Deactivate(ctx, userID, sessionFingerprint)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("SESSION_NOT_FOUND").
				With("user_id", userID.String()).
				Wrap(err)
		}
		return oops.Code("REGISTRY_TERMINATE_FAILED").
			With("operation", "deactivate session").
			With("user_id", userID.String()).
			Wrap(err)
	}

	r.recorder.Record(ctx, audit.NewEntry(&userID, audit.ActionSessionTerminated,
		map[string]any{"scope": "one"}, "", ""))
	return nil
}

// TerminateAll deactivates every session for a user and returns the number
// that were active. Other users are never touched.
func (r *DeviceRegistry) TerminateAll(ctx context.Context, userID ulid.ULID) (int64, error) {
	terminated, err := r.sessions.DeactivateAll(ctx, userID)
	if err != nil {
		return 0, oops.Code("REGISTRY_TERMINATE_FAILED").
			With("operation", "deactivate all sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}

	if terminated > 0 {
		r.recorder.Record(ctx, audit.NewEntry(&userID, audit.ActionSessionTerminated,
			map[string]any{"scope": "all", "terminated": terminated}, "", ""))
	}
	return terminated, nil
}

// EnforceSessionLimit deactivates active sessions beyond maxSessions,
// oldest by LastActive first, and returns the number terminated.
func (r *DeviceRegistry) EnforceSessionLimit(ctx context.Context, userID ulid.ULID, maxSessions int) (int64, error) {
	if maxSessions < 0 {
		return 0, oops.Code("REGISTRY_INVALID_LIMIT").
			With("max_sessions", maxSessions).
			Errorf("max sessions cannot be negative")
	}

	terminated, err := r.sessions.DeactivateOldest(ctx, userID, maxSessions)
	if err != nil {
		return 0, oops.Code("REGISTRY_LIMIT_FAILED").
			With("operation", "deactivate oldest sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}

	if terminated > 0 {
		r.recorder.Record(ctx, audit.NewEntry(&userID, audit.ActionSessionLimitSweep,
			map[string]any{"max_sessions": maxSessions, "terminated": terminated}, "", ""))
	}
	return terminated, nil
}

// ListSessions returns all session rows for a user, most recent first.
func (r *DeviceRegistry) ListSessions(ctx context.Context, userID ulid.ULID) ([]*DeviceSession, error) {
	sessions, err := r.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, oops.Code("REGISTRY_LIST_FAILED").
			With("operation", "list sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return sessions, nil
}

// ExpireIdle deactivates active sessions idle since before the cutoff and
// returns the number expired. Run periodically so abandoned sessions do not
// stay valid forever.
func (r *DeviceRegistry) ExpireIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	expired, err := r.sessions.DeactivateIdleBefore(ctx, cutoff)
	if err != nil {
		return 0, oops.Code("REGISTRY_EXPIRE_FAILED").
			With("operation", "deactivate idle sessions").
			Wrap(err)
	}
	if expired > 0 {
		r.logger.Info("expired idle sessions", "count", expired, "cutoff", cutoff)
	}
	return expired, nil
}

// PurgeInactive removes inactive rows idle since before the cutoff.
func (r *DeviceRegistry) PurgeInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	purged, err := r.sessions.DeleteInactiveBefore(ctx, cutoff)
	if err != nil {
		return 0, oops.Code("REGISTRY_PURGE_FAILED").
			With("operation", "delete inactive sessions").
			Wrap(err)
	}
	if purged > 0 {
		r.logger.Debug("purged inactive sessions", "count", purged)
	}
	return purged, nil
}
