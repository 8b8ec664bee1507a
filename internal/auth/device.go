// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/fingerprint"
)

// DeviceInfo is the raw request metadata a login attempt carries.
type DeviceInfo struct {
	UserAgent string
	IPAddress string
}

// SessionFingerprint derives the unique login-instance key for this device.
func (d DeviceInfo) SessionFingerprint() string {
	return fingerprint.Session(d.UserAgent, d.IPAddress)
}

// DeviceSession represents one login instance bound to a physical device.
// At most one row per user may be active at any time; the registry's login
// transition enforces this.
type DeviceSession struct {
	ID                 ulid.ULID
	UserID             ulid.ULID
	SessionFingerprint string // unique key; collisions overwrite, never duplicate
	DeviceFingerprint  string
	DeviceType         string
	Browser            string
	OS                 string
	IPAddress          string
	IsActive           bool
	LastActive         time.Time
	CreatedAt          time.Time
}

// NewDeviceSession creates a validated DeviceSession from raw device info.
// Fingerprints and the device classification are derived here so repository
// implementations only ever see consistent rows.
func NewDeviceSession(userID ulid.ULID, info DeviceInfo) (*DeviceSession, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}

	class := fingerprint.Classify(info.UserAgent)
	now := time.Now()
	return &DeviceSession{
		ID:                 ulid.Make(),
		UserID:             userID,
		SessionFingerprint: fingerprint.Session(info.UserAgent, info.IPAddress),
		DeviceFingerprint:  fingerprint.Device(info.IPAddress, class.Browser, class.OS),
		DeviceType:         class.DeviceType,
		Browser:            class.Browser,
		OS:                 class.OS,
		IPAddress:          info.IPAddress,
		IsActive:           true,
		LastActive:         now,
		CreatedAt:          now,
	}, nil
}

// DeviceSessionRepository manages device session persistence.
type DeviceSessionRepository interface {
	// Activate runs the login transition: deactivate every active row for
	// the session's user, then upsert the given row as the single active
	// session, all inside one per-user serialization point. Returns the
	// number of prior sessions terminated.
	Activate(ctx context.Context, session *DeviceSession) (int64, error)

	// Heartbeat refreshes LastActive for a still-active session.
	// Returns ErrNotFound when no active row matches the fingerprint.
	Heartbeat(ctx context.Context, userID ulid.ULID, sessionFingerprint string, at time.Time) error

	// Get retrieves a session row by owner and fingerprint.
	Get(ctx context.Context, userID ulid.ULID, sessionFingerprint string) (*DeviceSession, error)

	// ListByUser retrieves all session rows for a user, most recent first.
	ListByUser(ctx context.Context, userID ulid.ULID) ([]*DeviceSession, error)

	// Deactivate marks one session inactive.
	// Returns ErrNotFound when no active row matches.
	Deactivate(ctx context.Context, userID ulid.ULID, sessionFingerprint string) error

	// DeactivateAll marks every session for a user inactive and returns the
	// number of rows that were active.
	DeactivateAll(ctx context.Context, userID ulid.ULID) (int64, error)

	// DeactivateOldest deactivates active rows beyond keep, oldest by
	// LastActive first, and returns the number deactivated.
	DeactivateOldest(ctx context.Context, userID ulid.ULID, keep int) (int64, error)

	// DeactivateIdleBefore marks active rows whose LastActive is older than
	// the cutoff inactive. Returns the number of rows deactivated.
	DeactivateIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteInactiveBefore purges inactive rows whose LastActive is older
	// than the cutoff. Returns the number of rows removed.
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
