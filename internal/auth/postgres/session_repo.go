// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// DeviceSessionRepository implements auth.DeviceSessionRepository using
// PostgreSQL.
type DeviceSessionRepository struct {
	db DB
}

// NewDeviceSessionRepository creates a new DeviceSessionRepository.
func NewDeviceSessionRepository(db DB) *DeviceSessionRepository {
	return &DeviceSessionRepository{db: db}
}

const sessionColumns = `id, user_id, session_fingerprint, device_fingerprint,
	       device_type, browser, os, ip_address, is_active, last_active, created_at`

// Activate runs the login transition in one transaction. The row lock on
// the owning user is the per-user serialization point: concurrent logins for
// the same user queue here, so exactly one active row survives. A failure at
// any step rolls the whole transition back.
func (r *DeviceSessionRepository) Activate(ctx context.Context, session *auth.DeviceSession) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, oops.Code("SESSION_ACTIVATE_FAILED").
			With("operation", "begin transaction").
			Wrap(err)
	}
	defer func() { _ = tx.Rollback(ctx) }() //nolint:errcheck // no-op after commit

	var lockedID string
	err = tx.QueryRow(ctx, `
		SELECT id FROM users WHERE id = $1 FOR UPDATE
	`, session.UserID.String()).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, oops.Code("USER_NOT_FOUND").
				With("user_id", session.UserID.String()).
				Wrap(auth.ErrNotFound)
		}
		return 0, oops.Code("SESSION_ACTIVATE_FAILED").
			With("operation", "lock user row").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}

	deactivated, err := tx.Exec(ctx, `
		UPDATE device_sessions SET is_active = FALSE, last_active = $2
		WHERE user_id = $1 AND is_active
	`, session.UserID.String(), session.LastActive)
	if err != nil {
		return 0, oops.Code("SESSION_ACTIVATE_FAILED").
			With("operation", "deactivate prior sessions").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO device_sessions (
			id, user_id, session_fingerprint, device_fingerprint,
			device_type, browser, os, ip_address, is_active, last_active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, $10)
		ON CONFLICT (session_fingerprint) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			device_fingerprint = EXCLUDED.device_fingerprint,
			device_type = EXCLUDED.device_type,
			browser = EXCLUDED.browser,
			os = EXCLUDED.os,
			ip_address = EXCLUDED.ip_address,
			is_active = TRUE,
			last_active = EXCLUDED.last_active
	`,
		session.ID.String(),
		session.UserID.String(),
		session.SessionFingerprint,
		session.DeviceFingerprint,
		session.DeviceType,
		session.Browser,
		session.OS,
		session.IPAddress,
		session.LastActive,
		session.CreatedAt,
	)
	if err != nil {
		return 0, oops.Code("SESSION_ACTIVATE_FAILED").
			With("operation", "upsert session").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, oops.Code("SESSION_ACTIVATE_FAILED").
			With("operation", "commit transaction").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}

	return deactivated.RowsAffected(), nil
}

// Heartbeat refreshes LastActive for a still-active session.
func (r *DeviceSessionRepository) Heartbeat(ctx context.Context, userID ulid.ULID, sessionFingerprint string, at time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE device_sessions SET last_active = $3
		WHERE user_id = $1 AND session_fingerprint = $2 AND is_active
	`, userID.String(), sessionFingerprint, at)
	if err != nil {
		return oops.Code("SESSION_HEARTBEAT_FAILED").
			With("operation", "refresh last active").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("user_id", userID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Get retrieves a session row by owner and fingerprint.
func (r *DeviceSessionRepository) Get(ctx context.Context, userID ulid.ULID, sessionFingerprint string) (*auth.DeviceSession, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM device_sessions
		WHERE user_id = $1 AND session_fingerprint = $2
	`, userID.String(), sessionFingerprint)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").
			With("user_id", userID.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return session, nil
}

// ListByUser retrieves all session rows for a user, most recent first.
func (r *DeviceSessionRepository) ListByUser(ctx context.Context, userID ulid.ULID) ([]*auth.DeviceSession, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM device_sessions
		WHERE user_id = $1
		ORDER BY last_active DESC
	`, userID.String())
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("operation", "list sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var sessions []*auth.DeviceSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, oops.Code("SESSION_SCAN_FAILED").
				With("operation", "scan session row").
				Wrap(err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, oops.Code("SESSION_ROWS_ERROR").
			With("operation", "iterate session rows").
			Wrap(err)
	}

	return sessions, nil
}

// Deactivate marks one session inactive.
func (r *DeviceSessionRepository) Deactivate(ctx context.Context, userID ulid.ULID, sessionFingerprint string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE device_sessions SET is_active = FALSE, last_active = NOW()
		WHERE user_id = $1 AND session_fingerprint = $2 AND is_active
	`, userID.String(), sessionFingerprint)
	if err != nil {
		return oops.Code("SESSION_DEACTIVATE_FAILED").
			With("operation", "deactivate session").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("user_id", userID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeactivateAll marks every session for a user inactive.
func (r *DeviceSessionRepository) DeactivateAll(ctx context.Context, userID ulid.ULID) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE device_sessions SET is_active = FALSE, last_active = NOW()
		WHERE user_id = $1 AND is_active
	`, userID.String())
	if err != nil {
		return 0, oops.Code("SESSION_DEACTIVATE_ALL_FAILED").
			With("operation", "deactivate all sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	// No ErrNotFound when nothing was active - that's a valid state.
	return result.RowsAffected(), nil
}

// DeactivateOldest deactivates active rows beyond keep, oldest by
// last_active first.
func (r *DeviceSessionRepository) DeactivateOldest(ctx context.Context, userID ulid.ULID, keep int) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE device_sessions SET is_active = FALSE, last_active = NOW()
		WHERE user_id = $1 AND is_active AND id NOT IN (
			SELECT id FROM device_sessions
			WHERE user_id = $1 AND is_active
			ORDER BY last_active DESC
			LIMIT $2
		)
	`, userID.String(), keep)
	if err != nil {
		return 0, oops.Code("SESSION_LIMIT_FAILED").
			With("operation", "deactivate oldest sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeactivateIdleBefore marks active rows idle since before the cutoff
// inactive. The rows survive for audit views until purged.
func (r *DeviceSessionRepository) DeactivateIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE device_sessions SET is_active = FALSE
		WHERE is_active AND last_active < $1
	`, cutoff)
	if err != nil {
		return 0, oops.Code("SESSION_EXPIRE_FAILED").
			With("operation", "deactivate idle sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteInactiveBefore purges inactive rows idle since before the cutoff.
func (r *DeviceSessionRepository) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `
		DELETE FROM device_sessions
		WHERE NOT is_active AND last_active < $1
	`, cutoff)
	if err != nil {
		return 0, oops.Code("SESSION_PURGE_FAILED").
			With("operation", "delete inactive sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanSession scans a row into a DeviceSession.
// Callers are responsible for handling pgx.ErrNoRows.
func scanSession(row pgx.Row) (*auth.DeviceSession, error) {
	var (
		idStr       string
		userIDStr   string
		sessionFP   string
		deviceFP    string
		deviceType  string
		browser     string
		osFamily    string
		ipAddress   string
		isActive    bool
		lastActive  time.Time
		createdAt   time.Time
	)

	err := row.Scan(&idStr, &userIDStr, &sessionFP, &deviceFP, &deviceType,
		&browser, &osFamily, &ipAddress, &isActive, &lastActive, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("SESSION_SCAN_FAILED").
			With("operation", "scan device_session").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").
			With("operation", "parse session id").
			With("id", idStr).
			Wrap(err)
	}

	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_USER_ID").
			With("operation", "parse user id").
			With("user_id", userIDStr).
			Wrap(err)
	}

	return &auth.DeviceSession{
		ID:                 id,
		UserID:             userID,
		SessionFingerprint: sessionFP,
		DeviceFingerprint:  deviceFP,
		DeviceType:         deviceType,
		Browser:            browser,
		OS:                 osFamily,
		IPAddress:          ipAddress,
		IsActive:           isActive,
		LastActive:         lastActive,
		CreatedAt:          createdAt,
	}, nil
}

// Compile-time interface check.
var _ auth.DeviceSessionRepository = (*DeviceSessionRepository)(nil)
