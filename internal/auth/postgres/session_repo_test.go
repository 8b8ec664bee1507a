// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

var sessionCols = []string{
	"id", "user_id", "session_fingerprint", "device_fingerprint",
	"device_type", "browser", "os", "ip_address", "is_active", "last_active", "created_at",
}

func testSession(t *testing.T) *auth.DeviceSession {
	t.Helper()
	session, err := auth.NewDeviceSession(ulid.Make(), auth.DeviceInfo{
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) Firefox/121.0",
		IPAddress: "198.51.100.7",
	})
	require.NoError(t, err)
	return session
}

func sessionRow(s *auth.DeviceSession) *pgxmock.Rows {
	return pgxmock.NewRows(sessionCols).AddRow(
		s.ID.String(), s.UserID.String(), s.SessionFingerprint, s.DeviceFingerprint,
		s.DeviceType, s.Browser, s.OS, s.IPAddress, s.IsActive, s.LastActive, s.CreatedAt,
	)
}

func TestDeviceSessionRepository_Activate(t *testing.T) {
	ctx := context.Background()

	t.Run("locks the user, deactivates priors, upserts the new row", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		session := testSession(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id FROM users WHERE id = \$1 FOR UPDATE`).
			WithArgs(session.UserID.String()).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(session.UserID.String()))
		mock.ExpectExec(`UPDATE device_sessions SET is_active = FALSE`).
			WithArgs(session.UserID.String(), session.LastActive).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`INSERT INTO device_sessions`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		repo := postgres.NewDeviceSessionRepository(mock)
		terminated, err := repo.Activate(ctx, session)
		require.NoError(t, err)
		assert.Equal(t, int64(1), terminated)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("first login terminates nothing", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		session := testSession(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id FROM users WHERE id = \$1 FOR UPDATE`).
			WithArgs(session.UserID.String()).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(session.UserID.String()))
		mock.ExpectExec(`UPDATE device_sessions SET is_active = FALSE`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectExec(`INSERT INTO device_sessions`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		repo := postgres.NewDeviceSessionRepository(mock)
		terminated, err := repo.Activate(ctx, session)
		require.NoError(t, err)
		assert.Zero(t, terminated)
	})

	t.Run("unknown user rolls back with ErrNotFound", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		session := testSession(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id FROM users WHERE id = \$1 FOR UPDATE`).
			WithArgs(session.UserID.String()).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		repo := postgres.NewDeviceSessionRepository(mock)
		_, err = repo.Activate(ctx, session)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "USER_NOT_FOUND")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("upsert failure rolls the whole transition back", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		session := testSession(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id FROM users WHERE id = \$1 FOR UPDATE`).
			WithArgs(session.UserID.String()).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(session.UserID.String()))
		mock.ExpectExec(`UPDATE device_sessions SET is_active = FALSE`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`INSERT INTO device_sessions`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		repo := postgres.NewDeviceSessionRepository(mock)
		_, err = repo.Activate(ctx, session)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "SESSION_ACTIVATE_FAILED")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDeviceSessionRepository_Heartbeat(t *testing.T) {
	ctx := context.Background()
	userID := ulid.Make()
	at := time.Now()

	t.Run("refreshes an active session", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`UPDATE device_sessions SET last_active`).
			WithArgs(userID.String(), "fp-1", at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		repo := postgres.NewDeviceSessionRepository(mock)
		require.NoError(t, repo.Heartbeat(ctx, userID, "fp-1", at))
	})

	t.Run("replaced session maps to ErrNotFound", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`UPDATE device_sessions SET last_active`).
			WithArgs(userID.String(), "fp-old", at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := postgres.NewDeviceSessionRepository(mock)
		err = repo.Heartbeat(ctx, userID, "fp-old", at)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestDeviceSessionRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the session row", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		session := testSession(t)
		mock.ExpectQuery(`SELECT (.+) FROM device_sessions`).
			WithArgs(session.UserID.String(), session.SessionFingerprint).
			WillReturnRows(sessionRow(session))

		repo := postgres.NewDeviceSessionRepository(mock)
		got, err := repo.Get(ctx, session.UserID, session.SessionFingerprint)
		require.NoError(t, err)
		assert.Equal(t, session.ID, got.ID)
		assert.Equal(t, session.SessionFingerprint, got.SessionFingerprint)
		assert.True(t, got.IsActive)
	})

	t.Run("missing row maps to ErrNotFound", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		userID := ulid.Make()
		mock.ExpectQuery(`SELECT (.+) FROM device_sessions`).
			WithArgs(userID.String(), "fp-gone").
			WillReturnError(pgx.ErrNoRows)

		repo := postgres.NewDeviceSessionRepository(mock)
		got, err := repo.Get(ctx, userID, "fp-gone")
		require.Error(t, err)
		assert.Nil(t, got)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestDeviceSessionRepository_ListByUser(t *testing.T) {
	ctx := context.Background()

	t.Run("returns all rows for the user", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		s1 := testSession(t)
		s2 := testSession(t)
		s2.UserID = s1.UserID

		rows := pgxmock.NewRows(sessionCols).
			AddRow(s1.ID.String(), s1.UserID.String(), s1.SessionFingerprint, s1.DeviceFingerprint,
				s1.DeviceType, s1.Browser, s1.OS, s1.IPAddress, s1.IsActive, s1.LastActive, s1.CreatedAt).
			AddRow(s2.ID.String(), s2.UserID.String(), s2.SessionFingerprint, s2.DeviceFingerprint,
				s2.DeviceType, s2.Browser, s2.OS, s2.IPAddress, false, s2.LastActive, s2.CreatedAt)

		mock.ExpectQuery(`SELECT (.+) FROM device_sessions`).
			WithArgs(s1.UserID.String()).
			WillReturnRows(rows)

		repo := postgres.NewDeviceSessionRepository(mock)
		sessions, err := repo.ListByUser(ctx, s1.UserID)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.True(t, sessions[0].IsActive)
		assert.False(t, sessions[1].IsActive)
	})

	t.Run("no rows yields an empty list", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		userID := ulid.Make()
		mock.ExpectQuery(`SELECT (.+) FROM device_sessions`).
			WithArgs(userID.String()).
			WillReturnRows(pgxmock.NewRows(sessionCols))

		repo := postgres.NewDeviceSessionRepository(mock)
		sessions, err := repo.ListByUser(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, sessions)
	})
}

func TestDeviceSessionRepository_DeactivateAll(t *testing.T) {
	ctx := context.Background()
	userID := ulid.Make()

	t.Run("returns the number of rows that were active", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`UPDATE device_sessions SET is_active = FALSE`).
			WithArgs(userID.String()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 3))

		repo := postgres.NewDeviceSessionRepository(mock)
		terminated, err := repo.DeactivateAll(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), terminated)
	})

	t.Run("nothing active is not an error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`UPDATE device_sessions SET is_active = FALSE`).
			WithArgs(userID.String()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := postgres.NewDeviceSessionRepository(mock)
		terminated, err := repo.DeactivateAll(ctx, userID)
		require.NoError(t, err)
		assert.Zero(t, terminated)
	})
}

func TestDeviceSessionRepository_DeactivateOldest(t *testing.T) {
	ctx := context.Background()
	userID := ulid.Make()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE device_sessions SET is_active = FALSE`).
		WithArgs(userID.String(), 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	repo := postgres.NewDeviceSessionRepository(mock)
	terminated, err := repo.DeactivateOldest(ctx, userID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), terminated)
}

func TestDeviceSessionRepository_DeactivateIdleBefore(t *testing.T) {
	ctx := context.Background()
	cutoff := time.Now().Add(-24 * time.Hour)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE device_sessions SET is_active = FALSE`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	repo := postgres.NewDeviceSessionRepository(mock)
	expired, err := repo.DeactivateIdleBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), expired)
}

func TestDeviceSessionRepository_DeleteInactiveBefore(t *testing.T) {
	ctx := context.Background()
	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM device_sessions`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	repo := postgres.NewDeviceSessionRepository(mock)
	purged, err := repo.DeleteInactiveBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), purged)
}
