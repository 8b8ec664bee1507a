// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/audit"
	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/mocks"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

func TestNewDeviceRegistry_NilSessions(t *testing.T) {
	registry, err := auth.NewDeviceRegistry(nil, nil, nil)
	require.Error(t, err)
	assert.Nil(t, registry)
	assert.Contains(t, err.Error(), "session repository is required")
}

func TestDeviceRegistry_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("builds session from device info and activates it", func(t *testing.T) {
		sessions := mocks.NewMockDeviceSessionRepository(t)
		registry, err := auth.NewDeviceRegistry(sessions, nil, nil)
		require.NoError(t, err)

		userID := ulid.Make()
		var activated *auth.DeviceSession
		sessions.On("Activate", ctx, mock.AnythingOfType("*auth.DeviceSession")).
			Run(func(args mock.Arguments) {
				activated = args.Get(1).(*auth.DeviceSession)
			}).Return(int64(1), nil)

		session, terminated, err := registry.Login(ctx, userID, testDevice)
		require.NoError(t, err)
		assert.Equal(t, int64(1), terminated)
		assert.Same(t, activated, session)
		assert.Equal(t, userID, session.UserID)
		assert.Equal(t, testDevice.SessionFingerprint(), session.SessionFingerprint)
		assert.True(t, session.IsActive)
	})

	t.Run("zero user ID is rejected before touching the repository", func(t *testing.T) {
		sessions := mocks.NewMockDeviceSessionRepository(t)
		registry, err := auth.NewDeviceRegistry(sessions, nil, nil)
		require.NoError(t, err)

		session, terminated, err := registry.Login(ctx, ulid.ULID{}, testDevice)
		require.Error(t, err)
		assert.Nil(t, session)
		assert.Zero(t, terminated)
		errutil.AssertErrorCode(t, err, "SESSION_INVALID_USER")
	})

	t.Run("repository failure surfaces", func(t *testing.T) {
		sessions := mocks.NewMockDeviceSessionRepository(t)
		registry, err := auth.NewDeviceRegistry(sessions, nil, nil)
		require.NoError(t, err)

		sessions.On("Activate", ctx, mock.AnythingOfType("*auth.DeviceSession")).
			Return(int64(0), errors.New("serialization failure"))

		_, _, err = registry.Login(ctx, ulid.Make(), testDevice)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "REGISTRY_LOGIN_FAILED")
	})
}

func TestDeviceRegistry_Heartbeat(t *testing.T) {
	ctx := context.Background()
	userID := ulid.Make()

	t.Run("refreshes an active session", func(t *testing.T) {
		sessions := mocks.NewMockDeviceSessionRepository(t)
		registry, err := auth.NewDeviceRegistry(sessions, nil, nil)
		require.NoError(t, err)

		sessions.On("Heartbeat", ctx, userID, "fp-1", mock.AnythingOfType("time.Time")).Return(nil)

		require.NoError(t, registry.Heartbeat(ctx, userID, "fp-1"))
	})

	t.Run("replaced session reports not found", func(t *testing.T) {
		sessions := mocks.NewMockDeviceSessionRepository(t)
		registry, err := auth.NewDeviceRegistry(sessions, nil, nil)
		require.NoError(t, err)

		sessions.On("Heartbeat", ctx, userID, "fp-old", mock.AnythingOfType("time.Time")).
			Return(auth.ErrNotFound)

		err = registry.Heartbeat(ctx, userID, "fp-old")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "SESSION_NOT_FOUND")
	})
}

func TestDeviceRegistry_IsSessionValid(t *testing.T) {
	ctx := context.Background()
	userID := ulid.Make()

	tests := []struct {
		name    string
		session *auth.DeviceSession
		getErr  error
		want    bool
		wantErr bool
	}{
		{
			name:    "active row is valid",
			session: &auth.DeviceSession{UserID: userID, IsActive: true},
			want:    true,
		},
		{
			name:    "inactive row is invalid",
			session: &auth.DeviceSession{UserID: userID, IsActive: false},
			want:    false,
		},
		{
			name:   "missing row is invalid, not an error",
			getErr: auth.ErrNotFound,
			want:   false,
		},
		{
			name:    "repository failure is an error",
			getErr:  errors.New("connection refused"),
			want:    false,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := mocks.NewMockDeviceSessionRepository(t)
			registry, err := auth.NewDeviceRegistry(sessions, nil, nil)
			require.NoError(t, err)

			sessions.On("Get", ctx, userID, "fp-1").Return(tt.session, tt.getErr)

			valid, err := registry.IsSessionValid(ctx, userID, "fp-1")
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, valid)
		})
	}
}

func TestDeviceRegistry_Terminate(t *testing.T) {
	ctx := context.Background()
	userID := ulid.Make()

	t.Run("termination is audited", func(t *testing.T) {
		sessions := mocks.NewMockDeviceSessionRepository(t)
		recorder := mocks.NewMockRecorder(t)
		registry, err := auth.NewDeviceRegistry(sessions, recorder, nil)
		require.NoError(t, err)

		var entry audit.Entry
		recorder.On("Record", ctx, mock.AnythingOfType("audit.Entry")).
			Run(func(args mock.Arguments) {
				entry = args.Get(1).(audit.Entry)
			}).Return()
		sessions.On("Deactivate", ctx, userID, "fp-1").Return(nil)

		require.NoError(t, registry.Terminate(ctx, userID, "fp-1"))
		assert.Equal(t, audit.ActionSessionTerminated, entry.Action)
		assert.Equal(t, "one", entry.Details["scope"])
	})

	t.Run("missing session reports not found without an audit entry", func(t *testing.T) {
		sessions := mocks.NewMockDeviceSessionRepository(t)
		recorder := mocks.NewMockRecorder(t)
		registry, err := auth.NewDeviceRegistry(sessions, recorder, nil)
		require.NoError(t, err)

		sessions.On("Deactivate", ctx, userID, "fp-gone").Return(auth.ErrNotFound)

		err = registry.Terminate(ctx, userID, "fp-gone")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		recorder.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
	})
}

func TestDeviceRegistry_TerminateAll(t *testing.T) {
	ctx := context.Background()
	userID := ulid.Make()

	t.Run("returns count and audits when sessions were active", func(t *testing.T) {
		sessions := mocks.NewMockDeviceSessionRepository(t)
		recorder := mocks.NewMockRecorder(t)
		registry, err := auth.NewDeviceRegistry(sessions, recorder, nil)
		require.NoError(t, err)

		var entry audit.Entry
		recorder.On("Record", ctx, mock.AnythingOfType("audit.Entry")).
			Run(func(args mock.Arguments) {
				entry = args.Get(1).(audit.Entry)
			}).Return()
		sessions.On("DeactivateAll", ctx, userID).Return(int64(3), nil)

		terminated, err := registry.TerminateAll(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), terminated)
		assert.Equal(t, "all", entry.Details["scope"])
		assert.Equal(t, int64(3), entry.Details["terminated"])
	})

	t.Run("nothing active is a silent no-op", func(t *testing.T) {
		sessions := mocks.NewMockDeviceSessionRepository(t)
		recorder := mocks.NewMockRecorder(t)
		registry, err := auth.NewDeviceRegistry(sessions, recorder, nil)
		require.NoError(t, err)

		sessions.On("DeactivateAll", ctx, userID).Return(int64(0), nil)

		terminated, err := registry.TerminateAll(ctx, userID)
		require.NoError(t, err)
		assert.Zero(t, terminated)
		recorder.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
	})
}

func TestDeviceRegistry_EnforceSessionLimit(t *testing.T) {
	ctx := context.Background()
	userID := ulid.Make()

	t.Run("trims beyond the limit oldest first", func(t *testing.T) {
		sessions := mocks.NewMockDeviceSessionRepository(t)
		recorder := mocks.NewMockRecorder(t)
		registry, err := auth.NewDeviceRegistry(sessions, recorder, nil)
		require.NoError(t, err)

		recorder.On("Record", ctx, mock.AnythingOfType("audit.Entry")).Return()
		sessions.On("DeactivateOldest", ctx, userID, auth.DefaultMaxSessions).Return(int64(2), nil)

		terminated, err := registry.EnforceSessionLimit(ctx, userID, auth.DefaultMaxSessions)
		require.NoError(t, err)
		assert.Equal(t, int64(2), terminated)
	})

	t.Run("negative limit is rejected", func(t *testing.T) {
		sessions := mocks.NewMockDeviceSessionRepository(t)
		registry, err := auth.NewDeviceRegistry(sessions, nil, nil)
		require.NoError(t, err)

		_, err = registry.EnforceSessionLimit(ctx, userID, -1)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "REGISTRY_INVALID_LIMIT")
	})
}

func TestDeviceRegistry_PurgeInactive(t *testing.T) {
	ctx := context.Background()

	sessions := mocks.NewMockDeviceSessionRepository(t)
	registry, err := auth.NewDeviceRegistry(sessions, nil, nil)
	require.NoError(t, err)

	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	sessions.On("DeleteInactiveBefore", ctx, cutoff).Return(int64(5), nil)

	purged, err := registry.PurgeInactive(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(5), purged)
}

func TestDeviceRegistry_ExpireIdle(t *testing.T) {
	ctx := context.Background()

	t.Run("expires idle sessions", func(t *testing.T) {
		sessions := mocks.NewMockDeviceSessionRepository(t)
		registry, err := auth.NewDeviceRegistry(sessions, nil, nil)
		require.NoError(t, err)

		cutoff := time.Now().Add(-24 * time.Hour)
		sessions.On("DeactivateIdleBefore", ctx, cutoff).Return(int64(2), nil)

		expired, err := registry.ExpireIdle(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(2), expired)
	})

	t.Run("repository failure is wrapped", func(t *testing.T) {
		sessions := mocks.NewMockDeviceSessionRepository(t)
		registry, err := auth.NewDeviceRegistry(sessions, nil, nil)
		require.NoError(t, err)

		cutoff := time.Now()
		sessions.On("DeactivateIdleBefore", ctx, cutoff).
			Return(int64(0), errors.New("connection lost"))

		_, err = registry.ExpireIdle(ctx, cutoff)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "REGISTRY_EXPIRE_FAILED")
	})
}
