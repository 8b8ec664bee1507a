// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth_test

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/mocks"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// memorySessionRepo is an in-memory DeviceSessionRepository. The mutex is the
// per-user serialization point the Activate contract requires, mirroring the
// row lock the Postgres implementation takes.
type memorySessionRepo struct {
	mu   sync.Mutex
	rows map[ulid.ULID]map[string]*auth.DeviceSession
}

var _ auth.DeviceSessionRepository = (*memorySessionRepo)(nil)

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{rows: make(map[ulid.ULID]map[string]*auth.DeviceSession)}
}

func (r *memorySessionRepo) Activate(_ context.Context, session *auth.DeviceSession) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user := r.rows[session.UserID]
	if user == nil {
		user = make(map[string]*auth.DeviceSession)
		r.rows[session.UserID] = user
	}

	var terminated int64
	for _, row := range user {
		if row.IsActive {
			row.IsActive = false
			terminated++
		}
	}

	stored := *session
	stored.IsActive = true
	user[session.SessionFingerprint] = &stored
	return terminated, nil
}

func (r *memorySessionRepo) Heartbeat(_ context.Context, userID ulid.ULID, sessionFingerprint string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.rows[userID][sessionFingerprint]
	if row == nil || !row.IsActive {
		return auth.ErrNotFound
	}
	row.LastActive = at
	return nil
}

func (r *memorySessionRepo) Get(_ context.Context, userID ulid.ULID, sessionFingerprint string) (*auth.DeviceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.rows[userID][sessionFingerprint]
	if row == nil {
		return nil, auth.ErrNotFound
	}
	copied := *row
	return &copied, nil
}

func (r *memorySessionRepo) ListByUser(_ context.Context, userID ulid.ULID) ([]*auth.DeviceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sessions []*auth.DeviceSession
	for _, row := range r.rows[userID] {
		copied := *row
		sessions = append(sessions, &copied)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActive.After(sessions[j].LastActive)
	})
	return sessions, nil
}

func (r *memorySessionRepo) Deactivate(_ context.Context, userID ulid.ULID, sessionFingerprint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.rows[userID][sessionFingerprint]
	if row == nil || !row.IsActive {
		return auth.ErrNotFound
	}
	row.IsActive = false
	return nil
}

func (r *memorySessionRepo) DeactivateAll(_ context.Context, userID ulid.ULID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var terminated int64
	for _, row := range r.rows[userID] {
		if row.IsActive {
			row.IsActive = false
			terminated++
		}
	}
	return terminated, nil
}

func (r *memorySessionRepo) DeactivateOldest(_ context.Context, userID ulid.ULID, keep int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var active []*auth.DeviceSession
	for _, row := range r.rows[userID] {
		if row.IsActive {
			active = append(active, row)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].LastActive.After(active[j].LastActive)
	})

	var terminated int64
	for i := keep; i < len(active); i++ {
		active[i].IsActive = false
		terminated++
	}
	return terminated, nil
}

func (r *memorySessionRepo) DeactivateIdleBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired int64
	for _, user := range r.rows {
		for _, row := range user {
			if row.IsActive && row.LastActive.Before(cutoff) {
				row.IsActive = false
				expired++
			}
		}
	}
	return expired, nil
}

func (r *memorySessionRepo) DeleteInactiveBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var purged int64
	for _, user := range r.rows {
		for fp, row := range user {
			if !row.IsActive && row.LastActive.Before(cutoff) {
				delete(user, fp)
				purged++
			}
		}
	}
	return purged, nil
}

func countActive(t *testing.T, registry *auth.DeviceRegistry, userID ulid.ULID) int {
	t.Helper()
	sessions, err := registry.ListSessions(context.Background(), userID)
	require.NoError(t, err)
	active := 0
	for _, s := range sessions {
		if s.IsActive {
			active++
		}
	}
	return active
}

// The takeover flow exercised end to end through the service against a real
// repository implementation, not mocked at the activation seam.
func TestService_Login_TakeoverEndToEnd(t *testing.T) {
	ctx := context.Background()

	repo := newMemorySessionRepo()
	users := mocks.NewMockUserRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)

	registry, err := auth.NewDeviceRegistry(repo, nil, nil)
	require.NoError(t, err)

	svc, err := auth.NewService(users, registry, hasher, nil, nil, nil, nil)
	require.NoError(t, err)

	user := activeUser(t)
	deviceA := auth.DeviceInfo{UserAgent: testDevice.UserAgent, IPAddress: "198.51.100.1"}
	deviceB := auth.DeviceInfo{UserAgent: testDevice.UserAgent, IPAddress: "198.51.100.2"}

	users.On("GetByEmail", ctx, user.Email).Return(user, nil)
	users.On("SetLastLogin", ctx, user.ID, mock.AnythingOfType("time.Time")).Return(nil)
	hasher.On("Verify", "Password1", testHash).Return(true, nil)
	hasher.On("NeedsUpgrade", testHash).Return(false)

	// First device logs in cleanly.
	resultA, err := svc.Login(ctx, user.Email, "Password1", deviceA)
	require.NoError(t, err)
	assert.Equal(t, int64(0), resultA.TerminatedSessions)

	validA, err := svc.CheckSessionValid(ctx, user.ID, deviceA.SessionFingerprint())
	require.NoError(t, err)
	assert.True(t, validA)

	// Second device takes over: the first session dies with it.
	resultB, err := svc.Login(ctx, user.Email, "Password1", deviceB)
	require.NoError(t, err)
	assert.Equal(t, int64(1), resultB.TerminatedSessions)

	validA, err = svc.CheckSessionValid(ctx, user.ID, deviceA.SessionFingerprint())
	require.NoError(t, err)
	assert.False(t, validA, "replaced session must be invalid")

	validB, err := svc.CheckSessionValid(ctx, user.ID, deviceB.SessionFingerprint())
	require.NoError(t, err)
	assert.True(t, validB)

	assert.Equal(t, 1, countActive(t, registry, user.ID))

	// The dead session cannot heartbeat itself back to life.
	err = registry.Heartbeat(ctx, user.ID, deviceA.SessionFingerprint())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SESSION_NOT_FOUND")

	err = registry.Heartbeat(ctx, user.ID, deviceB.SessionFingerprint())
	require.NoError(t, err)
}

// Concurrent logins race on the activation transition; exactly one session
// may survive no matter the interleaving.
func TestDeviceRegistry_ConcurrentLogins_SingleSurvivor(t *testing.T) {
	ctx := context.Background()
	const logins = 32

	repo := newMemorySessionRepo()
	registry, err := auth.NewDeviceRegistry(repo, nil, nil)
	require.NoError(t, err)

	userID := ulid.Make()

	var wg sync.WaitGroup
	var totalTerminated atomic.Int64
	errs := make(chan error, logins)
	for i := 0; i < logins; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			info := auth.DeviceInfo{
				UserAgent: testDevice.UserAgent,
				IPAddress: "192.0.2." + strconv.Itoa(n),
			}
			_, terminated, loginErr := registry.Login(ctx, userID, info)
			if loginErr != nil {
				errs <- loginErr
				return
			}
			totalTerminated.Add(terminated)
		}(i)
	}
	wg.Wait()
	close(errs)
	for loginErr := range errs {
		require.NoError(t, loginErr)
	}

	assert.Equal(t, 1, countActive(t, registry, userID), "exactly one session may be active")

	sessions, err := registry.ListSessions(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, sessions, logins)

	// Every login but the last observed by the repository terminated its
	// predecessor.
	assert.Equal(t, int64(logins-1), totalTerminated.Load())

	// The surviving session agrees with IsSessionValid.
	for _, s := range sessions {
		valid, checkErr := registry.IsSessionValid(ctx, userID, s.SessionFingerprint)
		require.NoError(t, checkErr)
		assert.Equal(t, s.IsActive, valid)
	}
}
