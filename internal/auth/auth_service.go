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
	"github.com/gatehouse/gatehouse/internal/mail"
)

// dummyPasswordHash is verified against when an email is unknown or has no
// password yet, so response time does not reveal whether the account exists.
// This is NOT a real credential - it's a fake hash that never matches.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	User                  Projection
	Session               *DeviceSession
	RequiresPasswordReset bool
	TerminatedSessions    int64
}

// Service composes the credential store, device registry, and side-effect
// ports into the public authentication operations.
type Service struct {
	users    UserRepository
	registry *DeviceRegistry
	hasher   PasswordHasher
	mailer   mail.Dispatcher
	recorder audit.Recorder
	metrics  MetricsRecorder
	logger   *slog.Logger
}

// NewService creates a Service. Users, registry, and hasher are required;
// a nil mailer logs instead of sending, a nil recorder disables auditing,
// a nil metrics recorder disables counting.
func NewService(
	users UserRepository,
	registry *DeviceRegistry,
	hasher PasswordHasher,
	mailer mail.Dispatcher,
	recorder audit.Recorder,
	metrics MetricsRecorder,
	logger *slog.Logger,
) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("user repository is required")
	}
	if registry == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("device registry is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("password hasher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if mailer == nil {
		mailer = mail.NewLogDispatcher(logger)
	}
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Service{
		users:    users,
		registry: registry,
		hasher:   hasher,
		mailer:   mailer,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Login authenticates a user and makes the new device the single active
// session. Unknown emails, accounts without a password, and wrong passwords
// all fail with ErrInvalidCredentials after a constant-time verification.
func (s *Service) Login(ctx context.Context, email, password string, info DeviceInfo) (*LoginResult, error) {
	user, lookupErr := s.users.GetByEmail(ctx, email)

	targetHash := dummyPasswordHash
	userUsable := false

	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get user by email").
				Wrap(lookupErr)
		}
	} else if user.HasPassword() {
		targetHash = *user.PasswordHash
		userUsable = true
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !userUsable {
			// Dummy hash verification errors collapse into the uniform failure.
			return nil, s.failLogin(ctx, user, info, "invalid_credentials")
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !userUsable || !valid {
		return nil, s.failLogin(ctx, user, info, "invalid_credentials")
	}

	if user.Status != StatusActive {
		s.recorder.Record(ctx, audit.NewEntry(&user.ID, audit.ActionLoginFailed,
			map[string]any{"reason": "account_disabled", "status": string(user.Status)},
			info.IPAddress, info.UserAgent))
		s.metrics.RecordLogin("failure")
		return nil, oops.Code("AUTH_ACCOUNT_DISABLED").
			With("status", string(user.Status)).
			Wrap(ErrAccountDisabled)
	}

	// Re-derive the hash when parameters changed. Best effort; login
	// succeeds regardless.
	if s.hasher.NeedsUpgrade(*user.PasswordHash) {
		if newHash, hashErr := s.hasher.Hash(password); hashErr == nil {
			if err := s.users.UpdatePassword(ctx, user.ID, newHash, false); err != nil {
				s.logger.Warn("password hash upgrade failed", "user_id", user.ID.String(), "error", err)
			}
		}
	}

	session, terminated, err := s.registry.Login(ctx, user.ID, info)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "register session").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	now := time.Now()
	if err := s.users.SetLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("last login stamp failed", "user_id", user.ID.String(), "error", err)
	} else {
		user.LastLoginAt = &now
	}

	if terminated > 0 {
		s.recorder.Record(ctx, audit.NewEntry(&user.ID, audit.ActionSessionTerminated,
			map[string]any{"scope": "login_takeover", "terminated": terminated},
			info.IPAddress, info.UserAgent))
		s.metrics.RecordSessionsTerminated("login_takeover", terminated)
	}
	s.recorder.Record(ctx, audit.NewEntry(&user.ID, audit.ActionLoginSuccess,
		map[string]any{"session_fingerprint": session.SessionFingerprint},
		info.IPAddress, info.UserAgent))
	s.metrics.RecordLogin("success")

	return &LoginResult{
		User:                  user.Project(),
		Session:               session,
		RequiresPasswordReset: user.IsFirstLogin,
		TerminatedSessions:    terminated,
	}, nil
}

// failLogin records the failed attempt (for known users) and returns the
// uniform credentials error.
func (s *Service) failLogin(ctx context.Context, user *User, info DeviceInfo, reason string) error {
	var actor *ulid.ULID
	if user != nil {
		actor = &user.ID
	}
	s.recorder.Record(ctx, audit.NewEntry(actor, audit.ActionLoginFailed,
		map[string]any{"reason": reason}, info.IPAddress, info.UserAgent))
	s.metrics.RecordLogin("failure")
	return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
}

// ChangePasswordFromTemporary rotates the password of a logged-in user who
// still holds an admin-issued temporary password. The caller's own session
// stays valid: unlike account recovery, the current holder proved knowledge
// of the existing password.
func (s *Service) ChangePasswordFromTemporary(ctx context.Context, userID ulid.ULID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
		}
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "get user by id").
			Wrap(err)
	}

	if !user.HasPassword() {
		return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	valid, err := s.hasher.Verify(currentPassword, *user.PasswordHash)
	if err != nil || !valid {
		return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	if err := s.users.UpdatePassword(ctx, userID, newHash, true); err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "store password").
			With("user_id", userID.String()).
			Wrap(err)
	}

	s.recorder.Record(ctx, audit.NewEntry(&userID, audit.ActionPasswordChanged,
		map[string]any{"source": "temporary_password"}, "", ""))
	return nil
}

// CreateUser provisions an account with a generated temporary password and
// a raised first-login flag. The plaintext temporary password is returned to
// the operator and sent in the welcome mail; only its hash is stored.
func (s *Service) CreateUser(ctx context.Context, email string, displayName *string, role Role) (*User, string, error) {
	user, err := NewUser(email, displayName, role)
	if err != nil {
		return nil, "", err
	}

	tempPassword, err := GenerateTemporaryPassword()
	if err != nil {
		return nil, "", err
	}

	hash, err := s.hasher.Hash(tempPassword)
	if err != nil {
		return nil, "", oops.Code("AUTH_CREATE_USER_FAILED").
			With("operation", "hash temporary password").
			Wrap(err)
	}
	user.PasswordHash = &hash

	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", oops.Code("AUTH_CREATE_USER_FAILED").
			With("operation", "insert user").
			With("email", email).
			Wrap(err)
	}

	s.recorder.Record(ctx, audit.NewEntry(&user.ID, audit.ActionUserCreated,
		map[string]any{"role": string(role)}, "", ""))

	s.dispatchMail(ctx, mail.KindWelcome, user.Email, map[string]any{
		"temporary_password": tempPassword,
	}, &user.ID)

	return user, tempPassword, nil
}

// TerminateSessions deactivates one session, or all of a user's sessions
// when sessionFingerprint is empty. Returns the number terminated.
func (s *Service) TerminateSessions(ctx context.Context, userID ulid.ULID, sessionFingerprint string) (int64, error) {
	if sessionFingerprint == "" {
		return s.registry.TerminateAll(ctx, userID)
	}
	if err := s.registry.Terminate(ctx, userID, sessionFingerprint); err != nil {
		return 0, err
	}
	return 1, nil
}

// CheckSessionValid reports whether the exact fingerprint is the user's
// current active session.
func (s *Service) CheckSessionValid(ctx context.Context, userID ulid.ULID, sessionFingerprint string) (bool, error) {
	return s.registry.IsSessionValid(ctx, userID, sessionFingerprint)
}

// EnforceSessionLimit trims the user's active sessions down to maxSessions.
func (s *Service) EnforceSessionLimit(ctx context.Context, userID ulid.ULID, maxSessions int) (int64, error) {
	return s.registry.EnforceSessionLimit(ctx, userID, maxSessions)
}

// dispatchMail sends best-effort. Delivery failure never fails the parent
// operation; the payload is surfaced at warn level so an operator can
// recover the secret, and the failure lands in the audit trail.
func (s *Service) dispatchMail(ctx context.Context, kind mail.Kind, recipient string, data map[string]any, actor *ulid.ULID) {
	if err := s.mailer.Send(ctx, kind, recipient, data); err != nil {
		s.logger.Warn("mail delivery failed; payload preserved for operator",
			"kind", string(kind),
			"recipient", recipient,
			"data", data,
			"error", err)
		s.recorder.Record(ctx, audit.NewEntry(actor, audit.ActionMailDeliveryFailed,
			map[string]any{"kind": string(kind)}, "", ""))
		s.metrics.RecordMailFailure()
	}
}
