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

// PasswordResetService drives the forgot-password flow:
// NONE -> CODE_ISSUED -> TOKEN_ISSUED -> NONE.
type PasswordResetService struct {
	users    UserRepository
	registry *DeviceRegistry
	hasher   PasswordHasher
	mailer   mail.Dispatcher
	recorder audit.Recorder
	metrics  MetricsRecorder
	logger   *slog.Logger
}

// NewPasswordResetService creates a PasswordResetService. Users, registry,
// and hasher are required.
func NewPasswordResetService(
	users UserRepository,
	registry *DeviceRegistry,
	hasher PasswordHasher,
	mailer mail.Dispatcher,
	recorder audit.Recorder,
	metrics MetricsRecorder,
	logger *slog.Logger,
) (*PasswordResetService, error) {
	if users == nil {
		return nil, oops.Code("RESET_INVALID_DEPS").Errorf("user repository is required")
	}
	if registry == nil {
		return nil, oops.Code("RESET_INVALID_DEPS").Errorf("device registry is required")
	}
	if hasher == nil {
		return nil, oops.Code("RESET_INVALID_DEPS").Errorf("password hasher is required")
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
	return &PasswordResetService{
		users:    users,
		registry: registry,
		hasher:   hasher,
		mailer:   mailer,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// RequestReset starts a reset flow for the account behind email. The
// response is ok-shaped whether or not the email exists, so callers cannot
// enumerate accounts; for unknown emails nothing is generated or stored.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string, info DeviceInfo) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug("reset requested for unknown email")
			return nil
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	return s.issueCode(ctx, user, 0, audit.ActionResetRequested, info)
}

// ResendCode issues a fresh code within an open CODE_ISSUED challenge.
// Fails with ErrRateLimited once MaxResendCount resends are spent and with
// ErrInvalidOrExpired when no code challenge is open. Unknown emails are
// ok-shaped, as in RequestReset.
func (s *PasswordResetService) ResendCode(ctx context.Context, email string, info DeviceInfo) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug("resend requested for unknown email")
			return nil
		}
		return oops.Code("RESET_RESEND_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	if user.Challenge.Stage != StageCodeIssued {
		s.metrics.RecordReset("code_resent", "rejected")
		return oops.Code("RESET_NO_OPEN_CHALLENGE").Wrap(ErrInvalidOrExpired)
	}
	if !user.Challenge.CanResend() {
		s.metrics.RecordReset("code_resent", "rate_limited")
		return oops.Code("RESET_RATE_LIMITED").
			With("attempts", user.Challenge.Attempts).
			Wrap(ErrRateLimited)
	}

	return s.issueCode(ctx, user, user.Challenge.Attempts+1, audit.ActionResetCodeResent, info)
}

// issueCode generates, stores, and dispatches a reset code with the given
// resend count.
func (s *PasswordResetService) issueCode(ctx context.Context, user *User, attempts int, action audit.Action, info DeviceInfo) error {
	code, codeHash, err := GenerateResetCode()
	if err != nil {
		return err
	}

	expiresAt := time.Now().Add(ResetCodeExpiry)
	challenge := NewCodeChallenge(codeHash, expiresAt, attempts)
	if err := s.users.SetChallenge(ctx, user.ID, challenge); err != nil {
		return oops.Code("RESET_STORE_FAILED").
			With("operation", "store code challenge").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.recorder.Record(ctx, audit.NewEntry(&user.ID, action,
		map[string]any{"attempts": attempts}, info.IPAddress, info.UserAgent))

	stage := "code_issued"
	if action == audit.ActionResetCodeResent {
		stage = "code_resent"
	}
	s.metrics.RecordReset(stage, "ok")

	s.dispatchMail(ctx, user, map[string]any{
		"code":            code,
		"expires_minutes": int(ResetCodeExpiry.Minutes()),
	})
	return nil
}

// VerifyCode checks a reset code and, on success, atomically replaces it
// with a single-use verification token. The plaintext token is returned to
// the caller; a replayed code fails because the challenge has moved on.
func (s *PasswordResetService) VerifyCode(ctx context.Context, email, code string) (string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", oops.Code("RESET_CODE_INVALID").Wrap(ErrInvalidOrExpired)
		}
		return "", oops.Code("RESET_VERIFY_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	c := user.Challenge
	if c.Stage != StageCodeIssued || c.IsExpiredAt(time.Now()) || !c.Matches(code) {
		s.metrics.RecordReset("token_issued", "rejected")
		return "", oops.Code("RESET_CODE_INVALID").Wrap(ErrInvalidOrExpired)
	}

	token, tokenHash, err := GenerateVerificationToken()
	if err != nil {
		return "", err
	}

	challenge := NewTokenChallenge(tokenHash, time.Now().Add(ResetTokenExpiry))
	if err := s.users.SetChallenge(ctx, user.ID, challenge); err != nil {
		return "", oops.Code("RESET_STORE_FAILED").
			With("operation", "store token challenge").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.recorder.Record(ctx, audit.NewEntry(&user.ID, audit.ActionResetCodeVerified, nil, "", ""))
	s.metrics.RecordReset("token_issued", "ok")
	return token, nil
}

// ResetPassword finishes the flow: the verification token authorizes the
// password write. On success the challenge is cleared, the first-login flag
// drops, and every session for the user is terminated - recovery must assume
// the previous holder is untrusted.
func (s *PasswordResetService) ResetPassword(ctx context.Context, email, token, newPassword string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidOrExpired)
		}
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	c := user.Challenge
	if c.Stage != StageTokenIssued || c.IsExpiredAt(time.Now()) || !c.Matches(token) {
		s.metrics.RecordReset("completed", "rejected")
		return oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidOrExpired)
	}

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user.PasswordHash = &hash
	user.IsFirstLogin = false
	user.Challenge = NoChallenge()
	if user.Status == StatusPendingPasswordReset {
		user.Status = StatusActive
	}
	user.UpdatedAt = time.Now()

	if err := s.users.Update(ctx, user); err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "store password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	terminated, err := s.registry.TerminateAll(ctx, user.ID)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "terminate sessions").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.recorder.Record(ctx, audit.NewEntry(&user.ID, audit.ActionResetCompleted,
		map[string]any{"terminated_sessions": terminated}, "", ""))
	s.metrics.RecordReset("completed", "ok")
	s.metrics.RecordSessionsTerminated("password_reset", terminated)
	return nil
}

// dispatchMail sends the reset code best-effort. A delivery failure never
// rolls back the challenge; the code is preserved at warn level so an
// operator can relay it, and the failure is audited.
func (s *PasswordResetService) dispatchMail(ctx context.Context, user *User, data map[string]any) {
	if err := s.mailer.Send(ctx, mail.KindPasswordResetCode, user.Email, data); err != nil {
		s.logger.Warn("reset code delivery failed; payload preserved for operator",
			"recipient", user.Email,
			"data", data,
			"error", err)
		s.recorder.Record(ctx, audit.NewEntry(userIDPtr(user), audit.ActionMailDeliveryFailed,
			map[string]any{"kind": string(mail.KindPasswordResetCode)}, "", ""))
		s.metrics.RecordMailFailure()
	}
}

func userIDPtr(u *User) *ulid.ULID {
	if u == nil {
		return nil
	}
	return &u.ID
}
