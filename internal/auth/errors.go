// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import "errors"

// Sentinel errors for the public operation surface. Callers branch with
// errors.Is; the wrapping oops errors carry codes and context for logging.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials is returned for unknown emails, accounts without
	// a password, and wrong passwords alike, so responses never reveal
	// whether an email is registered.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrAccountDisabled is returned when the account status is not ACTIVE.
	ErrAccountDisabled = errors.New("account is disabled")

	// ErrInvalidOrExpired is returned when a reset code or verification
	// token does not match, has expired, or was already consumed.
	ErrInvalidOrExpired = errors.New("code or token is invalid or expired")

	// ErrRateLimited is returned when the resend attempt budget is spent.
	ErrRateLimited = errors.New("too many resend attempts")

	// ErrWeakPassword is returned when a new password fails the policy.
	ErrWeakPassword = errors.New("password does not meet the password policy")
)
