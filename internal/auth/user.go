// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role identifies the privilege level of an account.
type Role string

// Account roles.
const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Status identifies the lifecycle state of an account.
type Status string

// Account statuses. Only ACTIVE accounts may log in.
const (
	StatusActive               Status = "ACTIVE"
	StatusSuspended            Status = "SUSPENDED"
	StatusPendingPasswordReset Status = "PENDING_PASSWORD_RESET"
)

// MaxEmailLength bounds stored email addresses.
const MaxEmailLength = 254

// emailRegex is a pragmatic syntax check; deliverability is the mail
// transport's problem.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// User represents an account.
type User struct {
	ID           ulid.ULID
	Email        string
	DisplayName  *string
	PasswordHash *string // nil until the first admin-issued password
	Role         Role
	Status       Status
	IsFirstLogin bool
	LastLoginAt  *time.Time
	Challenge    ResetChallenge
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser creates a validated User with no password set. New accounts start
// ACTIVE with the first-login flag raised; the admin-issued temporary
// password is stored separately by the caller.
func NewUser(email string, displayName *string, role Role) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if role != RoleUser && role != RoleAdmin {
		return nil, oops.Code("AUTH_INVALID_ROLE").
			With("role", string(role)).
			Errorf("unknown role %q", role)
	}

	now := time.Now()
	return &User{
		ID:           ulid.Make(),
		Email:        email,
		DisplayName:  displayName,
		Role:         role,
		Status:       StatusActive,
		IsFirstLogin: true,
		Challenge:    NoChallenge(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ValidateEmail validates an email address for storage.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code("AUTH_INVALID_EMAIL").
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	if !emailRegex.MatchString(email) {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email address is malformed")
	}
	return nil
}

// HasPassword reports whether a password has ever been set.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// Projection is the stable user shape returned to callers. It never carries
// the password hash or reset challenge.
type Projection struct {
	ID          ulid.ULID
	Email       string
	DisplayName *string
	Role        Role
	Status      Status
	LastLoginAt *time.Time
}

// Project returns the caller-safe projection of the user.
func (u *User) Project() Projection {
	return Projection{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		Status:      u.Status,
		LastLoginAt: u.LastLoginAt,
	}
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Update updates an existing user, including challenge state.
	Update(ctx context.Context, user *User) error

	// UpdatePassword stores a new password hash and optionally clears the
	// first-login flag in the same statement.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string, clearFirstLogin bool) error

	// SetLastLogin stamps the last successful login time.
	SetLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error

	// SetChallenge persists the reset challenge state for a user.
	SetChallenge(ctx context.Context, id ulid.ULID, challenge ResetChallenge) error

	// Delete removes a user. Device sessions cascade in the store.
	Delete(ctx context.Context, id ulid.ULID) error
}
