// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, display_name, password_hash, role, status,
	       is_first_login, last_login_at,
	       reset_stage, reset_secret_hash, reset_expires_at, reset_attempts,
	       created_at, updated_at`

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	c := user.Challenge
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (
			id, email, display_name, password_hash, role, status,
			is_first_login, last_login_at,
			reset_stage, reset_secret_hash, reset_expires_at, reset_attempts,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		user.ID.String(),
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		string(user.Role),
		string(user.Status),
		user.IsFirstLogin,
		user.LastLoginAt,
		string(c.Stage),
		nullIfEmpty(c.SecretHash),
		nullIfZeroTime(c.ExpiresAt),
		c.Attempts,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("USER_EMAIL_TAKEN").
				With("email", user.Email).
				Wrap(err)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	return user, nil
}

// Update updates an existing user, including challenge state.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	c := user.Challenge
	result, err := r.db.Exec(ctx, `
		UPDATE users SET
			email = $2, display_name = $3, password_hash = $4,
			role = $5, status = $6, is_first_login = $7, last_login_at = $8,
			reset_stage = $9, reset_secret_hash = $10,
			reset_expires_at = $11, reset_attempts = $12,
			updated_at = $13
		WHERE id = $1
	`,
		user.ID.String(),
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		string(user.Role),
		string(user.Status),
		user.IsFirstLogin,
		user.LastLoginAt,
		string(c.Stage),
		nullIfEmpty(c.SecretHash),
		nullIfZeroTime(c.ExpiresAt),
		c.Attempts,
		user.UpdatedAt,
	)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", user.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdatePassword stores a new password hash, optionally clearing the
// first-login flag in the same statement.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string, clearFirstLogin bool) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET
			password_hash = $2,
			is_first_login = is_first_login AND NOT $3,
			updated_at = NOW()
		WHERE id = $1
	`, id.String(), passwordHash, clearFirstLogin)
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update password hash").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// SetLastLogin stamps the last successful login time.
func (r *UserRepository) SetLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET last_login_at = $2, updated_at = NOW()
		WHERE id = $1
	`, id.String(), at)
	if err != nil {
		return oops.Code("USER_SET_LAST_LOGIN_FAILED").
			With("operation", "stamp last login").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// SetChallenge persists the reset challenge state for a user.
func (r *UserRepository) SetChallenge(ctx context.Context, id ulid.ULID, challenge auth.ResetChallenge) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET
			reset_stage = $2, reset_secret_hash = $3,
			reset_expires_at = $4, reset_attempts = $5,
			updated_at = NOW()
		WHERE id = $1
	`,
		id.String(),
		string(challenge.Stage),
		nullIfEmpty(challenge.SecretHash),
		nullIfZeroTime(challenge.ExpiresAt),
		challenge.Attempts,
	)
	if err != nil {
		return oops.Code("USER_SET_CHALLENGE_FAILED").
			With("operation", "store reset challenge").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// ClearExpiredChallenges resets reset-challenge state on every user whose
// open challenge expired before now. Returns the number of rows cleared.
// Expired challenges already fail verification; this keeps stale secret
// hashes from lingering in the table.
func (r *UserRepository) ClearExpiredChallenges(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET
			reset_stage = 'NONE', reset_secret_hash = NULL,
			reset_expires_at = NULL, reset_attempts = 0,
			updated_at = NOW()
		WHERE reset_stage <> 'NONE' AND reset_expires_at < $1
	`, now)
	if err != nil {
		return 0, oops.Code("USER_CHALLENGE_SWEEP_FAILED").
			With("operation", "clear expired reset challenges").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// Delete removes a user. Device sessions cascade via the foreign key.
func (r *UserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("USER_DELETE_FAILED").
			With("operation", "delete user").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr       string
		email       string
		displayName *string
		hash        *string
		role        string
		status      string
		firstLogin  bool
		lastLogin   *time.Time
		stage       string
		secretHash  *string
		expiresAt   *time.Time
		attempts    int
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := row.Scan(&idStr, &email, &displayName, &hash, &role, &status,
		&firstLogin, &lastLogin, &stage, &secretHash, &expiresAt, &attempts,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}

	challenge := auth.ResetChallenge{
		Stage:    auth.ChallengeStage(stage),
		Attempts: attempts,
	}
	if secretHash != nil {
		challenge.SecretHash = *secretHash
	}
	if expiresAt != nil {
		challenge.ExpiresAt = *expiresAt
	}

	return &auth.User{
		ID:           id,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         auth.Role(role),
		Status:       auth.Status(status),
		IsFirstLogin: firstLogin,
		LastLoginAt:  lastLogin,
		Challenge:    challenge,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
