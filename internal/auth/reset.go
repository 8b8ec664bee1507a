// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/samber/oops"
)

// Reset challenge configuration.
const (
	ResetCodeDigits  = 6                // emailed numeric code length
	ResetCodeExpiry  = 10 * time.Minute // code lifetime
	ResetTokenBytes  = 32               // 32 bytes = 64 hex chars
	ResetTokenExpiry = 15 * time.Minute // verification token lifetime
	MaxResendCount   = 2                // resends after the initial code
)

// ChallengeStage is the closed state set of the reset flow.
type ChallengeStage string

// Challenge stages. NONE -> CODE_ISSUED -> TOKEN_ISSUED -> NONE.
const (
	StageNone        ChallengeStage = "NONE"
	StageCodeIssued  ChallengeStage = "CODE_ISSUED"
	StageTokenIssued ChallengeStage = "TOKEN_ISSUED"
)

// ResetChallenge carries the current reset state for a user. Modeling the
// nullable reset columns as a tagged state set rules out a leftover code
// coexisting with a token.
type ResetChallenge struct {
	Stage      ChallengeStage
	SecretHash string // SHA-256 of the code or token, never the plaintext
	ExpiresAt  time.Time
	Attempts   int // resends consumed while in CODE_ISSUED
}

// NoChallenge returns the empty challenge state.
func NoChallenge() ResetChallenge {
	return ResetChallenge{Stage: StageNone}
}

// NewCodeChallenge returns a CODE_ISSUED challenge for the given code hash.
func NewCodeChallenge(codeHash string, expiresAt time.Time, attempts int) ResetChallenge {
	return ResetChallenge{
		Stage:      StageCodeIssued,
		SecretHash: codeHash,
		ExpiresAt:  expiresAt,
		Attempts:   attempts,
	}
}

// NewTokenChallenge returns a TOKEN_ISSUED challenge for the given token hash.
// The resend counter does not survive the stage transition.
func NewTokenChallenge(tokenHash string, expiresAt time.Time) ResetChallenge {
	return ResetChallenge{
		Stage:      StageTokenIssued,
		SecretHash: tokenHash,
		ExpiresAt:  expiresAt,
	}
}

// IsExpiredAt reports whether the challenge has expired at the given time.
// A NONE challenge is always treated as expired.
func (c ResetChallenge) IsExpiredAt(t time.Time) bool {
	if c.Stage == StageNone {
		return true
	}
	return t.After(c.ExpiresAt)
}

// CanResend reports whether another code may be issued in this challenge.
func (c ResetChallenge) CanResend() bool {
	return c.Stage == StageCodeIssued && c.Attempts < MaxResendCount
}

// Matches verifies a plaintext secret against the stored hash in constant
// time. The stage gate is the caller's responsibility.
func (c ResetChallenge) Matches(secret string) bool {
	if secret == "" || c.SecretHash == "" {
		return false
	}
	computed := HashResetSecret(secret)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(c.SecretHash)) == 1
}

// GenerateResetCode creates a zero-padded numeric code and its hash.
// Returns (plaintext_code, sha256_hash, error). The plaintext goes out by
// email; only the hash is stored.
func GenerateResetCode() (code, hash string, err error) {
	var buf [8]byte
	if _, err = rand.Read(buf[:]); err != nil {
		return "", "", oops.Code("RESET_CODE_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			Wrap(err)
	}

	// Modulo bias over a 64-bit sample is negligible for a 6-digit space.
	n := binary.BigEndian.Uint64(buf[:]) % 1_000_000
	code = fmt.Sprintf("%0*d", ResetCodeDigits, n)
	return code, HashResetSecret(code), nil
}

// GenerateVerificationToken creates the second-stage opaque token and its
// hash. Returns (plaintext_token, sha256_hash, error).
func GenerateVerificationToken() (token, hash string, err error) {
	buf := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", ResetTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(buf)
	return token, HashResetSecret(token), nil
}

// HashResetSecret computes the SHA-256 hash of a reset code or token.
func HashResetSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}
