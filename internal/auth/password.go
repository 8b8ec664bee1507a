// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"crypto/rand"
	"math/big"
	"unicode"

	"github.com/samber/oops"
)

// Temporary password configuration.
const (
	// TempPasswordLength is the length of admin-issued temporary passwords.
	TempPasswordLength = 12

	// tempPasswordAlphabet excludes visually ambiguous characters
	// (0/O, 1/l/I) so operators can read a password over the phone.
	tempPasswordAlphabet = "23456789abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// GenerateTemporaryPassword creates a temporary password from a
// cryptographically secure source. Every secret in Gatehouse draws from
// crypto/rand; there is no fast-path generator.
func GenerateTemporaryPassword() (string, error) {
	max := big.NewInt(int64(len(tempPasswordAlphabet)))
	buf := make([]byte, TempPasswordLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", oops.Code("AUTH_TEMP_PASSWORD_FAILED").
				With("operation", "crypto/rand.Int").
				Wrap(err)
		}
		buf[i] = tempPasswordAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// ValidatePassword enforces the server-side password policy: at least
// MinPasswordLength characters with an upper-case letter, a lower-case
// letter, and a digit. Returns ErrWeakPassword wrapped with the failed rule.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return oops.Code("AUTH_WEAK_PASSWORD").
			With("rule", "min_length").
			With("min", MinPasswordLength).
			Wrap(ErrWeakPassword)
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	switch {
	case !hasUpper:
		return oops.Code("AUTH_WEAK_PASSWORD").With("rule", "upper_case").Wrap(ErrWeakPassword)
	case !hasLower:
		return oops.Code("AUTH_WEAK_PASSWORD").With("rule", "lower_case").Wrap(ErrWeakPassword)
	case !hasDigit:
		return oops.Code("AUTH_WEAK_PASSWORD").With("rule", "digit").Wrap(ErrWeakPassword)
	}

	return nil
}
