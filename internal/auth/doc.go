// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package auth provides the credential and session core of Gatehouse.
//
// # Domain Types
//
// Domain types (User, DeviceSession, ResetChallenge) should be created
// using their respective constructors:
//   - NewUser - creates a User with a validated email address
//   - NewDeviceSession - creates a DeviceSession with derived fingerprints
//   - NewCodeChallenge / NewTokenChallenge - create reset challenge states
//
// Direct struct initialization bypasses validation and may create invalid
// state. Repository implementations receive pre-validated types from these
// constructors.
//
// # Services
//
// Service types coordinate domain operations:
//   - Service - login, password change, session termination
//   - DeviceRegistry - single-active-session enforcement over device rows
//   - PasswordResetService - code/token password recovery flow
//
// Services are created with New*Service constructors that validate
// dependencies.
package auth
