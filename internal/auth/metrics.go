// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

// MetricsRecorder receives operational counters from the services. The
// observability package's Metrics satisfies it; a nil recorder disables
// counting.
type MetricsRecorder interface {
	// RecordLogin counts a login attempt with outcome "success" or
	// "failure".
	RecordLogin(outcome string)

	// RecordSessionsTerminated counts sessions terminated for a reason
	// such as "login_takeover" or "password_reset".
	RecordSessionsTerminated(reason string, count int64)

	// RecordReset counts a password-reset operation by stage
	// ("code_issued", "code_resent", "token_issued", "completed") and
	// outcome ("ok", "rejected", "rate_limited").
	RecordReset(stage, outcome string)

	// RecordMailFailure counts a failed mail dispatch.
	RecordMailFailure()
}

type nopMetrics struct{}

func (nopMetrics) RecordLogin(string)                     {}
func (nopMetrics) RecordSessionsTerminated(string, int64) {}
func (nopMetrics) RecordReset(string, string)             {}
func (nopMetrics) RecordMailFailure()                     {}
