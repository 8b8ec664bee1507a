// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package fingerprint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gatehouse/gatehouse/internal/fingerprint"
)

const (
	chromeMacUA    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	chromeMacOldUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"
	iphoneUA       = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	ipadUA         = "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	googlebotUA    = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		userAgent   string
		wantBrowser string
		wantType    string
	}{
		{"desktop chrome", chromeMacUA, "Chrome", fingerprint.DeviceDesktop},
		{"iphone safari", iphoneUA, "Safari", fingerprint.DeviceMobile},
		{"ipad safari", ipadUA, "Safari", fingerprint.DeviceTablet},
		{"crawler", googlebotUA, "Googlebot", fingerprint.DeviceBot},
		{"empty", "", "", fingerprint.DeviceUnknown},
		{"whitespace only", "   ", "", fingerprint.DeviceUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := fingerprint.Classify(tt.userAgent)
			assert.Equal(t, tt.wantBrowser, c.Browser)
			assert.Equal(t, tt.wantType, c.DeviceType)
		})
	}
}

func TestSession(t *testing.T) {
	t.Run("deterministic for identical inputs", func(t *testing.T) {
		assert.Equal(t,
			fingerprint.Session(chromeMacUA, "10.0.0.1"),
			fingerprint.Session(chromeMacUA, "10.0.0.1"))
	})

	t.Run("version bump changes the session identity", func(t *testing.T) {
		assert.NotEqual(t,
			fingerprint.Session(chromeMacUA, "10.0.0.1"),
			fingerprint.Session(chromeMacOldUA, "10.0.0.1"))
	})

	t.Run("ip change changes the session identity", func(t *testing.T) {
		assert.NotEqual(t,
			fingerprint.Session(chromeMacUA, "10.0.0.1"),
			fingerprint.Session(chromeMacUA, "10.0.0.2"))
	})

	t.Run("output is a hex digest, never the raw inputs", func(t *testing.T) {
		fp := fingerprint.Session(chromeMacUA, "10.0.0.1")
		assert.Len(t, fp, 64)
		assert.NotContains(t, fp, "Mozilla")
		assert.NotContains(t, fp, "10.0.0.1")
	})
}

func TestDevice(t *testing.T) {
	t.Run("version bump keeps the device identity", func(t *testing.T) {
		newer := fingerprint.Classify(chromeMacUA)
		older := fingerprint.Classify(chromeMacOldUA)

		// Families without versions: an auto-updated browser is still the
		// same device.
		assert.Equal(t,
			fingerprint.Device("10.0.0.1", newer.Browser, newer.OS),
			fingerprint.Device("10.0.0.1", older.Browser, older.OS))
	})

	t.Run("differs from the session fingerprint for the same request", func(t *testing.T) {
		c := fingerprint.Classify(chromeMacUA)
		assert.NotEqual(t,
			fingerprint.Device("10.0.0.1", c.Browser, c.OS),
			fingerprint.Session(chromeMacUA, "10.0.0.1"))
	})

	t.Run("field boundaries are unambiguous", func(t *testing.T) {
		// "ab"+"c" vs "a"+"bc" must not collide thanks to the separator.
		assert.NotEqual(t,
			fingerprint.Device("ab", "c", ""),
			fingerprint.Device("a", "bc", ""))
	})
}
