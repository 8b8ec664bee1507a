// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package fingerprint derives stable device and session identifiers from
// request metadata.
//
// Two granularities exist on purpose. The device fingerprint hashes the
// browser and OS family without versions, so auto-updates and multiple tabs
// of the same browser collide into one device identity. The session
// fingerprint hashes the full user-agent string, so distinct browser
// processes on the same machine stay distinct login instances.
//
// Both identifiers are SHA-256 digests rather than reversible encodings so
// raw user-agent strings and IP addresses never appear in stored keys.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	ua "github.com/mileusna/useragent"
)

// separator joins fingerprint inputs before hashing. Fixed forever; changing
// it would orphan every stored session.
const separator = "|"

// Device type labels.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// Classification is the coarse device class derived from a user-agent.
type Classification struct {
	Browser    string // family without version, e.g. "Chrome"
	OS         string // family without version, e.g. "macOS"
	DeviceType string // desktop, mobile, tablet, bot, unknown
}

// Classify parses a user-agent string into a device classification.
// An empty or unparseable user-agent yields empty families and an unknown
// device type, never an error.
func Classify(userAgent string) Classification {
	if strings.TrimSpace(userAgent) == "" {
		return Classification{DeviceType: DeviceUnknown}
	}

	parsed := ua.Parse(userAgent)
	c := Classification{
		Browser: parsed.Name,
		OS:      parsed.OS,
	}

	switch {
	case parsed.Bot:
		c.DeviceType = DeviceBot
	case parsed.Tablet:
		c.DeviceType = DeviceTablet
	case parsed.Mobile:
		c.DeviceType = DeviceMobile
	case parsed.Desktop:
		c.DeviceType = DeviceDesktop
	default:
		c.DeviceType = DeviceUnknown
	}

	return c
}

// Device computes the coarse device fingerprint from an IP address and
// browser/OS families. Missing inputs are empty strings.
func Device(ip, browser, os string) string {
	return digest(ip, browser, os)
}

// Session computes the fine session fingerprint from the full user-agent
// string and IP address. This is the unique key of a login instance.
func Session(userAgent, ip string) string {
	return digest(userAgent, ip)
}

func digest(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, separator)))
	return hex.EncodeToString(h[:])
}
