// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-securekey.
//
// go-securekey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package validation checks user-supplied input before it is sent to the
// secure key service.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MaxKeyNameLength bounds auth key names.
	MaxKeyNameLength = 255

	// MaxChallengeLength bounds sign challenges.
	MaxChallengeLength = 4096
)

// keyNamePattern matches safe auth key names
var keyNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)

// ValidateKeyName validates an auth key name.
// Rejects empty names, null bytes, control characters, over-long names
// and anything outside a-z, A-Z, 0-9, '-', '_' and '.'.
func ValidateKeyName(name string) error {
	if name == "" {
		return fmt.Errorf("key name cannot be empty")
	}

	if strings.Contains(name, "\x00") {
		return fmt.Errorf("key name contains null byte")
	}

	// Check length before the pattern (prevent ReDoS)
	if len(name) > MaxKeyNameLength {
		return fmt.Errorf("key name too long (max %d characters)", MaxKeyNameLength)
	}

	for _, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("key name contains control characters")
		}
	}

	if name == "." || name == ".." {
		return fmt.Errorf("key name cannot be %q", name)
	}

	if !keyNamePattern.MatchString(name) {
		return fmt.Errorf("key name contains invalid characters (allowed: a-z, A-Z, 0-9, -, _, .)")
	}

	return nil
}

// ValidateChallenge validates a sign challenge. Any printable text is
// accepted.
func ValidateChallenge(challenge string) error {
	if challenge == "" {
		return fmt.Errorf("challenge cannot be empty")
	}
	if len(challenge) > MaxChallengeLength {
		return fmt.Errorf("challenge too long (max %d bytes)", MaxChallengeLength)
	}
	if strings.Contains(challenge, "\x00") {
		return fmt.Errorf("challenge contains null byte")
	}
	return nil
}

// SanitizeForLog sanitizes a string for safe logging (prevents log injection).
func SanitizeForLog(s string) string {
	// Remove control characters and null bytes
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)

	// Limit length to prevent log flooding
	if len(s) > 1000 {
		s = s[:1000] + "...[truncated]"
	}

	return s
}
