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

package validation

import (
	"strings"
	"testing"
)

func TestValidateKeyName(t *testing.T) {
	tests := []struct {
		name    string
		keyName string
		wantErr bool
	}{
		// Valid names
		{"valid alphanumeric", "login123", false},
		{"valid with dash", "web-login", false},
		{"valid with underscore", "web_login", false},
		{"valid with dot", "app.production.login", false},
		{"valid single char", "a", false},
		{"valid max length", strings.Repeat("k", MaxKeyNameLength), false},

		// Invalid names
		{"empty string", "", true},
		{"null byte", "key\x00name", true},
		{"too long", strings.Repeat("k", MaxKeyNameLength+1), true},
		{"control character", "key\nname", true},
		{"delete character", "key\x7fname", true},
		{"dot", ".", true},
		{"double dot", "..", true},
		{"slash", "a/b", true},
		{"space", "my key", true},
		{"semicolon", "key;name", true},
		{"unicode", "clé", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKeyName(tt.keyName)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateKeyName(%q) error = %v, wantErr %v", tt.keyName, err, tt.wantErr)
			}
		})
	}
}

func TestValidateChallenge(t *testing.T) {
	tests := []struct {
		name      string
		challenge string
		wantErr   bool
	}{
		{"nonce", "3f2a9c", false},
		{"with spaces", "sign in to example.com", false},
		{"unicode", "défi", false},
		{"max length", strings.Repeat("c", MaxChallengeLength), false},
		{"empty", "", true},
		{"too long", strings.Repeat("c", MaxChallengeLength+1), true},
		{"null byte", "abc\x00", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChallenge(tt.challenge)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateChallenge(%q) error = %v, wantErr %v", tt.challenge, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"clean", "login", "login"},
		{"newline", "login\nfake entry", "loginfake entry"},
		{"null byte", "a\x00b", "ab"},
		{"truncated", strings.Repeat("x", 1001), strings.Repeat("x", 1000) + "...[truncated]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeForLog(tt.input); got != tt.want {
				t.Errorf("SanitizeForLog() = %q, want %q", got, tt.want)
			}
		})
	}
}
