package util

import (
	"net/mail"
	"strings"
)

// NormalizeEmail trims whitespace and lowercases the domain part. The
// local part is kept as-is; RFC 5321 leaves its case to the receiver.
func NormalizeEmail(raw string) string {
	s := strings.TrimSpace(raw)
	at := strings.LastIndexByte(s, '@')
	if at < 0 {
		return s
	}

	return s[:at+1] + strings.ToLower(s[at+1:])
}

// ValidEmail reports whether s is a syntactically valid, bare address
// (no display name).
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}

	return addr.Address == s
}
