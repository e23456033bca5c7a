package util

import (
	"strconv"
	"strings"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// Truncate cuts s to at most n runes, appending "..." when it had to cut.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// Mask keeps the last keep characters of a secret and stars out the rest.
func Mask(secret string, keep int) string {
	if len(secret) <= keep {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-keep) + secret[len(secret)-keep:]
}
