// Package core provides the domain model of the time-entry engine.
//
// This file contains the application identity canonicalizer used as the
// lookup key for classification rules and as the time-lapse grouping key.
package core

import "strings"

// UnknownApp is the canonical name for a missing or blank application.
const UnknownApp = "unknown"

// NormalizeAppName converts a raw application identifier reported by the
// tracking agent into its canonical form.
//
// Only the final path segment is kept (backslash first, then slash, so mixed
// Windows/Unix paths work), the value is lower-cased, ".exe" is removed
// wherever it appears (first occurrence first, repeated until none is left so
// the result is a fixed point) and surrounding whitespace is trimmed. The
// function is total and idempotent and never returns an empty string.
//
// Examples:
//
//	NormalizeAppName(`C:\Windows\System32\notepad.exe`) -> "notepad"
//	NormalizeAppName("/usr/bin/code")                   -> "code"
//	NormalizeAppName("Code.exe")                        -> "code"
//	NormalizeAppName("")                                -> "unknown"
func NormalizeAppName(raw string) string {
	if raw == "" {
		return UnknownApp
	}
	name := lastSegment(raw, `\`)
	name = lastSegment(name, "/")
	name = strings.ToLower(name)
	for strings.Contains(name, ".exe") {
		name = strings.Replace(name, ".exe", "", 1)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return UnknownApp
	}
	return name
}

func lastSegment(s, sep string) string {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[i+len(sep):]
	}
	return s
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
