package safeio

import (
	"path/filepath"
	"strings"
)

// SanitizeContext picks the sanitization policy applied by Sanitize.
type SanitizeContext int

const (
	// ContextOutput strips control characters and terminal-escape
	// introducers, preserving newlines/tabs for multi-line display.
	ContextOutput SanitizeContext = iota
	// ContextLog additionally collapses newlines, keeping log lines atomic.
	ContextLog
	// ContextError additionally elides absolute paths to their basename.
	ContextError
)

const escapeIntroducer = "\x1b"

// Sanitize cleans a string before it crosses a trust boundary (terminal
// output, log line, or error message).
func Sanitize(input string, ctx SanitizeContext) string {
	out := stripControl(input)
	out = strings.ReplaceAll(out, escapeIntroducer, "")

	switch ctx {
	case ContextLog:
		out = collapseNewlines(out)
	case ContextError:
		out = collapseNewlines(out)
		out = elideAbsolutePaths(out)
	}
	return out
}

func stripControl(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r == '\t' || r == '\n' || r == '\r' {
			b.WriteRune(r)
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func collapseNewlines(input string) string {
	input = strings.ReplaceAll(input, "\r\n", " ")
	input = strings.ReplaceAll(input, "\n", " ")
	input = strings.ReplaceAll(input, "\r", " ")
	return input
}

// elideAbsolutePaths replaces any whitespace-delimited token that looks
// like an absolute path with its basename, so error messages never leak a
// user's full directory structure.
func elideAbsolutePaths(input string) string {
	fields := strings.Fields(input)
	for i, f := range fields {
		if filepath.IsAbs(f) || strings.HasPrefix(f, "~/") {
			fields[i] = filepath.Base(f)
		}
	}
	if len(fields) == 0 {
		return input
	}
	return strings.Join(fields, " ")
}
