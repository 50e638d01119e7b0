// Package tokenexpand substitutes date tokens in path/filename patterns
// against a reference instant (§4.1). Pure function, no external
// dependency improves on stdlib string/regexp substitution for this job
// (see DESIGN.md).
package tokenexpand

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var tokenRe = regexp.MustCompile(`(?i)\{(yyyymmdd|yyyy|yy|mm|dd)\}`)

// Expand replaces recognized date tokens in pattern with the zero-padded
// decimal fields of ref, taken in UTC. Tokens are matched case-insensitively.
// A pattern with no tokens is returned unchanged.
func Expand(pattern string, ref time.Time) string {
	if !strings.Contains(pattern, "{") {
		return pattern
	}
	u := ref.UTC()
	return tokenRe.ReplaceAllStringFunc(pattern, func(tok string) string {
		switch strings.ToLower(tok) {
		case "{yyyy}":
			return fmt.Sprintf("%04d", u.Year())
		case "{yy}":
			return fmt.Sprintf("%02d", u.Year()%100)
		case "{mm}":
			return fmt.Sprintf("%02d", int(u.Month()))
		case "{dd}":
			return fmt.Sprintf("%02d", u.Day())
		case "{yyyymmdd}":
			return fmt.Sprintf("%04d%02d%02d", u.Year(), int(u.Month()), u.Day())
		default:
			return tok
		}
	})
}

// HasHostToken reports whether a raw URL-ish pattern places a token inside
// its authority (host) portion, which §4.1's precondition forbids. It is a
// conservative lexical check intended for configuration validation, not a
// general URL parser: it looks for a token between "://" and the next "/".
func HasHostToken(urlPattern string) bool {
	idx := strings.Index(urlPattern, "://")
	if idx < 0 {
		return false
	}
	rest := urlPattern[idx+3:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return strings.Contains(rest, "{")
}
