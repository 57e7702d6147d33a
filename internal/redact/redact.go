// Package redact removes sensitive substrings from assistant output before
// it is sent to chat. Sanitize is deterministic and pure.
package redact

import (
	"regexp"
	"strings"
)

// Placeholder replaces every detected sensitive span.
const Placeholder = "[redacted]"

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`)
	ipRe    = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
)

// Result is the outcome of a Sanitize call.
type Result struct {
	Content  string
	Redacted bool
}

// Sanitize replaces email-like, phone-like, and IP-like substrings with
// Placeholder and trims incidental surrounding whitespace. Redacted is true
// when at least one span was replaced.
func Sanitize(text string) Result {
	out := text
	redacted := false
	for _, re := range []*regexp.Regexp{emailRe, phoneRe, ipRe} {
		if re.MatchString(out) {
			out = re.ReplaceAllString(out, Placeholder)
			redacted = true
		}
	}
	return Result{Content: strings.TrimSpace(out), Redacted: redacted}
}
