// Package extract provides pattern-based entity extraction over a single
// chat message: phone numbers, email addresses, and agency service names.
// All functions are pure; a non-match is a normal outcome, not an error.
package extract

import (
	"regexp"
	"strings"
)

var (
	// Phone numbers: optional leading +, then digits with interior spaces or
	// hyphens. Candidates are validated to carry at least 9 digits so short
	// numerals ("room 42") don't trip the matcher.
	phonePattern = regexp.MustCompile(`\+?\d[\d\s\-]{8,}\d`)

	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
)

const minPhoneDigits = 9

// services is the agency's offering vocabulary, ordered longest-first so a
// message mentioning "performance marketing" is not tagged as plain
// "marketing".
var services = []string{
	"Performance Marketing",
	"Social Media",
	"Web Design",
	"Branding",
	"Marketing",
	"SEO",
	"Ads",
}

// Entities is the result of scanning one user message. Empty fields mean no
// match.
type Entities struct {
	Phone   string
	Email   string
	Service string
}

// Any reports whether the scan found at least one entity.
func (e Entities) Any() bool {
	return e.Phone != "" || e.Email != "" || e.Service != ""
}

// Scan runs all extractors over the message. The extractors are independent;
// a message may yield zero, one, or all three entities.
func Scan(text string) Entities {
	return Entities{
		Phone:   Phone(text),
		Email:   Email(text),
		Service: Service(text),
	}
}

// Phone returns the first phone-shaped token in the message, or "".
func Phone(text string) string {
	for _, candidate := range phonePattern.FindAllString(text, -1) {
		if digitCount(candidate) >= minPhoneDigits {
			return strings.TrimSpace(candidate)
		}
	}
	return ""
}

// Email returns the first email address in the message, or "".
func Email(text string) string {
	return emailPattern.FindString(text)
}

// Service returns the first service from the agency vocabulary whose name
// appears in the message, matched case-insensitively, or "".
func Service(text string) string {
	lowered := strings.ToLower(text)
	for _, svc := range services {
		if strings.Contains(lowered, strings.ToLower(svc)) {
			return svc
		}
	}
	return ""
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
