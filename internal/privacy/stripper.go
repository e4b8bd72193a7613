// Package privacy redacts private regions and credentials from text before
// it is written to the event feed.
package privacy

import (
	"regexp"
	"strings"
)

const (
	// PrivateMarker replaces a <private>...</private> region.
	PrivateMarker = "[private]"
	// SecretMarker replaces a recognized credential.
	SecretMarker = "[redacted]"
)

var (
	// privateTagRegex matches <private>...</private> tags
	privateTagRegex = regexp.MustCompile(`(?s)<private>.*?</private>`)

	secretPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bsk-(?:ant-)?[A-Za-z0-9_-]{16,}`),
		regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{30,}`),
		regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
		regexp.MustCompile(`\bxox[abprs]-[A-Za-z0-9-]{10,}`),
		regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]{16,}`),
	}

	// assignments keep the key and hide the value: password=hunter2 -> password=[redacted]
	assignmentRegex = regexp.MustCompile(`(?i)\b((?:api[_-]?key|secret|token|password|passwd)\s*[:=]\s*)("[^"]*"|'[^']*'|[^\s,;]+)`)
)

// StripPrivateTags replaces every <private>...</private> region with PrivateMarker.
func StripPrivateTags(text string) string {
	return privateTagRegex.ReplaceAllString(text, PrivateMarker)
}

// RedactSecrets replaces recognized tokens and key=value credentials.
func RedactSecrets(text string) string {
	for _, re := range secretPatterns {
		text = re.ReplaceAllString(text, SecretMarker)
	}
	return assignmentRegex.ReplaceAllString(text, "${1}"+SecretMarker)
}

// IsEntirelyPrivate checks if the text is entirely within <private> tags.
func IsEntirelyPrivate(text string) bool {
	stripped := privateTagRegex.ReplaceAllString(text, "")
	return strings.TrimSpace(text) != "" && strings.TrimSpace(stripped) == ""
}

// Clean applies both redactions. Use it on anything copied into the feed.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	return RedactSecrets(StripPrivateTags(text))
}
