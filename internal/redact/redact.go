package redact

import (
	"regexp"
	"unicode/utf8"
)

// Scripts and command output pass through here before they reach the audit
// log: a generated script may embed a key, and `env` or `cat ~/.netrc`
// output certainly will.
var sensitivePatterns = []*regexp.Regexp{
	// LLM provider keys
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),
	regexp.MustCompile(`gsk_[A-Za-z0-9]{32,}`),
	regexp.MustCompile(`sk-(proj-)?[A-Za-z0-9_-]{32,}`),

	// AWS
	regexp.MustCompile(`(?i)(aws_access_key_id|aws_secret_access_key|aws_session_token)\s*[=:]\s*['"]?[A-Za-z0-9/+=]{20,}['"]?`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),

	// GitHub
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36}`),

	// Generic assignments
	regexp.MustCompile(`(?i)(api_key|apikey|api-key|secret_key|access_token|auth_token)\s*[=:]\s*['"]?[A-Za-z0-9_-]{16,}['"]?`),
	regexp.MustCompile(`(?i)(password|passwd|pwd|secret)\s*[=:]\s*['"]?[^\s'"]{8,}['"]?`),

	// Private keys
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`),

	// Bearer tokens and basic auth in URLs
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_.-]{20,}`),
	regexp.MustCompile(`https?://[^:/\s]+:[^@\s]+@`),
}

const redactedPlaceholder = "[REDACTED]"

// Redact replaces every secret-looking substring of input.
func Redact(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, redactedPlaceholder)
	}
	return result
}

// Truncate redacts input and caps it at max bytes.
func Truncate(input string, max int) string {
	out := Redact(input)
	if max > 0 && len(out) > max {
		return Prefix(out, max) + "...[truncated]"
	}
	return out
}

// Prefix returns at most max bytes of s, cut on a UTF-8 boundary.
func Prefix(s string, max int) string {
	if max < 0 {
		max = 0
	}
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
