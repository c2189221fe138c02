package logging

import (
	"regexp"
)

const (
	// MaxValueLogLength is the maximum length of a Fact or Object value to log
	MaxValueLogLength = 100
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Matches credentials in postgres://, redis:// and nats:// URLs (user:pass@host)
	connStringPattern = regexp.MustCompile(`://[^:/\s]*:[^@]+@[^/\s]+`)

	// Matches NATS auth tokens passed as a bare userinfo (nats://token@host)
	tokenPattern = regexp.MustCompile(`(nats|tls)://[^:@/\s]+@`)
)

// SanitizeConnectionString removes credentials from database, cache and broker URLs.
// Use this before logging any connection string
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
	sanitized = tokenPattern.ReplaceAllString(sanitized, "${1}://"+RedactedText+"@")

	return sanitized
}

// SanitizeError sanitizes error messages that might contain sensitive data.
// Driver errors from pgx and go-redis can echo the connection string they failed on.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeConnectionString(err.Error())
}

// TruncateValue shortens a Fact or Object value for logging.
func TruncateValue(s string) string {
	return TruncateString(s, MaxValueLogLength)
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
