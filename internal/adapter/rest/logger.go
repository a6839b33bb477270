package rest

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// MaxLoggedBodyLength is the maximum length of a response body to include in
// logs. Longer bodies are truncated so webhook payloads and file contents do
// not land in log aggregators.
const MaxLoggedBodyLength = 200

// CallLog describes one outbound HTTP attempt for logging.
type CallLog struct {
	Service    string
	Method     string
	URL        string
	StatusCode int
	Duration   time.Duration
	Attempt    int
	Err        error
}

// CallLogger receives a CallLog per attempt, including retries.
type CallLogger interface {
	LogCall(ctx context.Context, entry CallLog)
}

// TruncateForLogging caps a body string for logging, appending the original
// length when truncated.
func TruncateForLogging(body string) string {
	if len(body) <= MaxLoggedBodyLength {
		return body
	}
	return body[:MaxLoggedBodyLength] + fmt.Sprintf("... [truncated, total length=%d bytes]", len(body))
}

var tokenPattern = regexp.MustCompile(`(?i)(bearer\s+|token[=:]\s*|ghs_|ghp_)[a-zA-Z0-9_\-.]+`)

// RedactTokens removes credential-looking substrings from text destined for
// logs. Installation tokens show up in error messages when a request is
// echoed back; they must never reach the logs intact.
func RedactTokens(text string) string {
	if text == "" {
		return text
	}
	return tokenPattern.ReplaceAllString(text, "[REDACTED]")
}
