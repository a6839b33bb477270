package observability

import (
	"context"

	"github.com/replikanti/flowlint/internal/adapter/rest"
)

// CallLogger adapts the structured Logger to the rest.CallLogger port so
// every outbound GitHub API attempt lands in the service log. Error text is
// redacted and truncated before logging.
type CallLogger struct {
	logger Logger
}

// NewCallLogger wraps the given logger for outbound call logging.
func NewCallLogger(logger Logger) *CallLogger {
	return &CallLogger{logger: logger}
}

// LogCall records one HTTP attempt. Successful calls log at info, failed
// attempts at warning.
func (c *CallLogger) LogCall(ctx context.Context, entry rest.CallLog) {
	fields := map[string]interface{}{
		"service":     entry.Service,
		"method":      entry.Method,
		"url":         entry.URL,
		"status_code": entry.StatusCode,
		"duration_ms": entry.Duration.Milliseconds(),
		"attempt":     entry.Attempt,
	}
	if entry.Err == nil {
		c.logger.LogInfo(ctx, "outbound call completed", fields)
		return
	}
	fields["error"] = rest.TruncateForLogging(rest.RedactTokens(entry.Err.Error()))
	c.logger.LogWarning(ctx, "outbound call failed", fields)
}
