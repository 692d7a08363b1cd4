// --- File: internal/platform/push/log.go ---
package push

import (
	"context"
	"log/slog"
)

// LogSender implements relay.PushSender by logging the attempt instead of
// delivering it. Used in deployments without FCM credentials.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender is the constructor for the LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("component", "log_sender")}
}

// Send logs the notification and reports success.
func (s *LogSender) Send(_ context.Context, token, title, body string, data map[string]string) error {
	s.logger.Info("Push notification (log only)",
		"token", token,
		"title", title,
		"body", body,
		"data", data,
	)
	return nil
}
