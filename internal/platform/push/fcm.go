// --- File: internal/platform/push/fcm.go ---
// Package push contains push-notification provider adapters.
package push

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMSender implements relay.PushSender against Firebase Cloud Messaging.
// One attempt per call; FCM gives no delivery guarantee and neither do we.
type FCMSender struct {
	client *messaging.Client
	logger *slog.Logger
}

// NewFCMSender initializes the Firebase app and its messaging client. An
// empty credentialsFile falls back to application default credentials.
func NewFCMSender(ctx context.Context, credentialsFile string, logger *slog.Logger) (*FCMSender, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize fcm client: %w", err)
	}

	return &FCMSender{
		client: client,
		logger: logger.With("component", "fcm_sender"),
	}, nil
}

// Send issues a single notification attempt to the given device token.
func (s *FCMSender) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					ContentAvailable: true,
					Sound:            "default",
				},
			},
		},
	}

	id, err := s.client.Send(ctx, msg)
	if err != nil {
		// The token may have gone stale silently; the caller swallows this.
		s.logger.Warn("FCM send failed", "err", err)
		return fmt.Errorf("fcm send failed: %w", err)
	}
	s.logger.Debug("FCM message sent", "message_id", id)
	return nil
}
