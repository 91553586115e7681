// Package notifications posts operator alerts to a Slack-compatible
// incoming webhook.
//
// NewService returns a no-op implementation when no webhook URL is
// configured. Alert delivery is best effort: failures are logged and never
// reach the upload loop. TestNotification is the exception and returns the
// delivery error so `ferry test-notify` can report it.
package notifications
