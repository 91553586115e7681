package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"ferry/internal/config"
	"ferry/internal/logging"
)

const userAgent = "ferry/0.1.0"

// Service defines the notification surface exposed to the upload pipeline.
type Service interface {
	NotifyMeltdown(ctx context.Context, consecutive int, lastErr error)
	NotifyError(ctx context.Context, err error, context string)
	TestNotification(ctx context.Context) error
}

// NewService builds a webhook-backed service when a URL is configured.
func NewService(cfg *config.Config, logger *slog.Logger) Service {
	if cfg == nil {
		return noopService{}
	}
	endpoint := strings.TrimSpace(cfg.Notifications.WebhookURL)
	if endpoint == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	host, _ := os.Hostname()
	return &webhookService{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logging.NewComponentLogger(logger, "notifications"),
		host:     host,
		errors:   cfg.Notifications.Errors,
		meltdown: cfg.Notifications.Meltdown,
		titler:   cases.Title(language.English),
	}
}

type webhookService struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
	host     string
	errors   bool
	meltdown bool
	titler   cases.Caser
}

type message struct {
	Text string `json:"text"`
}

func (w *webhookService) NotifyMeltdown(ctx context.Context, consecutive int, lastErr error) {
	if !w.meltdown {
		return
	}
	body := fmt.Sprintf("Uploads stopped on %s after %d consecutive transient storage errors.", w.hostLabel(), consecutive)
	if lastErr != nil {
		body += "\nLast error: " + strings.TrimSpace(lastErr.Error())
	}
	body += "\nRestart ferry once the storage backend is healthy."
	w.deliver(ctx, "storage meltdown", body)
}

func (w *webhookService) NotifyError(ctx context.Context, err error, contextLabel string) {
	if !w.errors {
		return
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(" on ")
	builder.WriteString(w.hostLabel())
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	w.deliver(ctx, "upload error", builder.String())
}

func (w *webhookService) TestNotification(ctx context.Context) error {
	return w.send(ctx, "test notification", fmt.Sprintf("Notification test from %s", w.hostLabel()))
}

func (w *webhookService) hostLabel() string {
	if w.host == "" {
		return "unknown host"
	}
	return w.host
}

func (w *webhookService) deliver(ctx context.Context, title, body string) {
	if err := w.send(ctx, title, body); err != nil {
		logging.WarnWithContext(w.logger, "notification delivery failed", "notification_failed",
			logging.String("title", title),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.webhook_url"),
		)
	}
}

func (w *webhookService) send(ctx context.Context, title, body string) error {
	payload, err := json.Marshal(message{Text: fmt.Sprintf("*ferry - %s*\n%s", w.titler.String(title), body)})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook notification: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if strings.TrimSpace(string(respBody)) != "ok" {
		return fmt.Errorf("webhook rejected message: %q", strings.TrimSpace(string(respBody)))
	}
	return nil
}

type noopService struct{}

func (noopService) NotifyMeltdown(context.Context, int, error) {}
func (noopService) NotifyError(context.Context, error, string) {}
func (noopService) TestNotification(context.Context) error     { return nil }
