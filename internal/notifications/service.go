package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sortbin/internal/config"
)

const userAgent = "sortbin/0.1.0"

// Disposal summarizes one scored disposal.
type Disposal struct {
	User     string
	Item     string
	Category string
	Correct  bool
	// Score is the rendered score, "invalid" for anonymous disposals.
	Score string
}

// Service defines the notification surface used by the session machine and CLI.
type Service interface {
	NotifyDisposal(ctx context.Context, disposal Disposal) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		disposals: cfg.Notifications.Disposals,
		errors:    cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	disposals bool
	errors    bool
}

func (n *ntfyService) NotifyDisposal(ctx context.Context, d Disposal) error {
	if !n.disposals {
		return nil
	}
	user := strings.TrimSpace(d.User)
	if user == "" {
		user = "unknown user"
	}
	verdict, icon, tag := "incorrect", "⚠️", "incorrect"
	if d.Correct {
		verdict, icon, tag = "correct", "♻️", "correct"
	}
	message := fmt.Sprintf("%s %s disposed of %s (%s): %s", icon, user, strings.TrimSpace(d.Item), strings.TrimSpace(d.Category), verdict)
	if score := strings.TrimSpace(d.Score); score != "" {
		message += "\nScore: " + score
	}
	return n.send(ctx, payload{
		title:   "Sortbin - Disposal",
		message: message,
		tags:    []string{"sortbin", "disposal", tag},
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	return n.send(ctx, payload{
		title:    "Sortbin - Error",
		message:  builder.String(),
		tags:     []string{"sortbin", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Sortbin - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"sortbin", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyDisposal(context.Context, Disposal) error    { return nil }
func (noopService) NotifyError(context.Context, error, string) error { return nil }
func (noopService) TestNotification(context.Context) error           { return nil }
