package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"planet/internal/config"
	"planet/internal/events"
)

const userAgent = "Planet-Go/0.1.0"

// Service sends notifications for daemon events.
type Service interface {
	Notify(ctx context.Context, ev events.Event) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		publish:     cfg.Notifications.Publish,
		newArticles: cfg.Notifications.NewArticles,
		errors:      cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	publish     bool
	newArticles bool
	errors      bool
}

// Notify sends ev when its type is enabled. Other events return nil.
func (n *ntfyService) Notify(ctx context.Context, ev events.Event) error {
	data, ok := n.format(ev)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func (n *ntfyService) format(ev events.Event) (payload, bool) {
	name := strings.TrimSpace(ev.FeedName)
	if name == "" {
		name = ev.Address
	}
	switch ev.Type {
	case events.FeedPublished:
		if !n.publish {
			return payload{}, false
		}
		return payload{
			title:   "Planet - Published",
			message: fmt.Sprintf("📡 Published: %s", name),
			tags:    []string{"planet", "publish", "completed"},
		}, true
	case events.ArticlesDiscovered:
		if !n.newArticles || ev.Count <= 0 {
			return payload{}, false
		}
		noun := "articles"
		if ev.Count == 1 {
			noun = "article"
		}
		return payload{
			title:   "Planet - New Articles",
			message: fmt.Sprintf("📰 %d new %s from %s", ev.Count, noun, name),
			tags:    []string{"planet", "follow", "articles"},
		}, true
	case events.Error:
		if !n.errors {
			return payload{}, false
		}
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := strings.TrimSpace(ev.Message); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		if ev.Err != nil {
			builder.WriteString(strings.TrimSpace(ev.Err.Error()))
		} else {
			builder.WriteString("unknown")
		}
		return payload{
			title:    "Planet - Error",
			message:  builder.String(),
			tags:     []string{"planet", "error", "alert"},
			priority: "high",
		}, true
	}
	return payload{}, false
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Planet - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"planet", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
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

func (noopService) Notify(context.Context, events.Event) error { return nil }
func (noopService) TestNotification(context.Context) error     { return nil }
