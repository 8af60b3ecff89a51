// Package notify delivers run notifications.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"unicode/utf8"

	"github.com/jmylchreest/vidbrief/internal/config"
	"github.com/jmylchreest/vidbrief/internal/httpclient"
)

// DefaultPushoverURL is the Pushover message endpoint.
const DefaultPushoverURL = "https://api.pushover.net/1/messages.json"

// Pushover field limits, in characters.
const (
	maxTitleLength   = 250
	maxMessageLength = 1024
)

// Notifier sends a short titled message.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// New returns a Pushover notifier when notifications are enabled, otherwise Noop.
func New(cfg config.NotifyConfig, client *httpclient.Client) (Notifier, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	if cfg.Token == "" || cfg.UserKey == "" {
		return nil, fmt.Errorf("notify.token and notify.user_key are required when notifications are enabled")
	}
	return NewPushover(cfg.APIURL, cfg.Token, cfg.UserKey, client), nil
}

// Pushover posts notifications to the Pushover API.
type Pushover struct {
	apiURL  string
	token   string
	userKey string
	client  *httpclient.Client
}

// NewPushover creates a Pushover notifier. An empty apiURL uses DefaultPushoverURL.
func NewPushover(apiURL, token, userKey string, client *httpclient.Client) *Pushover {
	if apiURL == "" {
		apiURL = DefaultPushoverURL
	}
	if client == nil {
		client = httpclient.NewWithDefaults()
	}
	return &Pushover{apiURL: apiURL, token: token, userKey: userKey, client: client}
}

type pushoverResponse struct {
	Status  int      `json:"status"`
	Request string   `json:"request"`
	Errors  []string `json:"errors"`
}

// Notify sends title and message. Over-long fields are truncated to the API limits.
func (p *Pushover) Notify(ctx context.Context, title, message string) error {
	values := url.Values{
		"token":   {p.token},
		"user":    {p.userKey},
		"title":   {truncate(title, maxTitleLength)},
		"message": {truncate(message, maxMessageLength)},
	}

	var resp pushoverResponse
	if err := p.client.PostForm(ctx, p.apiURL, values, &resp); err != nil {
		return fmt.Errorf("sending pushover notification: %w", err)
	}
	if resp.Status != 1 {
		return fmt.Errorf("sending pushover notification: rejected: %v", resp.Errors)
	}

	slog.Debug("notification sent", slog.String("title", title), slog.String("request", resp.Request))
	return nil
}

// Noop discards notifications.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(context.Context, string, string) error { return nil }

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}
