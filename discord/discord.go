// Package discord sends, edits and deletes messages through a Discord
// compatible webhook endpoint.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// ErrNotFound indicates the target message no longer exists. Edit
// surfaces it so callers can fall back to delete + create.
var ErrNotFound = errors.New("discord: message not found")

// Webhook is a client for one webhook endpoint.
type Webhook struct {
	client *http.Client
	logger *slog.Logger
	url    string
	roleID string
}

// New creates a webhook client. roleID may be empty; when set it is
// whitelisted in allowed_mentions so role pings actually fire.
func New(client *http.Client, webhookURL, roleID string, logger *slog.Logger) *Webhook {
	return &Webhook{
		client: client,
		url:    webhookURL,
		roleID: roleID,
		logger: logger,
	}
}

// ValidateURL checks that a webhook URL has the expected
// /api/webhooks/<id>/<token> shape before any network call is made.
func ValidateURL(webhookURL string) error {
	if webhookURL == "" {
		return errors.New("webhook URL is empty")
	}
	u, err := url.Parse(webhookURL)
	if err != nil {
		return fmt.Errorf("malformed webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("webhook URL must be http or https")
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p != "api" {
			continue
		}
		if len(parts) < i+4 || parts[i+1] != "webhooks" {
			return errors.New("webhook path must contain /api/webhooks/<id>/<token>")
		}
		id, token := parts[i+2], parts[i+3]
		if id == "" || strings.Trim(id, "0123456789") != "" {
			return errors.New("webhook id must be numeric")
		}
		if len(token) < 20 {
			return errors.New("webhook token too short")
		}
		return nil
	}
	return errors.New("webhook path incomplete (need /api/webhooks/<id>/<token>)")
}

type payload struct {
	Content         string           `json:"content"`
	AllowedMentions *allowedMentions `json:"allowed_mentions,omitempty"`
}

type allowedMentions struct {
	Roles []string `json:"roles"`
}

type messageResponse struct {
	ID string `json:"id"`
}

// Send creates a message and returns its id. The ?wait=true query makes
// the endpoint return the created message object instead of a bare 204.
func (w *Webhook) Send(ctx context.Context, content string) (string, error) {
	sendURL, err := withWait(w.url)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(w.payload(content))
	if err != nil {
		return "", fmt.Errorf("marshal webhook payload: %w", err)
	}

	var messageID string
	err = retry.Do(
		func() error {
			w.logger.Info("Webhook request starting", "method", "POST", "purpose", "create_message")

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendURL, bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")

			startTime := time.Now()
			resp, err := w.client.Do(req)
			if err != nil {
				w.logger.Warn("Webhook request failed, will retry", "error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					w.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
			if readErr != nil {
				return fmt.Errorf("read webhook response: %w", readErr)
			}

			w.logger.Info("Webhook request completed",
				"status_code", resp.StatusCode,
				"duration_ms", time.Since(startTime).Milliseconds())

			if err := statusError(resp.StatusCode, respBody); err != nil {
				return err
			}

			var msg messageResponse
			if err := json.Unmarshal(respBody, &msg); err != nil {
				return retry.Unrecoverable(fmt.Errorf("unmarshal webhook response: %w", err))
			}
			if msg.ID == "" {
				return retry.Unrecoverable(errors.New("webhook response missing message id"))
			}
			messageID = msg.ID
			return nil
		},
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			w.logger.Info("Retrying webhook send after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("send after retries: %w", err)
	}

	w.logger.Info("Message created", "message_id", messageID)
	return messageID, nil
}

// Edit replaces the content of an existing message in place.
func (w *Webhook) Edit(ctx context.Context, messageID, content string) error {
	body, err := json.Marshal(w.payload(content))
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	return w.messageCall(ctx, http.MethodPatch, messageID, body, "edit_message")
}

// Delete removes a message. Deletion is idempotent: a message that is
// already gone counts as deleted.
func (w *Webhook) Delete(ctx context.Context, messageID string) error {
	err := w.messageCall(ctx, http.MethodDelete, messageID, nil, "delete_message")
	if errors.Is(err, ErrNotFound) {
		w.logger.Info("Message already gone", "message_id", messageID)
		return nil
	}
	return err
}

func (w *Webhook) messageCall(ctx context.Context, method, messageID string, body []byte, purpose string) error {
	if messageID == "" {
		return errors.New("message id is empty")
	}
	callURL := strings.TrimSuffix(w.url, "/") + "/messages/" + url.PathEscape(messageID)

	var notFound bool
	err := retry.Do(
		func() error {
			w.logger.Info("Webhook request starting", "method", method, "purpose", purpose, "message_id", messageID)

			var reader io.Reader = http.NoBody
			if body != nil {
				reader = bytes.NewReader(body)
			}
			req, err := http.NewRequestWithContext(ctx, method, callURL, reader)
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}
			if body != nil {
				req.Header.Set("Content-Type", "application/json")
			}

			resp, err := w.client.Do(req)
			if err != nil {
				w.logger.Warn("Webhook request failed, will retry", "error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					w.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

			w.logger.Info("Webhook request completed", "method", method, "status_code", resp.StatusCode)

			if resp.StatusCode == http.StatusNotFound {
				notFound = true
				return retry.Unrecoverable(ErrNotFound)
			}
			return statusError(resp.StatusCode, respBody)
		},
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			w.logger.Info("Retrying webhook call after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		if notFound {
			return ErrNotFound
		}
		return fmt.Errorf("%s after retries: %w", purpose, err)
	}
	return nil
}

func (w *Webhook) payload(content string) payload {
	p := payload{Content: content, AllowedMentions: &allowedMentions{Roles: []string{}}}
	if w.roleID != "" {
		p.AllowedMentions.Roles = []string{w.roleID}
	}
	return p
}

func statusError(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	err := fmt.Errorf("webhook HTTP %d: %s", code, snippet)
	// Client errors other than rate limiting will not heal on retry.
	if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
		return retry.Unrecoverable(err)
	}
	return err
}

func withWait(webhookURL string) (string, error) {
	u, err := url.Parse(webhookURL)
	if err != nil {
		return "", fmt.Errorf("parse webhook URL: %w", err)
	}
	q := u.Query()
	q.Set("wait", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
