// Package webhook delivers task events to outgoing HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/events"
)

// SignatureHeader carries the HMAC-SHA256 of the body when a secret is set.
const SignatureHeader = "X-Critical-Claude-Signature"

// DefaultMaxRetries applies when an endpoint does not set its own.
const DefaultMaxRetries = 3

// Endpoint is a single outgoing webhook.
type Endpoint struct {
	Name string
	URL  string
	// Secret signs the body; empty disables signing.
	Secret string
	// Events filters by event type; empty means every event.
	Events     []string
	MaxRetries int
}

func (e Endpoint) accepts(eventType string) bool {
	return len(e.Events) == 0 || slices.Contains(e.Events, eventType)
}

// Payload is the JSON body sent to endpoints.
type Payload struct {
	EventType string        `json:"event_type"`
	Timestamp time.Time     `json:"timestamp"`
	Data      *events.Event `json:"data"`
}

// Notifier sends task events to webhooks.
type Notifier struct {
	endpoints  []Endpoint
	client     *http.Client
	deadLetter *DeadLetterStore
	retryDelay time.Duration
	logger     *slog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

// WithRetryDelay sets the initial backoff between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(n *Notifier) { n.retryDelay = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// NewNotifier creates a notifier. deadLetter may be nil.
func NewNotifier(endpoints []Endpoint, deadLetter *DeadLetterStore, opts ...Option) *Notifier {
	n := &Notifier{
		endpoints:  endpoints,
		client:     &http.Client{Timeout: 10 * time.Second},
		deadLetter: deadLetter,
		retryDelay: time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Endpoints returns the configured endpoints.
func (n *Notifier) Endpoints() []Endpoint {
	return n.endpoints
}

// Notify delivers e to every matching endpoint and returns the number of
// successful deliveries. Deliveries run in order so a short-lived CLI
// process does not exit before they finish.
func (n *Notifier) Notify(ctx context.Context, e *events.Event) int {
	body, err := json.Marshal(Payload{EventType: e.Type, Timestamp: e.Timestamp, Data: e})
	if err != nil {
		n.logger.Warn("webhook payload encoding failed", "event_type", e.Type, "error", err)
		return 0
	}

	delivered := 0
	for _, ep := range n.endpoints {
		if !ep.accepts(e.Type) {
			continue
		}
		if n.deliver(ctx, ep, e.Type, body) {
			delivered++
		}
	}
	return delivered
}

// Handler adapts the notifier to the event dispatcher. Delivery failures
// never fail the mutation that produced the event.
func (n *Notifier) Handler() events.HandlerFunc {
	return func(ctx context.Context, e *events.Event) error {
		n.Notify(ctx, e)
		return nil
	}
}

func (n *Notifier) deliver(ctx context.Context, ep Endpoint, eventType string, body []byte) bool {
	attempts := ep.MaxRetries
	if attempts <= 0 {
		attempts = DefaultMaxRetries
	}
	r := retry.New[int](retry.Config{
		MaxAttempts:   attempts,
		InitialDelay:  n.retryDelay,
		BackoffPolicy: retry.BackoffExponential,
	})
	_, err := r.Do(ctx, func(ctx context.Context) (int, error) {
		return n.send(ctx, ep, body)
	})
	if err == nil {
		return true
	}

	n.logger.Warn("webhook delivery failed", "webhook", ep.Name, "event_type", eventType, "attempts", attempts, "error", err)
	if n.deadLetter != nil {
		dl := DeadLetter{
			Timestamp:   time.Now().UTC(),
			WebhookName: ep.Name,
			URL:         ep.URL,
			EventType:   eventType,
			Payload:     string(body),
			Error:       err.Error(),
			Attempts:    attempts,
		}
		if err := n.deadLetter.Append(dl); err != nil {
			n.logger.Warn("dead letter append failed", "webhook", ep.Name, "error", err)
		}
	}
	return false
}

func (n *Notifier) send(ctx context.Context, ep Endpoint, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "critical-claude-webhook/1.0")
	if ep.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, ep.Secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// Sign computes the signature header value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
