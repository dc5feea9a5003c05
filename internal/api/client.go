// Package api is the client for the server's per-action endpoints.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/roach88/feedsync/internal/action"
)

// ErrMissingCredential is returned without a network call when no bearer
// token is available.
var ErrMissingCredential = errors.New("missing authentication credential")

// CredentialSource supplies the bearer token.
type CredentialSource interface {
	Token(ctx context.Context) (string, bool)
}

// StaticToken is a fixed credential. The empty token means "signed out".
type StaticToken string

// Token implements CredentialSource.
func (s StaticToken) Token(context.Context) (string, bool) {
	return string(s), s != ""
}

// Config controls the client.
type Config struct {
	BaseURL string
	Timeout time.Duration

	// MaxRetries bounds retries of idempotent calls on transport errors and 5xx.
	// Creation calls (post, comment) are never retried by the client.
	MaxRetries     int
	RetryInitial   time.Duration
	BreakerTrips   uint32        // consecutive failures that open the breaker; 0 disables it
	BreakerTimeout time.Duration // how long the breaker stays open
}

// Client dispatches intents to the server.
type Client struct {
	base    string
	http    *http.Client
	creds   CredentialSource
	cfg     Config
	breaker *gobreaker.CircuitBreaker
}

// NewClient creates a client. httpClient may be nil.
func NewClient(cfg Config, creds CredentialSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = 200 * time.Millisecond
	}

	c := &Client{
		base:  strings.TrimRight(cfg.BaseURL, "/"),
		http:  httpClient,
		creds: creds,
		cfg:   cfg,
	}

	if cfg.BreakerTrips > 0 {
		timeout := cfg.BreakerTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "api",
			MaxRequests: 1,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerTrips
			},
			OnStateChange: func(_ string, from, to gobreaker.State) {
				slog.Warn("api circuit breaker state changed", "from", from.String(), "to", to.String())
			},
		})
	}
	return c
}

// statusError marks a 5xx answer so the retry loop and breaker count it.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned status %d", e.status)
}

// Dispatch sends one intent. It implements action.Dispatcher.
//
// Errors are returned when no answer was obtained (missing credential,
// transport error, open breaker, exhausted retries on 5xx). A 4xx answer is
// an Outcome with OK=false and no error.
func (c *Client) Dispatch(ctx context.Context, in action.Intent) (action.Outcome, error) {
	token, ok := c.token(ctx)
	if !ok {
		return action.Outcome{}, ErrMissingCredential
	}

	route, err := RouteFor(in)
	if err != nil {
		return action.Outcome{}, err
	}

	var out action.Outcome
	op := func() error {
		o, err := c.attempt(ctx, route, token, in.Key)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) || isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		out = o
		return nil
	}

	retries := 0
	if in.Kind.Idempotent() {
		retries = c.cfg.MaxRetries
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInitial
	b.MaxElapsedTime = 0

	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)); err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return action.Outcome{OK: false, Status: se.status}, nil
		}
		return action.Outcome{}, fmt.Errorf("%s: %w", in.Kind, err)
	}

	if in.Kind == action.KindPost || in.Kind == action.KindComment {
		slog.Debug("resource created", "kind", in.Kind.String(), "id", out.CreatedID)
	}
	return out, nil
}

func (c *Client) token(ctx context.Context) (string, bool) {
	if c.creds == nil {
		return "", false
	}
	return c.creds.Token(ctx)
}

// attempt performs one HTTP exchange, through the breaker when enabled.
func (c *Client) attempt(ctx context.Context, route Route, token, key string) (action.Outcome, error) {
	if c.breaker == nil {
		return c.do(ctx, route, token, key)
	}
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, route, token, key)
	})
	if err != nil {
		return action.Outcome{}, err
	}
	return res.(action.Outcome), nil
}

func (c *Client) do(ctx context.Context, route Route, token, key string) (action.Outcome, error) {
	var body io.Reader
	if route.Body != nil {
		body = bytes.NewReader(route.Body)
	}

	req, err := http.NewRequestWithContext(ctx, route.Method, c.base+route.Path, body)
	if err != nil {
		return action.Outcome{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return action.Outcome{}, fmt.Errorf("%s %s: %w", route.Method, route.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return action.Outcome{}, fmt.Errorf("%s %s: read body: %w", route.Method, route.Path, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return action.Outcome{}, &statusError{status: resp.StatusCode}
	}

	out := action.Outcome{
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status: resp.StatusCode,
	}
	if out.OK {
		out.CreatedID = createdID(data)
	}
	return out, nil
}

// createdID extracts "id" or "data.id" from a creation response.
func createdID(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var body struct {
		ID   string `json:"id"`
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := sonic.Unmarshal(data, &body); err != nil {
		return ""
	}
	if body.ID != "" {
		return body.ID
	}
	return body.Data.ID
}

func encode(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// isTransient reports whether err is worth retrying.
func isTransient(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "timeout")
}
