// Package dispatch wakes the processing worker over HTTP.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"asset-pipeline/internal/logger"
	"asset-pipeline/internal/metrics"
)

const (
	maxAttempts      = 5
	baseBackoff      = 2 * time.Second
	backoffFactor    = 1.5
	defaultTimeout   = 60 * time.Second
	maxBodyInspected = 4 << 10

	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	contentTypeJSON     = "application/json"
)

// Bodies that mean the worker host is still booting.
var coldStartPatterns = []string{
	"cold start",
	"starting",
	"not ready",
	"unavailable",
	"no healthy upstream",
}

type wakeRequest struct {
	Reason     string `json:"reason"`
	Token      string `json:"token"`
	APIBaseURL string `json:"api_base_url"`
}

// StatusError is a non-retryable wake response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("worker wake returned %d: %s", e.Code, e.Body)
}

type Dispatcher struct {
	wakeURL    string
	apiBaseURL string
	client     *http.Client
	timeout    time.Duration
	timer      backoff.Timer
	metrics    *metrics.Metrics
	log        *logger.Logger
}

// New returns a dispatcher. An empty wakeURL makes every wake a noop.
func New(wakeURL, apiBaseURL string, timeout time.Duration, m *metrics.Metrics, log *logger.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		wakeURL:    strings.TrimSpace(wakeURL),
		apiBaseURL: apiBaseURL,
		client:     &http.Client{Timeout: timeout},
		timeout:    timeout,
		metrics:    m,
		log:        log.With("component", "dispatcher"),
	}
}

// WithTimer replaces the timer used between retries.
func (d *Dispatcher) WithTimer(t backoff.Timer) *Dispatcher {
	d.timer = t
	return d
}

func (d *Dispatcher) Enabled() bool {
	return d.wakeURL != ""
}

// Wake posts one wake call, retrying transient failures with backoff.
func (d *Dispatcher) Wake(ctx context.Context, reason, token string) error {
	if !d.Enabled() {
		d.log.Debug("worker wake skipped, no wake url", "reason", reason)
		d.metrics.WakeAttempt(metrics.OutcomeSkipped)
		return nil
	}

	payload, err := json.Marshal(wakeRequest{Reason: reason, Token: token, APIBaseURL: d.apiBaseURL})
	if err != nil {
		return fmt.Errorf("encode wake request: %w", err)
	}

	attempts := 0
	operation := func() error {
		attempts++
		retry, err := d.post(ctx, payload, token)
		if err != nil && !retry {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		d.metrics.WakeAttempt(metrics.OutcomeRetry)
		d.log.Warn("worker wake failed, retrying", "reason", reason, "attempt", attempts, "wait", wait, "error", err)
	}

	b := backoff.WithContext(newBackOff(), ctx)
	if err := backoff.RetryNotifyWithTimer(operation, b, notify, d.timer); err != nil {
		d.metrics.WakeAttempt(metrics.OutcomeFailure)
		if attempts == maxAttempts {
			return fmt.Errorf("worker wake gave up after %d attempts: %w", attempts, err)
		}
		return err
	}

	d.metrics.WakeAttempt(metrics.OutcomeSuccess)
	return nil
}

// WakeAsync wakes the worker in the background on its own deadline.
func (d *Dispatcher) WakeAsync(reason, token string) {
	if !d.Enabled() {
		d.log.Debug("worker wake skipped, no wake url", "reason", reason)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.Wake(ctx, reason, token); err != nil {
			d.log.Error("worker wake failed", "reason", reason, "error", err)
			return
		}
		d.log.Info("worker woken", "reason", reason)
	}()
}

func (d *Dispatcher) post(ctx context.Context, payload []byte, token string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.wakeURL, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("build wake request: %w", err)
	}
	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerAuthorization, "Bearer "+token)

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, fmt.Errorf("worker wake transport: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyInspected))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}

	statusErr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	return Retryable(resp.StatusCode, body), statusErr
}

// Retryable reports whether a wake response looks like a worker host that
// is still starting.
func Retryable(status int, body []byte) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	lower := strings.ToLower(string(body))
	for _, p := range coldStartPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// newBackOff waits 2s, 3s, 4.5s, 6.75s between the five wake attempts.
func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseBackoff
	b.Multiplier = backoffFactor
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, maxAttempts-1)
}
