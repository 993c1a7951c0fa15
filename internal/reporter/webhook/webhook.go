// Package webhook posts the JSON summary report to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"

	"yqhp/loadgen/pkg/logger"
	"yqhp/loadgen/pkg/types"
)

// Config holds configuration for the Webhook reporter.
type Config struct {
	// URL is the webhook endpoint URL.
	URL string `yaml:"url"`
	// Method is the HTTP method (default: POST).
	Method string `yaml:"method"`
	// Headers are additional HTTP headers.
	Headers map[string]string `yaml:"headers,omitempty"`
	// RetryAttempts is the number of retries after the first failed attempt.
	RetryAttempts int `yaml:"retry_attempts"`
	// RetryDelay is the base delay between attempts, multiplied by the attempt number.
	RetryDelay time.Duration `yaml:"retry_delay"`
	// Timeout is the per-attempt request timeout.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the default Webhook reporter configuration.
func DefaultConfig() *Config {
	return &Config{
		Method:        fasthttp.MethodPost,
		Headers:       make(map[string]string),
		RetryAttempts: 2,
		RetryDelay:    time.Second,
		Timeout:       10 * time.Second,
	}
}

// Payload is the body posted to the webhook.
type Payload struct {
	Event     string               `json:"event"`
	Timestamp time.Time            `json:"timestamp"`
	Report    *types.SummaryReport `json:"report"`
}

// StatusError is returned when the webhook answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned status %d: %s", e.StatusCode, e.Body)
}

// retryable 只有 5xx 和 429 值得重试
func (e *StatusError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == fasthttp.StatusTooManyRequests
}

// Reporter implements the Webhook reporter.
type Reporter struct {
	config *Config
	client *fasthttp.Client
	now    func() time.Time
}

// New creates a new Webhook reporter.
func New(config *Config) *Reporter {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Method == "" {
		config.Method = fasthttp.MethodPost
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Reporter{
		config: config,
		client: &fasthttp.Client{
			Name:         "loadgen-webhook",
			ReadTimeout:  config.Timeout,
			WriteTimeout: config.Timeout,
		},
		now: time.Now,
	}
}

// Name returns the reporter name.
func (r *Reporter) Name() string {
	return "webhook"
}

// Report posts the summary to the webhook, retrying transport errors and
// 5xx/429 responses.
func (r *Reporter) Report(ctx context.Context, report *types.SummaryReport) error {
	if r.config.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}

	event := "run.passed"
	if !report.Passed {
		event = "run.failed"
	}
	body, err := sonic.ConfigStd.Marshal(&Payload{
		Event:     event,
		Timestamp: r.now().UTC(),
		Report:    report,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= r.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w (last error: %w)", ctx.Err(), lastErr)
			case <-time.After(r.config.RetryDelay * time.Duration(attempt)):
			}
		}

		lastErr = r.send(body)
		if lastErr == nil {
			logger.Info("summary posted to webhook", "url", r.config.URL, "attempts", attempt+1)
			return nil
		}
		if se, ok := lastErr.(*StatusError); ok && !se.retryable() {
			return lastErr
		}
		logger.Warn("webhook attempt failed", "attempt", attempt+1, "error", lastErr)
	}
	return fmt.Errorf("webhook failed after %d attempts: %w", r.config.RetryAttempts+1, lastErr)
}

func (r *Reporter) send(body []byte) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(r.config.URL)
	req.Header.SetMethod(r.config.Method)
	req.Header.SetContentType("application/json")
	for k, v := range r.config.Headers {
		req.Header.Set(k, v)
	}
	req.SetBody(body)

	if err := r.client.DoTimeout(req, resp, r.config.Timeout); err != nil {
		return err
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return &StatusError{StatusCode: code, Body: string(bytes.TrimSpace(resp.Body()))}
	}
	return nil
}
