package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pulsecare/platform/internal/shared/config"
	"github.com/pulsecare/platform/internal/shared/errors"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// Client talks to the remote vitals analysis service. The service is a
// fast-fail dependency: calls are rate limited, time bounded, and run
// through a circuit breaker so an outage never blocks the rule engine
// fallback.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*AnalyzeResponse]
	limiter    *rate.Limiter
}

// NewClient creates a new analysis service client
func NewClient(cfg config.AIConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}

	breaker := gobreaker.NewCircuitBreaker[*AnalyzeResponse](gobreaker.Settings{
		Name:    "remote-analysis",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &Client{
		baseURL:    cfg.URL,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// Enabled reports whether remote analysis can be attempted. Without a
// token the remote tier is disabled; the rule engine never is.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != "" && c.token != ""
}

// AnalyzeVitals asks the remote service to assess one reading. Any
// failure comes back as DEPENDENCY_UNAVAILABLE for the caller to catch
// and fall through to the rule engine.
func (c *Client) AnalyzeVitals(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	if !c.Enabled() {
		return nil, errors.DependencyUnavailable("remote analysis", fmt.Errorf("not configured"))
	}

	// Never wait for a token; a saturated limiter means fall back now.
	if !c.limiter.Allow() {
		return nil, errors.DependencyUnavailable("remote analysis", fmt.Errorf("rate limited"))
	}

	resp, err := c.breaker.Execute(func() (*AnalyzeResponse, error) {
		var out AnalyzeResponse
		if err := c.post(ctx, "/v1/analyze", req, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, errors.DependencyUnavailable("remote analysis", err)
	}

	return resp, nil
}

// Chat sends a free-form question to the assistant service
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if !c.Enabled() {
		return nil, errors.DependencyUnavailable("remote analysis", fmt.Errorf("not configured"))
	}

	var out ChatResponse
	if err := c.post(ctx, "/v1/chat", req, &out); err != nil {
		return nil, errors.DependencyUnavailable("remote analysis", err)
	}
	return &out, nil
}

// Health checks the analysis service
func (c *Client) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analysis service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
