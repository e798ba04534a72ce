// Package pricing is a client for the baseline vehicle pricing API.
package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/valuation-cli/internal/resilience"
)

const defaultBaseURL = "https://api.autopricing.io"

// Client estimates the market value of a vehicle.
type Client interface {
	Estimate(ctx context.Context, req EstimateRequest) (*EstimateResponse, error)
}

// EstimateRequest is the request body for POST /v1/valuations.
type EstimateRequest struct {
	Brand        string `json:"brand"`
	Model        string `json:"model"`
	Year         int    `json:"year"`
	Mileage      int    `json:"mileage"`
	Fuel         string `json:"fuel,omitempty"`
	Transmission string `json:"transmission,omitempty"`
	PowerKW      *int   `json:"power_kw,omitempty"`
	Variant      string `json:"variant,omitempty"`
}

// Routing carries identifiers the listings search accepts.
type Routing struct {
	SearchLocators []string `json:"search_locators"`
	MakeID         string   `json:"make_id"`
	ModelID        string   `json:"model_id"`
}

// EstimateResponse is the response from POST /v1/valuations.
type EstimateResponse struct {
	Value      float64 `json:"value"`
	Low        float64 `json:"low"`
	High       float64 `json:"high"`
	Confidence float64 `json:"confidence"`
	Currency   string  `json:"currency"`
	Routing    Routing `json:"routing"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets a per-second request limit. Zero or negative disables it.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// WithRetry overrides the retry schedule used for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a pricing API client. Calls are throttled to 2 req/s by
// default.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(2, 2),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Estimate retries transient failures with exponential backoff.
func (c *httpClient) Estimate(ctx context.Context, req EstimateRequest) (*EstimateResponse, error) {
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*EstimateResponse, error) {
		return c.estimate(ctx, req)
	})
}

func (c *httpClient) estimate(ctx context.Context, req EstimateRequest) (*EstimateResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "pricing: rate limit")
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "pricing: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/valuations", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "pricing: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "pricing: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "pricing: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("pricing: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var result EstimateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "pricing: unmarshal response")
	}
	if result.Value <= 0 {
		return nil, eris.New("pricing: no valuation for vehicle")
	}

	return &result, nil
}
