// Package listings is a client for the marketplace listings search API used
// to find comparable vehicles currently for sale.
package listings

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

const (
	defaultBaseURL = "https://api.listingsearch.io"
	defaultLimit   = 20
)

// Client searches live marketplace listings.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest is the request body for POST /v1/search.
type SearchRequest struct {
	Brand          string   `json:"brand"`
	Model          string   `json:"model"`
	YearFrom       int      `json:"year_from"`
	YearTo         int      `json:"year_to"`
	MileageMax     int      `json:"mileage_max,omitempty"`
	Fuel           string   `json:"fuel,omitempty"`
	Transmission   string   `json:"transmission,omitempty"`
	SearchLocators []string `json:"search_locators,omitempty"`
	MakeID         string   `json:"make_id,omitempty"`
	ModelID        string   `json:"model_id,omitempty"`
	Limit          int      `json:"limit"`
}

// Listing is one search hit.
type Listing struct {
	Title   string  `json:"title"`
	Source  string  `json:"source"`
	URL     string  `json:"url"`
	Price   float64 `json:"price"`
	Mileage int     `json:"mileage"`
	Year    int     `json:"year"`
}

// SearchResponse is the response from POST /v1/search.
type SearchResponse struct {
	Listings []Listing `json:"listings"`
	Total    int       `json:"total"`
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

// NewClient creates a listings API client. The search backend allows one
// request per second by default.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 90 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(1, 1),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Search retries transient failures with exponential backoff.
func (c *httpClient) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if req.Limit <= 0 {
		req.Limit = defaultLimit
	}
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*SearchResponse, error) {
		return c.search(ctx, req)
	})
}

func (c *httpClient) search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "listings: rate limit")
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "listings: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "listings: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "listings: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "listings: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("listings: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "listings: unmarshal response")
	}

	return &result, nil
}
