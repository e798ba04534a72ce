package pricing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valuation-cli/internal/resilience"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantErr       string
		wantTransient bool
		wantValue     float64
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body: `{
				"value": 15250, "low": 14100, "high": 16400, "confidence": 0.82, "currency": "EUR",
				"routing": {"search_locators": ["nl", "be"], "make_id": "74", "model_id": "2084"}
			}`,
			wantValue: 15250,
		},
		{
			name:          "rate_limit",
			status:        http.StatusTooManyRequests,
			body:          `{"error": "rate limit exceeded"}`,
			wantErr:       "unexpected status 429",
			wantTransient: true,
		},
		{
			name:          "server_error",
			status:        http.StatusBadGateway,
			body:          `bad gateway`,
			wantErr:       "unexpected status 502",
			wantTransient: true,
		},
		{
			name:    "unknown_vehicle",
			status:  http.StatusUnprocessableEntity,
			body:    `{"error": "unknown model"}`,
			wantErr: "unexpected status 422",
		},
		{
			name:    "malformed_response",
			status:  http.StatusOK,
			body:    `{invalid json`,
			wantErr: "unmarshal response",
		},
		{
			name:    "zero_value",
			status:  http.StatusOK,
			body:    `{"value": 0}`,
			wantErr: "no valuation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/v1/valuations", r.URL.Path)
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

				var req EstimateRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "Volkswagen", req.Brand)
				assert.Equal(t, 2019, req.Year)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(0), WithRetry(fastRetry()))
			resp, err := client.Estimate(context.Background(), EstimateRequest{
				Brand: "Volkswagen", Model: "Golf", Year: 2019, Mileage: 60000,
			})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, tt.wantTransient, resilience.IsTransient(err))
				assert.Nil(t, resp)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, resp.Value)
			assert.Equal(t, []string{"nl", "be"}, resp.Routing.SearchLocators)
			assert.Equal(t, "2084", resp.Routing.ModelID)
		})
	}
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, Backoff: resilience.ConstantBackoff(time.Millisecond)}
}

func TestEstimate_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"value": 9800, "currency": "EUR"}`))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL), WithRateLimit(0), WithRetry(fastRetry()))
	resp, err := client.Estimate(context.Background(), EstimateRequest{Brand: "Opel", Model: "Corsa"})
	require.NoError(t, err)
	assert.Equal(t, 9800.0, resp.Value)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEstimate_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL), WithRateLimit(0), WithRetry(fastRetry()))
	_, err := client.Estimate(context.Background(), EstimateRequest{Brand: "Opel", Model: "Corsa"})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestEstimate_DoesNotRetryPermanentStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL), WithRateLimit(0), WithRetry(fastRetry()))
	_, err := client.Estimate(context.Background(), EstimateRequest{Brand: "Opel", Model: "Corsa"})
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestEstimate_RateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value": 1000}`))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL), WithRateLimit(0.01))
	_, err := client.Estimate(context.Background(), EstimateRequest{Brand: "a", Model: "b"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Estimate(ctx, EstimateRequest{Brand: "a", Model: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestWithHTTPClient(t *testing.T) {
	hc := &http.Client{Timeout: time.Second}
	c := NewClient("k", WithHTTPClient(hc)).(*httpClient)
	assert.Same(t, hc, c.http)
	assert.NotNil(t, c.limiter)
	assert.Equal(t, defaultBaseURL, c.baseURL)
	assert.Equal(t, resilience.DefaultRetryConfig().MaxAttempts, c.retry.MaxAttempts)
}
