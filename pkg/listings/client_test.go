package listings

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

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/search", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var req SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Golf", req.Model)
		assert.Equal(t, defaultLimit, req.Limit)
		assert.Equal(t, []string{"nl"}, req.SearchLocators)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"listings": [
				{"title": "VW Golf 1.5 TSI", "source": "marktplaats", "price": 15900, "mileage": 58000, "year": 2019},
				{"title": "VW Golf Highline", "source": "autoscout", "price": 16450, "mileage": 61000, "year": 2019}
			],
			"total": 2
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(0))
	resp, err := client.Search(context.Background(), SearchRequest{
		Brand: "Volkswagen", Model: "Golf", YearFrom: 2018, YearTo: 2020,
		SearchLocators: []string{"nl"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Listings, 2)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 15900.0, resp.Listings[0].Price)
	assert.Equal(t, "autoscout", resp.Listings[1].Source)
}

func TestSearch_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantErr       string
		wantTransient bool
	}{
		{name: "unavailable", status: http.StatusServiceUnavailable, body: "down", wantErr: "unexpected status 503", wantTransient: true},
		{name: "rate_limit", status: http.StatusTooManyRequests, body: "{}", wantErr: "unexpected status 429", wantTransient: true},
		{name: "bad_request", status: http.StatusBadRequest, body: `{"error":"model required"}`, wantErr: "unexpected status 400"},
		{name: "malformed", status: http.StatusOK, body: `[`, wantErr: "unmarshal response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient("k", WithBaseURL(srv.URL), WithRateLimit(0), WithRetry(fastRetry()))
			resp, err := client.Search(context.Background(), SearchRequest{Brand: "BMW", Model: "320d"})
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, tt.wantTransient, resilience.IsTransient(err))
		})
	}
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, Backoff: resilience.ConstantBackoff(time.Millisecond)}
}

func TestSearch_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"listings":[{"title":"BMW 320d","price":21500}],"total":1}`))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL), WithRateLimit(0), WithRetry(fastRetry()))
	resp, err := client.Search(context.Background(), SearchRequest{Brand: "BMW", Model: "320d"})
	require.NoError(t, err)
	require.Len(t, resp.Listings, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearch_DoesNotRetryBadRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL), WithRateLimit(0), WithRetry(fastRetry()))
	_, err := client.Search(context.Background(), SearchRequest{Brand: "BMW", Model: "320d"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSearch_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"listings":[]}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("k", WithBaseURL(srv.URL))
	_, err := client.Search(ctx, SearchRequest{Brand: "BMW", Model: "320d"})
	require.Error(t, err)
}

func TestWithRateLimit(t *testing.T) {
	c := NewClient("k", WithRateLimit(5)).(*httpClient)
	require.NotNil(t, c.limiter)
	assert.Equal(t, 5, c.limiter.Burst())

	c = NewClient("k", WithRateLimit(-1)).(*httpClient)
	assert.Nil(t, c.limiter)
}
