package brave

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/providers"
)

func newTestClient(serverURL string, dailyLimit int) *Client {
	return New(providers.Config{
		BaseURL:    serverURL,
		APIKey:     "test-key",
		Timeout:    2 * time.Second,
		DailyLimit: dailyLimit,
	})
}

func sampleResponse() SearchResponse {
	return SearchResponse{Web: &WebResults{Results: []WebResult{
		{Title: "Bulgaria Education Grants", URL: "https://www.Example.ORG/grants", Description: "Grants for schools in Bulgaria"},
		{Title: "no url"},
		{Title: "Fellowships", URL: "https://fund.eu/fellowships", Description: "Fellowships for researchers"},
	}}}
}

func TestClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/res/v1/web/search", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "bulgaria grants", r.URL.Query().Get("q"))
		assert.Equal(t, "10", r.URL.Query().Get("count"))

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(sampleResponse()))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 50)
	results, err := client.Search(context.Background(), "bulgaria grants", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "example.org", results[0].DomainName)
	assert.Equal(t, "Bulgaria Education Grants", results[0].Title)
	assert.Equal(t, domain.ProviderBrave, results[0].Provider)
	assert.Equal(t, "bulgaria grants", results[0].Query)
	assert.Equal(t, 1, results[0].RankPosition)
	assert.Equal(t, 2, results[1].RankPosition)
	assert.Equal(t, "fund.eu", results[1].DomainName)

	assert.Equal(t, 1, client.CurrentUsage())
	assert.Equal(t, 50, client.RateLimit())
	assert.True(t, client.SupportsKeywordQueries())
	assert.False(t, client.SupportsAIQueries())
}

func TestClient_Search_EmptyIsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"type":"search"}`))
	}))
	defer server.Close()

	results, err := newTestClient(server.URL, 0).Search(context.Background(), "q", 10)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestClient_Search_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, domain.ErrAuth},
		{http.StatusForbidden, domain.ErrAuth},
		{http.StatusTooManyRequests, domain.ErrRateLimit},
		{http.StatusBadRequest, domain.ErrPermanent},
		{http.StatusInternalServerError, domain.ErrTransient},
		{http.StatusBadGateway, domain.ErrTransient},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := newTestClient(server.URL, 0).Search(context.Background(), "q", 10)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			pe, ok := domain.AsProviderError(err)
			require.True(t, ok)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, "q", pe.Query)
		})
	}
}

func TestClient_Search_MissingAPIKey(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	client := New(providers.Config{BaseURL: server.URL})
	_, err := client.Search(context.Background(), "q", 10)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAuth))
	assert.Equal(t, int32(0), hits.Load())
}

func TestClient_Search_DailyQuota(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(sampleResponse())
	}))
	defer server.Close()

	client := newTestClient(server.URL, 2)
	for i := 0; i < 2; i++ {
		_, err := client.Search(context.Background(), "q", 10)
		require.NoError(t, err)
	}

	_, err := client.Search(context.Background(), "q", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRateLimit))
	assert.Equal(t, int32(2), hits.Load(), "no HTTP call once the quota is spent")
}

func TestClient_Search_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(server.URL, 0).Search(ctx, "q", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTimeout), "got %v", err)
}
