package perplexica

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/providers"
)

func TestClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/search", r.URL.Path)

		var req SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "webSearch", req.FocusMode)
		assert.Equal(t, "balanced", req.OptimizationMode)

		_ = json.NewEncoder(w).Encode(SearchResponse{
			Message: "Here are some programs",
			Sources: []Source{
				{PageContent: "Erasmus+ funds mobility", Metadata: &Metadata{Title: "Erasmus+", URL: "https://erasmus-plus.ec.europa.eu/"}},
				{PageContent: "orphan snippet"},
				{PageContent: "Horizon Europe grants", Metadata: &Metadata{Title: "Horizon Europe", URL: "https://research-and-innovation.ec.europa.eu/funding"}},
			},
		})
	}))
	defer server.Close()

	client := New(providers.Config{BaseURL: server.URL})
	results, err := client.Search(context.Background(), "EU mobility funding for teachers", 10)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "erasmus-plus.ec.europa.eu", results[0].DomainName)
	assert.Equal(t, "Erasmus+ funds mobility", results[0].Description)
	assert.Equal(t, 2, results[1].RankPosition)
	assert.Equal(t, domain.ProviderPerplexica, results[1].Provider)
}
