package brave

// SearchResponse is the subset of the Brave web search response we use.
type SearchResponse struct {
	Web *WebResults `json:"web"`
}

// WebResults holds the organic web hits.
type WebResults struct {
	Results []WebResult `json:"results"`
}

// WebResult is one organic hit.
type WebResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}
