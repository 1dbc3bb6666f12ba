package tavily

// SearchRequest is the body of a Tavily search call. The API key travels in the body.
type SearchRequest struct {
	APIKey            string `json:"api_key"`
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	SearchDepth       string `json:"search_depth"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

// SearchResponse is the subset of the Tavily response we use.
type SearchResponse struct {
	Answer  string   `json:"answer"`
	Results []Result `json:"results"`
}

// Result is one hit with Tavily's relevance score.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}
