package searxng

// SearchResponse is the JSON output format of a SearXNG instance.
type SearchResponse struct {
	Query           string   `json:"query"`
	NumberOfResults float64  `json:"number_of_results"`
	Results         []Result `json:"results"`
}

// Result is one aggregated hit. Engines lists the backends that returned it.
type Result struct {
	URL     string   `json:"url"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Engine  string   `json:"engine"`
	Engines []string `json:"engines"`
}
