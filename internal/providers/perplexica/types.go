package perplexica

// SearchRequest is the body of a Perplexica search call.
type SearchRequest struct {
	Query            string `json:"query"`
	FocusMode        string `json:"focusMode"`
	OptimizationMode string `json:"optimizationMode"`
}

// SearchResponse holds the generated answer and the pages it was built from.
type SearchResponse struct {
	Message string   `json:"message"`
	Sources []Source `json:"sources"`
}

// Source is one page Perplexica read.
type Source struct {
	PageContent string    `json:"pageContent"`
	Metadata    *Metadata `json:"metadata"`
}

// Metadata identifies the page.
type Metadata struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}
