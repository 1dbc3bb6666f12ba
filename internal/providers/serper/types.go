package serper

// SearchRequest is the body of a Serper search call.
type SearchRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

// SearchResponse is the subset of the Serper response we use.
type SearchResponse struct {
	Organic []OrganicResult `json:"organic"`
}

// OrganicResult is one Google organic hit.
type OrganicResult struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}
