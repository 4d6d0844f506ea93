package domain

import "context"

// SearchResult is one ranked hit from a single search call.
// Position is 1-based and dense over the accepted results.
type SearchResult struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}

// Document is a single hit returned by a document Retriever.
type Document struct {
	Content string `json:"content"`
	Source  string `json:"source"`
	Title   string `json:"title"`
}

// Retriever looks up the k most relevant documents for a query in an
// external index.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Document, error)
}
