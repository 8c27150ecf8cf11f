package search

// NoteRecord is the data we index for a note.
type NoteRecord struct {
	ID           int64  `json:"id"`
	OwnerID      string `json:"ownerId"`
	Title        string `json:"title"`
	CategoryName string `json:"categoryName"`
	Body         string `json:"body"`
}

// Result is a single search hit returned to the caller.
type Result struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	CategoryName string `json:"categoryName"`
	Snippet      string `json:"snippet"`
}

// Query describes a search request. OwnerID is mandatory: notes are never
// visible across owners, so every query is scoped.
type Query struct {
	Text    string
	OwnerID string
	Limit   int
	Offset  int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over notes.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push notes into a search index.
type Indexer interface {
	IndexNote(rec NoteRecord) error
	DeleteNote(id int64) error
}
