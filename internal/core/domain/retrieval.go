package domain

type Hit struct {
	ID        string  `json:"id"`
	Score     float64 `json:"score"`
	ChunkText string  `json:"chunk_text"`
	Source    string  `json:"source"`
	Pages     string  `json:"pages"`
}

// Citation renders the human-readable reference of a hit.
func (h Hit) Citation() string {
	if h.Pages == "" {
		return h.Source
	}
	return h.Source + ", p." + h.Pages
}

type AnswerRequest struct {
	Question    string
	UseReranker bool
	TopK        int
	TopN        int
}

// Answer carries the generated text and the hits of every pipeline stage.
// RerankedHits is nil when reranking was not requested.
type Answer struct {
	Text          string `json:"answer"`
	ContextHits   []Hit  `json:"context_hits"`
	RetrievedHits []Hit  `json:"retrieved_hits"`
	RerankedHits  []Hit  `json:"reranked_hits,omitempty"`
}
