package domain

import "time"

// Page is the text of one source page as produced by an extractor.
type Page struct {
	Number int    `json:"page_number"`
	Text   string `json:"text"`
}

// Chunk is a window over the normalized document stream.
// PageNumbers is distinct and ascending.
type Chunk struct {
	Text        string `json:"chunk_text"`
	PageNumbers []int  `json:"page_numbers"`
}

// Record is the unit handed to the vector index.
type Record struct {
	ID        string `json:"id"`
	ChunkText string `json:"chunk_text"`
	Source    string `json:"source"`
	Pages     string `json:"pages"`
}

type IngestionStatus string

const (
	IngestionQueued     IngestionStatus = "queued"
	IngestionProcessing IngestionStatus = "processing"
	IngestionCompleted  IngestionStatus = "completed"
	IngestionSkipped    IngestionStatus = "skipped"
	IngestionFailed     IngestionStatus = "failed"
)

// Ingestion is one ingestion run tracked by the ledger.
type Ingestion struct {
	ID        string          `json:"id"`
	FilePath  string          `json:"file_path"`
	Source    string          `json:"source"`
	Status    IngestionStatus `json:"status"`
	Records   int             `json:"records"`
	Upserted  int             `json:"upserted"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// IngestResult summarizes a synchronous ingest + index run.
type IngestResult struct {
	File     string `json:"file"`
	Source   string `json:"source"`
	Records  int    `json:"records"`
	Upserted int    `json:"upserted"`
	Skipped  bool   `json:"skipped"`
}
