package vectordb

import (
	"context"
	"errors"
	"time"
)

// Provider enumerates supported vector store backends.
type Provider string

const (
	ProviderPGVector Provider = "pgvector"
	// ProviderMemory keeps passages in process; used by tests and local runs.
	ProviderMemory Provider = "memory"
)

const (
	DocumentsTable = "transcript_documents"
	PassagesTable  = "transcript_passages"
)

var (
	ErrUnsupportedProvider = errors.New("vector_db provider is not supported")
	ErrDocumentNotFound    = errors.New("document not found")
	ErrDimensionMismatch   = errors.New("vector dimension mismatch")
	// ErrIDConflict is returned when a legacy id rename collides with a row
	// created concurrently under the normalized id.
	ErrIDConflict = errors.New("document id conflict")
)

// Document is the per-transcript record stored next to its passages.
type Document struct {
	ID           string
	Title        string
	SourceRef    string
	ContentHash  string
	PassageCount int
	Metadata     map[string]any
	UpdatedAt    time.Time
}

// Passage is one embedded chunk of a document.
type Passage struct {
	DocumentID string
	Index      int
	Text       string
	Timestamp  string
	Tokens     int
	Embedding  []float32
}

// SearchOptions controls similarity search execution. A nil DocumentIDs
// searches every document.
type SearchOptions struct {
	MinSimilarity  float64
	MaxPerDocument int
	MaxResults     int
	DocumentIDs    []string
}

// Match captures a similarity search result. Similarity is 1 - cosine distance.
type Match struct {
	DocumentID string  `db:"document_id"`
	Title      string  `db:"title"`
	SourceRef  string  `db:"source_ref"`
	Index      int     `db:"seq"`
	Text       string  `db:"content"`
	Timestamp  string  `db:"ts_label"`
	Similarity float64 `db:"similarity"`
}

// IDChange records one legacy id rewritten to its normalized form.
type IDChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// MigrationReport describes the outcome of MigrateLegacyIDs.
type MigrationReport struct {
	DryRun  bool       `json:"dry_run"`
	Renamed []IDChange `json:"renamed"`
	// Dropped lists legacy ids removed because the normalized id already existed.
	Dropped []IDChange `json:"dropped"`
	// Skipped lists ids that normalize to nothing and were left untouched.
	Skipped []string `json:"skipped"`
}

// Store exposes the contract for ingestion and retrieval.
type Store interface {
	// Replace atomically swaps every passage of doc.ID for passages.
	Replace(ctx context.Context, doc *Document, passages []Passage) error
	Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error)
	// SetDocumentMetadata merges metadata into the document's existing metadata.
	SetDocumentMetadata(ctx context.Context, id string, metadata map[string]any) error
	DeleteDocument(ctx context.Context, id string) error
	MigrateLegacyIDs(ctx context.Context, dryRun bool) (*MigrationReport, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Config captures the store selection and vector shape.
type Config struct {
	Provider  Provider
	Dimension int
}
