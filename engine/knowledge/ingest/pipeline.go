package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sethvargo/go-retry"

	"github.com/compozy/transcripts/engine/knowledge"
	"github.com/compozy/transcripts/engine/knowledge/chunk"
	"github.com/compozy/transcripts/engine/knowledge/docid"
	"github.com/compozy/transcripts/engine/knowledge/vectordb"
	llmadapter "github.com/compozy/transcripts/engine/llm/adapter"
	"github.com/compozy/transcripts/pkg/logger"
)

// Embedder is the batch embedding capability the pipeline needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Document is one transcript submitted for indexing.
type Document struct {
	ID        string
	Title     string
	SourceRef string
	Body      string
}

// TaskResult records the outcome of one best-effort enrichment task.
type TaskResult struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Result describes an ingestion. Valid=false with a Reason is a soft
// failure, not an error.
type Result struct {
	DocumentID    string       `json:"documentId"`
	ChunksCreated int          `json:"chunksCreated"`
	Valid         bool         `json:"valid"`
	Reason        Reason       `json:"reason,omitempty"`
	ContentLength int          `json:"contentLength"`
	Partial       bool         `json:"partial"`
	Tasks         []TaskResult `json:"tasks"`
}

type Pipeline struct {
	chunker  *chunk.Processor
	embedder Embedder
	store    vectordb.Store
	tasks    []Enrichment
	options  Options
}

// NewPipeline wires the chunker, embedder and store. completer is only
// required when the summary enrichment is enabled.
func NewPipeline(
	chunker *chunk.Processor,
	emb Embedder,
	store vectordb.Store,
	completer llmadapter.Client,
	opts *Options,
) (*Pipeline, error) {
	if chunker == nil {
		return nil, errors.New("ingest: chunker is required")
	}
	if emb == nil {
		return nil, errors.New("ingest: embedder is required")
	}
	if store == nil {
		return nil, errors.New("ingest: vector store is required")
	}
	options := opts.withDefaults()
	tasks, err := buildEnrichments(options.Enrichments, options.Estimator, completer)
	if err != nil {
		return nil, err
	}
	return &Pipeline{chunker: chunker, embedder: emb, store: store, tasks: tasks, options: options}, nil
}

// Ingest validates, chunks, embeds and atomically replaces the document's
// passages, then runs enrichment tasks. Provider and store failures are
// returned as errors; validation problems are reported in the Result.
func (p *Pipeline) Ingest(ctx context.Context, doc Document) (*Result, error) {
	id := docid.Normalize(doc.ID)
	result := &Result{DocumentID: id, Tasks: []TaskResult{}}
	if id == "" {
		result.Reason = ReasonInvalidID
		knowledge.RecordIngestRejected(ctx, string(result.Reason))
		return result, nil
	}
	log := logger.FromContext(ctx).With("document_id", id)
	body := strings.TrimSpace(p.chunker.Body(doc.Body))
	result.ContentLength = utf8.RuneCountInString(body)
	switch {
	case body == "":
		result.Reason = ReasonEmptyBody
	case result.ContentLength < p.options.MinContentChars:
		result.Reason = ReasonTooShort
	}
	if result.Reason != "" {
		log.Info("Transcript rejected", "reason", result.Reason, "content_length", result.ContentLength)
		knowledge.RecordIngestRejected(ctx, string(result.Reason))
		return result, nil
	}
	chunks := p.chunker.Split(doc.Body)
	if len(chunks) == 0 {
		result.Reason = ReasonNoChunks
		knowledge.RecordIngestRejected(ctx, string(result.Reason))
		return result, nil
	}
	start := time.Now()
	defer func() { knowledge.RecordIngestDuration(ctx, time.Since(start)) }()
	vectors, err := p.embedWithRetry(ctx, chunks)
	if err != nil {
		return nil, err
	}
	passages := make([]vectordb.Passage, len(chunks))
	for i := range chunks {
		passages[i] = vectordb.Passage{
			DocumentID: id,
			Index:      chunks[i].Index,
			Text:       chunks[i].Text,
			Timestamp:  chunks[i].Timestamp,
			Tokens:     chunks[i].Tokens,
			Embedding:  vectors[i],
		}
	}
	record := &vectordb.Document{
		ID:           id,
		Title:        strings.TrimSpace(doc.Title),
		SourceRef:    strings.TrimSpace(doc.SourceRef),
		ContentHash:  contentHash(body),
		PassageCount: len(passages),
	}
	if err := p.store.Replace(ctx, record, passages); err != nil {
		return nil, fmt.Errorf("ingest: replace %q: %w", id, err)
	}
	result.Valid = true
	result.ChunksCreated = len(passages)
	knowledge.RecordIngestChunks(ctx, len(passages))
	log.Info("Transcript indexed", "chunks", len(passages), "content_length", result.ContentLength)
	p.enrich(ctx, &EnrichmentInput{DocumentID: id, Title: record.Title, Body: body, Chunks: chunks}, result)
	return result, nil
}

func (p *Pipeline) embedWithRetry(ctx context.Context, chunks []chunk.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}
	backoff := retry.WithMaxRetries(
		p.options.Retry.Attempts,
		retry.WithCappedDuration(p.options.Retry.Max, retry.NewExponential(p.options.Retry.Base)),
	)
	var vectors [][]float32
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		out, callErr := p.embedder.EmbedBatch(ctx, texts)
		if callErr != nil {
			if llmadapter.IsRetryable(callErr) && ctx.Err() == nil {
				logger.FromContext(ctx).Debug("Retrying transcript embedding", "error", callErr)
				return retry.RetryableError(callErr)
			}
			return callErr
		}
		vectors = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: embed passages: %w", llmadapter.Upstream(err))
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("ingest: embed passages: %w", llmadapter.Upstream(
			fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks)),
		))
	}
	return vectors, nil
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:16])
}
