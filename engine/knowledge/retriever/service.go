package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/compozy/transcripts/engine/knowledge"
	"github.com/compozy/transcripts/engine/knowledge/docid"
	"github.com/compozy/transcripts/engine/knowledge/vectordb"
	llmadapter "github.com/compozy/transcripts/engine/llm/adapter"
	"github.com/compozy/transcripts/pkg/logger"
)

const (
	DefaultMinSimilarity  = 0.7
	DefaultMaxPerDocument = 5
	DefaultMaxResults     = 20
)

var (
	ErrEmptyQuery = errors.New("retriever: query is required")
	// ErrEmptyScope rejects an explicit allow-list with no usable ids.
	ErrEmptyScope = errors.New("retriever: scope must list at least one document")
)

// QueryEmbedder embeds a single query text.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Query describes one retrieval. A nil Scope searches every document; a
// non-nil Scope restricts the search to the listed ids. Zero limits and a
// nil MinSimilarity use the service defaults; an explicit 0 disables the
// similarity floor.
type Query struct {
	Text           string
	Scope          []string
	MinSimilarity  *float64
	MaxPerDocument int
	MaxResults     int
}

// Defaults are the limits applied to queries that leave them unset.
type Defaults struct {
	MinSimilarity  float64
	MaxPerDocument int
	MaxResults     int
}

func DefaultDefaults() Defaults {
	return Defaults{
		MinSimilarity:  DefaultMinSimilarity,
		MaxPerDocument: DefaultMaxPerDocument,
		MaxResults:     DefaultMaxResults,
	}
}

type Service struct {
	embedder QueryEmbedder
	store    vectordb.Store
	defaults Defaults
	tracer   trace.Tracer
}

func NewService(emb QueryEmbedder, store vectordb.Store, defaults *Defaults) (*Service, error) {
	if emb == nil {
		return nil, errors.New("retriever: embedder is required")
	}
	if store == nil {
		return nil, errors.New("retriever: vector store is required")
	}
	d := DefaultDefaults()
	if defaults != nil {
		if defaults.MinSimilarity > 0 {
			d.MinSimilarity = defaults.MinSimilarity
		}
		if defaults.MaxPerDocument > 0 {
			d.MaxPerDocument = defaults.MaxPerDocument
		}
		if defaults.MaxResults > 0 {
			d.MaxResults = defaults.MaxResults
		}
	}
	return &Service{
		embedder: emb,
		store:    store,
		defaults: d,
		tracer:   otel.Tracer("transcripts.knowledge.retriever"),
	}, nil
}

// Search embeds the query and returns passages ranked per document and
// globally. Matches are ordered by similarity descending.
func (s *Service) Search(ctx context.Context, q *Query) (matches []vectordb.Match, err error) {
	opts, err := s.buildSearchOptions(q)
	if err != nil {
		return nil, err
	}
	scoped := opts.DocumentIDs != nil
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "transcripts.knowledge.retriever.search", trace.WithAttributes(
		attribute.Bool("scoped", scoped),
		attribute.Int("scope_size", len(opts.DocumentIDs)),
		attribute.Float64("min_similarity", opts.MinSimilarity),
	))
	defer s.finishSearch(ctx, span, start, scoped, &matches, &err)

	vector, err := s.embedQuery(ctx, q.Text)
	if err != nil {
		return nil, err
	}
	found, err := s.searchStore(ctx, vector, opts)
	if err != nil {
		return nil, err
	}
	matches = vectordb.Rank(found, opts.MaxPerDocument, opts.MaxResults)
	return matches, nil
}

func (s *Service) buildSearchOptions(q *Query) (vectordb.SearchOptions, error) {
	if q == nil || strings.TrimSpace(q.Text) == "" {
		return vectordb.SearchOptions{}, ErrEmptyQuery
	}
	opts := vectordb.SearchOptions{
		MinSimilarity:  s.defaults.MinSimilarity,
		MaxPerDocument: q.MaxPerDocument,
		MaxResults:     q.MaxResults,
	}
	if q.MinSimilarity != nil {
		opts.MinSimilarity = *q.MinSimilarity
	}
	if opts.MaxPerDocument <= 0 {
		opts.MaxPerDocument = s.defaults.MaxPerDocument
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = s.defaults.MaxResults
	}
	if q.Scope != nil {
		ids, err := normalizeScope(q.Scope)
		if err != nil {
			return vectordb.SearchOptions{}, err
		}
		opts.DocumentIDs = ids
	}
	return opts, nil
}

// normalizeScope maps scope ids to their canonical form, dropping
// duplicates and ids that normalize to nothing.
func normalizeScope(scope []string) ([]string, error) {
	seen := make(map[string]struct{}, len(scope))
	ids := make([]string, 0, len(scope))
	for _, raw := range scope {
		id := docid.Normalize(raw)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, ErrEmptyScope
	}
	return ids, nil
}

func (s *Service) embedQuery(ctx context.Context, text string) ([]float32, error) {
	spanCtx, span := s.tracer.Start(ctx, "transcripts.knowledge.retriever.embed_query")
	defer span.End()
	vector, err := s.embedder.Embed(spanCtx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("retriever: embed query: %w", llmadapter.Upstream(err))
	}
	return vector, nil
}

func (s *Service) searchStore(
	ctx context.Context,
	vector []float32,
	opts vectordb.SearchOptions,
) ([]vectordb.Match, error) {
	spanCtx, span := s.tracer.Start(ctx, "transcripts.knowledge.retriever.vector_search", trace.WithAttributes(
		attribute.Int("max_per_document", opts.MaxPerDocument),
		attribute.Int("max_results", opts.MaxResults),
	))
	defer span.End()
	matches, err := s.store.Search(spanCtx, vector, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("retriever: vector search: %w", err)
	}
	span.SetAttributes(attribute.Int("matches", len(matches)))
	return matches, nil
}

func (s *Service) finishSearch(
	ctx context.Context,
	span trace.Span,
	start time.Time,
	scoped bool,
	matches *[]vectordb.Match,
	runErr *error,
) {
	duration := time.Since(start)
	knowledge.RecordQueryLatency(ctx, scoped, duration)
	log := logger.FromContext(ctx)
	if runErr != nil && *runErr != nil {
		err := *runErr
		log.Error("Passage retrieval failed", "error", err, "duration_seconds", duration.Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return
	}
	total := 0
	if matches != nil {
		total = len(*matches)
	}
	if total == 0 {
		knowledge.RecordRetrievalEmpty(ctx, scoped)
	}
	log.Debug("Passage retrieval finished", "results", total, "scoped", scoped, "duration_seconds", duration.Seconds())
	span.SetAttributes(attribute.Int("results", total))
	span.End()
}
