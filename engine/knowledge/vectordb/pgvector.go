package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/compozy/transcripts/pkg/logger"
)

const (
	candidateMultiplier = 10
	minCandidates       = 100
	maxCandidates       = 2000
)

// DB is the subset of pgxpool.Pool used by the store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

type pgStore struct {
	db        DB
	dimension int
	psql      sq.StatementBuilderType
}

// NewPGStore builds a pgvector-backed store. Schema is owned by the
// postgres migrations.
func NewPGStore(db DB, dimension int) Store {
	return &pgStore{
		db:        db,
		dimension: dimension,
		psql:      sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (p *pgStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, txErr := p.db.BeginTx(ctx, pgx.TxOptions{})
	if txErr != nil {
		return fmt.Errorf("pgvector: begin tx: %w", txErr)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("pgvector: rollback failed: %w; original error: %v", rbErr, err)
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("pgvector: commit: %w", commitErr)
		}
	}()
	return fn(tx)
}

// Replace deletes every passage stored under doc.ID, upserts the document
// row and inserts the new passages in one transaction.
func (p *pgStore) Replace(ctx context.Context, doc *Document, passages []Passage) error {
	if doc == nil || doc.ID == "" {
		return errors.New("pgvector: replace: document id is required")
	}
	for i := range passages {
		if err := checkDimension(passages[i].Embedding, p.dimension); err != nil {
			return fmt.Errorf("pgvector: replace %q passage %d: %w", doc.ID, passages[i].Index, err)
		}
	}
	metadata, err := json.Marshal(nonNilMap(doc.Metadata))
	if err != nil {
		return fmt.Errorf("pgvector: marshal metadata for %q: %w", doc.ID, err)
	}
	deleteSQL, deleteArgs, err := p.psql.Delete(PassagesTable).Where(sq.Eq{"document_id": doc.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("pgvector: build delete: %w", err)
	}
	upsertSQL, upsertArgs, err := p.psql.Insert(DocumentsTable).
		Columns("id", "title", "source_ref", "content_hash", "passage_count", "metadata", "updated_at").
		Values(doc.ID, doc.Title, doc.SourceRef, doc.ContentHash, len(passages), metadata, time.Now().UTC()).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
    title = EXCLUDED.title,
    source_ref = EXCLUDED.source_ref,
    content_hash = EXCLUDED.content_hash,
    passage_count = EXCLUDED.passage_count,
    metadata = EXCLUDED.metadata,
    updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("pgvector: build upsert: %w", err)
	}
	return p.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, deleteSQL, deleteArgs...); err != nil {
			return fmt.Errorf("pgvector: delete passages of %q: %w", doc.ID, err)
		}
		if _, err := tx.Exec(ctx, upsertSQL, upsertArgs...); err != nil {
			return fmt.Errorf("pgvector: upsert document %q: %w", doc.ID, err)
		}
		if len(passages) == 0 {
			return nil
		}
		insert := p.psql.Insert(PassagesTable).
			Columns("document_id", "seq", "content", "ts_label", "tokens", "embedding")
		for i := range passages {
			ps := &passages[i]
			insert = insert.Values(doc.ID, ps.Index, ps.Text, ps.Timestamp, ps.Tokens, pgvector.NewVector(ps.Embedding))
		}
		insertSQL, insertArgs, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("pgvector: build passage insert: %w", err)
		}
		if _, err := tx.Exec(ctx, insertSQL, insertArgs...); err != nil {
			return fmt.Errorf("pgvector: insert passages of %q: %w", doc.ID, err)
		}
		return nil
	})
}

// Search ranks inside SQL. Nearest neighbors are pre-selected with an
// ORDER BY distance LIMIT scan so the ivfflat index applies, then
// ROW_NUMBER keeps the best MaxPerDocument rows of each document before the
// global order and limit.
func (p *pgStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if err := checkDimension(query, p.dimension); err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}
	sqlText, args, err := p.searchQuery(query, opts)
	if err != nil {
		return nil, fmt.Errorf("pgvector: build search: %w", err)
	}
	start := time.Now()
	var matches []Match
	if err := pgxscan.Select(ctx, p.db, &matches, sqlText, args...); err != nil {
		recordVectorError(ctx, "search")
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}
	recordVectorSearch(ctx, string(ProviderPGVector), time.Since(start), len(matches))
	if matches == nil {
		matches = []Match{}
	}
	return matches, nil
}

// candidateLimit sizes the nearest-neighbor pre-selection. Per-document caps
// discard candidates, so the pool is a multiple of the requested results.
// Without a result cap the search falls back to an exact scan.
func candidateLimit(opts SearchOptions) uint64 {
	if opts.MaxResults <= 0 {
		return 0
	}
	n := opts.MaxResults * candidateMultiplier
	return uint64(min(max(n, minCandidates), maxCandidates))
}

func (p *pgStore) searchQuery(query []float32, opts SearchOptions) (string, []any, error) {
	vec := pgvector.NewVector(query)
	maxPerDocument := opts.MaxPerDocument
	if maxPerDocument <= 0 {
		maxPerDocument = 1 << 30
	}
	candidates := sq.Select("p.document_id", "p.seq", "p.content", "p.ts_label").
		Column("p.embedding <=> ? AS distance", vec).
		From(PassagesTable + " p")
	if opts.DocumentIDs != nil {
		candidates = candidates.Where("p.document_id = ANY(?)", opts.DocumentIDs)
	}
	candidates = candidates.OrderByClause("p.embedding <=> ?", vec)
	if limit := candidateLimit(opts); limit > 0 {
		candidates = candidates.Limit(limit)
	}
	ranked := sq.Select("c.document_id", "d.title", "d.source_ref", "c.seq", "c.content", "c.ts_label").
		Column("1 - c.distance AS similarity").
		Column("ROW_NUMBER() OVER (PARTITION BY c.document_id ORDER BY c.distance ASC, c.seq ASC) AS doc_rank").
		FromSelect(candidates, "c").
		Join(DocumentsTable + " d ON d.id = c.document_id").
		Where("1 - c.distance >= ?", opts.MinSimilarity)
	outer := p.psql.Select("document_id", "title", "source_ref", "seq", "content", "ts_label", "similarity").
		FromSelect(ranked, "ranked").
		Where(sq.LtOrEq{"doc_rank": maxPerDocument}).
		OrderBy("similarity DESC", "document_id ASC", "seq ASC")
	if opts.MaxResults > 0 {
		outer = outer.Limit(uint64(opts.MaxResults))
	}
	return outer.ToSql()
}

func (p *pgStore) SetDocumentMetadata(ctx context.Context, id string, metadata map[string]any) error {
	raw, err := json.Marshal(nonNilMap(metadata))
	if err != nil {
		return fmt.Errorf("pgvector: marshal metadata for %q: %w", id, err)
	}
	sqlText, args, err := p.psql.Update(DocumentsTable).
		Set("metadata", sq.Expr("metadata || ?::jsonb", raw)).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("pgvector: build metadata update: %w", err)
	}
	tag, err := p.db.Exec(ctx, sqlText, args...)
	if err != nil {
		return fmt.Errorf("pgvector: set metadata %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pgvector: set metadata %q: %w", id, ErrDocumentNotFound)
	}
	return nil
}

func (p *pgStore) DeleteDocument(ctx context.Context, id string) error {
	return p.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM "+PassagesTable+" WHERE document_id = $1", id); err != nil {
			return fmt.Errorf("pgvector: delete passages of %q: %w", id, err)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM "+DocumentsTable+" WHERE id = $1", id); err != nil {
			return fmt.Errorf("pgvector: delete document %q: %w", id, err)
		}
		return nil
	})
}

// MigrateLegacyIDs rewrites stored ids to their normalized form in one
// transaction. Passages follow through ON UPDATE/DELETE CASCADE.
func (p *pgStore) MigrateLegacyIDs(ctx context.Context, dryRun bool) (*MigrationReport, error) {
	log := logger.FromContext(ctx)
	var report *MigrationReport
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		var ids []string
		if err := pgxscan.Select(ctx, tx, &ids, "SELECT id FROM "+DocumentsTable+" ORDER BY id FOR UPDATE"); err != nil {
			return fmt.Errorf("pgvector: list document ids: %w", err)
		}
		report = planMigration(ids)
		report.DryRun = dryRun
		if dryRun {
			return nil
		}
		for _, change := range report.Renamed {
			_, err := tx.Exec(ctx, "UPDATE "+DocumentsTable+" SET id = $1, updated_at = now() WHERE id = $2",
				change.To, change.From)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("pgvector: rename %q to %q: %w", change.From, change.To, ErrIDConflict)
				}
				return fmt.Errorf("pgvector: rename %q to %q: %w", change.From, change.To, err)
			}
			log.Info("Renamed legacy document id", "from", change.From, "to", change.To)
		}
		for _, change := range report.Dropped {
			if _, err := tx.Exec(ctx, "DELETE FROM "+DocumentsTable+" WHERE id = $1", change.From); err != nil {
				return fmt.Errorf("pgvector: drop legacy %q: %w", change.From, err)
			}
			log.Info("Dropped legacy document id", "from", change.From, "kept", change.To)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (p *pgStore) Ping(ctx context.Context) error {
	if err := p.db.Ping(ctx); err != nil {
		return fmt.Errorf("pgvector: ping: %w", err)
	}
	var exists bool
	if err := p.db.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", PassagesTable).Scan(&exists); err != nil {
		return fmt.Errorf("pgvector: check schema: %w", err)
	}
	if !exists {
		return fmt.Errorf("pgvector: table %s is missing, run migrations", PassagesTable)
	}
	return nil
}

// Close is a no-op: the pool belongs to the postgres store.
func (p *pgStore) Close(context.Context) error {
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
