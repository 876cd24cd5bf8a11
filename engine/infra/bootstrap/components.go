package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/compozy/transcripts/engine/chat"
	"github.com/compozy/transcripts/engine/infra/cache"
	"github.com/compozy/transcripts/engine/infra/monitoring"
	"github.com/compozy/transcripts/engine/infra/postgres"
	"github.com/compozy/transcripts/engine/infra/server"
	"github.com/compozy/transcripts/engine/knowledge/chunk"
	"github.com/compozy/transcripts/engine/knowledge/embedder"
	"github.com/compozy/transcripts/engine/knowledge/ingest"
	"github.com/compozy/transcripts/engine/knowledge/retriever"
	"github.com/compozy/transcripts/engine/knowledge/rewriter"
	"github.com/compozy/transcripts/engine/knowledge/tokens"
	"github.com/compozy/transcripts/engine/knowledge/vectordb"
	"github.com/compozy/transcripts/engine/quota"
	"github.com/compozy/transcripts/engine/ratelimit"
	"github.com/compozy/transcripts/pkg/config"
	"github.com/compozy/transcripts/pkg/logger"
)

const cleanupTimeout = 10 * time.Second

// Components builds the service graph from configuration on demand. Each
// getter constructs its component once; Close releases them in reverse order.
type Components struct {
	cfg *config.Config

	db         *postgres.Store
	redis      *cache.Redis
	redisDone  bool
	store      vectordb.Store
	cache      *embedder.Cache
	provider   *embedder.CachedProvider
	estimator  tokens.Estimator
	pipeline   *ingest.Pipeline
	retriever  *retriever.Service
	limiter    *ratelimit.Limiter
	limitDone  bool
	quota      *quota.Service
	quotaDone  bool
	chat       *chat.Orchestrator
	monitoring *monitoring.Service

	cleanups []func(context.Context)
}

func New(cfg *config.Config) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	return &Components{cfg: cfg}, nil
}

func (c *Components) Config() *config.Config {
	return c.cfg
}

// Database opens the Postgres pool, applying migrations first when
// database.auto_migrate is set.
func (c *Components) Database(ctx context.Context) (*postgres.Store, error) {
	if c.db != nil {
		return c.db, nil
	}
	pgCfg := postgres.FromAppConfig(&c.cfg.Database)
	if c.cfg.Database.AutoMigrate {
		opts := postgres.MigrationOptions{Dimension: c.cfg.Knowledge.Dimension}
		if err := postgres.ApplyMigrationsWithLock(ctx, pgCfg.DSN(), opts); err != nil {
			return nil, fmt.Errorf("bootstrap: migrate database: %w", err)
		}
	}
	db, err := postgres.NewStore(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open database: %w", err)
	}
	c.db = db
	c.addCleanup(func(ctx context.Context) {
		if err := db.Close(ctx); err != nil {
			logger.FromContext(ctx).Warn("Failed to close database", "error", err)
		}
	})
	return db, nil
}

// Redis returns nil when no redis address is configured.
func (c *Components) Redis(ctx context.Context) (*cache.Redis, error) {
	if c.redisDone {
		return c.redis, nil
	}
	redisCfg := cache.FromAppConfig(&c.cfg.Redis)
	if redisCfg != nil {
		r, err := cache.NewRedis(ctx, redisCfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: connect redis: %w", err)
		}
		c.redis = r
		c.addCleanup(func(context.Context) { _ = r.Close() })
	}
	c.redisDone = true
	return c.redis, nil
}

// VectorStore selects pgvector or the in-process store.
func (c *Components) VectorStore(ctx context.Context) (vectordb.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	provider := vectordb.Provider(c.cfg.Knowledge.VectorStore)
	var db vectordb.DB
	if provider == vectordb.ProviderPGVector {
		pg, err := c.Database(ctx)
		if err != nil {
			return nil, err
		}
		db = pg.Pool()
	}
	store, err := vectordb.New(&vectordb.Config{Provider: provider, Dimension: c.cfg.Knowledge.Dimension}, db)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: vector store: %w", err)
	}
	c.store = store
	c.addCleanup(func(ctx context.Context) { _ = store.Close(ctx) })
	return store, nil
}

func (c *Components) EmbeddingCache() *embedder.Cache {
	if c.cache == nil {
		c.cache = embedder.NewCache(c.cfg.Knowledge.CacheSize, c.cfg.Knowledge.CacheTTL)
	}
	return c.cache
}

// Provider builds the embedding and completion upstream.
func (c *Components) Provider(ctx context.Context) (*embedder.CachedProvider, error) {
	if c.provider != nil {
		return c.provider, nil
	}
	llm := c.cfg.LLM
	p, err := embedder.NewProvider(ctx, &embedder.Config{
		Provider:       embedder.ProviderName(llm.Provider),
		APIKey:         llm.APIKey.Value(),
		BaseURL:        llm.BaseURL,
		ChatModel:      llm.ChatModel,
		EmbeddingModel: llm.EmbeddingModel,
		Dimension:      c.cfg.Knowledge.Dimension,
		BatchSize:      llm.EmbedBatchSize,
		StripNewLines:  true,
	}, c.EmbeddingCache())
	if err != nil {
		return nil, fmt.Errorf("bootstrap: llm provider: %w", err)
	}
	c.provider = p
	return p, nil
}

func (c *Components) Estimator(ctx context.Context) tokens.Estimator {
	if c.estimator == nil {
		c.estimator = tokens.New(ctx, c.cfg.Knowledge.TokenEstimator, c.cfg.LLM.ChatModel)
	}
	return c.estimator
}

// Pipeline wires chunking, embedding and storage for ingestion.
func (c *Components) Pipeline(ctx context.Context) (*ingest.Pipeline, error) {
	if c.pipeline != nil {
		return c.pipeline, nil
	}
	k := c.cfg.Knowledge
	est := c.Estimator(ctx)
	chunker, err := chunk.NewProcessor(chunk.Settings{
		TargetTokens:    k.ChunkTargetTokens,
		OverlapWords:    k.ChunkOverlapWords,
		HeaderDelimiter: chunk.DefaultHeaderDelimiter,
		Estimator:       est,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: chunker: %w", err)
	}
	provider, err := c.Provider(ctx)
	if err != nil {
		return nil, err
	}
	store, err := c.VectorStore(ctx)
	if err != nil {
		return nil, err
	}
	p, err := ingest.NewPipeline(chunker, provider, store, provider, &ingest.Options{
		MinContentChars: k.MinContentChars,
		Retry: ingest.RetrySettings{
			Attempts: k.EmbedRetryAttempts,
			Base:     k.EmbedRetryBase,
			Max:      k.EmbedRetryMax,
		},
		Enrichments:       k.Enrichments,
		EnrichmentTimeout: k.EnrichmentTimeout,
		Estimator:         est,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: ingestion pipeline: %w", err)
	}
	c.pipeline = p
	return p, nil
}

func (c *Components) Retriever(ctx context.Context) (*retriever.Service, error) {
	if c.retriever != nil {
		return c.retriever, nil
	}
	provider, err := c.Provider(ctx)
	if err != nil {
		return nil, err
	}
	store, err := c.VectorStore(ctx)
	if err != nil {
		return nil, err
	}
	k := c.cfg.Knowledge
	svc, err := retriever.NewService(provider, store, &retriever.Defaults{
		MinSimilarity:  k.MinSimilarity,
		MaxPerDocument: k.MaxPerDocument,
		MaxResults:     k.MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: retriever: %w", err)
	}
	c.retriever = svc
	return svc, nil
}

// Limiter returns nil when rate limiting is disabled. Counters live in Redis
// when an address is configured and in process memory otherwise.
func (c *Components) Limiter(ctx context.Context) (*ratelimit.Limiter, error) {
	if c.limitDone {
		return c.limiter, nil
	}
	rl := c.cfg.RateLimit
	if rl.Enabled {
		r, err := c.Redis(ctx)
		if err != nil {
			return nil, err
		}
		cfg := &ratelimit.Config{
			Endpoints: map[string]ratelimit.RateConfig{
				ratelimit.EndpointIngest: {Limit: rl.Ingest.Limit, Period: rl.Ingest.Period},
				ratelimit.EndpointQuery:  {Limit: rl.Query.Limit, Period: rl.Query.Period},
			},
			Prefix:          rl.Prefix,
			MaxRetry:        rl.MaxRetry,
			CleanupInterval: rl.CleanupInterval,
		}
		var lim *ratelimit.Limiter
		if r != nil {
			lim, err = ratelimit.NewLimiter(cfg, r.Client())
		} else {
			lim, err = ratelimit.NewLimiter(cfg, nil)
		}
		if err != nil {
			return nil, fmt.Errorf("bootstrap: rate limiter: %w", err)
		}
		c.limiter = lim
	}
	c.limitDone = true
	return c.limiter, nil
}

// Quota returns nil when quotas are disabled. Usage counters need Postgres,
// so the in-process vector store runs unmetered.
func (c *Components) Quota(ctx context.Context) (*quota.Service, error) {
	if c.quotaDone {
		return c.quota, nil
	}
	q := c.cfg.Quota
	switch {
	case !q.Enabled:
	case vectordb.Provider(c.cfg.Knowledge.VectorStore) != vectordb.ProviderPGVector:
		logger.FromContext(ctx).Warn("Usage quota requires postgres; running unmetered",
			"vector_store", c.cfg.Knowledge.VectorStore)
	default:
		db, err := c.Database(ctx)
		if err != nil {
			return nil, err
		}
		svc, err := quota.NewService(postgres.NewQuotaRepo(db.Pool()), &quota.Config{
			DefaultPlan: q.DefaultPlan,
			Plans:       q.Plans,
		})
		if err != nil {
			return nil, fmt.Errorf("bootstrap: quota: %w", err)
		}
		c.quota = svc
	}
	c.quotaDone = true
	return c.quota, nil
}

// Chat wires the query orchestrator with its admission controls.
func (c *Components) Chat(ctx context.Context) (*chat.Orchestrator, error) {
	if c.chat != nil {
		return c.chat, nil
	}
	provider, err := c.Provider(ctx)
	if err != nil {
		return nil, err
	}
	ret, err := c.Retriever(ctx)
	if err != nil {
		return nil, err
	}
	limiter, quotaSvc, err := c.admission(ctx)
	if err != nil {
		return nil, err
	}
	llm := c.cfg.LLM
	rw := rewriter.New(provider, &rewriter.Options{
		MaxTurns: llm.RewriteMaxTurns,
		Timeout:  llm.RewriteTimeout,
	})
	orch, err := chat.NewOrchestrator(limiter, quotaSvc, rw, ret, provider, &chat.Options{
		Temperature: llm.Temperature,
		MaxTokens:   llm.MaxTokens,
		Prompt:      chat.NewPromptBuilder(c.Estimator(ctx), c.cfg.Knowledge.MaxContextTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: chat orchestrator: %w", err)
	}
	c.chat = orch
	return orch, nil
}

// admission returns the limiter and quota as interfaces, leaving them
// untyped nil when disabled.
func (c *Components) admission(ctx context.Context) (chat.RateLimiter, chat.QuotaService, error) {
	var (
		limiter  chat.RateLimiter
		quotaSvc chat.QuotaService
	)
	lim, err := c.Limiter(ctx)
	if err != nil {
		return nil, nil, err
	}
	if lim != nil {
		limiter = lim
	}
	q, err := c.Quota(ctx)
	if err != nil {
		return nil, nil, err
	}
	if q != nil {
		quotaSvc = q
	}
	return limiter, quotaSvc, nil
}

// Monitoring never fails; a bad configuration yields a disabled service.
func (c *Components) Monitoring(ctx context.Context) *monitoring.Service {
	if c.monitoring != nil {
		return c.monitoring
	}
	mon := monitoring.NewServiceWithFallback(ctx, &monitoring.Config{
		Enabled: c.cfg.Monitoring.Enabled,
		Path:    c.cfg.Monitoring.Path,
	})
	if mon.IsInitialized() {
		mon.SetAsGlobal()
	}
	c.monitoring = mon
	return mon
}

// ServerDependencies assembles everything the HTTP surface needs.
func (c *Components) ServerDependencies(ctx context.Context) (*server.Dependencies, error) {
	pipeline, err := c.Pipeline(ctx)
	if err != nil {
		return nil, err
	}
	orch, err := c.Chat(ctx)
	if err != nil {
		return nil, err
	}
	store, err := c.VectorStore(ctx)
	if err != nil {
		return nil, err
	}
	limiter, quotaSvc, err := c.admission(ctx)
	if err != nil {
		return nil, err
	}
	return &server.Dependencies{
		Ingester:   pipeline,
		Chat:       orch,
		Store:      store,
		Limiter:    limiter,
		Quota:      quotaSvc,
		Cache:      c.EmbeddingCache(),
		Monitoring: c.Monitoring(ctx),
	}, nil
}

// Close releases components in reverse construction order.
func (c *Components) Close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	for i := len(c.cleanups) - 1; i >= 0; i-- {
		c.cleanups[i](ctx)
	}
	c.cleanups = nil
}

func (c *Components) addCleanup(fn func(context.Context)) {
	c.cleanups = append(c.cleanups, fn)
}
