package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/transcripts/engine/chat"
	"github.com/compozy/transcripts/engine/infra/monitoring"
	"github.com/compozy/transcripts/engine/infra/server/router"
	"github.com/compozy/transcripts/engine/infra/server/routes"
	"github.com/compozy/transcripts/engine/knowledge/embedder"
	"github.com/compozy/transcripts/engine/knowledge/ingest"
	"github.com/compozy/transcripts/engine/knowledge/retriever"
	"github.com/compozy/transcripts/engine/knowledge/vectordb"
	llmadapter "github.com/compozy/transcripts/engine/llm/adapter"
	"github.com/compozy/transcripts/engine/quota"
	"github.com/compozy/transcripts/engine/ratelimit"
	"github.com/compozy/transcripts/pkg/config"
)

type stubIngester struct {
	mu     sync.Mutex
	result *ingest.Result
	err    error
	docs   []ingest.Document
}

func (s *stubIngester) Ingest(_ context.Context, doc ingest.Document) (*ingest.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &ingest.Result{DocumentID: doc.ID, Valid: true, ChunksCreated: 3, ContentLength: 900, Tasks: []ingest.TaskResult{}}, nil
}

type stubStore struct{ err error }

func (s stubStore) Ping(context.Context) error { return s.err }

type stubQuota struct {
	mu         sync.Mutex
	status     quota.Status
	increments []string
	plans      []string
}

func (s *stubQuota) Check(_ context.Context, _, _, plan string) quota.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = append(s.plans, plan)
	return s.status
}

func (s *stubQuota) Increment(_ context.Context, userID, feature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.increments = append(s.increments, userID+"/"+feature)
	return nil
}

type stubRetriever struct {
	matches []vectordb.Match
	err     error
	last    *retriever.Query
}

func (s *stubRetriever) Search(_ context.Context, q *retriever.Query) ([]vectordb.Match, error) {
	s.last = q
	return s.matches, s.err
}

type stubClient struct {
	deltas  []llmadapter.Delta
	openErr error
}

func (s *stubClient) Complete(context.Context, *llmadapter.CompletionRequest) (string, error) {
	return "", nil
}

func (s *stubClient) CompleteStream(context.Context, *llmadapter.CompletionRequest) (<-chan llmadapter.Delta, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	out := make(chan llmadapter.Delta, len(s.deltas))
	for _, d := range s.deltas {
		out <- d
	}
	close(out)
	return out, nil
}

type stubCache struct{}

func (stubCache) Stats() embedder.CacheStats { return embedder.CacheStats{Hits: 4, Misses: 1, Size: 5} }

type fixture struct {
	server    *Server
	ingester  *stubIngester
	quota     *stubQuota
	retriever *stubRetriever
	client    *stubClient
}

type fixtureOptions struct {
	limits     map[string]ratelimit.RateConfig
	store      HealthChecker
	monitoring *monitoring.Service
	maxBody    int64
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &fixture{
		ingester: &stubIngester{},
		quota:    &stubQuota{status: quota.Status{Allowed: true, Limit: 20, Remaining: 19}},
		retriever: &stubRetriever{matches: []vectordb.Match{
			{DocumentID: "weekly-sync", Title: "Weekly Sync", Index: 0, Text: "We agreed on the roadmap.", Timestamp: "00:01:00", Similarity: 0.91},
		}},
		client: &stubClient{deltas: []llmadapter.Delta{{Text: "The roadmap "}, {Text: "was agreed."}}},
	}
	rlCfg := ratelimit.DefaultConfig()
	if opts.limits != nil {
		rlCfg.Endpoints = opts.limits
	}
	limiter, err := ratelimit.NewLimiter(rlCfg, nil)
	require.NoError(t, err)
	orchestrator, err := chat.NewOrchestrator(limiter, f.quota, nil, f.retriever, f.client, nil)
	require.NoError(t, err)
	store := opts.store
	if store == nil {
		store = stubStore{}
	}
	cfg := config.Default().Server
	if opts.maxBody > 0 {
		cfg.MaxBodyBytes = opts.maxBody
	}
	srv, err := NewServer(context.Background(), &cfg, &Dependencies{
		Ingester:   f.ingester,
		Chat:       orchestrator,
		Store:      store,
		Limiter:    limiter,
		Quota:      f.quota,
		Cache:      stubCache{},
		Monitoring: opts.monitoring,
	})
	require.NoError(t, err)
	f.server = srv
	return f
}

func (f *fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) router.ProblemDocument {
	t.Helper()
	assert.Equal(t, router.ProblemContentType, w.Header().Get("Content-Type"))
	var doc router.ProblemDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	return doc
}

const validIngest = `{"documentId":"team/weekly-sync","title":"Weekly Sync","sourceRef":"s3://bucket/weekly.txt","body":"..."}`

func TestHealth(t *testing.T) {
	t.Run("Should report ready when the store answers", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		w := f.do(http.MethodGet, routes.Health(), "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"ready":true`)
	})

	t.Run("Should report 503 when the store is unreachable", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{store: stubStore{err: errors.New("connection refused")}})
		w := f.do(http.MethodGet, routes.Health(), "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), statusNotReady)
		assert.Contains(t, w.Body.String(), "connection refused")
	})
}

func TestIngestHandler(t *testing.T) {
	t.Run("Should index a transcript and record quota usage", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		w := f.do(http.MethodPost, routes.Ingest(), validIngest, map[string]string{HeaderUserID: "ana", HeaderUserPlan: "PRO"})
		require.Equal(t, http.StatusOK, w.Code)
		var result ingest.Result
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.True(t, result.Valid)
		assert.Equal(t, 3, result.ChunksCreated)
		require.Len(t, f.ingester.docs, 1)
		assert.Equal(t, "team/weekly-sync", f.ingester.docs[0].ID)
		assert.Equal(t, "s3://bucket/weekly.txt", f.ingester.docs[0].SourceRef)
		assert.Equal(t, []string{"ana/ingest"}, f.quota.increments)
		assert.Equal(t, []string{"pro"}, f.quota.plans)
	})

	t.Run("Should return soft failures as 200 without consuming quota", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		f.ingester.result = &ingest.Result{DocumentID: "x", Valid: false, Reason: ingest.ReasonTooShort, Tasks: []ingest.TaskResult{}}
		w := f.do(http.MethodPost, routes.Ingest(), validIngest, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"reason":"too_short"`)
		assert.Empty(t, f.quota.increments)
	})

	t.Run("Should reject malformed bodies with a problem", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		w := f.do(http.MethodPost, routes.Ingest(), `{"documentId":`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, router.ErrBadRequestCode, decodeProblem(t, w).Code)

		w = f.do(http.MethodPost, routes.Ingest(), `{"title":"no id"}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, f.ingester.docs)
	})

	t.Run("Should reject bodies over the size limit", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{maxBody: 64})
		body := `{"documentId":"a","body":"` + strings.Repeat("x", 200) + `"}`
		w := f.do(http.MethodPost, routes.Ingest(), body, nil)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, router.ErrPayloadTooLargeCode, decodeProblem(t, w).Code)
	})

	t.Run("Should answer 429 with retry headers once the window is spent", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{limits: map[string]ratelimit.RateConfig{
			ratelimit.EndpointIngest: {Limit: 1, Period: time.Minute},
		}})
		headers := map[string]string{HeaderUserID: "bo"}
		require.Equal(t, http.StatusOK, f.do(http.MethodPost, routes.Ingest(), validIngest, headers).Code)
		w := f.do(http.MethodPost, routes.Ingest(), validIngest, headers)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
		assert.NotEmpty(t, w.Header().Get("Retry-After"))
		doc := decodeProblem(t, w)
		assert.Equal(t, router.ErrRateLimitedCode, doc.Code)
		assert.GreaterOrEqual(t, doc.RetryAfter, 1)
		assert.Len(t, f.ingester.docs, 1)

		other := f.do(http.MethodPost, routes.Ingest(), validIngest, map[string]string{HeaderUserID: "cy"})
		assert.Equal(t, http.StatusOK, other.Code)
	})

	t.Run("Should answer 429 quota_exceeded when the daily quota is spent", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		reset := time.Now().Add(3 * time.Hour).UTC().Truncate(time.Second)
		f.quota.status = quota.Status{Allowed: false, Limit: 5, Used: 5, ResetAt: reset}
		w := f.do(http.MethodPost, routes.Ingest(), validIngest, nil)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, router.ErrQuotaExceededCode, decodeProblem(t, w).Code)
		assert.Empty(t, f.ingester.docs)
	})

	t.Run("Should map provider failures to 502 and store failures to 500", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		f.ingester.err = llmadapter.Upstream(errors.New("503 service unavailable"))
		w := f.do(http.MethodPost, routes.Ingest(), validIngest, nil)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, router.ErrUpstreamCode, decodeProblem(t, w).Code)

		f.ingester.err = errors.New("ingest: replace: connection reset")
		w = f.do(http.MethodPost, routes.Ingest(), validIngest, nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection reset")
	})
}

func sseEvents(t *testing.T, body string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, frame := range strings.Split(strings.TrimSpace(body), "\n\n") {
		payload, ok := strings.CutPrefix(frame, "data: ")
		require.True(t, ok, "frame %q", frame)
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(payload), &ev))
		out = append(out, ev)
	}
	return out
}

func TestQueryHandler(t *testing.T) {
	t.Run("Should stream sources, content and done", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		w := f.do(http.MethodPost, routes.Query(),
			`{"message":"What did we decide about the roadmap?","scope":"all","mode":"strict"}`,
			map[string]string{HeaderUserID: "ana"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
		events := sseEvents(t, w.Body.String())
		require.Len(t, events, 4)
		assert.Equal(t, "sources", events[0]["type"])
		items := events[0]["items"].([]any)
		require.Len(t, items, 1)
		assert.Equal(t, "weekly-sync", items[0].(map[string]any)["documentId"])
		assert.Equal(t, "The roadmap ", events[1]["text"])
		assert.Equal(t, "was agreed.", events[2]["text"])
		assert.Equal(t, "done", events[3]["type"])
		assert.Equal(t, []string{"ana/chat"}, f.quota.increments)
	})

	t.Run("Should pass an explicit zero similarity floor to the retriever", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		w := f.do(http.MethodPost, routes.Query(), `{"message":"roadmap?","minSimilarity":0}`, nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, f.retriever.last.MinSimilarity)
		assert.Zero(t, *f.retriever.last.MinSimilarity)
		f.do(http.MethodPost, routes.Query(), `{"message":"roadmap?"}`, nil)
		assert.Nil(t, f.retriever.last.MinSimilarity)
	})

	t.Run("Should end with one error event when generation fails mid-stream", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		f.client.deltas = []llmadapter.Delta{{Text: "Partial "}, {Err: errors.New("upstream reset")}}
		w := f.do(http.MethodPost, routes.Query(), `{"message":"What did we decide?"}`, nil)
		require.Equal(t, http.StatusOK, w.Code)
		events := sseEvents(t, w.Body.String())
		require.Len(t, events, 3)
		assert.Equal(t, "error", events[2]["type"])
		assert.Equal(t, chat.GenerationFailedMessage, events[2]["message"])
		assert.NotContains(t, w.Body.String(), "upstream reset")
	})

	t.Run("Should validate scope, message and mode before streaming", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		cases := []string{
			`{"message":"hi there","scope":"some"}`,
			`{"message":"hi there","scope":[]}`,
			`{"message":"   "}`,
			`{"message":"hi there","mode":"creative"}`,
			`{"message":"hi there","minSimilarity":1.5}`,
		}
		for _, body := range cases {
			w := f.do(http.MethodPost, routes.Query(), body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, body)
			assert.Equal(t, router.ErrValidationCode, decodeProblem(t, w).Code, body)
		}
	})

	t.Run("Should answer 429 before any event when rate limited", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{limits: map[string]ratelimit.RateConfig{
			ratelimit.EndpointQuery: {Limit: 1, Period: time.Minute},
		}})
		body := `{"message":"What did we decide?"}`
		require.Equal(t, http.StatusOK, f.do(http.MethodPost, routes.Query(), body, nil).Code)
		w := f.do(http.MethodPost, routes.Query(), body, nil)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, router.ErrRateLimitedCode, decodeProblem(t, w).Code)
		assert.NotEmpty(t, w.Header().Get("Retry-After"))
	})

	t.Run("Should map a failed stream open to 502", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		f.client.openErr = errors.New("401 invalid api key")
		w := f.do(http.MethodPost, routes.Query(), `{"message":"What did we decide?"}`, nil)
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("Should mint a request id and echo a valid inbound one", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		w := f.do(http.MethodGet, routes.Health(), "", nil)
		assert.Len(t, w.Header().Get(router.HeaderRequestID), 36)
		w = f.do(http.MethodGet, routes.Health(), "", map[string]string{router.HeaderRequestID: "req-42"})
		assert.Equal(t, "req-42", w.Header().Get(router.HeaderRequestID))
	})

	t.Run("Should answer unknown routes with a 404 problem", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		w := f.do(http.MethodGet, "/api/v1/nope", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, router.ErrNotFoundCode, decodeProblem(t, w).Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	t.Run("Should expose ingest outcomes and cache gauges", func(t *testing.T) {
		monitoring.ResetSystemMetricsForTesting()
		mon, err := monitoring.NewService(context.Background(), monitoring.DefaultConfig())
		require.NoError(t, err)
		f := newFixture(t, fixtureOptions{monitoring: mon})
		require.Equal(t, http.StatusOK, f.do(http.MethodPost, routes.Ingest(), validIngest, nil).Code)
		w := f.do(http.MethodGet, mon.Path(), "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, `transcripts_ingest_requests_total{outcome="indexed"} 1`)
		assert.Contains(t, body, "transcripts_embedding_cache_entries 5")
		assert.Contains(t, body, "transcripts_http_requests_total")
	})
}

func TestResolveIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	resolve := func(headers map[string]string) identity {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		c.Request.RemoteAddr = "203.0.113.9:5555"
		for k, v := range headers {
			c.Request.Header.Set(k, v)
		}
		return resolveIdentity(c)
	}
	t.Run("Should fall back to the client ip and the anonymous free user", func(t *testing.T) {
		who := resolve(nil)
		assert.Equal(t, "ip:203.0.113.9", who.Key)
		assert.Equal(t, AnonymousUser, who.UserID)
		assert.Equal(t, quota.PlanFree, who.Plan)
	})

	t.Run("Should sanitize untrusted ids", func(t *testing.T) {
		who := resolve(map[string]string{HeaderUserID: "  ana<script>@corp.io  ", HeaderUserPlan: "Pro!"})
		assert.Equal(t, "user:anascript@corp.io", who.Key)
		assert.Equal(t, "anascript@corp.io", who.UserID)
		assert.Equal(t, "pro", who.Plan)
	})

	t.Run("Should cap ids at 128 characters", func(t *testing.T) {
		long := strings.Repeat("a", 300)
		assert.Len(t, sanitizeIdentifier(long), maxIdentityChars)
		assert.Empty(t, sanitizeIdentifier("<>!"))
	})
}

func TestDocsEndpoints(t *testing.T) {
	t.Run("Should serve the swagger document for every public route", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		w := f.do(http.MethodGet, swaggerDocPath, "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var doc struct {
			Swagger string                    `json:"swagger"`
			Paths   map[string]map[string]any `json:"paths"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
		assert.Equal(t, "2.0", doc.Swagger)
		assert.Contains(t, doc.Paths[routes.Ingest()], "post")
		assert.Contains(t, doc.Paths[routes.Query()], "post")
		assert.Contains(t, doc.Paths[routes.Health()], "get")
	})

	t.Run("Should redirect the legacy swagger path to the UI", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		w := f.do(http.MethodGet, "/swagger/index.html", "", nil)
		assert.Equal(t, http.StatusMovedPermanently, w.Code)
		assert.Equal(t, "/docs/index.html", w.Header().Get("Location"))
	})

	t.Run("Should serve the swagger UI", func(t *testing.T) {
		f := newFixture(t, fixtureOptions{})
		w := f.do(http.MethodGet, "/docs/index.html", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "swagger")
	})
}
