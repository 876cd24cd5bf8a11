package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/compozy/transcripts/engine/knowledge/chunk"
	"github.com/compozy/transcripts/engine/knowledge/tokens"
	llmadapter "github.com/compozy/transcripts/engine/llm/adapter"
	"github.com/compozy/transcripts/pkg/logger"
)

const (
	summaryMaxRunes  = 12000
	summaryMaxTokens = 256
	summaryPrompt    = "Summarize the following transcript in at most three sentences. " +
		"Use the transcript's language. Reply with the summary only."
)

// EnrichmentInput is what every enrichment task sees.
type EnrichmentInput struct {
	DocumentID string
	Title      string
	Body       string
	Chunks     []chunk.Chunk
}

// Enrichment is a best-effort task whose output is merged into document metadata.
type Enrichment interface {
	Name() string
	Run(ctx context.Context, in *EnrichmentInput) (map[string]any, error)
}

func buildEnrichments(names []string, est tokens.Estimator, completer llmadapter.Client) ([]Enrichment, error) {
	tasks := make([]Enrichment, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		switch name {
		case TaskTokenCount:
			tasks = append(tasks, &tokenCountTask{estimator: est})
		case TaskSummary:
			if completer == nil {
				return nil, fmt.Errorf("ingest: enrichment %q requires a completion client", name)
			}
			tasks = append(tasks, &summaryTask{client: completer})
		default:
			return nil, fmt.Errorf("ingest: enrichment %q is not supported", name)
		}
	}
	return tasks, nil
}

// enrich runs every task concurrently under its own timeout. Failures are
// recorded on the result and never returned.
func (p *Pipeline) enrich(ctx context.Context, in *EnrichmentInput, result *Result) {
	if len(p.tasks) == 0 {
		return
	}
	log := logger.FromContext(ctx).With("document_id", in.DocumentID)
	outcomes := make([]TaskResult, len(p.tasks))
	merged := make(map[string]any)
	var mu sync.Mutex
	var g errgroup.Group
	for i, task := range p.tasks {
		g.Go(func() error {
			taskCtx, cancel := context.WithTimeout(ctx, p.options.EnrichmentTimeout)
			defer cancel()
			out, err := task.Run(taskCtx, in)
			outcomes[i] = TaskResult{Name: task.Name(), OK: err == nil}
			if err != nil {
				outcomes[i].Error = err.Error()
				log.Warn("Enrichment task failed", "task", task.Name(), "error", err)
				return nil
			}
			mu.Lock()
			for k, v := range out {
				merged[k] = v
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	result.Tasks = outcomes
	for i := range outcomes {
		if !outcomes[i].OK {
			result.Partial = true
		}
	}
	if len(merged) == 0 {
		return
	}
	if err := p.store.SetDocumentMetadata(ctx, in.DocumentID, merged); err != nil {
		log.Warn("Failed to store enrichment metadata", "error", err)
		result.Partial = true
		for i := range result.Tasks {
			if result.Tasks[i].OK {
				result.Tasks[i].OK = false
				result.Tasks[i].Error = "metadata update failed"
			}
		}
	}
}

type tokenCountTask struct {
	estimator tokens.Estimator
}

func (t *tokenCountTask) Name() string { return TaskTokenCount }

func (t *tokenCountTask) Run(_ context.Context, in *EnrichmentInput) (map[string]any, error) {
	total := 0
	for i := range in.Chunks {
		total += t.estimator.Estimate(in.Chunks[i].Content())
	}
	return map[string]any{"token_count": total}, nil
}

type summaryTask struct {
	client llmadapter.Client
}

func (t *summaryTask) Name() string { return TaskSummary }

func (t *summaryTask) Run(ctx context.Context, in *EnrichmentInput) (map[string]any, error) {
	body := in.Body
	if runes := []rune(body); len(runes) > summaryMaxRunes {
		body = string(runes[:summaryMaxRunes])
	}
	message := body
	if in.Title != "" {
		message = "Title: " + in.Title + "\n\n" + body
	}
	out, err := t.client.Complete(ctx, &llmadapter.CompletionRequest{
		SystemPrompt: summaryPrompt,
		UserMessage:  message,
		MaxTokens:    summaryMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	summary := strings.TrimSpace(out)
	if summary == "" {
		return nil, fmt.Errorf("summary: empty response")
	}
	return map[string]any{"summary": summary}, nil
}
