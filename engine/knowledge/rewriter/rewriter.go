// Package rewriter turns context-dependent follow-up questions into
// standalone queries before retrieval.
package rewriter

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	llmadapter "github.com/compozy/transcripts/engine/llm/adapter"
	"github.com/compozy/transcripts/pkg/logger"
)

const (
	DefaultMinQueryChars = 25
	DefaultMaxTurns      = 4
	DefaultTimeout       = 5 * time.Second
	maxGrowthFactor      = 3
	rewriteMaxTokens     = 128
)

const systemPrompt = "You rewrite follow-up questions about meeting transcripts. " +
	"Using the conversation, rewrite the user's last question as one self-contained question " +
	"that can be understood without the conversation. Keep the question's original language. " +
	"Reply with the rewritten question only."

var (
	wordPattern = regexp.MustCompile(`[\p{L}\p{N}']+`)

	referenceWords = map[string]struct{}{
		"it": {}, "its": {}, "they": {}, "them": {}, "this": {}, "that": {}, "these": {},
		"those": {}, "he": {}, "she": {}, "him": {}, "her": {}, "there": {}, "then": {},
		"former": {}, "latter": {}, "above": {}, "previous": {}, "second": {}, "first": {},
		"other": {}, "same": {},
	}
	referencePhrases = []string{"what about", "how about", "and the"}
)

// Options tunes when and how queries are rewritten. Zero values use defaults.
type Options struct {
	MinQueryChars int
	MaxTurns      int
	Timeout       time.Duration
}

type Rewriter struct {
	client  llmadapter.Client
	options Options
}

// New builds a rewriter. A nil client disables rewriting.
func New(client llmadapter.Client, opts *Options) *Rewriter {
	options := Options{}
	if opts != nil {
		options = *opts
	}
	if options.MinQueryChars <= 0 {
		options.MinQueryChars = DefaultMinQueryChars
	}
	if options.MaxTurns <= 0 {
		options.MaxTurns = DefaultMaxTurns
	}
	if options.Timeout <= 0 {
		options.Timeout = DefaultTimeout
	}
	return &Rewriter{client: client, options: options}
}

// Rewrite returns the query to retrieve with. It falls back to query on
// every failure and never blocks longer than the configured timeout.
func (r *Rewriter) Rewrite(ctx context.Context, query string, history []llmadapter.Turn) string {
	if r == nil || r.client == nil || len(history) == 0 {
		return query
	}
	if !NeedsRewrite(query, r.options.MinQueryChars) {
		return query
	}
	log := logger.FromContext(ctx)
	callCtx, cancel := context.WithTimeout(ctx, r.options.Timeout)
	defer cancel()
	out, err := r.client.Complete(callCtx, &llmadapter.CompletionRequest{
		SystemPrompt: systemPrompt,
		History:      recentTurns(history, r.options.MaxTurns),
		UserMessage:  query,
		MaxTokens:    rewriteMaxTokens,
	})
	if err != nil {
		log.Debug("Query rewrite failed, using original", "error", err)
		return query
	}
	rewritten := cleanResponse(out)
	if rewritten == "" {
		log.Debug("Query rewrite returned nothing, using original")
		return query
	}
	if utf8.RuneCountInString(rewritten) > maxGrowthFactor*utf8.RuneCountInString(query) {
		log.Debug("Query rewrite too long, using original", "length", utf8.RuneCountInString(rewritten))
		return query
	}
	return rewritten
}

// NeedsRewrite reports whether query likely depends on earlier turns: it
// references something by pronoun or position, or is too short to stand alone.
func NeedsRewrite(query string, minChars int) bool {
	trimmed := strings.TrimSpace(query)
	if utf8.RuneCountInString(trimmed) < minChars {
		return true
	}
	words := wordPattern.FindAllString(strings.ToLower(trimmed), -1)
	for _, w := range words {
		if _, ok := referenceWords[w]; ok {
			return true
		}
	}
	joined := " " + strings.Join(words, " ") + " "
	for _, phrase := range referencePhrases {
		if strings.Contains(joined, " "+phrase+" ") {
			return true
		}
	}
	return false
}

func recentTurns(history []llmadapter.Turn, n int) []llmadapter.Turn {
	if len(history) > n {
		history = history[len(history)-n:]
	}
	out := make([]llmadapter.Turn, len(history))
	copy(out, history)
	return out
}

func cleanResponse(out string) string {
	text := strings.TrimSpace(out)
	for len(text) >= 2 {
		first, _ := utf8.DecodeRuneInString(text)
		last, _ := utf8.DecodeLastRuneInString(text)
		if !isQuotePair(first, last) {
			break
		}
		text = strings.TrimSpace(text[utf8.RuneLen(first) : len(text)-utf8.RuneLen(last)])
	}
	return text
}

func isQuotePair(open, closing rune) bool {
	switch open {
	case '"', '\'', '`':
		return closing == open
	case '“':
		return closing == '”'
	case '‘':
		return closing == '’'
	case '«':
		return closing == '»'
	}
	return false
}
