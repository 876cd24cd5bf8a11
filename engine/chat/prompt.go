package chat

import (
	"fmt"
	"strings"

	"github.com/compozy/transcripts/engine/knowledge/tokens"
	"github.com/compozy/transcripts/engine/knowledge/vectordb"
)

// Mode selects how strictly answers are grounded in retrieved passages.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeHybrid Mode = "hybrid"
)

// DefaultMaxContextTokens bounds the passages rendered into the prompt.
const DefaultMaxContextTokens = 6000

// ParseMode maps user input to a Mode; empty input selects strict.
func ParseMode(raw string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeStrict:
		return ModeStrict, true
	case ModeHybrid:
		return ModeHybrid, true
	default:
		return "", false
	}
}

const strictInstructions = `You answer questions about meeting transcripts.
Answer only from the numbered passages below and cite them as [n].
If the passages do not contain the answer, say explicitly that the transcripts do not cover it. Do not guess.`

const hybridInstructions = `You answer questions about meeting transcripts.
Prefer the numbered passages below and cite them as [n].
You may add general knowledge when the passages are incomplete, but label it clearly:
mark statements taken from the passages with their citation and start general-knowledge statements with "General knowledge:".`

// PromptBuilder renders the system prompt for a mode and set of passages.
type PromptBuilder struct {
	estimator        tokens.Estimator
	maxContextTokens int
}

// NewPromptBuilder returns a builder. A nil estimator renders every passage.
func NewPromptBuilder(est tokens.Estimator, maxContextTokens int) *PromptBuilder {
	if maxContextTokens <= 0 {
		maxContextTokens = DefaultMaxContextTokens
	}
	return &PromptBuilder{estimator: est, maxContextTokens: maxContextTokens}
}

// Build returns the system prompt and the number of passages it includes.
// Passages are kept in rank order; the tail is dropped once the token
// budget is spent.
func (b *PromptBuilder) Build(mode Mode, passages []vectordb.Match) (string, int) {
	var sb strings.Builder
	if mode == ModeHybrid {
		sb.WriteString(hybridInstructions)
	} else {
		sb.WriteString(strictInstructions)
	}
	sb.WriteString("\n\nPassages:\n")
	used := 0
	spent := 0
	for i := range passages {
		block := renderPassage(used+1, &passages[i])
		if b.estimator != nil {
			cost := b.estimator.Estimate(block)
			if spent+cost > b.maxContextTokens {
				break
			}
			spent += cost
		}
		sb.WriteString(block)
		used++
	}
	if used == 0 {
		sb.WriteString("(no passages matched the question)\n")
	}
	return sb.String(), used
}

func renderPassage(n int, m *vectordb.Match) string {
	title := m.Title
	if title == "" {
		title = m.DocumentID
	}
	header := fmt.Sprintf("[%d] %s", n, title)
	if m.Timestamp != "" {
		header += " (" + m.Timestamp + ")"
	}
	return header + "\n" + strings.TrimSpace(m.Text) + "\n\n"
}
