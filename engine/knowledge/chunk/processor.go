package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/compozy/transcripts/engine/knowledge/tokens"
)

const paragraphSeparator = "\n\n"

var (
	newlinePattern   = regexp.MustCompile(`\r\n|\r`)
	timestampPattern = regexp.MustCompile(`\[?\b((?:\d{1,2}:)?\d{1,2}:\d{2})\b\]?`)
)

// Processor splits transcript bodies into overlapping, token-bounded chunks.
type Processor struct {
	settings Settings
}

// NewProcessor builds a processor with sanitized defaults.
func NewProcessor(settings Settings) (*Processor, error) {
	if settings.TargetTokens <= 0 {
		return nil, errors.New("chunk: target tokens must be greater than zero")
	}
	if settings.OverlapWords < 0 {
		return nil, errors.New("chunk: overlap cannot be negative")
	}
	if limit := tokens.WordsForTokens(settings.TargetTokens); settings.OverlapWords >= limit {
		return nil, fmt.Errorf("chunk: overlap %d words must be smaller than target %d words", settings.OverlapWords, limit)
	}
	if settings.HeaderDelimiter == "" {
		settings.HeaderDelimiter = DefaultHeaderDelimiter
	}
	if settings.Estimator == nil {
		settings.Estimator = tokens.CharEstimator{}
	}
	return &Processor{settings: settings}, nil
}

// Settings returns the effective settings.
func (p *Processor) Settings() Settings {
	return p.settings
}

// Body strips the metadata header and normalizes line endings.
func (p *Processor) Body(text string) string {
	return strings.TrimSpace(StripHeader(text, p.settings.HeaderDelimiter))
}

// Split chunks a document. Identical input always yields identical chunks.
func (p *Processor) Split(text string) []Chunk {
	paragraphs := Paragraphs(p.Body(text))
	if len(paragraphs) == 0 {
		return nil
	}
	est := p.settings.Estimator
	chunks := make([]Chunk, 0, len(paragraphs)/2+1)
	current := paragraphs[0]
	first := 0
	overlap, overlapWords := 0, 0
	for i := 1; i < len(paragraphs); i++ {
		candidate := current + paragraphSeparator + paragraphs[i]
		if est.Estimate(candidate) <= p.settings.TargetTokens {
			current = candidate
			continue
		}
		chunks = append(chunks, p.newChunk(len(chunks), current, paragraphs[first], overlap, overlapWords))
		tail := lastWords(current, p.settings.OverlapWords)
		if tail == "" {
			current = paragraphs[i]
			overlap, overlapWords = 0, 0
		} else {
			current = tail + paragraphSeparator + paragraphs[i]
			overlap = len(tail) + len(paragraphSeparator)
			overlapWords = len(strings.Fields(tail))
		}
		first = i
	}
	chunks = append(chunks, p.newChunk(len(chunks), current, paragraphs[first], overlap, overlapWords))
	return chunks
}

func (p *Processor) newChunk(index int, text, firstParagraph string, overlap, overlapWords int) Chunk {
	return Chunk{
		Index:        index,
		Text:         text,
		Timestamp:    ExtractTimestamp(firstParagraph),
		Tokens:       p.settings.Estimator.Estimate(text),
		Hash:         hashText(text),
		OverlapWords: overlapWords,
		OverlapChars: overlap,
	}
}

// StripHeader drops everything up to and including the first delimiter line.
// Text without a delimiter line is returned unchanged apart from newline
// normalization.
func StripHeader(text, delimiter string) string {
	_, body, _ := SplitHeader(text, delimiter)
	return body
}

// SplitHeader separates the metadata header from the body. ok is false when
// text has no delimiter line, in which case body is the whole text.
func SplitHeader(text, delimiter string) (header, body string, ok bool) {
	text = newlinePattern.ReplaceAllString(text, "\n")
	if delimiter == "" {
		delimiter = DefaultHeaderDelimiter
	}
	offset := 0
	for offset <= len(text) {
		end := strings.IndexByte(text[offset:], '\n')
		line := text[offset:]
		if end >= 0 {
			line = text[offset : offset+end]
		}
		if isDelimiterLine(line, delimiter) {
			if end < 0 {
				return text[:offset], "", true
			}
			return text[:offset], text[offset+end+1:], true
		}
		if end < 0 {
			break
		}
		offset += end + 1
	}
	return "", text, false
}

func isDelimiterLine(line, delimiter string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if trimmed == delimiter {
		return true
	}
	if strings.Trim(delimiter, "-") != "" {
		return false
	}
	return strings.Trim(trimmed, "-") == "" && len(trimmed) >= len(delimiter)
}

// Paragraphs splits text on blank lines, trimming each paragraph.
func Paragraphs(text string) []string {
	text = newlinePattern.ReplaceAllString(text, "\n")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines)/4+1)
	var current []string
	flush := func() {
		if len(current) == 0 {
			return
		}
		if para := strings.TrimSpace(strings.Join(current, "\n")); para != "" {
			out = append(out, para)
		}
		current = current[:0]
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return out
}

// ExtractTimestamp returns the first HH:MM:SS, H:MM:SS or MM:SS token in
// text, without brackets, or "" when there is none.
func ExtractTimestamp(text string) string {
	m := timestampPattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func lastWords(text string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(text)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
