package chunk

import "github.com/compozy/transcripts/engine/knowledge/tokens"

const (
	DefaultTargetTokens    = 500
	DefaultOverlapWords    = 50
	DefaultHeaderDelimiter = "---"
)

// Settings configures paragraph chunking.
type Settings struct {
	// TargetTokens bounds each chunk's estimated size. A single paragraph
	// larger than the target still forms one chunk.
	TargetTokens int
	// OverlapWords is the number of trailing words of a closed chunk that
	// open the next one.
	OverlapWords int
	// HeaderDelimiter separates a leading metadata header from the body.
	HeaderDelimiter string
	Estimator       tokens.Estimator
}

// DefaultSettings returns the production chunking parameters.
func DefaultSettings() Settings {
	return Settings{
		TargetTokens:    DefaultTargetTokens,
		OverlapWords:    DefaultOverlapWords,
		HeaderDelimiter: DefaultHeaderDelimiter,
	}
}

// Chunk is one passage of a document.
type Chunk struct {
	Index     int
	Text      string
	Timestamp string
	Tokens    int
	Hash      string
	// OverlapWords is the number of words carried over from the previous
	// chunk; zero for the first chunk.
	OverlapWords int
	// OverlapChars is the byte offset at which the chunk's own paragraphs
	// begin; Text[:OverlapChars] repeats the previous chunk's tail.
	OverlapChars int
}

// Content returns the chunk text without the overlap prefix.
func (c Chunk) Content() string {
	if c.OverlapChars <= 0 || c.OverlapChars > len(c.Text) {
		return c.Text
	}
	return c.Text[c.OverlapChars:]
}
