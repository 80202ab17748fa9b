package domain

import (
	"context"
	"time"
)

// DefaultHeading labels text that appears before any heading-like line.
const DefaultHeading = "Introduction"

// Document is a source file that has been chunked, embedded and published to the store.
type Document struct {
	ID       string
	Chunks   []Chunk
	Summary  string
	LoadedAt time.Time
}

// Chunk is a heading-labelled span of a document. Text already contains the heading
// so that heading semantics bias the embedding.
type Chunk struct {
	ID         string
	DocumentID string
	Index      int
	Heading    string
	Text       string
	Embedding  []float32
}

// ScoredChunk is a stored chunk together with its similarity to a query.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Chunker splits raw document text into chunks without embeddings.
type Chunker interface {
	Name() string
	Chunk(documentID, text string) ([]Chunk, error)
}

// Embedder converts free text into a vector of provider-defined dimensionality.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Preparer is implemented by embedders that need a pass over the corpus before
// they can embed anything (TF-IDF).
type Preparer interface {
	Prepare(corpus []string) error
}

// Generator sends a prompt to a text-generation model and returns its completion.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Extractor turns a source file, or an uploaded copy of one, into flat text.
type Extractor interface {
	Extract(path string) (string, error)
	ExtractBytes(name string, data []byte) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
