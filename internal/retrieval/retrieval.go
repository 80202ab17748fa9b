// Package retrieval ranks stored chunks against a query embedding.
package retrieval

import (
	"math"
	"sort"

	"pdfrag/internal/domain"
)

const (
	DefaultRelevantThreshold = 0.7
	DefaultPartialThreshold  = 0.5
	DefaultTopK              = 3
)

// Policy holds the thresholds shared by the Retriever and the answer composer.
type Policy struct {
	// RelevantThreshold: a chunk is relevant when its similarity is strictly above it.
	RelevantThreshold float64
	// PartialThreshold: with no relevant chunk, a max similarity strictly above it
	// still counts as a partial match.
	PartialThreshold float64
	// TopK bounds how many relevant chunks are used as context.
	TopK int
}

func DefaultPolicy() Policy {
	return Policy{
		RelevantThreshold: DefaultRelevantThreshold,
		PartialThreshold:  DefaultPartialThreshold,
		TopK:              DefaultTopK,
	}
}

// ChunkSource is the read side of the vector store.
type ChunkSource interface {
	AllChunks() []domain.Chunk
}

// Result is the outcome of one retrieval.
type Result struct {
	// Relevant holds every chunk above the relevance threshold, best first. Equal
	// scores keep store order.
	Relevant []domain.ScoredChunk
	// MaxSim is the best similarity over all stored chunks, relevant or not.
	MaxSim float64
	// Best is the chunk that produced MaxSim, nil when the store is empty.
	Best *domain.ScoredChunk
	// Scanned is the number of chunks scored.
	Scanned int
}

// Retriever scores the whole store on every call. No index is kept.
type Retriever struct {
	source ChunkSource
	policy Policy
}

func NewRetriever(source ChunkSource, policy Policy) *Retriever {
	return &Retriever{source: source, policy: policy}
}

func (r *Retriever) Policy() Policy { return r.policy }

// Retrieve scores query against every stored chunk.
func (r *Retriever) Retrieve(query []float32) Result {
	chunks := r.source.AllChunks()
	res := Result{Scanned: len(chunks)}
	for i := range chunks {
		sim := Cosine(query, chunks[i].Embedding)
		if res.Best == nil || sim > res.MaxSim {
			res.MaxSim = sim
			res.Best = &domain.ScoredChunk{Chunk: chunks[i], Score: sim}
		}
		if sim > r.policy.RelevantThreshold {
			res.Relevant = append(res.Relevant, domain.ScoredChunk{Chunk: chunks[i], Score: sim})
		}
	}
	sort.SliceStable(res.Relevant, func(i, j int) bool {
		return res.Relevant[i].Score > res.Relevant[j].Score
	})
	return res
}

// Cosine returns dot(a,b)/(|a||b|). It is 0 when either vector has zero magnitude or
// the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
