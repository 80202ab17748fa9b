// Package memory is the in-process vector store: a flat, load-ordered sequence of
// chunks guarded by a RWMutex. Documents are published whole, so readers never observe
// a partially loaded document.
package memory

import (
	"errors"
	"fmt"
	"sync"

	"pdfrag/internal/domain"
)

// Store holds published documents. Zero value is not usable; call NewStore.
type Store struct {
	mu        sync.RWMutex
	dimension int
	docs      []domain.Document
	index     map[string]int
	chunks    []domain.Chunk
}

func NewStore() *Store { return &Store{index: make(map[string]int)} }

// Add publishes doc atomically. A document with the same ID is replaced in place.
// Every chunk must carry an embedding of the store's dimension; the first published
// chunk fixes that dimension.
func (s *Store) Add(doc domain.Document) error {
	if doc.ID == "" {
		return errors.New("document id is empty")
	}
	if len(doc.Chunks) == 0 {
		return fmt.Errorf("document %s has no chunks", doc.ID)
	}
	dim := len(doc.Chunks[0].Embedding)
	for i, c := range doc.Chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %d of %s has no embedding", i, doc.ID)
		}
		if len(c.Embedding) != dim {
			return fmt.Errorf("chunk %d of %s: vector dimension mismatch (%d != %d)", i, doc.ID, len(c.Embedding), dim)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, replacing := s.index[doc.ID]
	if s.dimension != 0 && dim != s.dimension && !(replacing && len(s.docs) == 1) {
		return fmt.Errorf("vector dimension mismatch: store has %d, document %s has %d", s.dimension, doc.ID, dim)
	}
	if pos, ok := s.index[doc.ID]; ok {
		s.docs[pos] = doc
	} else {
		s.index[doc.ID] = len(s.docs)
		s.docs = append(s.docs, doc)
	}
	s.dimension = dim
	s.rebuild()
	return nil
}

// rebuild flattens docs into a fresh chunk slice. Snapshots handed out earlier keep
// pointing at the old backing array.
func (s *Store) rebuild() {
	n := 0
	for _, d := range s.docs {
		n += len(d.Chunks)
	}
	chunks := make([]domain.Chunk, 0, n)
	for _, d := range s.docs {
		chunks = append(chunks, d.Chunks...)
	}
	s.chunks = chunks
}

// AllChunks returns every stored chunk in load order. The result must not be modified.
func (s *Store) AllChunks() []domain.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunks
}

// Has reports whether a document with id has been published.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[id]
	return ok
}

// Get returns the published document with id.
func (s *Store) Get(id string) (domain.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.index[id]
	if !ok {
		return domain.Document{}, false
	}
	return s.docs[pos], true
}

// Documents returns the published documents in load order.
func (s *Store) Documents() []domain.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Document, len(s.docs))
	copy(out, s.docs)
	return out
}

// Len is the number of stored chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Dimension is the embedding size shared by all chunks, 0 when empty.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = 0
	s.docs = nil
	s.chunks = nil
	s.index = make(map[string]int)
}
