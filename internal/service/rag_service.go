package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pdfrag/internal/answer"
	"pdfrag/internal/chunker"
	"pdfrag/internal/domain"
	"pdfrag/internal/retrieval"
)

// LoadPolicy decides what a repeated load does.
type LoadPolicy string

const (
	// LoadSkipIfLoaded skips any load once the store holds a document.
	LoadSkipIfLoaded LoadPolicy = "skip_if_loaded"
	// LoadSkipSameID skips a load whose document is already stored.
	LoadSkipSameID LoadPolicy = "skip_same_id"
	// LoadAlways reloads and replaces a document with the same ID.
	LoadAlways LoadPolicy = "always"
)

const (
	StatusLoaded        = "loaded"
	StatusAlreadyLoaded = "already_loaded"
	// StatusSkippedStoreNonEmpty: skip_if_loaded refused a different document; the
	// result names the document already stored.
	StatusSkippedStoreNonEmpty = "skipped_store_nonempty"
)

// Embedder is the retry-wrapped embedding boundary.
type Embedder interface {
	domain.Embedder
	domain.Preparer
}

// Store is the vector store as seen by the service.
type Store interface {
	retrieval.ChunkSource
	Add(doc domain.Document) error
	Has(id string) bool
	Len() int
	Documents() []domain.Document
}

type Composer interface {
	Compose(ctx context.Context, question string, res retrieval.Result) (answer.Answer, error)
}

// Deps are the collaborators of RAGService.
type Deps struct {
	Extractor  domain.Extractor
	Embedder   Embedder
	Store      Store
	Retriever  *retrieval.Retriever
	Composer   Composer
	Summarizer domain.Summarizer
}

// Options tune loading.
type Options struct {
	Chunker          chunker.Config
	Policy           LoadPolicy
	Concurrency      int
	SummarySentences int
}

// LoadResult reports the outcome of a load.
type LoadResult struct {
	Status     string
	DocumentID string
	Chunks     int
	Skipped    int
}

// RAGService loads documents into the store and answers questions against it.
// Loads are serialised; Ask never waits for a load in progress.
type RAGService struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	loadMu sync.Mutex
}

func NewRAGService(deps Deps, opts Options, logger *slog.Logger) (*RAGService, error) {
	if deps.Extractor == nil || deps.Embedder == nil || deps.Store == nil || deps.Retriever == nil || deps.Composer == nil {
		return nil, errors.New("rag service: missing dependency")
	}
	switch opts.Policy {
	case "":
		opts.Policy = LoadSkipIfLoaded
	case LoadSkipIfLoaded, LoadSkipSameID, LoadAlways:
	default:
		return nil, fmt.Errorf("unknown load policy: %s", opts.Policy)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if _, err := chunker.New(opts.Chunker); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RAGService{deps: deps, opts: opts, logger: logger, now: time.Now}, nil
}

// DocumentID is the identifier a file at path is stored under.
func DocumentID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// LoadDocument extracts, chunks and embeds the file at path and publishes it.
func (s *RAGService) LoadDocument(ctx context.Context, path string) (LoadResult, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return LoadResult{}, domain.InputError("document path is empty")
	}
	id := DocumentID(path)

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if res, ok := s.skip(id); ok {
		s.logger.Info("load skipped", "doc", id, "status", res.Status, "stored", res.DocumentID, "policy", s.opts.Policy)
		return res, nil
	}
	text, err := s.deps.Extractor.Extract(path)
	if err != nil {
		return LoadResult{}, err
	}
	return s.publish(ctx, id, path, text)
}

// LoadBytes is LoadDocument for an uploaded file; name picks the format and the ID.
func (s *RAGService) LoadBytes(ctx context.Context, name string, data []byte) (LoadResult, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." {
		return LoadResult{}, domain.InputError("upload has no file name")
	}
	id := "upload:" + name

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if res, ok := s.skip(id); ok {
		s.logger.Info("load skipped", "doc", id, "status", res.Status, "stored", res.DocumentID, "policy", s.opts.Policy)
		return res, nil
	}
	text, err := s.deps.Extractor.ExtractBytes(name, data)
	if err != nil {
		return LoadResult{}, err
	}
	return s.publish(ctx, id, name, text)
}

// skip decides whether the load of id is a no-op under the load policy. A skipped
// result always names a document that is actually stored.
func (s *RAGService) skip(id string) (LoadResult, bool) {
	if s.opts.Policy == LoadAlways {
		return LoadResult{}, false
	}
	if s.deps.Store.Has(id) {
		return LoadResult{Status: StatusAlreadyLoaded, DocumentID: id, Chunks: s.storedChunks(id)}, true
	}
	if s.opts.Policy == LoadSkipIfLoaded {
		if docs := s.deps.Store.Documents(); len(docs) > 0 {
			return LoadResult{Status: StatusSkippedStoreNonEmpty, DocumentID: docs[0].ID, Chunks: len(docs[0].Chunks)}, true
		}
	}
	return LoadResult{}, false
}

func (s *RAGService) storedChunks(id string) int {
	for _, d := range s.deps.Store.Documents() {
		if d.ID == id {
			return len(d.Chunks)
		}
	}
	return 0
}

// publish stages the document outside any store lock and hands it to the store whole.
// Must be called with loadMu held.
func (s *RAGService) publish(ctx context.Context, id, source, text string) (LoadResult, error) {
	start := s.now()
	ch, err := chunker.ForSource(s.opts.Chunker, source)
	if err != nil {
		return LoadResult{}, err
	}
	chunks, err := ch.Chunk(id, text)
	if err != nil {
		return LoadResult{}, fmt.Errorf("%w: chunk %s: %w", domain.ErrExtraction, source, err)
	}
	if len(chunks) == 0 {
		return LoadResult{}, fmt.Errorf("%w: %s produced no chunks", domain.ErrExtraction, source)
	}
	s.logger.Info("chunked document", "doc", id, "chunker", ch.Name(), "chunks", len(chunks))

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}
	if err := s.deps.Embedder.Prepare(texts); err != nil {
		return LoadResult{}, fmt.Errorf("prepare embedder: %w", err)
	}

	failures := make([]error, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i := range chunks {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			v, err := s.deps.Embedder.Embed(gctx, chunks[i].Text)
			if err != nil {
				if domain.IsQuotaExceeded(err) || ctx.Err() != nil {
					return err
				}
				if gctx.Err() != nil {
					// another chunk aborted the load
					return nil
				}
				failures[i] = err
				s.logger.Warn("skipping chunk that failed to embed",
					"doc", id, "chunk", i+1, "of", len(chunks), "heading", chunks[i].Heading, "err", err)
				return nil
			}
			chunks[i].Embedding = v
			s.logger.Debug("embedded chunk", "doc", id, "chunk", i+1, "of", len(chunks))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return LoadResult{}, fmt.Errorf("load %s aborted: %w", source, err)
	}

	kept := make([]domain.Chunk, 0, len(chunks))
	var firstErr error
	for i, c := range chunks {
		if failures[i] != nil {
			if firstErr == nil {
				firstErr = failures[i]
			}
			continue
		}
		kept = append(kept, c)
	}
	if len(kept) == 0 {
		return LoadResult{}, fmt.Errorf("all %d chunks of %s failed to embed: %w", len(chunks), source, firstErr)
	}

	doc := domain.Document{ID: id, Chunks: kept, LoadedAt: s.now()}
	if s.deps.Summarizer != nil {
		summary, err := s.deps.Summarizer.Summarize(text, s.opts.SummarySentences)
		if err != nil {
			s.logger.Warn("summary failed", "doc", id, "err", err)
		}
		doc.Summary = summary
	}
	if err := s.deps.Store.Add(doc); err != nil {
		return LoadResult{}, fmt.Errorf("publish %s: %w", source, err)
	}
	skipped := len(chunks) - len(kept)
	s.logger.Info("document loaded", "doc", id, "chunks", len(kept), "skipped", skipped, "took", s.now().Sub(start))
	return LoadResult{Status: StatusLoaded, DocumentID: id, Chunks: len(kept), Skipped: skipped}, nil
}

// Ask answers question against whatever is currently published. An empty store is
// not an error: the answer simply falls to the no-match tier.
func (s *RAGService) Ask(ctx context.Context, question string) (answer.Answer, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return answer.Answer{}, domain.InputError("question is empty")
	}
	if s.deps.Store.Len() == 0 {
		// nothing to rank against, and offline embedders are unprepared until a load
		return s.deps.Composer.Compose(ctx, q, retrieval.Result{})
	}
	vec, err := s.deps.Embedder.Embed(ctx, q)
	if err != nil {
		return answer.Answer{}, fmt.Errorf("embed question: %w", err)
	}
	res := s.deps.Retriever.Retrieve(vec)
	attrs := []any{"scanned", res.Scanned, "relevant", len(res.Relevant), "max_sim", res.MaxSim}
	if res.Best != nil {
		attrs = append(attrs, "best_heading", res.Best.Chunk.Heading)
	}
	s.logger.Debug("retrieved", attrs...)
	return s.deps.Composer.Compose(ctx, q, res)
}

// Documents lists the published documents in load order.
func (s *RAGService) Documents() []domain.Document {
	return s.deps.Store.Documents()
}

// Chunks is the number of chunks currently searchable.
func (s *RAGService) Chunks() int {
	return s.deps.Store.Len()
}
