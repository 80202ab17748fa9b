package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"pdfrag/internal/answer"
	"pdfrag/internal/chunker"
	"pdfrag/internal/domain"
	"pdfrag/internal/embedding"
	"pdfrag/internal/embedding/tfidf"
	"pdfrag/internal/provider/offline"
	"pdfrag/internal/retrieval"
	"pdfrag/internal/retry"
	"pdfrag/internal/summarizer"
	"pdfrag/internal/vectorstore/memory"
)

const paper = "Introduction\n\nHello world.\n\nMethods\n\nWe did X. We also did Y.\n\nResults\n\nIt worked."

type fakeExtractor map[string]string

func (f fakeExtractor) Extract(path string) (string, error) {
	text, ok := f[path]
	if !ok {
		return "", domain.InputError("document " + path + " not found")
	}
	return text, nil
}

func (f fakeExtractor) ExtractBytes(name string, data []byte) (string, error) {
	return string(data), nil
}

// keywordEmbedder maps text to a one-hot vector by the first keyword it contains.
type keywordEmbedder struct {
	mu       sync.Mutex
	calls    int
	prepared int
	fail     map[string]error
}

var keywords = []string{"methods", "results", "introduction"}

func (e *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	lower := strings.ToLower(text)
	for k, err := range e.fail {
		if strings.Contains(lower, k) {
			return nil, err
		}
	}
	v := make([]float32, len(keywords)+1)
	for i, k := range keywords {
		if strings.Contains(lower, k) {
			v[i] = 1
			return v, nil
		}
	}
	v[len(keywords)] = 1
	return v, nil
}

func (e *keywordEmbedder) Prepare([]string) error {
	e.mu.Lock()
	e.prepared++
	e.mu.Unlock()
	return nil
}

type echoGenerator struct{ prompts []string }

func (g *echoGenerator) Generate(_ context.Context, _ string, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return "ok", nil
}

type fixture struct {
	svc   *RAGService
	store *memory.Store
	emb   *keywordEmbedder
	gen   *echoGenerator
}

func newFixture(t *testing.T, policy LoadPolicy, concurrency int, fail map[string]error) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	emb := &keywordEmbedder{fail: fail}
	gen := &echoGenerator{}
	rp := retry.DefaultPolicy()
	rp.Sleep = func(context.Context, time.Duration) error { return nil }
	rpol := retrieval.DefaultPolicy()
	svc, err := NewRAGService(Deps{
		Extractor:  fakeExtractor{"paper.txt": paper, "other.txt": "Appendix\n\nMore results here."},
		Embedder:   emb,
		Store:      store,
		Retriever:  retrieval.NewRetriever(store, rpol),
		Composer:   answer.NewComposer(gen, "m", rpol, rp, 0, logger),
		Summarizer: summarizer.NewFrequencySummarizer(),
	}, Options{
		Chunker:          chunker.Config{Type: chunker.TypeHeading},
		Policy:           policy,
		Concurrency:      concurrency,
		SummarySentences: 1,
	}, logger)
	if err != nil {
		t.Fatalf("NewRAGService: %v", err)
	}
	return &fixture{svc: svc, store: store, emb: emb, gen: gen}
}

func TestLoadDocument(t *testing.T) {
	f := newFixture(t, LoadSkipIfLoaded, 1, nil)
	res, err := f.svc.LoadDocument(context.Background(), "paper.txt")
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if res.Status != StatusLoaded || res.Chunks != 3 || res.Skipped != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	docs := f.svc.Documents()
	if len(docs) != 1 || docs[0].ID != DocumentID("paper.txt") || docs[0].Summary == "" || docs[0].LoadedAt.IsZero() {
		t.Fatalf("unexpected documents %+v", docs)
	}
	chunks := f.store.AllChunks()
	if chunks[1].Heading != "Methods" || chunks[1].Text != "Methods\nWe did X. We also did Y." {
		t.Fatalf("unexpected chunk %+v", chunks[1])
	}
	if f.emb.prepared != 1 {
		t.Fatalf("embedder should be prepared once, got %d", f.emb.prepared)
	}
}

func TestLoadDocument_SkipsFailedChunk(t *testing.T) {
	fail := map[string]error{"results": &domain.ProviderError{Kind: domain.ProviderOther, Status: 400, Err: errors.New("bad input")}}
	for _, conc := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency=%d", conc), func(t *testing.T) {
			f := newFixture(t, LoadSkipIfLoaded, conc, fail)
			res, err := f.svc.LoadDocument(context.Background(), "paper.txt")
			if err != nil {
				t.Fatalf("LoadDocument: %v", err)
			}
			if res.Chunks != 2 || res.Skipped != 1 {
				t.Fatalf("expected 2 kept and 1 skipped, got %+v", res)
			}
			for _, c := range f.store.AllChunks() {
				if c.Heading == "Results" {
					t.Fatalf("failed chunk was published")
				}
				if len(c.Embedding) == 0 {
					t.Fatalf("published chunk without embedding")
				}
			}
		})
	}
}

func TestLoadDocument_RetriesExhaustedChunkIsSkipped(t *testing.T) {
	exhausted := fmt.Errorf("%w after 5 attempts: busy", domain.ErrRetriesExhausted)
	f := newFixture(t, LoadSkipIfLoaded, 1, map[string]error{"methods": exhausted})
	res, err := f.svc.LoadDocument(context.Background(), "paper.txt")
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if res.Skipped != 1 {
		t.Fatalf("expected one skipped chunk, got %+v", res)
	}
}

func TestLoadDocument_QuotaAbortsLoad(t *testing.T) {
	quota := &domain.ProviderError{Kind: domain.ProviderRateLimited, Status: 429, Err: errors.New("quota")}
	f := newFixture(t, LoadSkipIfLoaded, 1, map[string]error{"methods": quota})
	_, err := f.svc.LoadDocument(context.Background(), "paper.txt")
	if !domain.IsQuotaExceeded(err) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if f.store.Len() != 0 {
		t.Fatalf("nothing should be published after an aborted load")
	}
}

func TestLoadDocument_AllChunksFail(t *testing.T) {
	other := &domain.ProviderError{Kind: domain.ProviderOther, Status: 500, Err: errors.New("boom")}
	f := newFixture(t, LoadSkipIfLoaded, 1, map[string]error{"methods": other, "results": other, "introduction": other})
	if _, err := f.svc.LoadDocument(context.Background(), "paper.txt"); err == nil {
		t.Fatalf("expected error when every chunk fails")
	}
	if f.store.Len() != 0 {
		t.Fatalf("nothing should be published")
	}
}

func TestLoadDocument_MissingFile(t *testing.T) {
	f := newFixture(t, LoadSkipIfLoaded, 1, nil)
	_, err := f.svc.LoadDocument(context.Background(), "missing.pdf")
	if !errors.Is(err, domain.ErrInput) {
		t.Fatalf("expected input error, got %v", err)
	}
	if _, err := f.svc.LoadDocument(context.Background(), "  "); !errors.Is(err, domain.ErrInput) {
		t.Fatalf("expected input error for empty path, got %v", err)
	}
}

func TestLoadDocument_Policies(t *testing.T) {
	ctx := context.Background()

	t.Run("skip_if_loaded", func(t *testing.T) {
		f := newFixture(t, LoadSkipIfLoaded, 1, nil)
		_, _ = f.svc.LoadDocument(ctx, "paper.txt")
		calls := f.emb.calls
		res, err := f.svc.LoadDocument(ctx, "other.txt")
		if err != nil || res.Status != StatusSkippedStoreNonEmpty {
			t.Fatalf("expected skipped_store_nonempty, got %+v, %v", res, err)
		}
		if res.DocumentID != DocumentID("paper.txt") || res.Chunks != 3 {
			t.Fatalf("skip must name the stored document, got %+v", res)
		}
		if f.store.Has(DocumentID("other.txt")) {
			t.Fatalf("other.txt must not be stored")
		}
		if f.emb.calls != calls || f.store.Len() != 3 {
			t.Fatalf("second load must not embed or publish")
		}

		res, _ = f.svc.LoadDocument(ctx, "paper.txt")
		if res.Status != StatusAlreadyLoaded || res.DocumentID != DocumentID("paper.txt") {
			t.Fatalf("same document should report already_loaded, got %+v", res)
		}
	})

	t.Run("skip_same_id", func(t *testing.T) {
		f := newFixture(t, LoadSkipSameID, 1, nil)
		_, _ = f.svc.LoadDocument(ctx, "paper.txt")
		res, _ := f.svc.LoadDocument(ctx, "paper.txt")
		if res.Status != StatusAlreadyLoaded {
			t.Fatalf("same document should be skipped, got %+v", res)
		}
		res, _ = f.svc.LoadDocument(ctx, "other.txt")
		if res.Status != StatusLoaded || f.store.Len() != 4 {
			t.Fatalf("different document should load, got %+v with %d chunks", res, f.store.Len())
		}
	})

	t.Run("always", func(t *testing.T) {
		f := newFixture(t, LoadAlways, 1, nil)
		_, _ = f.svc.LoadDocument(ctx, "paper.txt")
		res, _ := f.svc.LoadDocument(ctx, "paper.txt")
		if res.Status != StatusLoaded || f.store.Len() != 3 || len(f.svc.Documents()) != 1 {
			t.Fatalf("reload should replace the document, got %+v with %d chunks", res, f.store.Len())
		}
	})
}

func TestLoadBytes(t *testing.T) {
	f := newFixture(t, LoadSkipSameID, 1, nil)
	res, err := f.svc.LoadBytes(context.Background(), "/tmp/notes.txt", []byte(paper))
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if res.DocumentID != "upload:notes.txt" || res.Chunks != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := f.svc.LoadBytes(context.Background(), "", nil); !errors.Is(err, domain.ErrInput) {
		t.Fatalf("expected input error for nameless upload, got %v", err)
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	f := newFixture(t, LoadSkipIfLoaded, 1, nil)
	for _, q := range []string{"", "   ", "\n\t"} {
		if _, err := f.svc.Ask(context.Background(), q); !errors.Is(err, domain.ErrInput) {
			t.Fatalf("expected input error for %q, got %v", q, err)
		}
	}
	if f.emb.calls != 0 || len(f.gen.prompts) != 0 {
		t.Fatalf("empty questions must not reach the providers")
	}
}

func TestAsk_Grounded(t *testing.T) {
	f := newFixture(t, LoadSkipIfLoaded, 1, nil)
	if _, err := f.svc.LoadDocument(context.Background(), "paper.txt"); err != nil {
		t.Fatal(err)
	}
	ans, err := f.svc.Ask(context.Background(), "  What methods were used?  ")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Tier != answer.TierGrounded || len(ans.Sources) != 1 || ans.Sources[0].Chunk.Heading != "Methods" {
		t.Fatalf("unexpected answer %+v", ans)
	}
	if !strings.Contains(f.gen.prompts[0], "Question: What methods were used?") {
		t.Fatalf("question not trimmed into prompt: %q", f.gen.prompts[0])
	}
}

func TestAsk_EmptyStoreIsNoMatch(t *testing.T) {
	f := newFixture(t, LoadSkipIfLoaded, 1, nil)
	ans, err := f.svc.Ask(context.Background(), "anything?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Tier != answer.TierNoMatch {
		t.Fatalf("expected no-match tier, got %s", ans.Tier)
	}
}

func TestAsk_EmptyStoreWithUnpreparedTFIDF(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	rpol := retrieval.DefaultPolicy()
	rp := retry.DefaultPolicy()
	rp.Sleep = func(context.Context, time.Duration) error { return nil }
	svc, err := NewRAGService(Deps{
		Extractor: fakeExtractor{"paper.txt": paper},
		Embedder:  embedding.NewClient(tfidf.NewEmbedder(), rp, 0, logger),
		Store:     store,
		Retriever: retrieval.NewRetriever(store, rpol),
		Composer:  answer.NewComposer(offline.Echo{}, "m", rpol, rp, 0, logger),
	}, Options{Chunker: chunker.Config{Type: chunker.TypeHeading}}, logger)
	if err != nil {
		t.Fatalf("NewRAGService: %v", err)
	}

	ans, err := svc.Ask(context.Background(), "what did we do?")
	if err != nil {
		t.Fatalf("Ask before any load: %v", err)
	}
	if ans.Tier != answer.TierNoMatch || len(ans.Sources) != 0 {
		t.Fatalf("expected no-match answer, got %+v", ans)
	}

	if _, err := svc.LoadDocument(context.Background(), "paper.txt"); err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if _, err := svc.Ask(context.Background(), "what did we do?"); err != nil {
		t.Fatalf("Ask after load: %v", err)
	}
}

func TestNewRAGService_RejectsUnknownPolicy(t *testing.T) {
	store := memory.NewStore()
	_, err := NewRAGService(Deps{
		Extractor: fakeExtractor{},
		Embedder:  &keywordEmbedder{},
		Store:     store,
		Retriever: retrieval.NewRetriever(store, retrieval.DefaultPolicy()),
		Composer:  answer.NewComposer(&echoGenerator{}, "m", retrieval.DefaultPolicy(), retry.DefaultPolicy(), 0, nil),
	}, Options{Policy: "sometimes"}, nil)
	if err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
