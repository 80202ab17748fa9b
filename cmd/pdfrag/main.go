package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"pdfrag/internal/answer"
	"pdfrag/internal/config"
	"pdfrag/internal/domain"
	"pdfrag/internal/embedding"
	"pdfrag/internal/embedding/tfidf"
	"pdfrag/internal/extract"
	"pdfrag/internal/provider/offline"
	provider "pdfrag/internal/provider/openai"
	"pdfrag/internal/retrieval"
	"pdfrag/internal/server"
	"pdfrag/internal/service"
	"pdfrag/internal/summarizer"
	"pdfrag/internal/tui"
	"pdfrag/internal/vectorstore/memory"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath string
		serve   bool
		logFile string
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/pdfrag/config.yaml if not provided)")
	flag.BoolVar(&serve, "serve", false, "Run the HTTP server instead of the console")
	flag.StringVar(&logFile, "log-file", filepath.Join(os.TempDir(), "pdfrag.log"), "Where the console writes its logs")
	flag.Parse()
	inputs := flag.Args()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if !serve && len(inputs) == 0 {
		if cfg.Load.DefaultPath == "" {
			fmt.Println("Usage: pdfrag [--config=config.yaml] [--serve] file.pdf [more.pdf|.txt|.md ...]")
			os.Exit(1)
		}
		inputs = []string{cfg.Load.DefaultPath}
	}

	logOut := io.Writer(os.Stderr)
	if !serve {
		// the console owns the terminal
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	logger := newLogger(cfg.Log, logOut)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := buildService(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}

	if serve {
		for _, p := range inputs {
			if _, err := svc.LoadDocument(ctx, p); err != nil {
				logger.Error("initial load failed", "path", p, "err", err)
			}
		}
		srv := server.New(svc, server.Options{
			DefaultPath:  cfg.Load.DefaultPath,
			DocumentRoot: cfg.Load.DocumentRoot,
		}, logger)
		err := srv.Run(ctx, cfg.Server.Addr,
			time.Duration(cfg.Server.ReadTimeoutSecs)*time.Second,
			cfg.WriteTimeout())
		if err != nil {
			logger.Error("http server failed", "err", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("Loading %s...\n", strings.Join(inputs, ", "))
	var summaries []string
	for _, p := range inputs {
		res, err := svc.LoadDocument(ctx, p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load %s failed: %v\n", p, err)
			os.Exit(1)
		}
		switch {
		case res.Status == service.StatusSkippedStoreNonEmpty:
			fmt.Printf("%s: not loaded, %s is already loaded (load policy %s)\n", p, res.DocumentID, cfg.Load.Policy)
		case res.Status == service.StatusAlreadyLoaded:
			fmt.Printf("%s: already loaded\n", p)
		case res.Skipped > 0:
			fmt.Printf("%s: %d chunks, %d skipped after embedding failures\n", p, res.Chunks, res.Skipped)
		}
	}
	for _, d := range svc.Documents() {
		if d.Summary != "" {
			summaries = append(summaries, d.Summary)
		}
	}

	m := tui.New(ctx, svc, "pdfrag", strings.Join(summaries, " | "))
	if _, err := tea.NewProgram(m, tea.WithContext(ctx)).Run(); err != nil {
		logger.Error("console exited", "err", err)
		os.Exit(1)
	}
}

func buildService(cfg *config.AppConfig, logger *slog.Logger) (*service.RAGService, error) {
	var (
		raw domain.Embedder
		gen domain.Generator
	)
	switch cfg.Provider.Type {
	case "tfidf":
		raw = tfidf.NewEmbedder()
		gen = offline.Echo{}
	case "openai":
		client, err := provider.NewClient(provider.Config{
			BaseURL:        cfg.Provider.BaseURL,
			APIKeyEnv:      cfg.Provider.APIKeyEnv,
			EmbeddingModel: cfg.Provider.EmbeddingModel,
		})
		if err != nil {
			return nil, fmt.Errorf("openai provider init: %w", err)
		}
		raw, gen = client, client
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider.Type)
	}

	rp := cfg.RetryPolicy()
	policy := cfg.RetrievalPolicy()
	store := memory.NewStore()
	return service.NewRAGService(service.Deps{
		Extractor:  extract.New(),
		Embedder:   embedding.NewClient(raw, rp, cfg.ProviderTimeout(), logger),
		Store:      store,
		Retriever:  retrieval.NewRetriever(store, policy),
		Composer:   answer.NewComposer(gen, cfg.Provider.GenerationModel, policy, rp, cfg.ProviderTimeout(), logger),
		Summarizer: summarizer.NewFrequencySummarizer(),
	}, service.Options{
		Chunker:          cfg.ChunkerConfig(),
		Policy:           service.LoadPolicy(cfg.Load.Policy),
		Concurrency:      cfg.Load.Concurrency,
		SummarySentences: cfg.Load.SummarySentences,
	}, logger)
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
