// Package server exposes the RAG service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pdfrag/internal/answer"
	"pdfrag/internal/domain"
	"pdfrag/internal/service"
)

const (
	maxChatBody   = 1 << 20
	maxUploadBody = 32 << 20
)

// RAG is the part of service.RAGService the HTTP surface uses.
type RAG interface {
	LoadDocument(ctx context.Context, path string) (service.LoadResult, error)
	LoadBytes(ctx context.Context, name string, data []byte) (service.LoadResult, error)
	Ask(ctx context.Context, question string) (answer.Answer, error)
	Documents() []domain.Document
	Chunks() int
}

// Options bound what /load-pdf may read from the host.
type Options struct {
	// DefaultPath is loaded when the request names no document.
	DefaultPath string
	// DocumentRoot is the only directory request paths may point into. Empty
	// allows nothing but DefaultPath.
	DocumentRoot string
}

type Server struct {
	rag    RAG
	opts   Options
	logger *slog.Logger
	mux    *http.ServeMux
}

// New builds the handler tree.
func New(rag RAG, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{rag: rag, opts: opts, logger: logger, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /load-pdf", s.handleLoad)
	s.mux.HandleFunc("POST /load-pdf", s.handleLoad)
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("GET /documents", s.handleDocuments)
	return s
}

func (s *Server) Handler() http.Handler { return s.withRequestID(s.mux) }

// Run serves on addr until ctx is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "pdfrag backend is running\n")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"documents": len(s.rag.Documents()),
		"chunks":    s.rag.Chunks(),
	})
}

type loadRequest struct {
	Path string `json:"path"`
}

type loadResponse struct {
	Status     string `json:"status"`
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
	Skipped    int    `json:"skipped"`
}

// handleLoad accepts a multipart upload in the "file" field, a JSON {"path": ...}
// body, a ?path= query, or nothing at all for the configured default document.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var (
		res service.LoadResult
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		res, err = s.loadUpload(w, r)
	} else {
		path := r.URL.Query().Get("path")
		if path == "" && r.Method == http.MethodPost && r.ContentLength != 0 {
			var req loadRequest
			if derr := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); derr != nil && !errors.Is(derr, io.EOF) {
				s.writeError(w, r, domain.InputError("invalid JSON body"))
				return
			}
			path = req.Path
		}
		path, err = s.allowedPath(path)
		if err == nil {
			res, err = s.rag.LoadDocument(r.Context(), path)
		}
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loadResponse{
		Status:     res.Status,
		DocumentID: res.DocumentID,
		Chunks:     res.Chunks,
		Skipped:    res.Skipped,
	})
}

func (s *Server) loadUpload(w http.ResponseWriter, r *http.Request) (service.LoadResult, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxUploadBody); err != nil {
		return service.LoadResult{}, domain.InputError("failed to parse upload form")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return service.LoadResult{}, domain.InputError("missing file field")
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return service.LoadResult{}, domain.InputError("failed to read upload")
	}
	return s.rag.LoadBytes(r.Context(), header.Filename, data)
}

type chatRequest struct {
	Message string `json:"message"`
}

type source struct {
	ChunkID string  `json:"chunk_id"`
	Heading string  `json:"heading"`
	Score   float64 `json:"score"`
}

type chatResponse struct {
	Response string      `json:"response"`
	Tier     answer.Tier `json:"tier"`
	Sources  []source    `json:"sources"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		s.writeError(w, r, domain.InputError("invalid JSON body"))
		return
	}
	ans, err := s.rag.Ask(r.Context(), req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := chatResponse{Response: ans.Text, Tier: ans.Tier, Sources: make([]source, 0, len(ans.Sources))}
	for _, sc := range ans.Sources {
		resp.Sources = append(resp.Sources, source{ChunkID: sc.Chunk.ID, Heading: sc.Chunk.Heading, Score: sc.Score})
	}
	writeJSON(w, http.StatusOK, resp)
}

type documentInfo struct {
	ID       string    `json:"id"`
	Chunks   int       `json:"chunks"`
	Summary  string    `json:"summary"`
	LoadedAt time.Time `json:"loaded_at"`
}

func (s *Server) handleDocuments(w http.ResponseWriter, _ *http.Request) {
	docs := s.rag.Documents()
	out := make([]documentInfo, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentInfo{ID: d.ID, Chunks: len(d.Chunks), Summary: d.Summary, LoadedAt: d.LoadedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
