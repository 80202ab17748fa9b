package chunker

import (
	"fmt"
	"path/filepath"
	"strings"

	"pdfrag/internal/domain"
)

// Strategy names accepted by New.
const (
	TypeAuto     = "auto"
	TypeHeading  = "heading"
	TypeFixed    = "fixed"
	TypeSentence = "sentence"
	TypeMarkdown = "markdown"
)

// Config carries the tunables of every strategy; each strategy reads its own fields.
type Config struct {
	Type              string
	DefaultHeading    string
	HeadingMaxLen     int
	HeadingCapRatio   float64
	FixedSize         int
	FixedMinLen       int
	SentencesPerChunk int
	OverlapSentences  int
}

// New returns the chunker named by cfg.Type. "auto" and "" select the heading chunker.
func New(cfg Config) (domain.Chunker, error) {
	switch strings.ToLower(cfg.Type) {
	case TypeHeading, TypeAuto, "":
		return NewHeadingChunker(cfg.DefaultHeading, cfg.HeadingMaxLen, cfg.HeadingCapRatio), nil
	case TypeFixed:
		return NewFixedChunker(cfg.FixedSize, cfg.FixedMinLen), nil
	case TypeSentence:
		return NewSentenceChunker(cfg.SentencesPerChunk, cfg.OverlapSentences), nil
	case TypeMarkdown, "md":
		return NewMarkdownChunker(cfg.DefaultHeading), nil
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Type)
	}
}

// ForSource is New, except that in auto mode markdown files get the markdown chunker.
func ForSource(cfg Config, path string) (domain.Chunker, error) {
	if strings.EqualFold(cfg.Type, TypeAuto) {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".md", ".markdown":
			return NewMarkdownChunker(cfg.DefaultHeading), nil
		}
	}
	return New(cfg)
}
