// Package extract reads source documents into flat text. PDFs go through
// github.com/ledongthuc/pdf; plain text and markdown are read as-is.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"pdfrag/internal/domain"
)

// Extractor implements domain.Extractor over the local filesystem.
type Extractor struct{}

func New() Extractor { return Extractor{} }

func (Extractor) Extract(path string) (string, error) { return File(path) }

func (Extractor) ExtractBytes(name string, data []byte) (string, error) { return Bytes(name, data) }

// Supported reports whether path has an extension File can read.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt", ".md", ".markdown":
		return true
	}
	return false
}

// File reads path. A missing or unsupported file is an input error; a file that
// cannot be parsed is an extraction error.
func File(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", domain.InputError("document path is empty")
	}
	if !Supported(path) {
		return "", domain.InputError(fmt.Sprintf("unsupported document type %q", filepath.Ext(path)))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", domain.InputError(fmt.Sprintf("document %s not found", path))
		}
		return "", fmt.Errorf("%w: read %s: %w", domain.ErrExtraction, path, err)
	}
	return Bytes(path, data)
}

// Bytes extracts text from data, picking the format from name's extension.
func Bytes(name string, data []byte) (string, error) {
	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		text, err = PDF(data)
	case ".txt", ".md", ".markdown":
		text = string(data)
	default:
		return "", domain.InputError(fmt.Sprintf("unsupported document type %q", filepath.Ext(name)))
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s: no text extracted", domain.ErrExtraction, name)
	}
	return text, nil
}

// PDF returns the plain text of every page in data.
func PDF(data []byte) (text string, err error) {
	// the parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: malformed pdf: %v", domain.ErrExtraction, r)
		}
	}()
	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %w", domain.ErrExtraction, err)
	}
	plain, err := rdr.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: read pdf text: %w", domain.ErrExtraction, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("%w: read pdf buffer: %w", domain.ErrExtraction, err)
	}
	return buf.String(), nil
}
