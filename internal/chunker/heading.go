package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"pdfrag/internal/domain"
)

const (
	DefaultHeadingMaxLen   = 80
	DefaultHeadingCapRatio = 0.6
)

var blankLineRe = regexp.MustCompile(`\n\s*\n`)

// HeadingChunker splits text into paragraph blocks and groups the blocks under the
// nearest preceding heading-like line.
type HeadingChunker struct {
	defaultHeading string
	maxLen         int
	capRatio       float64
}

// NewHeadingChunker creates a heading chunker. Zero values fall back to the defaults.
func NewHeadingChunker(defaultHeading string, maxLen int, capRatio float64) *HeadingChunker {
	if defaultHeading == "" {
		defaultHeading = domain.DefaultHeading
	}
	if maxLen <= 0 {
		maxLen = DefaultHeadingMaxLen
	}
	if capRatio <= 0 {
		capRatio = DefaultHeadingCapRatio
	}
	return &HeadingChunker{defaultHeading: defaultHeading, maxLen: maxLen, capRatio: capRatio}
}

func (c *HeadingChunker) Name() string { return "heading" }

func (c *HeadingChunker) Chunk(documentID, text string) ([]domain.Chunk, error) {
	g := newGrouper(documentID, c.defaultHeading)
	for _, block := range SplitBlocks(text) {
		if !strings.Contains(block, "\n") && c.IsHeading(block) {
			g.heading(block)
			continue
		}
		g.body(block)
	}
	return g.finish(), nil
}

// IsHeading reports whether a single line looks like a section heading: short, no
// trailing period, and mostly capitalised words.
func (c *HeadingChunker) IsHeading(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if utf8.RuneCountInString(line) > c.maxLen {
		return false
	}
	if strings.HasSuffix(line, ".") {
		return false
	}
	words := strings.Fields(line)
	if len(words) == 0 {
		return false
	}
	capitalised := 0
	for _, w := range words {
		r, _ := utf8.DecodeRuneInString(w)
		if unicode.IsUpper(r) {
			capitalised++
		}
	}
	return float64(capitalised)/float64(len(words)) >= c.capRatio
}

// SplitBlocks splits text on blank lines, trims every block and drops empty ones.
func SplitBlocks(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	raw := blankLineRe.Split(text, -1)
	blocks := make([]string, 0, len(raw))
	for _, b := range raw {
		lines := strings.Split(strings.TrimSpace(b), "\n")
		for i := range lines {
			lines[i] = strings.TrimSpace(lines[i])
		}
		b = strings.Join(lines, "\n")
		if b != "" {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// grouper accumulates body blocks under the current heading and flushes them as a
// chunk whenever a new heading starts. A heading with no body yields no chunk.
type grouper struct {
	documentID string
	current    string
	acc        []string
	chunks     []domain.Chunk
}

func newGrouper(documentID, defaultHeading string) *grouper {
	return &grouper{documentID: documentID, current: defaultHeading}
}

func (g *grouper) heading(h string) {
	g.flush()
	g.current = h
}

func (g *grouper) body(b string) {
	g.acc = append(g.acc, b)
}

func (g *grouper) flush() {
	if len(g.acc) == 0 {
		return
	}
	idx := len(g.chunks)
	g.chunks = append(g.chunks, domain.Chunk{
		ID:         ChunkID(g.documentID, idx),
		DocumentID: g.documentID,
		Index:      idx,
		Heading:    g.current,
		Text:       g.current + "\n" + strings.Join(g.acc, " "),
	})
	g.acc = nil
}

func (g *grouper) finish() []domain.Chunk {
	g.flush()
	return g.chunks
}
