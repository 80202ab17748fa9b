package chunker

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"pdfrag/internal/domain"
)

// MarkdownChunker uses real markdown headings (any level) as chunk boundaries instead
// of guessing them from capitalisation. Blocks between two headings form one chunk.
type MarkdownChunker struct {
	defaultHeading string
	md             goldmark.Markdown
}

func NewMarkdownChunker(defaultHeading string) *MarkdownChunker {
	if defaultHeading == "" {
		defaultHeading = domain.DefaultHeading
	}
	return &MarkdownChunker{defaultHeading: defaultHeading, md: goldmark.New()}
}

func (c *MarkdownChunker) Name() string { return "markdown" }

func (c *MarkdownChunker) Chunk(documentID, content string) ([]domain.Chunk, error) {
	src := []byte(content)
	doc := c.md.Parser().Parse(text.NewReader(src))

	g := newGrouper(documentID, c.defaultHeading)
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		block := strings.TrimSpace(nodeText(n, src))
		if block == "" {
			continue
		}
		if _, ok := n.(*ast.Heading); ok {
			g.heading(block)
			continue
		}
		g.body(block)
	}
	return g.finish(), nil
}

// nodeText flattens a block node into a single line of text.
func nodeText(n ast.Node, src []byte) string {
	var buf strings.Builder
	switch n.(type) {
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.WriteString(strings.TrimSpace(string(seg.Value(src))))
			buf.WriteByte(' ')
		}
		return strings.Join(strings.Fields(buf.String()), " ")
	case *ast.HTMLBlock, *ast.ThematicBreak:
		return ""
	}
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if node.Type() == ast.TypeBlock && node != n {
				buf.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}
		switch t := node.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		case *ast.CodeSpan:
			for c := t.FirstChild(); c != nil; c = c.NextSibling() {
				if tx, ok := c.(*ast.Text); ok {
					buf.Write(tx.Segment.Value(src))
				}
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(buf.String()), " ")
}
