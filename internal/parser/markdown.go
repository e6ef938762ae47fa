package parser

import (
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	gmtext "github.com/yuin/goldmark/text"
)

func extractMarkdown(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return markdownText(data), nil
}

// markdownText strips markdown formatting by parsing the source and
// collecting the text content of the AST. Soft line breaks and block
// ends become newlines so the line structure of the source survives.
func markdownText(source []byte) string {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(gmtext.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch t := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(t.Segment.Value(source))
				if t.SoftLineBreak() || t.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				b.Write(t.Value)
			}
		case *ast.FencedCodeBlock:
			if entering {
				writeSegments(&b, source, t.Lines())
			}
		case *ast.CodeBlock:
			if entering {
				writeSegments(&b, source, t.Lines())
			}
		default:
			if !entering && n.Type() == ast.TypeBlock {
				b.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	return collapseBlank(b.String())
}

func writeSegments(b *strings.Builder, source []byte, lines *gmtext.Segments) {
	for i := 0; i < lines.Len(); i++ {
		b.Write(lines.At(i).Value(source))
	}
}
