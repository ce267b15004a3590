package blocks

import (
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownToBlocks converts markdown into blocks, one per paragraph or
// heading. Inline markup is flattened to its text; headings keep their level
// as style h1..h6 and quoted paragraphs use style "blockquote". Code blocks,
// thematic breaks and raw HTML are dropped.
func MarkdownToBlocks(src []byte) ([]Block, error) {
	return defaultCodec.MarkdownToBlocks(src)
}

func (c *Codec) MarkdownToBlocks(src []byte) ([]Block, error) {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	keys := newKeySet(c.keys)
	out := []Block{}
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		var style string
		switch node := n.(type) {
		case *ast.Heading:
			style = fmt.Sprintf("h%d", node.Level)
		case *ast.Paragraph, *ast.TextBlock:
			style = StyleNormal
			if inBlockquote(n) {
				style = "blockquote"
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		default:
			return ast.WalkContinue, nil
		}

		var sb strings.Builder
		writeInline(&sb, n, src)
		out = append(out, c.makeBlock(keys, html.UnescapeString(sb.String()), style))
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk markdown: %w", err)
	}
	return out, nil
}

func inBlockquote(n ast.Node) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.Kind() == ast.KindBlockquote {
			return true
		}
	}
	return false
}

func writeInline(sb *strings.Builder, n ast.Node, src []byte) {
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch node := child.(type) {
		case *ast.Text:
			sb.Write(node.Segment.Value(src))
			switch {
			case node.HardLineBreak():
				sb.WriteByte('\n')
			case node.SoftLineBreak():
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(node.Value)
		case *ast.AutoLink:
			sb.Write(node.Label(src))
		case *ast.RawHTML:
			// inline tags carry no visible text
		default:
			writeInline(sb, child, src)
		}
	}
}
