// -----------------------------------------------------------------------
// Markdown Extractor - AST walk via goldmark
// -----------------------------------------------------------------------

package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/ternarybob/colligo/internal/models"
)

// MarkdownExtractor segments markdown documents into regions at headings.
// Heading text matching a recognized section name types the region; other
// headings keep the running type.
type MarkdownExtractor struct {
	logger arbor.ILogger
	md     goldmark.Markdown
}

// NewMarkdownExtractor creates a markdown extractor.
func NewMarkdownExtractor(logger arbor.ILogger) *MarkdownExtractor {
	return &MarkdownExtractor{
		logger: logger,
		md:     goldmark.New(),
	}
}

// Supports reports true for markdown files.
func (e *MarkdownExtractor) Supports(fileType models.FileType) bool {
	return fileType == models.FileTypeMarkdown
}

// ExtractRegions walks the markdown AST collecting text per section.
func (e *MarkdownExtractor) ExtractRegions(ctx context.Context, path string) ([]models.Region, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read markdown file %s: %w", path, err)
	}

	doc := e.md.Parser().Parse(text.NewReader(source))

	var regions []models.Region
	currentType := RegionBody
	var current strings.Builder

	flush := func() {
		t := strings.TrimSpace(current.String())
		if t != "" {
			regions = append(regions, models.Region{Text: t, Type: currentType, Page: 1})
		}
		current.Reset()
	}

	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			header := normalizeHeader(string(nodeText(node, source)))
			if stopHeaders[header] {
				return ast.WalkStop, nil
			}
			if regionType, ok := sectionHeaders[header]; ok {
				flush()
				currentType = regionType
			}
			return ast.WalkSkipChildren, nil

		case *ast.Paragraph, *ast.Blockquote, *ast.ListItem:
			current.WriteString(string(nodeText(n, source)))
			current.WriteString("\n\n")
			return ast.WalkSkipChildren, nil

		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			// Code and raw HTML carry no prose worth extracting.
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk markdown AST: %w", err)
	}
	flush()

	return regions, nil
}

// nodeText concatenates the text content beneath an AST node.
func nodeText(n ast.Node, source []byte) []byte {
	var buf strings.Builder
	ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := child.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return []byte(buf.String())
}
