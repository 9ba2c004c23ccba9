// -----------------------------------------------------------------------
// Markdown to PDF rendering for investigation reports
// -----------------------------------------------------------------------

package report

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Renderer turns report markdown into an A4 PDF. It walks the goldmark
// AST directly so no HTML intermediate is needed.
type Renderer struct {
	logger arbor.ILogger
}

// NewRenderer creates a markdown PDF renderer.
func NewRenderer(logger arbor.ILogger) *Renderer {
	return &Renderer{logger: logger}
}

// Render converts markdown to PDF bytes. The title goes into the
// document metadata; headings come from the markdown itself.
func (r *Renderer) Render(markdown, title string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetMargins(12, 12, 12)
	pdf.SetAutoPageBreak(true, 12)
	pdf.AddPage()
	pdf.SetFont("Arial", "", 9)

	md := goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))
	source := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(source))

	w := &pdfWalker{pdf: pdf, source: source, size: 9}
	if err := ast.Walk(doc, w.walk); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}
	r.logger.Debug().Str("title", title).Int("pdf_size", buf.Len()).Msg("Report rendered")
	return buf.Bytes(), nil
}

type pdfWalker struct {
	pdf       *fpdf.Fpdf
	source    []byte
	size      float64
	bold      bool
	italic    bool
	listLevel int
}

func (w *pdfWalker) baseFont() {
	style := ""
	if w.bold {
		style += "B"
	}
	if w.italic {
		style += "I"
	}
	w.pdf.SetFont("Arial", style, w.size)
}

func (w *pdfWalker) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			w.pdf.Ln(5)
			sizes := map[int]float64{1: 15, 2: 12, 3: 11}
			size, ok := sizes[node.Level]
			if !ok {
				size = 10
			}
			w.pdf.SetFont("Arial", "B", size)
		} else {
			w.pdf.Ln(6)
			w.baseFont()
		}
	case *ast.Paragraph:
		if !entering {
			w.pdf.Ln(6)
		}
	case *ast.Text:
		if entering {
			w.pdf.Write(5, string(node.Text(w.source)))
		}
	case *ast.Emphasis:
		if node.Level == 2 {
			w.bold = entering
		} else {
			w.italic = entering
		}
		w.baseFont()
	case *ast.CodeSpan:
		if entering {
			w.pdf.SetFont("Courier", "", w.size)
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					w.pdf.Write(5, string(t.Segment.Value(w.source)))
				}
			}
			return ast.WalkSkipChildren, nil
		}
		w.baseFont()
	case *ast.FencedCodeBlock:
		if entering {
			w.codeBlock(node.Lines())
			return ast.WalkSkipChildren, nil
		}
	case *ast.CodeBlock:
		if entering {
			w.codeBlock(node.Lines())
			return ast.WalkSkipChildren, nil
		}
	case *ast.List:
		if entering {
			w.listLevel++
		} else {
			w.listLevel--
			if w.listLevel == 0 {
				w.pdf.Ln(2)
			}
		}
	case *ast.ListItem:
		if entering {
			w.pdf.Ln(5)
			w.pdf.SetX(12 + float64(w.listLevel)*5)
			w.pdf.Write(5, "- ")
		}
	case *ast.ThematicBreak:
		if entering {
			w.pdf.Ln(3)
			w.pdf.Line(12, w.pdf.GetY(), 198, w.pdf.GetY())
			w.pdf.Ln(3)
		}
	case *extast.Table:
		if entering {
			w.table(node)
			return ast.WalkSkipChildren, nil
		}
	}
	return ast.WalkContinue, nil
}

func (w *pdfWalker) codeBlock(lines *text.Segments) {
	w.pdf.Ln(2)
	w.pdf.SetFont("Courier", "", 8)
	w.pdf.SetFillColor(245, 245, 245)
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		w.pdf.MultiCell(0, 4.5, string(seg.Value(w.source)), "", "L", true)
	}
	w.pdf.SetFillColor(255, 255, 255)
	w.baseFont()
	w.pdf.Ln(2)
}

// table lays rows out with content-measured column widths scaled to the
// printable page width.
func (w *pdfWalker) table(n *extast.Table) {
	var rows [][]string
	var collect func(node ast.Node)
	collect = func(node ast.Node) {
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			switch row := child.(type) {
			case *extast.TableRow:
				rows = append(rows, cellTexts(row, w.source))
			case *extast.TableHeader:
				collect(row)
			}
		}
	}
	collect(n)
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	const pageWidth = 186.0
	cols := len(rows[0])
	w.pdf.SetFont("Arial", "", 8)

	widths := make([]float64, cols)
	for _, row := range rows {
		for i, cell := range row {
			if i < cols {
				if cw := w.pdf.GetStringWidth(cell) + 4; cw > widths[i] {
					widths[i] = cw
				}
			}
		}
	}
	total := 0.0
	for i := range widths {
		if widths[i] < 14 {
			widths[i] = 14
		}
		if widths[i] > pageWidth/2 {
			widths[i] = pageWidth / 2
		}
		total += widths[i]
	}
	scale := pageWidth / total
	for i := range widths {
		widths[i] *= scale
	}

	w.pdf.Ln(2)
	for i, row := range rows {
		if i == 0 {
			w.pdf.SetFont("Arial", "B", 8)
			w.pdf.SetFillColor(230, 230, 230)
		} else {
			w.pdf.SetFont("Arial", "", 8)
			w.pdf.SetFillColor(255, 255, 255)
		}
		for j := 0; j < cols; j++ {
			cell := ""
			if j < len(row) {
				cell = row[j]
			}
			for w.pdf.GetStringWidth(cell) > widths[j]-2 && len(cell) > 3 {
				cell = cell[:len(cell)-4] + "..."
			}
			w.pdf.CellFormat(widths[j], 6, cell, "1", 0, "L", i == 0, 0, "")
		}
		w.pdf.Ln(-1)
	}
	w.pdf.Ln(3)
	w.baseFont()
}

func cellTexts(row *extast.TableRow, source []byte) []string {
	var out []string
	for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
		if _, ok := cell.(*extast.TableCell); ok {
			out = append(out, string(cell.Text(source)))
		}
	}
	return out
}
