package render

import (
	"fmt"
	"io"

	"github.com/fumiama/go-docx"
)

// DOCX writes the outline as a Word document: section headings, one
// paragraph per answer, and a bordered table per repeatable array.
func DOCX(o *Outline, w io.Writer) error {
	doc := docx.New().WithDefaultTheme()
	if o.Title != "" {
		doc.AddParagraph().Style("Title").AddText(o.Title).Bold().Size("36")
	}
	for _, n := range o.Sections {
		addNode(doc, n, 1)
	}
	doc.WithA4Page()

	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("write docx: %w", err)
	}
	return nil
}

func addNode(doc *docx.Docx, n *Node, level int) {
	if level > 6 {
		level = 6
	}
	doc.AddParagraph().Style(fmt.Sprintf("Heading%d", level)).AddText(n.Title).Bold()
	for _, f := range n.Fields {
		p := doc.AddParagraph()
		p.AddText(f.Label + ": ").Bold()
		p.AddText(f.Value)
	}
	if t := n.Table; t != nil && len(t.Header) > 0 && len(t.Rows) > 0 {
		tbl := doc.AddTable(len(t.Rows)+1, len(t.Header), 0, nil)
		for j, h := range t.Header {
			tbl.TableRows[0].TableCells[j].AddParagraph().AddText(h).Bold()
		}
		for i, r := range t.Rows {
			for j, cell := range r {
				tbl.TableRows[i+1].TableCells[j].AddParagraph().AddText(cell)
			}
		}
	}
	for _, c := range n.Children {
		addNode(doc, c, level+1)
	}
}
