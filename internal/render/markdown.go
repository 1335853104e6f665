package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Markdown writes the outline as GitHub-flavoured Markdown. Answers are
// escaped so user text cannot inject markup.
func Markdown(o *Outline) []byte {
	var buf bytes.Buffer
	if o.Title != "" {
		fmt.Fprintf(&buf, "# %s\n\n", escape(o.Title))
	}
	for _, n := range o.Sections {
		writeNode(&buf, n, 2)
	}
	return buf.Bytes()
}

func writeNode(buf *bytes.Buffer, n *Node, level int) {
	if level > 6 {
		level = 6
	}
	fmt.Fprintf(buf, "%s %s\n\n", strings.Repeat("#", level), escape(n.Title))
	for _, f := range n.Fields {
		value := escape(f.Value)
		if value == "" {
			value = "_Not provided_"
		}
		fmt.Fprintf(buf, "- **%s:** %s\n", escape(f.Label), value)
	}
	if len(n.Fields) > 0 {
		buf.WriteString("\n")
	}
	if n.Table != nil {
		writeTable(buf, n.Table)
	}
	for _, c := range n.Children {
		writeNode(buf, c, level+1)
	}
}

func writeTable(buf *bytes.Buffer, t *Table) {
	if len(t.Rows) == 0 || len(t.Header) == 0 {
		buf.WriteString("_No rows_\n\n")
		return
	}
	row := func(cells []string) {
		buf.WriteString("|")
		for _, c := range cells {
			buf.WriteString(" " + escape(c) + " |")
		}
		buf.WriteString("\n")
	}
	row(t.Header)
	buf.WriteString("|" + strings.Repeat(" --- |", len(t.Header)) + "\n")
	for _, r := range t.Rows {
		row(r)
	}
	buf.WriteString("\n")
}

var mdEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`,
	"<", `\<`, ">", `\>`, "#", `\#`, "|", `\|`, "\n", " ",
)

func escape(s string) string {
	return mdEscaper.Replace(s)
}

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// HTML converts the Markdown rendering to an HTML fragment.
func HTML(o *Outline) ([]byte, error) {
	var buf bytes.Buffer
	if err := md.Convert(Markdown(o), &buf); err != nil {
		return nil, fmt.Errorf("convert markdown: %w", err)
	}
	return buf.Bytes(), nil
}
