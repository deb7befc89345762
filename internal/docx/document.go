// Package docx reads, edits and writes WordprocessingML (.docx) packages.
//
// Only the main document part is parsed; every other part of the package is
// carried through a save unchanged. The model mirrors what Word calls the
// body: paragraphs and tables in reading order, tables made of rows of cells,
// cells holding paragraphs, paragraphs holding runs.
package docx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
)

const (
	nsWordML       = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsRelationship = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	defaultPrefix  = "w"
)

// Document is an opened or newly created .docx package.
type Document struct {
	parts    []*part
	mainPart *part
	prolog   []*node // nodes before the root element (xml declaration)
	root     *node
	body     *node
	w        string // element prefix for WordprocessingML, "" when it is the default namespace
}

// Open reads the .docx package at path.
func Open(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return Read(f, info.Size())
}

// Read parses a .docx package from r.
func Read(r io.ReaderAt, size int64) (*Document, error) {
	parts, err := readPackage(r, size)
	if err != nil {
		return nil, err
	}
	return fromParts(parts)
}

func fromParts(parts []*part) (*Document, error) {
	name := mainPartName(parts)
	var main *part
	for _, p := range parts {
		if p.header.Name == name {
			main = p
			break
		}
	}
	if main == nil {
		return nil, fmt.Errorf("package has no main document part %q", name)
	}

	nodes, err := parseTree(bytes.NewReader(main.data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	doc := &Document{parts: parts, mainPart: main}
	for _, n := range nodes {
		if n.kind == elementNode {
			doc.root = n
			continue
		}
		if doc.root == nil {
			doc.prolog = append(doc.prolog, n)
		}
	}
	if doc.root == nil || doc.root.name.Local != "document" {
		return nil, fmt.Errorf("%s has no document element", name)
	}

	doc.w, err = wordPrefix(doc.root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	doc.body = doc.root.firstChild(doc.w, "body")
	if doc.body == nil {
		doc.body = newElement(doc.w, "body")
		doc.root.appendChild(doc.body)
	}
	return doc, nil
}

// wordPrefix finds the prefix WordprocessingML elements use. The document
// element's own prefix wins when it is bound to WordprocessingML, which
// covers documents declaring it as the default namespace.
func wordPrefix(root *node) (string, error) {
	if ns, ok := namespaceOf(root, root.name.Space); ok && ns == nsWordML {
		if root.name.Space == "" {
			// unprefixed attributes have no namespace, so w:val and friends
			// still need a prefix
			if err := bindAttrPrefix(root); err != nil {
				return "", err
			}
		}
		return root.name.Space, nil
	}
	for _, a := range root.attrs {
		if a.Name.Space == "xmlns" && a.Value == nsWordML {
			return a.Name.Local, nil
		}
	}
	return defaultPrefix, nil
}

// namespaceOf returns the namespace root binds prefix to.
func namespaceOf(root *node, prefix string) (string, bool) {
	if prefix == "" {
		return root.attr("", "xmlns")
	}
	return root.attr("xmlns", prefix)
}

func bindAttrPrefix(root *node) error {
	ns, ok := namespaceOf(root, defaultPrefix)
	if !ok {
		root.setAttr("xmlns", defaultPrefix, nsWordML)
		return nil
	}
	if ns != nsWordML {
		return fmt.Errorf("prefix %q is bound to %s", defaultPrefix, ns)
	}
	return nil
}

// attrPrefix is the prefix for WordprocessingML attributes given the
// element prefix w.
func attrPrefix(w string) string {
	if w == "" {
		return defaultPrefix
	}
	return w
}

// Save writes the package to path. The file at path is replaced only once
// the whole package has been written.
func (d *Document) Save(path string) error {
	var buf bytes.Buffer
	writeTree(&buf, d.prolog)
	writeNode(&buf, d.root)
	d.mainPart.data = buf.Bytes()

	return writeFileAtomic(path, func(w io.Writer) error {
		return writePackage(w, d.parts)
	})
}

// Paragraphs returns the body's top-level paragraphs in reading order.
func (d *Document) Paragraphs() []*Paragraph {
	return wrapParagraphs(d.body.childrenNamed(d.w, "p"), d.w)
}

// Tables returns the body's top-level tables in reading order.
func (d *Document) Tables() []*Table {
	var out []*Table
	for _, n := range d.body.childrenNamed(d.w, "tbl") {
		out = append(out, &Table{n: n, w: d.w})
	}
	return out
}

// AddParagraph appends a paragraph holding text as a single run. Tabs and
// line breaks in text become w:tab and w:br elements.
func (d *Document) AddParagraph(text string) *Paragraph {
	p := newElement(d.w, "p")
	d.insertBlock(p)
	para := &Paragraph{n: p, w: d.w}
	if text != "" {
		para.AddRun(text)
	}
	return para
}

// AddPageBreak appends a paragraph that contains only a page break.
func (d *Document) AddPageBreak() *Paragraph {
	p := newElement(d.w, "p")
	d.insertBlock(p)
	para := &Paragraph{n: p, w: d.w}
	para.addPageBreakRun()
	return para
}

// AddPageBreakParagraph appends a paragraph that starts on a new page: a
// page-break run followed by a run holding text.
func (d *Document) AddPageBreakParagraph(text string) *Paragraph {
	p := newElement(d.w, "p")
	d.insertBlock(p)
	para := &Paragraph{n: p, w: d.w}
	para.addPageBreakRun()
	if text != "" {
		para.AddRun(text)
	}
	return para
}

// AddTable appends a rows x cols table whose cells each hold one empty
// paragraph.
func (d *Document) AddTable(rows, cols int) *Table {
	tbl := newElement(d.w, "tbl")
	tblPr := newElement(d.w, "tblPr")
	a := attrPrefix(d.w)
	tblPr.appendChild(newElement(d.w, "tblStyle", xml.Attr{Name: xml.Name{Space: a, Local: "val"}, Value: "TableGrid"}))
	tblPr.appendChild(newElement(d.w, "tblW",
		xml.Attr{Name: xml.Name{Space: a, Local: "w"}, Value: "0"},
		xml.Attr{Name: xml.Name{Space: a, Local: "type"}, Value: "auto"}))
	tbl.appendChild(tblPr)

	grid := newElement(d.w, "tblGrid")
	for c := 0; c < cols; c++ {
		grid.appendChild(newElement(d.w, "gridCol"))
	}
	tbl.appendChild(grid)

	for r := 0; r < rows; r++ {
		tr := newElement(d.w, "tr")
		for c := 0; c < cols; c++ {
			tc := newElement(d.w, "tc")
			tc.appendChild(newElement(d.w, "p"))
			tr.appendChild(tc)
		}
		tbl.appendChild(tr)
	}
	d.insertBlock(tbl)
	return &Table{n: tbl, w: d.w}
}

// insertBlock adds a block-level element at the end of the body, keeping
// the section properties last.
func (d *Document) insertBlock(n *node) {
	children := d.body.children
	for i := len(children) - 1; i >= 0; i-- {
		c := children[i]
		if c.kind == textNode {
			continue
		}
		if c.is(d.w, "sectPr") {
			d.body.insertChild(i, n)
			return
		}
		break
	}
	d.body.appendChild(n)
}

func wrapParagraphs(nodes []*node, w string) []*Paragraph {
	out := make([]*Paragraph, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &Paragraph{n: n, w: w})
	}
	return out
}

// Table is a w:tbl element.
type Table struct {
	n *node
	w string
}

// Rows returns the table rows.
func (t *Table) Rows() []*Row {
	var out []*Row
	for _, n := range t.n.childrenNamed(t.w, "tr") {
		out = append(out, &Row{n: n, w: t.w})
	}
	return out
}

// Cell returns the cell at row r, column c, or nil when out of range.
func (t *Table) Cell(r, c int) *Cell {
	rows := t.Rows()
	if r < 0 || r >= len(rows) {
		return nil
	}
	cells := rows[r].Cells()
	if c < 0 || c >= len(cells) {
		return nil
	}
	return cells[c]
}

// Row is a w:tr element.
type Row struct {
	n *node
	w string
}

// Cells returns the row's cells.
func (r *Row) Cells() []*Cell {
	var out []*Cell
	for _, n := range r.n.childrenNamed(r.w, "tc") {
		out = append(out, &Cell{n: n, w: r.w})
	}
	return out
}

// Cell is a w:tc element.
type Cell struct {
	n *node
	w string
}

// Paragraphs returns the cell's paragraphs.
func (c *Cell) Paragraphs() []*Paragraph {
	return wrapParagraphs(c.n.childrenNamed(c.w, "p"), c.w)
}

// Text joins the cell's paragraph texts with newlines.
func (c *Cell) Text() string {
	var buf bytes.Buffer
	for i, p := range c.Paragraphs() {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(p.Text())
	}
	return buf.String()
}

// SetText replaces the cell content with a single paragraph holding text.
func (c *Cell) SetText(text string) {
	for _, p := range c.n.childrenNamed(c.w, "p") {
		c.n.removeChild(p)
	}
	p := newElement(c.w, "p")
	c.n.appendChild(p)
	if text != "" {
		(&Paragraph{n: p, w: c.w}).AddRun(text)
	}
}
