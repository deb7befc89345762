package docx

import (
	"encoding/xml"
	"strings"
)

// Highlight colors accepted by w:highlight.
const (
	HighlightYellow = "yellow"
)

// Paragraph is a w:p element.
type Paragraph struct {
	n *node
	w string
}

// Runs returns the paragraph's direct w:r children. Runs nested in
// hyperlinks or content controls are not included.
func (p *Paragraph) Runs() []*Run {
	var out []*Run
	for _, n := range p.n.childrenNamed(p.w, "r") {
		out = append(out, &Run{n: n, w: p.w})
	}
	return out
}

// Text is the concatenated text of the paragraph's runs, including runs
// inside hyperlinks.
func (p *Paragraph) Text() string {
	var sb strings.Builder
	for _, c := range p.n.children {
		switch {
		case c.is(p.w, "r"):
			sb.WriteString((&Run{n: c, w: p.w}).Text())
		case c.is(p.w, "hyperlink"):
			for _, r := range c.childrenNamed(p.w, "r") {
				sb.WriteString((&Run{n: r, w: p.w}).Text())
			}
		}
	}
	return sb.String()
}

// PageBreaks counts the explicit page breaks in the paragraph's runs.
func (p *Paragraph) PageBreaks() int {
	count := 0
	for _, r := range p.n.childrenNamed(p.w, "r") {
		for _, br := range r.childrenNamed(p.w, "br") {
			if t, _ := br.attr(attrPrefix(p.w), "type"); t == "page" {
				count++
			}
		}
	}
	return count
}

// AddRun appends a run holding text.
func (p *Paragraph) AddRun(text string) *Run {
	r := &Run{n: newElement(p.w, "r"), w: p.w}
	p.n.appendChild(r.n)
	r.SetText(text)
	return r
}

func (p *Paragraph) addPageBreakRun() {
	r := newElement(p.w, "r")
	r.appendChild(newElement(p.w, "br", xml.Attr{Name: xml.Name{Space: attrPrefix(p.w), Local: "type"}, Value: "page"}))
	p.n.appendChild(r)
}

// Run is a w:r element: a span of text sharing one formatting state.
type Run struct {
	n *node
	w string
}

// Text returns the run's text. w:tab reads as a tab, line breaks as a
// newline; page and column breaks contribute nothing.
func (r *Run) Text() string {
	var sb strings.Builder
	for _, c := range r.n.children {
		if c.kind != elementNode || c.name.Space != r.w {
			continue
		}
		switch c.name.Local {
		case "t":
			sb.WriteString(c.innerText())
		case "tab", "ptab":
			sb.WriteByte('\t')
		case "br":
			if t, ok := c.attr(attrPrefix(r.w), "type"); !ok || t == "textWrapping" {
				sb.WriteByte('\n')
			}
		case "cr":
			sb.WriteByte('\n')
		case "noBreakHyphen":
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

// SetText replaces the run's content with text, keeping its formatting.
func (r *Run) SetText(text string) {
	kept := r.n.children[:0]
	for _, c := range r.n.children {
		if c.is(r.w, "rPr") {
			kept = append(kept, c)
		}
	}
	r.n.children = kept

	text = strings.ReplaceAll(sanitizeXMLText(text), "\r\n", "\n")
	var pending strings.Builder
	flush := func() {
		if pending.Len() == 0 {
			return
		}
		t := newElement(r.w, "t", xml.Attr{Name: xml.Name{Space: "xml", Local: "space"}, Value: "preserve"})
		t.appendChild(newText(pending.String()))
		r.n.appendChild(t)
		pending.Reset()
	}
	for _, ch := range text {
		switch ch {
		case '\t':
			flush()
			r.n.appendChild(newElement(r.w, "tab"))
		case '\n', '\r':
			flush()
			r.n.appendChild(newElement(r.w, "br"))
		default:
			pending.WriteRune(ch)
		}
	}
	flush()
}

// Highlight returns the run's highlight color, or "" when none is set.
func (r *Run) Highlight() string {
	rPr := r.n.firstChild(r.w, "rPr")
	if rPr == nil {
		return ""
	}
	h := rPr.firstChild(r.w, "highlight")
	if h == nil {
		return ""
	}
	v, _ := h.attr(attrPrefix(r.w), "val")
	return v
}

// SetHighlight sets the run's highlight color.
func (r *Run) SetHighlight(color string) {
	rPr := r.properties()
	if h := rPr.firstChild(r.w, "highlight"); h != nil {
		h.setAttr(attrPrefix(r.w), "val", color)
		return
	}
	h := newElement(r.w, "highlight", xml.Attr{Name: xml.Name{Space: attrPrefix(r.w), Local: "val"}, Value: color})

	// CT_RPr is a sequence; highlight goes before these siblings.
	for i, c := range rPr.children {
		if c.kind == elementNode && c.name.Space == r.w && highlightSuccessors[c.name.Local] {
			rPr.insertChild(i, h)
			return
		}
	}
	rPr.appendChild(h)
}

var highlightSuccessors = map[string]bool{
	"u": true, "effect": true, "bdr": true, "shd": true, "fitText": true,
	"vertAlign": true, "rtl": true, "cs": true, "em": true, "lang": true,
	"eastAsianLayout": true, "specVanish": true, "oMath": true, "rPrChange": true,
}

// properties returns the run's w:rPr, creating it as the first child.
func (r *Run) properties() *node {
	if rPr := r.n.firstChild(r.w, "rPr"); rPr != nil {
		return rPr
	}
	rPr := newElement(r.w, "rPr")
	r.n.insertChild(0, rPr)
	return rPr
}

// sanitizeXMLText drops characters XML 1.0 cannot carry, such as the form
// feeds OCR engines emit between pages.
func sanitizeXMLText(s string) string {
	return strings.Map(func(ch rune) rune {
		switch {
		case ch == '\t' || ch == '\n' || ch == '\r':
			return ch
		case ch < 0x20:
			return -1
		case ch >= 0xD800 && ch <= 0xDFFF:
			return -1
		case ch == 0xFFFE || ch == 0xFFFF:
			return -1
		}
		return ch
	}, s)
}
