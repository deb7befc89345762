package docx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

type nodeKind int

const (
	elementNode nodeKind = iota
	textNode
	procInstNode
	commentNode
	directiveNode
)

// node is a prefix-preserving XML tree. encoding/xml's Marshal rewrites
// namespace prefixes, which Word rejects, so parts are round-tripped through
// RawToken and written back by hand. Name.Space holds the raw prefix.
type node struct {
	kind     nodeKind
	name     xml.Name
	attrs    []xml.Attr
	children []*node
	parent   *node
	data     string // text, comment or directive body
	target   string // processing-instruction target
}

func parseTree(r io.Reader) ([]*node, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = true

	var roots []*node
	var stack []*node

	appendNode := func(n *node) {
		if len(stack) == 0 {
			roots = append(roots, n)
			return
		}
		top := stack[len(stack)-1]
		n.parent = top
		top.children = append(top.children, n)
	}

	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{kind: elementNode, name: t.Name, attrs: append([]xml.Attr(nil), t.Attr...)}
			appendNode(n)
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("unexpected end element </%s>", qualified(t.Name))
			}
			top := stack[len(stack)-1]
			if top.name != t.Name {
				return nil, fmt.Errorf("mismatched end element </%s>, expected </%s>", qualified(t.Name), qualified(top.name))
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			// whitespace between top-level nodes is dropped
			if len(stack) == 0 {
				continue
			}
			appendNode(&node{kind: textNode, data: string(t)})
		case xml.ProcInst:
			appendNode(&node{kind: procInstNode, target: t.Target, data: string(t.Inst)})
		case xml.Comment:
			appendNode(&node{kind: commentNode, data: string(t)})
		case xml.Directive:
			appendNode(&node{kind: directiveNode, data: string(t)})
		}
	}

	if len(stack) != 0 {
		return nil, fmt.Errorf("unclosed element <%s>", qualified(stack[len(stack)-1].name))
	}
	return roots, nil
}

func writeTree(w *bytes.Buffer, nodes []*node) {
	for _, n := range nodes {
		writeNode(w, n)
	}
}

func writeNode(w *bytes.Buffer, n *node) {
	switch n.kind {
	case textNode:
		textEscaper.WriteString(w, n.data)
	case procInstNode:
		w.WriteString("<?")
		w.WriteString(n.target)
		if n.data != "" {
			w.WriteByte(' ')
			w.WriteString(n.data)
		}
		w.WriteString("?>")
	case commentNode:
		w.WriteString("<!--")
		w.WriteString(n.data)
		w.WriteString("-->")
	case directiveNode:
		w.WriteString("<!")
		w.WriteString(n.data)
		w.WriteString(">")
	case elementNode:
		w.WriteByte('<')
		w.WriteString(qualified(n.name))
		for _, a := range n.attrs {
			w.WriteByte(' ')
			w.WriteString(qualified(a.Name))
			w.WriteString(`="`)
			attrEscaper.WriteString(w, a.Value)
			w.WriteByte('"')
		}
		if len(n.children) == 0 {
			w.WriteString("/>")
			return
		}
		w.WriteByte('>')
		for _, c := range n.children {
			writeNode(w, c)
		}
		w.WriteString("</")
		w.WriteString(qualified(n.name))
		w.WriteByte('>')
	}
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\r", "&#xD;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;",
		"\t", "&#x9;", "\n", "&#xA;", "\r", "&#xD;")
)

func qualified(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Space + ":" + name.Local
}

func (n *node) is(prefix, local string) bool {
	return n.kind == elementNode && n.name.Space == prefix && n.name.Local == local
}

func (n *node) attr(prefix, local string) (string, bool) {
	for _, a := range n.attrs {
		if a.Name.Space == prefix && a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

func (n *node) setAttr(prefix, local, value string) {
	for i, a := range n.attrs {
		if a.Name.Space == prefix && a.Name.Local == local {
			n.attrs[i].Value = value
			return
		}
	}
	n.attrs = append(n.attrs, xml.Attr{Name: xml.Name{Space: prefix, Local: local}, Value: value})
}

// childrenNamed returns direct element children with the given name.
func (n *node) childrenNamed(prefix, local string) []*node {
	var out []*node
	for _, c := range n.children {
		if c.is(prefix, local) {
			out = append(out, c)
		}
	}
	return out
}

func (n *node) firstChild(prefix, local string) *node {
	for _, c := range n.children {
		if c.is(prefix, local) {
			return c
		}
	}
	return nil
}

func (n *node) appendChild(c *node) {
	c.parent = n
	n.children = append(n.children, c)
}

func (n *node) insertChild(i int, c *node) {
	c.parent = n
	n.children = append(n.children, nil)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = c
}

func (n *node) removeChild(c *node) {
	for i, existing := range n.children {
		if existing == c {
			n.children = append(n.children[:i], n.children[i+1:]...)
			c.parent = nil
			return
		}
	}
}

func newElement(prefix, local string, attrs ...xml.Attr) *node {
	return &node{kind: elementNode, name: xml.Name{Space: prefix, Local: local}, attrs: attrs}
}

func newText(s string) *node {
	return &node{kind: textNode, data: s}
}

// innerText concatenates all character data below n.
func (n *node) innerText() string {
	var sb strings.Builder
	var walk func(*node)
	walk = func(m *node) {
		if m.kind == textNode {
			sb.WriteString(m.data)
			return
		}
		for _, c := range m.children {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
