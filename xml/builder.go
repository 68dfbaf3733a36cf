package xml

import (
	"errors"
	"fmt"
	"strings"
)

// ErrOutside is returned by a Builder receiving text outside of the root
// element of a document.
var ErrOutside = errors.New("text outside root element")

// Builder is a Handler that assembles the events it receives into a
// Document.
type Builder struct {
	TrimSpace bool
	KeepEmpty bool

	doc   *Document
	stack []Node
	text  strings.Builder
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Document returns the document built so far.
func (b *Builder) Document() *Document {
	if b.doc == nil {
		return EmptyDocument()
	}
	return b.doc
}

func (b *Builder) StartDocument() error {
	b.doc = EmptyDocument()
	b.stack = append(b.stack[:0], b.doc)
	b.text.Reset()
	return nil
}

func (b *Builder) EndDocument() error {
	b.flush()
	if len(b.stack) != 1 {
		return fmt.Errorf("document: %d element(s) not closed", len(b.stack)-1)
	}
	return nil
}

func (b *Builder) StartElement(e E) error {
	if b.doc == nil {
		b.StartDocument()
	}
	b.flush()
	el := NewElement(e.QName)
	for _, a := range e.Attrs {
		el.SetAttribute(NewAttribute(a.QName, a.Value))
	}
	b.append(el)
	b.stack = append(b.stack, el)
	return nil
}

func (b *Builder) EndElement(e E) error {
	b.flush()
	n := len(b.stack)
	if n <= 1 {
		return fmt.Errorf("%s: can not be closed without being open", e.QualifiedName())
	}
	b.stack = b.stack[:n-1]
	return nil
}

func (b *Builder) Text(t T) error {
	if len(b.stack) <= 1 {
		if strings.TrimSpace(t.Content) != "" {
			return fmt.Errorf("document: %w", ErrOutside)
		}
		return nil
	}
	b.text.WriteString(t.Content)
	return nil
}

func (b *Builder) Comment(c C) error {
	if b.doc == nil {
		b.StartDocument()
	}
	b.flush()
	b.append(NewComment(c.Content))
	return nil
}

func (b *Builder) Instruction(p P) error {
	if b.doc == nil {
		b.StartDocument()
	}
	b.flush()
	pi := NewInstruction(p.QName)
	pi.Content = p.Content
	b.append(pi)
	return nil
}

func (b *Builder) append(node Node) {
	switch parent := b.stack[len(b.stack)-1].(type) {
	case *Document:
		parent.AppendChild(node)
	case *Element:
		parent.Append(node)
	}
}

func (b *Builder) flush() {
	if b.text.Len() == 0 {
		return
	}
	str := b.text.String()
	b.text.Reset()
	if !b.KeepEmpty && strings.TrimSpace(str) == "" {
		return
	}
	if b.TrimSpace {
		str = strings.TrimSpace(str)
	}
	b.append(NewText(str))
}

// Walk replays node and its descendants as events sent to h. When node is a
// Document, the events are enclosed by StartDocument and EndDocument.
func Walk(node Node, h Handler) error {
	doc, ok := node.(*Document)
	if !ok {
		return walk(node, h)
	}
	if err := h.StartDocument(); err != nil {
		return err
	}
	for _, n := range doc.Nodes {
		if err := walk(n, h); err != nil {
			return err
		}
	}
	return h.EndDocument()
}

func walk(node Node, h Handler) error {
	switch n := node.(type) {
	case *Document:
		for _, c := range n.Nodes {
			if err := walk(c, h); err != nil {
				return err
			}
		}
		return nil
	case *Element:
		e := E{
			QName:      n.QName,
			SelfClosed: len(n.Nodes) == 0,
		}
		for _, a := range n.Attrs {
			e.Attrs = append(e.Attrs, A{QName: a.QName, Value: a.Value()})
		}
		if err := h.StartElement(e); err != nil {
			return err
		}
		for _, c := range n.Nodes {
			if err := walk(c, h); err != nil {
				return err
			}
		}
		return h.EndElement(e)
	case *Text:
		return h.Text(T{Content: n.Content})
	case *CharData:
		return h.Text(T{Content: n.Content})
	case *Comment:
		return h.Comment(C{Content: n.Content})
	case *Instruction:
		return h.Instruction(P{QName: n.QName, Content: n.Value()})
	case *Attribute:
		return fmt.Errorf("%s: attribute can not be walked", n.QualifiedName())
	default:
		return fmt.Errorf("node: unknown type (%T)", node)
	}
}
