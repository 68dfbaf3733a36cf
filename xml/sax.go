package xml

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

var ErrBreak = errors.New("break")

// Handler receives the content of a document as a sequence of events.
type Handler interface {
	StartDocument() error
	EndDocument() error
	StartElement(E) error
	EndElement(E) error
	Text(T) error
	Comment(C) error
	Instruction(P) error
}

// Element
type E struct {
	QName
	Attrs      []A
	SelfClosed bool
}

// Attribute
type A struct {
	QName
	Value string
}

// Text or CharData
type T struct {
	Content string
}

// Comment
type C struct {
	Content string
}

// Processing instruction
type P struct {
	QName
	Content string
}

// Discard is a Handler that drops every event.
var Discard Handler = discard{}

type discard struct{}

func (discard) StartDocument() error { return nil }
func (discard) EndDocument() error { return nil }
func (discard) StartElement(E) error { return nil }
func (discard) EndElement(E) error { return nil }
func (discard) Text(T) error { return nil }
func (discard) Comment(C) error { return nil }
func (discard) Instruction(P) error { return nil }

// StreamWriter is a Handler that serializes the events it receives without
// building a tree.
type StreamWriter struct {
	writer *bufio.Writer
	stack  []QName
	open   bool

	NoProlog bool
}

func Stream(w io.Writer) *StreamWriter {
	return &StreamWriter{
		writer: bufio.NewWriter(w),
	}
}

func (w *StreamWriter) Flush() error {
	return w.writer.Flush()
}

func (w *StreamWriter) StartDocument() error {
	if w.NoProlog {
		return nil
	}
	return w.prolog()
}

func (w *StreamWriter) EndDocument() error {
	if n := len(w.stack); n > 0 {
		return fmt.Errorf("%s: element not closed", w.stack[n-1].QualifiedName())
	}
	return w.Flush()
}

func (w *StreamWriter) StartElement(e E) error {
	w.closeStart()
	w.stack = append(w.stack, e.QName)
	w.writer.WriteRune(langle)
	w.writer.WriteString(e.QualifiedName())
	for _, a := range e.Attrs {
		w.writer.WriteRune(' ')
		w.writer.WriteString(a.QualifiedName())
		w.writer.WriteRune(equal)
		w.writer.WriteRune(quote)
		w.writer.WriteString(escapeAttr(a.Value))
		w.writer.WriteRune(quote)
	}
	w.open = true
	return nil
}

func (w *StreamWriter) EndElement(e E) error {
	size := len(w.stack)
	if size == 0 {
		return fmt.Errorf("%s: can not be closed without being open", e.QualifiedName())
	}
	if w.stack[size-1].QualifiedName() != e.QualifiedName() {
		return fmt.Errorf("%s: element name mismatched", e.QualifiedName())
	}
	w.stack = w.stack[:size-1]
	if w.open {
		w.open = false
		w.writer.WriteRune(slash)
		w.writer.WriteRune(rangle)
		return nil
	}
	w.writer.WriteRune(langle)
	w.writer.WriteRune(slash)
	w.writer.WriteString(e.QualifiedName())
	w.writer.WriteRune(rangle)
	return nil
}

func (w *StreamWriter) Text(t T) error {
	w.closeStart()
	_, err := w.writer.WriteString(escapeText(t.Content))
	return err
}

func (w *StreamWriter) Comment(c C) error {
	w.closeStart()
	w.writer.WriteString("<!--")
	w.writer.WriteString(c.Content)
	_, err := w.writer.WriteString("-->")
	return err
}

func (w *StreamWriter) Instruction(p P) error {
	w.closeStart()
	w.writer.WriteRune(langle)
	w.writer.WriteRune(question)
	w.writer.WriteString(p.QualifiedName())
	if p.Content != "" {
		w.writer.WriteRune(' ')
		w.writer.WriteString(p.Content)
	}
	w.writer.WriteRune(question)
	_, err := w.writer.WriteRune(rangle)
	return err
}

func (w *StreamWriter) closeStart() {
	if !w.open {
		return
	}
	w.open = false
	w.writer.WriteRune(rangle)
}

func (w *StreamWriter) prolog() error {
	_, err := fmt.Fprintf(w.writer, `<?xml version="%s" encoding="%s"?>`, SupportedVersion, SupportedEncoding)
	return err
}
