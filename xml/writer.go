package xml

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"slices"
	"strings"
)

type WriterOptions uint64

const (
	OptionCompact WriterOptions = 1 << iota
	OptionNoNamespace
	OptionNoComment
	OptionNoProlog
	OptionCharDataToText
	OptionHTML
)

func (w WriterOptions) Compact() bool {
	return w&OptionCompact > 0
}

func (w WriterOptions) NoNamespace() bool {
	return w&OptionNoNamespace > 0
}

func (w WriterOptions) NoComment() bool {
	return w&OptionNoComment > 0
}

func (w WriterOptions) NoProlog() bool {
	return w&OptionNoProlog > 0
}

func (w WriterOptions) CharDataToText() bool {
	return w&OptionCharDataToText > 0
}

func (w WriterOptions) HTML() bool {
	return w&OptionHTML > 0
}

type PrologWriterFunc func(w io.Writer) error

func (fn PrologWriterFunc) WriteProlog(w io.Writer) error {
	return fn(w)
}

type PrologWriter interface {
	WriteProlog(w io.Writer) error
}

type Writer struct {
	writer  *bufio.Writer
	written bool

	Indent   string
	MaxDepth int
	WriterOptions
	PrologWriter
}

// WriteNode serializes node in compact form.
func WriteNode(node Node) string {
	var buf bytes.Buffer

	ws := NewWriter(&buf)
	ws.WriterOptions |= OptionCompact
	ws.WriteNode(node)
	return buf.String()
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{
		writer: bufio.NewWriter(w),
		Indent: "  ",
	}
}

func (w *Writer) Write(doc *Document) error {
	if err := w.writeProlog(doc); err != nil {
		return err
	}
	for _, n := range doc.Nodes {
		if err := w.writeNode(n, 0); err != nil {
			return err
		}
	}
	if !w.Compact() && w.written {
		w.writer.WriteRune('\n')
	}
	return w.writer.Flush()
}

func (w *Writer) WriteNode(node Node) error {
	if doc, ok := node.(*Document); ok {
		return w.Write(doc)
	}
	if err := w.writeNode(node, 0); err != nil {
		return err
	}
	return w.writer.Flush()
}

func (w *Writer) writeNode(node Node, depth int) error {
	switch node := node.(type) {
	case *Document:
		for _, n := range node.Nodes {
			if err := w.writeNode(n, depth); err != nil {
				return err
			}
		}
		return nil
	case *Element:
		return w.writeElement(node, depth)
	case *CharData:
		return w.writeCharData(node)
	case *Text:
		return w.writeLiteral(node)
	case *Instruction:
		return w.writeInstruction(node, depth)
	case *Comment:
		return w.writeComment(node, depth)
	case *Attribute:
		return w.writeAttributeAsNode(node, depth)
	default:
		return fmt.Errorf("node: unknown type (%T)", node)
	}
}

func (w *Writer) writeElement(node *Element, depth int) error {
	w.writePrefix(depth)

	name := node.QualifiedName()
	if w.NoNamespace() {
		name = node.LocalName()
	}
	w.writer.WriteRune(langle)
	w.writer.WriteString(name)
	if err := w.writeAttributes(node.Attrs); err != nil {
		return err
	}
	if len(node.Nodes) == 0 || (w.MaxDepth > 0 && depth >= w.MaxDepth) {
		if w.HTML() && !isVoidElement(node.LocalName()) {
			w.writer.WriteRune(rangle)
			w.writeClose(name)
			return nil
		}
		w.writer.WriteRune(slash)
		w.writer.WriteRune(rangle)
		return nil
	}
	w.writer.WriteRune(rangle)

	inline := slices.ContainsFunc(node.Nodes, func(n Node) bool {
		return n.Type() == TypeText
	})
	if inline {
		var (
			opts = w.WriterOptions
			ctx  = w.written
		)
		w.WriterOptions |= OptionCompact
		for _, n := range node.Nodes {
			if err := w.writeNode(n, depth+1); err != nil {
				return err
			}
		}
		w.WriterOptions, w.written = opts, ctx
	} else {
		for _, n := range node.Nodes {
			if err := w.writeNode(n, depth+1); err != nil {
				return err
			}
		}
		w.writePrefix(depth)
	}
	w.writeClose(name)
	return nil
}

func (w *Writer) writeClose(name string) {
	w.writer.WriteRune(langle)
	w.writer.WriteRune(slash)
	w.writer.WriteString(name)
	w.writer.WriteRune(rangle)
}

func (w *Writer) writeLiteral(node *Text) error {
	w.written = true
	_, err := w.writer.WriteString(escapeText(node.Content))
	return err
}

func (w *Writer) writeCharData(node *CharData) error {
	w.written = true
	if w.CharDataToText() {
		_, err := w.writer.WriteString(escapeText(node.Content))
		return err
	}
	w.writer.WriteString("<![CDATA[")
	w.writer.WriteString(node.Content)
	_, err := w.writer.WriteString("]]>")
	return err
}

func (w *Writer) writeComment(node *Comment, depth int) error {
	if w.NoComment() {
		return nil
	}
	w.writePrefix(depth)
	w.writer.WriteString("<!--")
	w.writer.WriteString(node.Content)
	_, err := w.writer.WriteString("-->")
	return err
}

func (w *Writer) writeInstruction(node *Instruction, depth int) error {
	w.writePrefix(depth)
	w.writer.WriteRune(langle)
	w.writer.WriteRune(question)
	w.writer.WriteString(node.Name)
	if str := node.Value(); str != "" {
		w.writer.WriteRune(' ')
		w.writer.WriteString(str)
	}
	w.writer.WriteRune(question)
	_, err := w.writer.WriteRune(rangle)
	return err
}

func (w *Writer) writeProlog(doc *Document) error {
	if w.NoProlog() || w.HTML() {
		return nil
	}
	w.written = true
	if w.PrologWriter != nil {
		return w.WriteProlog(w.writer)
	}
	version, encoding := doc.Version, doc.Encoding
	if version == "" {
		version = SupportedVersion
	}
	if encoding == "" {
		encoding = SupportedEncoding
	}
	fmt.Fprintf(w.writer, `<?xml version="%s" encoding="%s"`, version, encoding)
	if doc.Standalone != "" {
		fmt.Fprintf(w.writer, ` standalone="%s"`, doc.Standalone)
	}
	_, err := w.writer.WriteString("?>")
	return err
}

func (w *Writer) writeAttributeAsNode(attr *Attribute, depth int) error {
	el := NewElement(attr.QName)
	el.Append(NewText(attr.Value()))
	return w.writeNode(el, depth)
}

func (w *Writer) writeAttributes(attrs []Attribute) error {
	for _, a := range attrs {
		if w.NoNamespace() && a.isNamespaceDecl() {
			continue
		}
		w.writer.WriteRune(' ')
		if w.NoNamespace() {
			w.writer.WriteString(a.LocalName())
		} else {
			w.writer.WriteString(a.QualifiedName())
		}
		w.writer.WriteRune(equal)
		w.writer.WriteRune(quote)
		w.writer.WriteString(escapeAttr(a.Value()))
		w.writer.WriteRune(quote)
	}
	return nil
}

func (w *Writer) writePrefix(depth int) {
	if w.Compact() {
		w.written = true
		return
	}
	if w.written {
		w.writer.WriteRune('\n')
		w.writer.WriteString(strings.Repeat(w.Indent, depth))
	}
	w.written = true
}

var voidElements = []string{
	"area", "base", "br", "col", "embed", "hr", "img", "input",
	"link", "meta", "source", "track", "wbr",
}

func isVoidElement(name string) bool {
	return slices.Contains(voidElements, strings.ToLower(name))
}

func escapeText(str string) string {
	return textEscaper.Replace(str)
}

func escapeAttr(str string) string {
	return attrEscaper.Replace(str)
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")
)
