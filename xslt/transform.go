package xslt

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"

	"github.com/midbel/angle/xml"
	"github.com/midbel/angle/xpath"
)

// Transformer applies a stylesheet to documents. A Transformer is not safe for
// concurrent use: create one per goroutine from the same Stylesheet.
type Transformer struct {
	sheet    *Stylesheet
	params   map[string]any
	output   Output
	resolver Resolver

	Tracer
	logger *slog.Logger
}

func NewTransformer(sheet *Stylesheet) *Transformer {
	return &Transformer{
		sheet:    sheet,
		params:   make(map[string]any),
		output:   sheet.Output(),
		resolver: FileResolver(),
		Tracer:   NoopTracer(),
		logger:   slog.New(slog.DiscardHandler),
	}
}

// SetParameter gives a value to the top level parameter name. Supported
// values are strings, numbers, booleans, nodes and sequences. Other values
// are converted to their string representation.
func (t *Transformer) SetParameter(name string, value any) {
	t.params[name] = value
}

func (t *Transformer) SetParameters(params map[string]any) {
	maps.Copy(t.params, params)
}

// SetOutputProperty overrides the property declared by xsl:output.
func (t *Transformer) SetOutputProperty(name, value string) error {
	return t.output.Set(name, value)
}

// SetResolver changes the resolver used by document().
func (t *Transformer) SetResolver(resolver Resolver) {
	t.resolver = getResolver(resolver)
}

func (t *Transformer) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	t.logger = logger
}

func (t *Transformer) SetTracer(tracer Tracer) {
	if tracer == nil {
		tracer = NoopTracer()
	}
	t.Tracer = tracer
}

func (t *Transformer) Output() Output {
	return t.output
}

// Transform applies the stylesheet to node and returns the result tree.
func (t *Transformer) Transform(node xml.Node) (*xml.Document, error) {
	ctx, err := t.createContext(node)
	if err != nil {
		return nil, err
	}
	nodes, err := ctx.applyTemplate(nil)
	if err != nil {
		return nil, err
	}
	doc := xml.EmptyDocument()
	if err := appendNodes(doc, nodes); err != nil {
		return nil, err
	}
	return doc, nil
}

// Execute transforms node and serializes the result to w with the output
// properties of t.
func (t *Transformer) Execute(w io.Writer, node xml.Node) error {
	doc, err := t.Transform(node)
	if err != nil {
		return err
	}
	ser, err := NewSerializer(t.output)
	if err != nil {
		return err
	}
	return ser.Serialize(w, doc)
}

// Handler returns a handler that transforms the document it receives and
// writes the serialized result to w.
func (t *Transformer) Handler(w io.Writer) *Sink {
	return &Sink{
		Builder: xml.NewBuilder(),
		writer:  w,
		exec:    t,
	}
}

// Filter returns a handler that transforms the document it receives and
// forwards the result, as events, to its downstream handler.
func (t *Transformer) Filter() *Filter {
	return &Filter{
		Builder: xml.NewBuilder(),
		exec:    t,
		next:    xml.Discard,
	}
}

func (t *Transformer) createContext(node xml.Node) (*Context, error) {
	if node == nil {
		return nil, fmt.Errorf("transform: no document to transform")
	}
	loader := documentLoader{
		sheet:    t.sheet,
		resolver: t.resolver,
		docs:     make(map[string]*xml.Document),
	}
	env := Empty()
	env.Builtins.Define("document", loader.callDocument)
	env.Builtins.Define("system-property", callSystemProperty)

	ctx := Context{
		ContextNode: node,
		Index:       1,
		Size:        1,
		Stylesheet:  t.sheet,
		Env:         env,
		Tracer:      t.Tracer,
		logger:      t.logger,
	}
	for _, v := range t.sheet.globals {
		if value, ok := t.params[v.Name]; ok && v.Param {
			env.Define(v.Name, toSequence(value))
			continue
		}
		seq, err := evalVariable(&ctx, v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", v.Name, err)
		}
		env.Define(v.Name, seq)
	}
	return &ctx, nil
}

func toSequence(value any) xpath.Sequence {
	switch v := value.(type) {
	case xpath.Sequence:
		return v
	case []xml.Node:
		return xpath.NodeSet(v...)
	case xml.Node, string, bool, float64, float32, int, int64:
		return xpath.Singleton(v)
	case fmt.Stringer:
		return xpath.Singleton(v.String())
	default:
		return xpath.Singleton(fmt.Sprint(v))
	}
}

// Sink buffers the document it receives and writes the result of its
// transformation once the document is complete.
type Sink struct {
	*xml.Builder
	writer io.Writer
	exec   *Transformer

	// Uri is the base uri given to the buffered document.
	Uri string
}

func (s *Sink) EndDocument() error {
	if err := s.Builder.EndDocument(); err != nil {
		return err
	}
	doc := s.Document()
	doc.Uri = s.Uri
	return s.exec.Execute(s.writer, doc)
}

// Filter is a transformation stage that can be inserted between an event
// source and another handler. The document received is buffered until
// EndDocument, then the result of the transformation is replayed to the
// downstream handler. A result with text outside of its root element, as
// produced by sheets with the text output method, can not be read by a
// downstream Filter or Sink: they fail with xml.ErrOutside.
type Filter struct {
	*xml.Builder
	exec *Transformer
	next xml.Handler

	// Uri is the base uri given to the buffered document.
	Uri string
}

func (f *Filter) SetHandler(h xml.Handler) {
	if h == nil {
		h = xml.Discard
	}
	f.next = h
}

func (f *Filter) Handler() xml.Handler {
	return f.next
}

func (f *Filter) Transformer() *Transformer {
	return f.exec
}

func (f *Filter) EndDocument() error {
	if err := f.Builder.EndDocument(); err != nil {
		return err
	}
	doc := f.Document()
	doc.Uri = f.Uri

	res, err := f.exec.Transform(doc)
	if err != nil {
		return err
	}
	res.Uri = f.Uri
	if err := xml.Walk(res, f.next); err != nil && !errors.Is(err, xml.ErrBreak) {
		return err
	}
	return nil
}
