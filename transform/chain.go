package transform

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/midbel/angle/resource"
	"github.com/midbel/angle/xml"
	"github.com/midbel/angle/xslt"
)

// FilterNode is one stage of a chain. It transforms the document it receives
// and forwards the result to the next stage.
type FilterNode struct {
	*xslt.Filter
	parent   *FilterNode
	pipeline *Pipeline
}

// SetParent plugs f after parent: the result of parent becomes the input of
// f.
func (f *FilterNode) SetParent(parent *FilterNode) {
	f.parent = parent
	if parent != nil {
		parent.SetHandler(f)
	}
}

func (f *FilterNode) Parent() *FilterNode {
	return f.parent
}

func (f *FilterNode) Pipeline() *Pipeline {
	return f.pipeline
}

// StreamSource is the input of an execution: a document sent as events,
// possibly through a chain of filters.
type StreamSource struct {
	Uri string

	doc    resource.Representation
	top    *FilterNode
	bottom *FilterNode
}

// Depth returns the number of filters between the document and the handler.
func (s *StreamSource) Depth() int {
	var n int
	for f := s.bottom; f != nil; f = f.parent {
		n++
	}
	return n
}

// Emit sends the document to h, through the filters when there are some.
// When the document is the result of another pipeline, that pipeline is
// executed with ctx.
func (s *StreamSource) Emit(ctx context.Context, h xml.Handler) error {
	if s.bottom == nil {
		return emitDocument(ctx, s.doc, h)
	}
	s.bottom.SetHandler(h)
	return emitDocument(ctx, s.doc, s.top)
}

// flight is the list of the pipelines being executed by the current
// goroutine, the most recent first. reach is the depth, from the first
// executed pipeline, of the document emitted by pipeline.
type flight struct {
	pipeline *Pipeline
	reach    int
	parent   *flight
}

type flightKey struct{}

func currentFlight(ctx context.Context) *flight {
	f, _ := ctx.Value(flightKey{}).(*flight)
	return f
}

// depth returns the depth of the next pipeline executed under f.
func (f *flight) depth() int {
	if f == nil {
		return 0
	}
	return f.reach
}

func (f *flight) running(p *Pipeline) bool {
	for ; f != nil; f = f.parent {
		if f.pipeline == p {
			return true
		}
	}
	return false
}

// enter returns the flight of p executed under ctx. It fails when p is
// already running.
func enter(ctx context.Context, p *Pipeline) (*flight, error) {
	curr := currentFlight(ctx)
	if curr.running(p) {
		return nil, ChainError{Depth: curr.depth(), Err: ErrCycle}
	}
	f := flight{
		pipeline: p,
		reach:    curr.depth(),
		parent:   curr,
	}
	return &f, nil
}

func buildStreamSource(ctx context.Context, p *Pipeline, source Source) (*StreamSource, error) {
	switch source.kind {
	case kindDocument:
		return &StreamSource{
			Uri: source.doc.Identifier(),
			doc: source.doc,
		}, nil
	case kindChain:
		return buildChain(ctx, p, source.pipeline)
	case kindInvalid:
		return nil, ErrSource
	}
	return nil, ErrSource
}

func buildChain(ctx context.Context, p, upstream *Pipeline) (*StreamSource, error) {
	ctx, span := p.tracer.Start(ctx, "angle.chain")
	defer span.End()

	var (
		visited = map[*Pipeline]bool{p: true}
		running = currentFlight(ctx)
		src     StreamSource
		curr    = upstream
		depth   = 1
	)
	for {
		if visited[curr] || running.running(curr) {
			return nil, ChainError{Depth: running.depth() + depth, Err: ErrCycle}
		}
		visited[curr] = true

		node, source, err := curr.filter(ctx)
		if err != nil {
			return nil, ChainError{Depth: depth, Err: err}
		}
		if src.bottom == nil {
			src.bottom = node
		} else {
			src.top.SetParent(node)
		}
		src.top = node

		switch source.kind {
		case kindChain:
			curr = source.pipeline
			depth++
			continue
		case kindDocument:
			src.doc = source.doc
			src.Uri = source.doc.Identifier()
		case kindInvalid:
			return nil, ChainError{Depth: depth, Err: ErrSource}
		}
		break
	}
	for f := src.bottom; f != nil; f = f.parent {
		f.Uri = src.Uri
	}
	p.logger.Debug("chain assembled", "depth", depth, "source", src.Uri)
	p.metrics.recordChain(depth)
	return &src, nil
}

func emitDocument(ctx context.Context, rep resource.Representation, h xml.Handler) error {
	if es, ok := rep.(resource.EventSource); ok {
		return es.Emit(h)
	}
	if up, ok := rep.(*Pipeline); ok {
		var buf bytes.Buffer
		if err := up.Execute(ctx, &buf); err != nil {
			return err
		}
		return xml.NewReader(&buf).Emit(h)
	}
	rc, err := rep.Stream()
	if err != nil {
		return IOError{Op: "read", Err: err}
	}
	defer rc.Close()

	er := errReader{Reader: rc}
	err = xml.NewReader(&er).Emit(h)
	if er.err != nil {
		return IOError{Op: "read", Err: er.err}
	}
	return err
}

type errReader struct {
	io.Reader
	err error
}

func (r *errReader) Read(b []byte) (int, error) {
	n, err := r.Reader.Read(b)
	if err != nil && !errors.Is(err, io.EOF) {
		r.err = err
	}
	return n, err
}

type errWriter struct {
	io.Writer
	err error
}

func (w *errWriter) Write(b []byte) (int, error) {
	n, err := w.Writer.Write(b)
	if err != nil {
		w.err = err
	}
	return n, err
}
