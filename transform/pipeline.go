package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/midbel/angle/resource"
	"github.com/midbel/angle/xslt"
)

const tracerName = "github.com/midbel/angle/transform"

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pipeline) {
		if tp != nil {
			p.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithResolver sets the resolver used to compile the sheet and by document()
// during the transformation.
func WithResolver(resolver Resolver) Option {
	return func(p *Pipeline) {
		p.resolver = resolver
	}
}

func WithParameters(params map[string]any) Option {
	return func(p *Pipeline) {
		p.params = maps.Clone(params)
	}
}

func WithOutputOptions(options map[string]string) Option {
	return func(p *Pipeline) {
		p.options = maps.Clone(options)
	}
}

// WithRegistry shares the program compiled by the pipeline with the other
// pipelines using the same registry.
func WithRegistry(reg *Registry) Option {
	return func(p *Pipeline) {
		p.registry = reg
	}
}

// WithInstructionTracer reports the instructions executed by the
// transformations of the pipeline to tracer.
func WithInstructionTracer(tracer xslt.Tracer) Option {
	return func(p *Pipeline) {
		p.steps = tracer
	}
}

func WithIdentifier(uri string) Option {
	return func(p *Pipeline) {
		p.identifier = uri
	}
}

// Pipeline applies a transform sheet to a source. The source can be the
// result of another pipeline, in which case the stages are executed in a
// single streaming pass.
type Pipeline struct {
	mu         sync.Mutex
	source     Source
	cache      *ProgramCache
	params     map[string]any
	options    map[string]string
	resolver   Resolver
	identifier string
	released   bool

	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
	steps    xslt.Tracer
	registry *Registry
}

// New creates a pipeline transforming source with sheet. The sheet is
// compiled on the first execution.
func New(source Source, sheet resource.Representation, opts ...Option) *Pipeline {
	p := create(source, opts)
	p.cache.SetSheet(sheet)
	return p
}

// NewWithProgram creates a pipeline transforming source with a program
// compiled beforehand.
func NewWithProgram(source Source, program *Program, opts ...Option) *Pipeline {
	p := create(source, opts)
	p.cache.SetProgram(program)
	return p
}

func create(source Source, opts []Option) *Pipeline {
	p := Pipeline{
		source: source,
		logger: slog.Default(),
		tracer: defaultTracer(),
	}
	for _, o := range opts {
		o(&p)
	}
	p.cache = NewProgramCache(nil, p.resolver)
	p.cache.registry = p.registry
	p.cache.metrics = p.metrics
	p.cache.tracer = p.tracer
	p.cache.logger = p.logger
	return &p
}

// SetParameters replaces the parameters given to the sheet.
func (p *Pipeline) SetParameters(params map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.params = maps.Clone(params)
}

// SetOutputOptions replaces the serialization options of the result.
func (p *Pipeline) SetOutputOptions(options map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.options = maps.Clone(options)
}

func (p *Pipeline) SetSource(source Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = source
}

// SetSheet replaces the sheet. The program compiled from the previous sheet
// is dropped.
func (p *Pipeline) SetSheet(sheet resource.Representation) {
	p.cache.SetSheet(sheet)
}

func (p *Pipeline) SetProgram(program *Program) {
	p.cache.SetProgram(program)
}

func (p *Pipeline) SetResolver(resolver Resolver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolver = resolver
	p.cache.SetResolver(resolver)
}

func (p *Pipeline) SetIdentifier(uri string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identifier = uri
}

// Program returns the program of the pipeline, compiling it if needed.
func (p *Pipeline) Program(ctx context.Context) (*Program, error) {
	if p.snapshot().released {
		return nil, ErrReleased
	}
	return p.cache.Program(ctx)
}

// Execute transforms the source of p and writes the result to w.
func (p *Pipeline) Execute(ctx context.Context, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var (
		snap  = p.snapshot()
		id    = uuid.NewString()
		now   = time.Now()
		depth int
	)
	ctx, span := p.tracer.Start(ctx, "angle.execute", trace.WithAttributes(
		attribute.String("execution.id", id),
		attribute.String("pipeline.identifier", snap.identifier),
	))
	defer span.End()

	err := p.execute(ctx, snap, w, &depth)
	elapsed := time.Since(now)

	span.SetAttributes(attribute.Int("chain.depth", depth))
	p.metrics.recordExecution(err, elapsed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Debug("execution failed", "id", id, "depth", depth, "elapsed", elapsed, "err", err)
		return err
	}
	span.SetStatus(codes.Ok, "")
	p.logger.Debug("execution done", "id", id, "depth", depth, "elapsed", elapsed)
	return nil
}

func (p *Pipeline) execute(ctx context.Context, snap state, w io.Writer, depth *int) error {
	if snap.released {
		return ErrReleased
	}
	if !snap.source.Valid() {
		return ErrSource
	}
	fl, err := enter(ctx, p)
	if err != nil {
		return err
	}
	prog, err := p.cache.Program(ctx)
	if err != nil {
		return err
	}
	tf, err := snap.transformer(prog)
	if err != nil {
		return err
	}
	src, err := buildStreamSource(ctx, p, snap.source)
	if err != nil {
		return err
	}
	*depth = src.Depth()
	fl.reach += *depth + 1

	ew := errWriter{Writer: w}
	sink := tf.Handler(&ew)
	sink.Uri = src.Uri
	if err := src.Emit(context.WithValue(ctx, flightKey{}, fl), sink); err != nil {
		if ew.err != nil {
			return IOError{Op: "write", Err: ew.err}
		}
		return classify(err)
	}
	return nil
}

// AsFilter returns the program of p as a stage that can be plugged in a
// chain.
func (p *Pipeline) AsFilter(ctx context.Context) (*FilterNode, error) {
	node, _, err := p.filter(ctx)
	return node, err
}

func (p *Pipeline) filter(ctx context.Context) (*FilterNode, Source, error) {
	snap := p.snapshot()
	if snap.released {
		return nil, snap.source, ErrReleased
	}
	prog, err := p.cache.Program(ctx)
	if err != nil {
		return nil, snap.source, err
	}
	tf, err := snap.transformer(prog)
	if err != nil {
		return nil, snap.source, err
	}
	node := FilterNode{
		Filter:   tf.Filter(),
		pipeline: p,
	}
	return &node, snap.source, nil
}

// WriteTo executes p and writes its result to w.
func (p *Pipeline) WriteTo(w io.Writer) (int64, error) {
	cw := countWriter{Writer: w}
	err := p.Execute(context.Background(), &cw)
	return cw.count, err
}

// Stream returns a reader over the result of p. The pipeline is executed on
// the first call to Read.
func (p *Pipeline) Stream() (io.ReadCloser, error) {
	if p.snapshot().released {
		return nil, ErrReleased
	}
	return &lazyReader{pipeline: p}, nil
}

func (p *Pipeline) Identifier() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identifier
}

// MediaType returns the media type of the result, from the output options
// of the pipeline first, then from the output declaration of the sheet.
func (p *Pipeline) MediaType() string {
	snap := p.snapshot()
	var out xslt.Output
	if prog := p.cache.Cached(); prog != nil {
		out = prog.Output()
	} else {
		out.Method = xslt.MethodXML
	}
	if mt := snap.options["media-type"]; mt != "" {
		return mt
	}
	if m := snap.options["method"]; m != "" {
		out.Method = m
		out.MediaType = ""
	}
	return out.ContentType()
}

// Release releases the source of p, recursively when it is a chain, then
// the sheet. Every resource is released even when one of them fails.
func (p *Pipeline) Release() error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return nil
	}
	p.released = true
	source, ident := p.source, p.identifier
	p.source = Source{}
	p.resolver = nil
	p.params = nil
	p.options = nil
	p.mu.Unlock()

	var errs []error
	if err := source.release(); err != nil {
		errs = append(errs, fmt.Errorf("release source: %w", err))
	}
	if err := p.cache.release(); err != nil {
		errs = append(errs, fmt.Errorf("release sheet: %w", err))
	}
	err := errors.Join(errs...)
	if err != nil {
		p.logger.Warn("release failed", "pipeline", ident, "err", err)
	}
	return err
}

type state struct {
	source     Source
	params     map[string]any
	options    map[string]string
	resolver   Resolver
	identifier string
	released   bool
	logger     *slog.Logger
	steps      xslt.Tracer
}

func (p *Pipeline) snapshot() state {
	p.mu.Lock()
	defer p.mu.Unlock()
	return state{
		source:     p.source,
		params:     maps.Clone(p.params),
		options:    maps.Clone(p.options),
		resolver:   p.resolver,
		identifier: p.identifier,
		released:   p.released,
		logger:     p.logger,
		steps:      p.steps,
	}
}

func (s state) transformer(prog *Program) (*xslt.Transformer, error) {
	tf := prog.Transformer()
	tf.SetParameters(s.params)
	for name, value := range s.options {
		if err := tf.SetOutputProperty(name, value); err != nil {
			return nil, TransformError{Err: err}
		}
	}
	tf.SetResolver(s.resolver)
	tf.SetLogger(s.logger)
	if s.steps != nil {
		tf.SetTracer(s.steps)
	}
	return tf, nil
}

type lazyReader struct {
	pipeline *Pipeline
	buf      *bytes.Reader
	err      error
}

func (r *lazyReader) Read(b []byte) (int, error) {
	if r.buf == nil && r.err == nil {
		var tmp bytes.Buffer
		r.err = r.pipeline.Execute(context.Background(), &tmp)
		r.buf = bytes.NewReader(tmp.Bytes())
	}
	if r.err != nil {
		return 0, r.err
	}
	return r.buf.Read(b)
}

func (r *lazyReader) Close() error {
	return nil
}

type countWriter struct {
	io.Writer
	count int64
}

func (w *countWriter) Write(b []byte) (int, error) {
	n, err := w.Writer.Write(b)
	w.count += int64(n)
	return n, err
}
