package transform

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/midbel/angle/resource"
	"github.com/midbel/angle/xslt"
)

// Resolver resolves the documents referenced by a transform sheet.
type Resolver = xslt.Resolver

// Program is a compiled transform sheet. It is immutable and can back
// several executions at the same time.
type Program struct {
	sheet *xslt.Stylesheet
	uri   string
}

// NewProgram wraps a stylesheet compiled by the caller.
func NewProgram(sheet *xslt.Stylesheet) *Program {
	return &Program{
		sheet: sheet,
		uri:   sheet.Uri,
	}
}

// Compile reads and compiles sheet. The identifier of sheet is the base uri
// of the relative references resolved by resolver.
func Compile(sheet resource.Representation, resolver Resolver) (*Program, error) {
	uri := sheet.Identifier()
	rc, err := sheet.Stream()
	if err != nil {
		return nil, compileError(uri, IOError{Op: "read sheet", Err: err})
	}
	defer rc.Close()

	style, err := xslt.Compile(rc, uri, resolver)
	if err != nil {
		return nil, compileError(uri, err)
	}
	return &Program{
		sheet: style,
		uri:   uri,
	}, nil
}

func (p *Program) Stylesheet() *xslt.Stylesheet {
	return p.sheet
}

func (p *Program) Uri() string {
	return p.uri
}

func (p *Program) Output() xslt.Output {
	return p.sheet.Output()
}

// Transformer returns a new transformer for the program.
func (p *Program) Transformer() *xslt.Transformer {
	return xslt.NewTransformer(p.sheet)
}

// ProgramCache compiles a transform sheet once, the first time the program
// is requested. A failed compilation is cached too: the sheet is read at
// most once until a new sheet is set.
type ProgramCache struct {
	mu       sync.Mutex
	sheet    resource.Representation
	resolver Resolver
	program  *Program
	err      error
	done     bool

	registry *Registry
	metrics  *Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

func NewProgramCache(sheet resource.Representation, resolver Resolver) *ProgramCache {
	return &ProgramCache{
		sheet:    sheet,
		resolver: resolver,
		tracer:   defaultTracer(),
		logger:   slog.Default(),
	}
}

// Program returns the compiled program, compiling the sheet if needed.
// Concurrent callers wait for the first compilation to complete.
func (c *ProgramCache) Program(ctx context.Context) (*Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return c.program, c.err
	}
	if c.sheet == nil {
		return nil, CompileError{Err: ErrSource}
	}
	_, span := c.tracer.Start(ctx, "angle.compile", trace.WithAttributes(
		attribute.String("sheet.uri", c.sheet.Identifier()),
	))
	defer span.End()

	if c.registry != nil {
		c.program, c.err = c.registry.program(ctx, c.sheet, c.resolver, c.metrics)
	} else {
		c.program, c.err = Compile(c.sheet, c.resolver)
		c.metrics.recordCompilation(c.err)
	}
	c.done = true
	if c.err != nil {
		span.RecordError(c.err)
		span.SetStatus(codes.Error, c.err.Error())
		c.logger.Debug("sheet compilation failed", "sheet", c.sheet.Identifier(), "err", c.err)
	} else {
		c.logger.Debug("sheet compiled", "sheet", c.sheet.Identifier())
	}
	return c.program, c.err
}

// SetSheet replaces the sheet and drops the program compiled from the
// previous one, from the registry too when there is one.
func (c *ProgramCache) SetSheet(sheet resource.Representation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registry != nil && c.sheet != nil {
		c.registry.Forget(c.sheet.Identifier())
	}
	c.sheet = sheet
	c.reset()
}

// SetProgram installs a program compiled elsewhere. It is never recompiled.
func (c *ProgramCache) SetProgram(program *Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	if program != nil {
		c.program = program
		c.done = true
	}
}

// SetResolver changes the resolver used by the next compilation.
func (c *ProgramCache) SetResolver(resolver Resolver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolver = resolver
}

// Cached returns the compiled program if any without compiling the sheet.
func (c *ProgramCache) Cached() *Program {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.program
}

func (c *ProgramCache) release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.sheet != nil {
		err = c.sheet.Release()
	}
	c.sheet = nil
	c.resolver = nil
	c.reset()
	return err
}

func (c *ProgramCache) reset() {
	c.program = nil
	c.err = nil
	c.done = false
}
