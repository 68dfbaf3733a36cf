package xslt

import (
	"fmt"
	"log/slog"

	"github.com/midbel/angle/environ"
	"github.com/midbel/angle/xml"
	"github.com/midbel/angle/xpath"
)

const MaxDepth = 1024

type Context struct {
	XslNode     xml.Node
	ContextNode xml.Node
	Mode        string

	Index int
	Size  int
	Depth int

	*Stylesheet
	*Env
	Tracer

	logger *slog.Logger
}

func (c *Context) errorWithContext(err error) error {
	if c.XslNode == nil {
		return err
	}
	return errorWithContext(c.XslNode.QualifiedName(), err)
}

func (c *Context) WithXsl(xslNode xml.Node) *Context {
	return c.clone(xslNode, c.ContextNode)
}

// WithXpath returns a context for node at position pos in a list of size
// nodes.
func (c *Context) WithXpath(ctxNode xml.Node, pos, size int) *Context {
	child := c.clone(c.XslNode, ctxNode)
	child.Index = pos
	child.Size = size
	return child
}

// Nest returns a context with a new scope for variables enclosed by the
// scope of c.
func (c *Context) Nest() *Context {
	child := c.clone(c.XslNode, c.ContextNode)
	child.Env = c.Env.Sub()
	return child
}

// Scope returns a context where only the global variables are visible. It
// is used to invoke templates.
func (c *Context) Scope() (*Context, error) {
	if c.Depth >= MaxDepth {
		return nil, fmt.Errorf("maximum depth reached (%d)", MaxDepth)
	}
	child := c.clone(c.XslNode, c.ContextNode)
	child.Env = c.Env.Global()
	child.Depth++
	return child, nil
}

func (c *Context) clone(xslNode, ctxNode xml.Node) *Context {
	child := *c
	child.XslNode = xslNode
	child.ContextNode = ctxNode
	return &child
}

// Query evaluates query with the context node of c.
func (c *Context) Query(query string) (xpath.Sequence, error) {
	expr, err := c.CompileQuery(query)
	if err != nil {
		return nil, err
	}
	return c.Eval(expr)
}

func (c *Context) Eval(expr xpath.Expr) (xpath.Sequence, error) {
	ctx := xpath.NewContext(c.ContextNode, c.Vars, c.Builtins)
	ctx.Index = c.Index
	ctx.Size = c.Size
	ctx.Current = c.ContextNode
	return ctx.Eval(expr)
}

func (c *Context) Test(query string) (bool, error) {
	items, err := c.Query(query)
	if err != nil {
		return false, err
	}
	return items.True(), nil
}

// Env holds the variables and the functions visible to the instructions.
type Env struct {
	Vars     environ.Environ[xpath.Expr]
	Globals  environ.Environ[xpath.Expr]
	Builtins environ.Environ[xpath.BuiltinFunc]
}

func Empty() *Env {
	globals := environ.Empty[xpath.Expr]()
	return &Env{
		Vars:     globals,
		Globals:  globals,
		Builtins: xpath.DefaultBuiltin(),
	}
}

func (e *Env) Sub() *Env {
	return &Env{
		Vars:     environ.Enclosed(e.Vars),
		Globals:  e.Globals,
		Builtins: e.Builtins,
	}
}

func (e *Env) Global() *Env {
	return &Env{
		Vars:     environ.Enclosed(e.Globals),
		Globals:  e.Globals,
		Builtins: e.Builtins,
	}
}

func (e *Env) Define(ident string, seq xpath.Sequence) {
	e.Vars.Define(ident, xpath.Value(seq))
}

func errorWithContext(ctx string, err error) error {
	return fmt.Errorf("%s: %w", ctx, err)
}
