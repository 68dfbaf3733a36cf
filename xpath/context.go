package xpath

import (
	"github.com/midbel/angle/environ"
	"github.com/midbel/angle/xml"
)

// Context is the evaluation context of an expression: the context node, its
// position and size in the current node list, the variables and functions in
// scope.
type Context struct {
	xml.Node
	Index int
	Size  int

	environ.Environ[Expr]
	Builtins environ.Environ[BuiltinFunc]

	// Current is the node returned by the current() function. It defaults to
	// the context node.
	Current xml.Node
}

func DefaultContext(node xml.Node) Context {
	return createContext(node, 1, 1)
}

func NewContext(node xml.Node, env environ.Environ[Expr], builtins environ.Environ[BuiltinFunc]) Context {
	ctx := createContext(node, 1, 1)
	if env != nil {
		ctx.Environ = env
	}
	if builtins != nil {
		ctx.Builtins = builtins
	}
	return ctx
}

func createContext(node xml.Node, pos, size int) Context {
	return Context{
		Node:     node,
		Index:    pos,
		Size:     size,
		Environ:  environ.Empty[Expr](),
		Builtins: DefaultBuiltin(),
	}
}

// Eval evaluates expr with c as context.
func (c Context) Eval(expr Expr) (Sequence, error) {
	return expr.find(c)
}

// Sub returns a context for node at position pos in a list of size nodes.
// Variables, functions and the current node are shared with c.
func (c Context) Sub(node xml.Node, pos int, size int) Context {
	ctx := c
	ctx.Node = node
	ctx.Index = pos
	ctx.Size = size
	return ctx
}

func (c Context) Nest() Context {
	ctx := c
	ctx.Environ = environ.Enclosed(c.Environ)
	return ctx
}

func (c Context) Root() Context {
	return c.Sub(xml.Root(c.Node), 1, 1)
}

func (c Context) CurrentNode() xml.Node {
	if c.Current != nil {
		return c.Current
	}
	return c.Node
}
