package xpath

import (
	"errors"
	"fmt"
	"math"

	"github.com/midbel/angle/environ"
	"github.com/midbel/angle/xml"
)

var (
	ErrType      = errors.New("invalid type")
	ErrUndefined = errors.New("undefined")
	ErrArgument  = errors.New("invalid number of argument(s)")
	ErrSyntax    = errors.New("invalid syntax")
)

type Expr interface {
	Find(xml.Node) (Sequence, error)
	find(Context) (Sequence, error)
}

// Query is a compiled expression with its own variables and functions.
type Query struct {
	expr Expr
	environ.Environ[Expr]
	Builtins environ.Environ[BuiltinFunc]
}

func Build(query string) (*Query, error) {
	expr, err := CompileString(query)
	if err != nil {
		return nil, err
	}
	q := Query{
		expr:     expr,
		Environ:  environ.Empty[Expr](),
		Builtins: DefaultBuiltin(),
	}
	return &q, nil
}

// Define binds a variable visible to the query. Supported values are
// strings, numbers, booleans, nodes and sequences.
func (q *Query) Define(ident string, value any) {
	switch v := value.(type) {
	case Sequence:
		q.Environ.Define(ident, Value(v))
	case Expr:
		q.Environ.Define(ident, v)
	default:
		q.Environ.Define(ident, Value(Singleton(v)))
	}
}

func (q *Query) Find(node xml.Node) (Sequence, error) {
	ctx := NewContext(node, q.Environ, q.Builtins)
	return q.find(ctx)
}

func (q *Query) find(ctx Context) (Sequence, error) {
	if q.expr == nil {
		return nil, fmt.Errorf("no query can be executed")
	}
	return q.expr.find(ctx)
}

type root struct{}

func (r root) Find(node xml.Node) (Sequence, error) {
	return r.find(DefaultContext(node))
}

func (r root) find(ctx Context) (Sequence, error) {
	if ctx.Node == nil {
		return nil, fmt.Errorf("%w: no context node", ErrType)
	}
	return Singleton(xml.Root(ctx.Node)), nil
}

type step struct {
	curr Expr
	next Expr
}

func (s step) Find(node xml.Node) (Sequence, error) {
	return s.find(DefaultContext(node))
}

func (s step) find(ctx Context) (Sequence, error) {
	is, err := s.curr.find(ctx)
	if err != nil {
		return nil, err
	}
	var list Sequence
	for i, n := range is {
		if n.Atomic() {
			return nil, fmt.Errorf("%w: node-set expected in path", ErrType)
		}
		sub := ctx.Sub(n.Node(), i+1, len(is))
		others, err := s.next.find(sub)
		if err != nil {
			return nil, err
		}
		list.Concat(others)
	}
	if !list.Nodes() {
		return list, nil
	}
	return list.Unique(), nil
}

const (
	childAxis          = "child"
	parentAxis         = "parent"
	selfAxis           = "self"
	attributeAxis      = "attribute"
	ancestorAxis       = "ancestor"
	ancestorSelfAxis   = "ancestor-or-self"
	descendantAxis     = "descendant"
	descendantSelfAxis = "descendant-or-self"
	prevAxis           = "preceding"
	prevSiblingAxis    = "preceding-sibling"
	nextAxis           = "following"
	nextSiblingAxis    = "following-sibling"
)

func isAxis(str string) bool {
	switch str {
	case childAxis, parentAxis, selfAxis, attributeAxis:
	case ancestorAxis, ancestorSelfAxis, descendantAxis, descendantSelfAxis:
	case prevAxis, prevSiblingAxis, nextAxis, nextSiblingAxis:
	default:
		return false
	}
	return true
}

// axis selects the nodes of one axis that pass its node test. Nodes of the
// reverse axes are returned nearest first.
type axis struct {
	kind string
	test nodeTest
}

func (a axis) Find(node xml.Node) (Sequence, error) {
	return a.find(DefaultContext(node))
}

func (a axis) principalType() xml.NodeType {
	if a.kind == attributeAxis {
		return xml.TypeAttribute
	}
	return xml.TypeElement
}

func (a axis) find(ctx Context) (Sequence, error) {
	if ctx.Node == nil {
		return nil, fmt.Errorf("%w: no context node", ErrType)
	}
	var (
		list  Sequence
		ptype = a.principalType()
	)
	for _, n := range a.candidates(ctx.Node) {
		if a.test.match(n, ptype) {
			list.Append(createNode(n))
		}
	}
	return list, nil
}

func (a axis) candidates(node xml.Node) []xml.Node {
	var list []xml.Node
	switch a.kind {
	case selfAxis:
		list = append(list, node)
	case childAxis:
		list = append(list, xml.Children(node)...)
	case attributeAxis:
		el, ok := node.(*xml.Element)
		if !ok {
			break
		}
		for i := range el.Attrs {
			if isNamespaceAttr(el.Attrs[i]) {
				continue
			}
			list = append(list, &el.Attrs[i])
		}
	case parentAxis:
		if p := node.Parent(); p != nil {
			list = append(list, p)
		}
	case ancestorAxis, ancestorSelfAxis:
		if a.kind == ancestorSelfAxis {
			list = append(list, node)
		}
		for p := node.Parent(); p != nil; p = p.Parent() {
			list = append(list, p)
		}
	case descendantAxis, descendantSelfAxis:
		if a.kind == descendantSelfAxis {
			list = append(list, node)
		}
		list = appendDescendants(list, node)
	case prevSiblingAxis:
		if node.Type() == xml.TypeAttribute {
			break
		}
		nodes := xml.Children(node.Parent())
		for i := node.Position() - 1; i >= 0 && i < len(nodes); i-- {
			list = append(list, nodes[i])
		}
	case nextSiblingAxis:
		if node.Type() == xml.TypeAttribute {
			break
		}
		nodes := xml.Children(node.Parent())
		for i := node.Position() + 1; i < len(nodes); i++ {
			list = append(list, nodes[i])
		}
	case nextAxis:
		curr := node
		if curr.Type() == xml.TypeAttribute {
			curr = curr.Parent()
			list = appendDescendants(list, curr)
		}
		for ; curr != nil && curr.Parent() != nil; curr = curr.Parent() {
			nodes := xml.Children(curr.Parent())
			for i := curr.Position() + 1; i < len(nodes); i++ {
				list = append(list, nodes[i])
				list = appendDescendants(list, nodes[i])
			}
		}
	case prevAxis:
		curr := node
		if curr.Type() == xml.TypeAttribute {
			curr = curr.Parent()
		}
		for ; curr != nil && curr.Parent() != nil; curr = curr.Parent() {
			nodes := xml.Children(curr.Parent())
			for i := curr.Position() - 1; i >= 0 && i < len(nodes); i-- {
				var desc []xml.Node
				desc = append(desc, nodes[i])
				desc = appendDescendants(desc, nodes[i])
				for j := len(desc) - 1; j >= 0; j-- {
					list = append(list, desc[j])
				}
			}
		}
	}
	return list
}

func appendDescendants(list []xml.Node, node xml.Node) []xml.Node {
	for _, c := range xml.Children(node) {
		list = append(list, c)
		list = appendDescendants(list, c)
	}
	return list
}

func isNamespaceAttr(a xml.Attribute) bool {
	return a.Space == xml.AttrXmlNS || (a.Space == "" && a.Name == xml.AttrXmlNS)
}

type nodeTest interface {
	match(xml.Node, xml.NodeType) bool
}

// nameTest matches nodes of the principal type by name. A prefixed test
// matches on the namespace uri when it is known, on the prefix otherwise. An
// unprefixed test matches nodes without prefix.
type nameTest struct {
	xml.QName
}

func (n nameTest) match(node xml.Node, ptype xml.NodeType) bool {
	if node.Type() != ptype {
		return false
	}
	qn, ok := nodeName(node)
	if !ok {
		return false
	}
	if n.Space == "" {
		return qn.Space == "" && (n.Name == "*" || n.Name == qn.Name)
	}
	if n.Uri != "" && qn.Uri != "" {
		if n.Uri != qn.Uri {
			return false
		}
	} else if n.Space != qn.Space {
		return false
	}
	return n.Name == "*" || n.Name == qn.Name
}

type wildcard struct{}

func (wildcard) match(node xml.Node, ptype xml.NodeType) bool {
	return node.Type() == ptype
}

type kindTest struct {
	kind xml.NodeType
	name string
}

func (k kindTest) match(node xml.Node, _ xml.NodeType) bool {
	if k.kind == xml.TypeNode {
		return true
	}
	if node.Type() != k.kind {
		return false
	}
	return k.name == "" || k.name == node.LocalName()
}

func nodeName(node xml.Node) (xml.QName, bool) {
	switch n := node.(type) {
	case *xml.Element:
		return n.QName, true
	case *xml.Attribute:
		return n.QName, true
	case *xml.Instruction:
		return n.QName, true
	default:
		return xml.QName{}, false
	}
}

type filter struct {
	expr  Expr
	check Expr
}

func (f filter) Find(node xml.Node) (Sequence, error) {
	return f.find(DefaultContext(node))
}

func (f filter) find(ctx Context) (Sequence, error) {
	list, err := f.expr.find(ctx)
	if err != nil {
		return nil, err
	}
	var ret Sequence
	for i, item := range list {
		sub := ctx.Sub(item.Node(), i+1, len(list))
		res, err := f.check.find(sub)
		if err != nil {
			return nil, err
		}
		if isPositional(res) {
			if toNumber(res[0]) == float64(i+1) {
				ret.Append(item)
			}
			continue
		}
		if res.True() {
			ret.Append(item)
		}
	}
	return ret, nil
}

func isPositional(res Sequence) bool {
	if !res.Singleton() || !res[0].Atomic() {
		return false
	}
	_, ok := res[0].Value().(float64)
	return ok
}

type identifier struct {
	ident string
}

func (i identifier) Find(node xml.Node) (Sequence, error) {
	return i.find(DefaultContext(node))
}

func (i identifier) find(ctx Context) (Sequence, error) {
	if ctx.Environ == nil {
		return nil, fmt.Errorf("$%s: %w variable", i.ident, ErrUndefined)
	}
	expr, err := ctx.Resolve(i.ident)
	if err != nil {
		return nil, fmt.Errorf("$%s: %w variable", i.ident, ErrUndefined)
	}
	return expr.find(ctx)
}

type binary struct {
	left  Expr
	right Expr
	op    rune
}

func (b binary) Find(node xml.Node) (Sequence, error) {
	return b.find(DefaultContext(node))
}

func (b binary) find(ctx Context) (Sequence, error) {
	left, err := b.left.find(ctx)
	if err != nil {
		return nil, err
	}
	switch b.op {
	case opAnd:
		if !left.True() {
			return Singleton(false), nil
		}
	case opOr:
		if left.True() {
			return Singleton(true), nil
		}
	}
	right, err := b.right.find(ctx)
	if err != nil {
		return nil, err
	}
	switch b.op {
	case opAnd, opOr:
		return Singleton(right.True()), nil
	case opEq, opNe, opLt, opLe, opGt, opGe:
		return Singleton(compareSequences(left, right, b.op)), nil
	}
	x, y := left.Number(), right.Number()
	var res float64
	switch b.op {
	case opAdd:
		res = x + y
	case opSub:
		res = x - y
	case opMul:
		res = x * y
	case opDiv:
		res = x / y
	case opMod:
		res = math.Mod(x, y)
	default:
		return nil, fmt.Errorf("%w: unsupported operator", ErrSyntax)
	}
	return Singleton(res), nil
}

type reverse struct {
	expr Expr
}

func (r reverse) Find(node xml.Node) (Sequence, error) {
	return r.find(DefaultContext(node))
}

func (r reverse) find(ctx Context) (Sequence, error) {
	v, err := r.expr.find(ctx)
	if err != nil {
		return nil, err
	}
	return Singleton(-v.Number()), nil
}

type literal struct {
	expr string
}

func (i literal) Find(node xml.Node) (Sequence, error) {
	return i.find(DefaultContext(node))
}

func (i literal) find(_ Context) (Sequence, error) {
	return Singleton(i.expr), nil
}

type number struct {
	expr float64
}

func (n number) Find(node xml.Node) (Sequence, error) {
	return n.find(DefaultContext(node))
}

func (n number) find(_ Context) (Sequence, error) {
	return Singleton(n.expr), nil
}

type call struct {
	xml.QName
	args []Expr
}

func (c call) Find(node xml.Node) (Sequence, error) {
	return c.find(DefaultContext(node))
}

func (c call) find(ctx Context) (Sequence, error) {
	if ctx.Builtins == nil {
		ctx.Builtins = DefaultBuiltin()
	}
	fn, err := ctx.Builtins.Resolve(c.QualifiedName())
	if err != nil {
		return nil, fmt.Errorf("%s: %w function", c.QualifiedName(), ErrUndefined)
	}
	if fn == nil {
		return nil, fmt.Errorf("%s: function not implemented", c.QualifiedName())
	}
	return fn(ctx, c.args)
}

type union struct {
	all []Expr
}

func (u union) Find(node xml.Node) (Sequence, error) {
	return u.find(DefaultContext(node))
}

func (u union) find(ctx Context) (Sequence, error) {
	var list Sequence
	for _, e := range u.all {
		res, err := e.find(ctx)
		if err != nil {
			return nil, err
		}
		if !res.Nodes() {
			return nil, fmt.Errorf("%w: union operands should be node-sets", ErrType)
		}
		list.Concat(res)
	}
	return list.Unique(), nil
}

type value struct {
	seq Sequence
}

// Value wraps an already computed sequence into an expression.
func Value(seq Sequence) Expr {
	return value{
		seq: seq,
	}
}

func (v value) Find(node xml.Node) (Sequence, error) {
	return v.seq, nil
}

func (v value) find(_ Context) (Sequence, error) {
	return v.seq, nil
}

// Alternatives splits a union expression into its operands. Any other
// expression is returned as is.
func Alternatives(expr Expr) []Expr {
	u, ok := expr.(union)
	if !ok {
		return []Expr{expr}
	}
	var list []Expr
	for _, e := range u.all {
		list = append(list, Alternatives(e)...)
	}
	return list
}

// DefaultPriority computes the priority of a pattern alternative when no
// explicit priority is given.
func DefaultPriority(expr Expr) float64 {
	a, ok := expr.(axis)
	if !ok {
		return 0.5
	}
	switch t := a.test.(type) {
	case nameTest:
		if t.Name == "*" {
			return -0.25
		}
		return 0
	case kindTest:
		if t.kind == xml.TypeInstruction && t.name != "" {
			return 0
		}
		return -0.5
	case wildcard:
		return -0.5
	default:
		return 0.5
	}
}
