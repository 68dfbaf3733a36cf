package xpath

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/midbel/angle/environ"
	"github.com/midbel/angle/xml"
)

const (
	CodeGenericError = "XPST0003"
	CodeUndefinedVar = "XPST0008"
	CodeUndefinedFn  = "XPST0017"
	CodeNamespace    = "XPST0081"
)

type SyntaxError struct {
	Code  string
	Expr  string
	Cause string
	Position
}

func syntaxError(expr, cause string, pos Position) error {
	return SyntaxError{
		Code:     CodeGenericError,
		Expr:     expr,
		Cause:    cause,
		Position: pos,
	}
}

func (e SyntaxError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Expr, e.Cause)
}

func (e SyntaxError) Unwrap() error {
	return ErrSyntax
}

type Compiler struct {
	scan  *Scanner
	curr  Token
	peek  Token
	query string

	Tracer
	// Namespaces resolves the prefixes used in name tests to namespace uris.
	Namespaces environ.Environ[string]

	infix  map[rune]func(Expr) (Expr, error)
	prefix map[rune]func() (Expr, error)
}

func NewCompiler(r io.Reader) *Compiler {
	cp := Compiler{
		scan:   Scan(r),
		Tracer: discardTracer{},
	}

	cp.infix = map[rune]func(Expr) (Expr, error){
		currLevel: cp.compileStep,
		anyLevel:  cp.compileDescendantStep,
		begPred:   cp.compileFilter,
		opAdd:     cp.compileBinary,
		opSub:     cp.compileBinary,
		opMul:     cp.compileBinary,
		opDiv:     cp.compileBinary,
		opMod:     cp.compileBinary,
		opEq:      cp.compileBinary,
		opNe:      cp.compileBinary,
		opGt:      cp.compileBinary,
		opGe:      cp.compileBinary,
		opLt:      cp.compileBinary,
		opLe:      cp.compileBinary,
		opAnd:     cp.compileBinary,
		opOr:      cp.compileBinary,
		opUnion:   cp.compileUnion,
	}
	cp.prefix = map[rune]func() (Expr, error){
		currLevel:  cp.compileRoot,
		anyLevel:   cp.compileDescendantRoot,
		Name:       cp.compileName,
		variable:   cp.compileVariable,
		currNode:   cp.compileCurrent,
		parentNode: cp.compileParent,
		attrNode:   cp.compileAttr,
		Literal:    cp.compileLiteral,
		Digit:      cp.compileNumber,
		opSub:      cp.compileReverse,
		opMul:      cp.compileName,
		opAnd:      cp.compileName,
		opOr:       cp.compileName,
		opDiv:      cp.compileName,
		opMod:      cp.compileName,
		begGrp:     cp.compileGroup,
	}

	cp.next()
	cp.next()
	return &cp
}

func CompileString(q string) (Expr, error) {
	cp := NewCompiler(strings.NewReader(q))
	cp.query = q
	return cp.Compile()
}

func Compile(r io.Reader) (Expr, error) {
	return NewCompiler(r).Compile()
}

// CompileNS compiles q resolving the prefixes of its name tests with ns.
func CompileNS(q string, ns environ.Environ[string]) (Expr, error) {
	cp := NewCompiler(strings.NewReader(q))
	cp.query = q
	cp.Namespaces = ns
	return cp.Compile()
}

func (c *Compiler) Compile() (Expr, error) {
	if c.done() {
		return nil, c.syntaxError("empty expression")
	}
	expr, err := c.compileExpr(powLowest)
	if err != nil {
		c.Error("compile", err)
		return nil, err
	}
	if !c.done() {
		return nil, c.syntaxError(fmt.Sprintf("unexpected token %s", c.curr))
	}
	return expr, nil
}

func (c *Compiler) compileExpr(pow int) (Expr, error) {
	c.Enter("expr")
	defer c.Leave("expr")
	fn, ok := c.prefix[c.curr.Type]
	if !ok {
		return nil, c.syntaxError(fmt.Sprintf("unexpected prefix expression %s", c.curr))
	}
	left, err := fn()
	if err != nil {
		return nil, err
	}
	for !c.done() && pow < c.power() {
		fn, ok := c.infix[c.curr.Type]
		if !ok {
			return nil, c.syntaxError(fmt.Sprintf("unexpected infix expression %s", c.curr))
		}
		left, err = fn(left)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (c *Compiler) compileFilter(left Expr) (Expr, error) {
	c.Enter("filter")
	defer c.Leave("filter")
	c.next()
	expr, err := c.compileExpr(powLowest)
	if err != nil {
		return nil, err
	}
	if !c.is(endPred) {
		return nil, c.syntaxError("missing ']' after predicate")
	}
	c.next()

	f := filter{
		expr:  left,
		check: expr,
	}
	return f, nil
}

func (c *Compiler) compileGroup() (Expr, error) {
	c.Enter("group")
	defer c.Leave("group")
	c.next()
	expr, err := c.compileExpr(powLowest)
	if err != nil {
		return nil, err
	}
	if !c.is(endGrp) {
		return nil, c.syntaxError("missing ')' at end of group")
	}
	c.next()
	return expr, nil
}

func (c *Compiler) compileUnion(left Expr) (Expr, error) {
	c.Enter("union")
	defer c.Leave("union")
	c.next()
	right, err := c.compileExpr(powUnion)
	if err != nil {
		return nil, err
	}
	var res union
	res.all = []Expr{left, right}
	return res, nil
}

func (c *Compiler) compileBinary(left Expr) (Expr, error) {
	c.Enter("binary")
	defer c.Leave("binary")
	var (
		op  = c.curr.Type
		pow = bindings[op]
	)
	c.next()
	next, err := c.compileExpr(pow)
	if err != nil {
		return nil, err
	}
	b := binary{
		left:  left,
		right: next,
		op:    op,
	}
	return b, nil
}

func (c *Compiler) compileLiteral() (Expr, error) {
	c.Enter("literal")
	defer c.Leave("literal")
	defer c.next()
	i := literal{
		expr: c.getCurrentLiteral(),
	}
	return i, nil
}

func (c *Compiler) compileNumber() (Expr, error) {
	c.Enter("number")
	defer c.Leave("number")

	f, err := strconv.ParseFloat(c.getCurrentLiteral(), 64)
	if err != nil {
		return nil, c.syntaxError("invalid number")
	}
	c.next()
	n := number{
		expr: f,
	}
	return n, nil
}

func (c *Compiler) compileReverse() (Expr, error) {
	c.Enter("reverse")
	defer c.Leave("reverse")
	c.next()
	expr, err := c.compileExpr(powPrefix)
	if err != nil {
		return nil, err
	}
	r := reverse{
		expr: expr,
	}
	return r, nil
}

func (c *Compiler) compileVariable() (Expr, error) {
	c.Enter("variable")
	defer c.Leave("variable")
	defer c.next()
	v := identifier{
		ident: c.getCurrentLiteral(),
	}
	return v, nil
}

func (c *Compiler) compileAttr() (Expr, error) {
	c.Enter("attribute")
	defer c.Leave("attribute")
	c.next()
	test, err := c.compileNodeTest()
	if err != nil {
		return nil, err
	}
	a := axis{
		kind: attributeAxis,
		test: test,
	}
	return a, nil
}

func (c *Compiler) compileCurrent() (Expr, error) {
	c.Enter("current")
	defer c.Leave("current")
	c.next()
	a := axis{
		kind: selfAxis,
		test: kindTest{kind: xml.TypeNode},
	}
	return a, nil
}

func (c *Compiler) compileParent() (Expr, error) {
	c.Enter("parent")
	defer c.Leave("parent")
	c.next()
	a := axis{
		kind: parentAxis,
		test: kindTest{kind: xml.TypeNode},
	}
	return a, nil
}

// compileName handles every expression starting with a name: function call,
// step with an explicit axis or abbreviated child step.
func (c *Compiler) compileName() (Expr, error) {
	c.Enter("name")
	defer c.Leave("name")

	switch {
	case c.peek.Type == opAxis:
		return c.compileAxis()
	case c.is(Name) && c.peek.Type == begGrp && !isKind(c.getCurrentLiteral()):
		return c.compileCall()
	default:
	}
	test, err := c.compileNodeTest()
	if err != nil {
		return nil, err
	}
	a := axis{
		kind: childAxis,
		test: test,
	}
	return a, nil
}

func (c *Compiler) compileAxis() (Expr, error) {
	c.Enter("axis")
	defer c.Leave("axis")

	kind := c.getCurrentLiteral()
	if !isAxis(kind) {
		return nil, c.syntaxError(fmt.Sprintf("%s: axis not supported", kind))
	}
	c.next()
	c.next()
	test, err := c.compileNodeTest()
	if err != nil {
		return nil, err
	}
	a := axis{
		kind: kind,
		test: test,
	}
	return a, nil
}

func (c *Compiler) compileCall() (Expr, error) {
	c.Enter("call")
	defer c.Leave("call")

	qn, err := xml.ParseName(c.getCurrentLiteral())
	if err != nil {
		return nil, c.syntaxError(err.Error())
	}
	fn := call{
		QName: qn,
	}
	c.next()
	c.next()
	for !c.done() && !c.is(endGrp) {
		arg, err := c.compileExpr(powLowest)
		if err != nil {
			return nil, err
		}
		fn.args = append(fn.args, arg)
		switch {
		case c.is(opSeq):
			c.next()
			if c.is(endGrp) {
				return nil, c.syntaxError("argument expected after ','")
			}
		case c.is(endGrp):
		default:
			return nil, c.syntaxError("',' or ')' expected")
		}
	}
	if !c.is(endGrp) {
		return nil, c.syntaxError("missing closing ')'")
	}
	c.next()
	return fn, nil
}

func (c *Compiler) compileNodeTest() (nodeTest, error) {
	if c.is(opMul) {
		c.next()
		return wildcard{}, nil
	}
	if c.is(Name) && isKind(c.getCurrentLiteral()) && c.peek.Type == begGrp {
		return c.compileKind()
	}
	switch c.curr.Type {
	case Name, opAnd, opOr, opDiv, opMod:
	default:
		return nil, c.syntaxError(fmt.Sprintf("name test expected, got %s", c.curr))
	}
	qn, err := xml.ParseName(c.getCurrentLiteral())
	if err != nil {
		return nil, c.syntaxError(err.Error())
	}
	if qn.Space != "" && c.Namespaces != nil {
		uri, err := c.Namespaces.Resolve(qn.Space)
		if err == nil {
			qn.Uri = uri
		}
	}
	c.next()
	return nameTest{QName: qn}, nil
}

func (c *Compiler) compileKind() (nodeTest, error) {
	c.Enter("kind")
	defer c.Leave("kind")
	var expr kindTest
	switch c.getCurrentLiteral() {
	case "node":
		expr.kind = xml.TypeNode
	case "text":
		expr.kind = xml.TypeText
	case "comment":
		expr.kind = xml.TypeComment
	case "processing-instruction":
		expr.kind = xml.TypeInstruction
	default:
		return nil, c.syntaxError("kind test not supported")
	}
	c.next()
	c.next()
	if expr.kind == xml.TypeInstruction && c.is(Literal) {
		expr.name = c.getCurrentLiteral()
		c.next()
	}
	if !c.is(endGrp) {
		return nil, c.syntaxError("missing ')' after kind test")
	}
	c.next()
	return expr, nil
}

func (c *Compiler) compileStep(left Expr) (Expr, error) {
	c.Enter("step")
	defer c.Leave("step")

	c.next()
	next, err := c.compileExpr(powStep)
	if err != nil {
		return nil, err
	}
	expr := step{
		curr: left,
		next: next,
	}
	return expr, nil
}

func (c *Compiler) compileDescendantStep(left Expr) (Expr, error) {
	c.Enter("descendant-step")
	defer c.Leave("descendant-step")

	c.next()
	next, err := c.compileExpr(powStep)
	if err != nil {
		return nil, err
	}
	expr := step{
		curr: step{
			curr: left,
			next: descendantOrSelf(),
		},
		next: next,
	}
	return expr, nil
}

func (c *Compiler) compileRoot() (Expr, error) {
	c.Enter("root")
	defer c.Leave("root")

	c.next()
	if _, ok := c.prefix[c.curr.Type]; c.done() || !ok || c.is(opSub) || c.is(Literal) || c.is(Digit) {
		return root{}, nil
	}
	next, err := c.compileExpr(powStep)
	if err != nil {
		return nil, err
	}
	expr := step{
		curr: root{},
		next: next,
	}
	return expr, nil
}

func (c *Compiler) compileDescendantRoot() (Expr, error) {
	c.Enter("descendant-root")
	defer c.Leave("descendant-root")

	c.next()
	next, err := c.compileExpr(powStep)
	if err != nil {
		return nil, err
	}
	expr := step{
		curr: step{
			curr: root{},
			next: descendantOrSelf(),
		},
		next: next,
	}
	return expr, nil
}

func descendantOrSelf() Expr {
	return axis{
		kind: descendantSelfAxis,
		test: kindTest{kind: xml.TypeNode},
	}
}

func (c *Compiler) syntaxError(cause string) error {
	return syntaxError(c.query, cause, c.curr.Position)
}

func (c *Compiler) power() int {
	return bindings[c.curr.Type]
}

func (c *Compiler) getCurrentLiteral() string {
	return c.curr.Literal
}

func (c *Compiler) is(kind rune) bool {
	return c.curr.Type == kind
}

func (c *Compiler) done() bool {
	return c.is(EOF)
}

func (c *Compiler) next() {
	c.curr = c.peek
	c.peek = c.scan.Scan()
}

func isKind(str string) bool {
	switch str {
	case "node", "text", "comment", "processing-instruction":
		return true
	default:
		return false
	}
}

const (
	powLowest = iota
	powOr
	powAnd
	powEq
	powCmp
	powAdd
	powMul
	powPrefix
	powUnion
	powStep
	powPred
)

var bindings = map[rune]int{
	currLevel: powStep,
	anyLevel:  powStep,
	opUnion:   powUnion,
	opEq:      powEq,
	opNe:      powEq,
	opGt:      powCmp,
	opGe:      powCmp,
	opLt:      powCmp,
	opLe:      powCmp,
	opAnd:     powAnd,
	opOr:      powOr,
	opAdd:     powAdd,
	opSub:     powAdd,
	opMul:     powMul,
	opDiv:     powMul,
	opMod:     powMul,
	begPred:   powPred,
}
