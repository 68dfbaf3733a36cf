package xslt

import (
	"fmt"

	"github.com/midbel/angle/xml"
	"github.com/midbel/angle/xpath"
)

type Template struct {
	Name     string
	Match    string
	Mode     string
	Priority float64

	Params []*variable
	Nodes  []xml.Node

	priority   bool
	patterns   []pattern
	precedence int
	position   int
}

func NewTemplate(node xml.Node) (*Template, error) {
	el, err := getElementFromNode(node)
	if err != nil {
		return nil, err
	}
	var tpl Template
	for _, a := range el.Attributes() {
		switch attr := a.Value(); a.Name {
		case "priority":
			tpl.Priority, err = parsePriority(attr)
			if err != nil {
				return nil, err
			}
			tpl.priority = true
		case "name":
			tpl.Name = attr
		case "match":
			tpl.Match = attr
		case "mode":
			tpl.Mode = attr
		default:
		}
	}
	if tpl.Name == "" && tpl.Match == "" {
		return nil, fmt.Errorf("template: match or name attribute should be set")
	}
	if tpl.Match == "" && tpl.Mode != "" {
		return nil, fmt.Errorf("%s: mode can only be used with match", tpl.Name)
	}
	for i, n := range el.Nodes {
		c, ok := n.(*xml.Element)
		if !ok || !isXsl(c, "param") {
			tpl.Nodes = append(tpl.Nodes, el.Nodes[i:]...)
			break
		}
		p, err := loadVariable(c)
		if err != nil {
			return nil, err
		}
		if tpl.hasParam(p.Name) {
			return nil, fmt.Errorf("%s: param already defined", p.Name)
		}
		tpl.Params = append(tpl.Params, p)
	}
	return &tpl, nil
}

func (t *Template) compilePatterns(sheet *Stylesheet) error {
	if t.Match == "" {
		return nil
	}
	expr, err := sheet.CompileQuery(t.Match)
	if err != nil {
		return fmt.Errorf("%s: invalid pattern: %w", t.Match, err)
	}
	for _, alt := range xpath.Alternatives(expr) {
		p := pattern{
			Expr:     alt,
			Priority: t.Priority,
		}
		if !t.priority {
			p.Priority = xpath.DefaultPriority(alt)
		}
		t.patterns = append(t.patterns, p)
	}
	return nil
}

// better reports whether t matching with priority prio should be chosen
// over other matching with priority otherPrio.
func (t *Template) better(other *Template, prio, otherPrio float64) bool {
	if t.precedence != other.precedence {
		return t.precedence > other.precedence
	}
	if prio != otherPrio {
		return prio > otherPrio
	}
	return t.position >= other.position
}

func (t *Template) hasParam(ident string) bool {
	for _, p := range t.Params {
		if p.Name == ident {
			return true
		}
	}
	return false
}

// Call executes the body of t with the context node of ctx. Parameters
// missing from args get their default value.
func (t *Template) Call(ctx *Context, args map[string]xpath.Sequence) ([]xml.Node, error) {
	scope, err := ctx.Scope()
	if err != nil {
		return nil, err
	}
	for _, p := range t.Params {
		seq, ok := args[p.Name]
		if !ok {
			seq, err = evalVariable(scope, p)
			if err != nil {
				return nil, err
			}
		}
		scope.Define(p.Name, seq)
	}
	return executeConstructor(scope, t.Nodes)
}

type pattern struct {
	xpath.Expr
	Priority float64
}

// Match reports whether node is selected by the pattern when it is evaluated
// from node or one of its ancestors.
func (p pattern) Match(node xml.Node) bool {
	for curr := node; curr != nil; curr = curr.Parent() {
		items, err := p.Find(curr)
		if err != nil {
			return false
		}
		for _, i := range items {
			if !i.Atomic() && i.Node() == node {
				return true
			}
		}
	}
	return false
}

// applyBuiltin executes the built-in template rule for the context node.
func applyBuiltin(ctx *Context) ([]xml.Node, error) {
	switch ctx.ContextNode.Type() {
	case xml.TypeDocument, xml.TypeElement:
		var (
			nodes = xml.Children(ctx.ContextNode)
			list  []xml.Node
		)
		for i, n := range nodes {
			res, err := ctx.WithXpath(n, i+1, len(nodes)).applyTemplate(nil)
			if err != nil {
				return nil, err
			}
			list = append(list, res...)
		}
		return list, nil
	case xml.TypeText, xml.TypeAttribute:
		return []xml.Node{xml.NewText(ctx.ContextNode.Value())}, nil
	default:
		return nil, nil
	}
}

func (c *Context) applyTemplate(args map[string]xpath.Sequence) ([]xml.Node, error) {
	tpl := c.matchTemplate(c.ContextNode, c.Mode)
	if tpl == nil {
		return applyBuiltin(c)
	}
	return tpl.Call(c, args)
}
