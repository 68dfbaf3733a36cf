package xslt

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/midbel/angle/xml"
	"github.com/midbel/angle/xpath"
)

type ExecuteFunc func(*Context) ([]xml.Node, error)

var executers map[string]ExecuteFunc

func init() {
	executers = map[string]ExecuteFunc{
		"apply-templates":        executeApplyTemplates,
		"call-template":          executeCallTemplate,
		"for-each":               executeForeach,
		"if":                     executeIf,
		"choose":                 executeChoose,
		"variable":               executeVariable,
		"value-of":               executeValueOf,
		"copy":                   executeCopy,
		"copy-of":                executeCopyOf,
		"element":                executeElement,
		"attribute":              executeAttribute,
		"text":                   executeText,
		"comment":                executeComment,
		"processing-instruction": executePI,
		"message":                executeMessage,
		"sort":                   executeSort,
		"param":                  misplaced("template or stylesheet"),
		"with-param":             misplaced("apply-templates or call-template"),
		"when":                   misplaced("choose"),
		"otherwise":              misplaced("choose"),
	}
}

func transformNode(ctx *Context) ([]xml.Node, error) {
	switch n := ctx.XslNode.(type) {
	case *xml.Element:
		if !isXsl(n) {
			return processNode(ctx, n)
		}
		fn, ok := executers[n.Name]
		if !ok {
			return nil, ctx.errorWithContext(fmt.Errorf("%w instruction", errImplemented))
		}
		ctx.Enter(ctx)
		defer ctx.Leave(ctx)

		nodes, err := fn(ctx)
		if err != nil {
			ctx.Error(ctx, err)
		}
		return nodes, err
	case *xml.Text:
		return []xml.Node{xml.NewText(n.Content)}, nil
	case *xml.CharData:
		return []xml.Node{xml.NewText(n.Content)}, nil
	default:
		return nil, nil
	}
}

// processNode copies a literal result element to the result tree.
func processNode(ctx *Context, elem *xml.Element) ([]xml.Node, error) {
	ctx.Enter(ctx)
	defer ctx.Leave(ctx)

	el := xml.NewElement(elem.QName)
	for _, a := range elem.Attrs {
		if a.Uri == NamespaceXSLT || (isNamespaceDecl(a) && a.Value() == NamespaceXSLT) {
			continue
		}
		value := a.Value()
		if !isNamespaceDecl(a) {
			str, err := evalAVT(ctx, value)
			if err != nil {
				return nil, ctx.errorWithContext(err)
			}
			value = str
		}
		el.SetAttribute(xml.NewAttribute(a.QName, value))
	}
	nodes, err := executeConstructor(ctx, elem.Nodes)
	if err != nil {
		return nil, err
	}
	if err := appendNodes(el, nodes); err != nil {
		return nil, ctx.errorWithContext(err)
	}
	return []xml.Node{el}, nil
}

// executeConstructor executes nodes in a new scope and returns the nodes
// they produce.
func executeConstructor(ctx *Context, nodes []xml.Node) ([]xml.Node, error) {
	var (
		nested = ctx.Nest()
		list   []xml.Node
	)
	for _, n := range nodes {
		res, err := transformNode(nested.WithXsl(n))
		if err != nil {
			return nil, err
		}
		list = append(list, res...)
	}
	return list, nil
}

func executeApplyTemplates(ctx *Context) ([]xml.Node, error) {
	elem, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	items, err := ctx.Query(getAttributeDefault(elem, "select", "node()"))
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if !items.Nodes() {
		return nil, ctx.errorWithContext(fmt.Errorf("select should return a node-set"))
	}
	args, err := evalParams(ctx, elem)
	if err != nil {
		return nil, err
	}
	nodes, err := sortNodes(ctx, elem, items)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	mode := getAttributeDefault(elem, "mode", "")
	if mode == "#default" {
		mode = ""
	}
	var list []xml.Node
	for i, n := range nodes {
		sub := ctx.WithXpath(n, i+1, len(nodes))
		sub.Mode = mode
		res, err := sub.applyTemplate(args)
		if err != nil {
			return nil, err
		}
		list = append(list, res...)
	}
	return list, nil
}

func executeCallTemplate(ctx *Context) ([]xml.Node, error) {
	elem, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	name, err := getAttribute(elem, "name")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	tpl, err := ctx.callTemplate(name)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	args, err := evalParams(ctx, elem)
	if err != nil {
		return nil, err
	}
	return tpl.Call(ctx, args)
}

func executeForeach(ctx *Context) ([]xml.Node, error) {
	elem, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	query, err := getAttribute(elem, "select")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	items, err := ctx.Query(query)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if !items.Nodes() {
		return nil, ctx.errorWithContext(fmt.Errorf("select should return a node-set"))
	}
	nodes, err := sortNodes(ctx, elem, items)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	body := slices.DeleteFunc(slices.Clone(elem.Nodes), func(n xml.Node) bool {
		el, ok := n.(*xml.Element)
		return ok && isXsl(el, "sort")
	})
	var list []xml.Node
	for i, n := range nodes {
		res, err := executeConstructor(ctx.WithXpath(n, i+1, len(nodes)), body)
		if err != nil {
			return nil, err
		}
		list = append(list, res...)
	}
	return list, nil
}

func executeIf(ctx *Context) ([]xml.Node, error) {
	elem, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	test, err := getAttribute(elem, "test")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	ok, err := ctx.Test(test)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if !ok {
		return nil, nil
	}
	return executeConstructor(ctx, elem.Nodes)
}

func executeChoose(ctx *Context) ([]xml.Node, error) {
	elem, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	for i, n := range elem.Nodes {
		c, ok := n.(*xml.Element)
		if !ok {
			continue
		}
		switch {
		case isXsl(c, "when"):
			test, err := getAttribute(c, "test")
			if err != nil {
				return nil, ctx.errorWithContext(err)
			}
			ok, err := ctx.Test(test)
			if err != nil {
				return nil, ctx.errorWithContext(err)
			}
			if ok {
				return executeConstructor(ctx.WithXsl(c), c.Nodes)
			}
		case isXsl(c, "otherwise"):
			if i < len(elem.Nodes)-1 {
				return nil, ctx.errorWithContext(fmt.Errorf("xsl:otherwise should be the last element"))
			}
			return executeConstructor(ctx.WithXsl(c), c.Nodes)
		default:
			return nil, ctx.errorWithContext(fmt.Errorf("%s: unexpected element", c.QualifiedName()))
		}
	}
	return nil, nil
}

func executeVariable(ctx *Context) ([]xml.Node, error) {
	elem, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	v, err := loadVariable(elem)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	seq, err := evalVariable(ctx, v)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	ctx.Define(v.Name, seq)
	return nil, nil
}

func executeValueOf(ctx *Context) ([]xml.Node, error) {
	elem, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	query, err := getAttribute(elem, "select")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	items, err := ctx.Query(query)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	str := items.String()
	if str == "" {
		return nil, nil
	}
	return []xml.Node{xml.NewText(str)}, nil
}

func executeCopy(ctx *Context) ([]xml.Node, error) {
	elem, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	switch n := ctx.ContextNode.(type) {
	case *xml.Document:
		return executeConstructor(ctx, elem.Nodes)
	case *xml.Element:
		el := xml.NewElement(n.QName)
		for _, a := range n.Attrs {
			if isNamespaceDecl(a) {
				el.SetAttribute(a)
			}
		}
		nodes, err := executeConstructor(ctx, elem.Nodes)
		if err != nil {
			return nil, err
		}
		if err := appendNodes(el, nodes); err != nil {
			return nil, ctx.errorWithContext(err)
		}
		return []xml.Node{el}, nil
	default:
		return []xml.Node{cloneNode(n)}, nil
	}
}

func executeCopyOf(ctx *Context) ([]xml.Node, error) {
	elem, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	query, err := getAttribute(elem, "select")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	items, err := ctx.Query(query)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	var list []xml.Node
	for _, i := range items {
		if i.Atomic() {
			seq := xpath.Sequence{i}
			list = append(list, xml.NewText(seq.String()))
			continue
		}
		if doc, ok := i.Node().(*xml.Document); ok {
			for _, n := range doc.Nodes {
				list = append(list, cloneNode(n))
			}
			continue
		}
		list = append(list, cloneNode(i.Node()))
	}
	return list, nil
}

func executeElement(ctx *Context) ([]xml.Node, error) {
	elem, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	qn, err := evalName(ctx, elem)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	el := xml.NewElement(qn)
	if qn.Uri != "" {
		decl := xml.LocalName(xml.AttrXmlNS)
		if qn.Space != "" {
			decl = xml.QualifiedName(qn.Space, xml.AttrXmlNS)
		}
		el.SetAttribute(xml.NewAttribute(decl, qn.Uri))
	}
	nodes, err := executeConstructor(ctx, elem.Nodes)
	if err != nil {
		return nil, err
	}
	if err := appendNodes(el, nodes); err != nil {
		return nil, ctx.errorWithContext(err)
	}
	return []xml.Node{el}, nil
}

func executeAttribute(ctx *Context) ([]xml.Node, error) {
	elem, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	qn, err := evalName(ctx, elem)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if qn.Space == "" && qn.Name == xml.AttrXmlNS {
		return nil, ctx.errorWithContext(fmt.Errorf("xmlns can not be used as attribute name"))
	}
	str, err := evalContent(ctx, elem)
	if err != nil {
		return nil, err
	}
	attr := xml.NewAttribute(qn, str)
	return []xml.Node{&attr}, nil
}

func executeText(ctx *Context) ([]xml.Node, error) {
	elem, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	str := elem.Value()
	if str == "" {
		return nil, nil
	}
	return []xml.Node{xml.NewText(str)}, nil
}

func executeComment(ctx *Context) ([]xml.Node, error) {
	elem, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	str, err := evalContent(ctx, elem)
	if err != nil {
		return nil, err
	}
	if strings.Contains(str, "--") || strings.HasSuffix(str, "-") {
		str = strings.ReplaceAll(str, "--", "- -")
		if strings.HasSuffix(str, "-") {
			str += " "
		}
	}
	return []xml.Node{xml.NewComment(str)}, nil
}

func executePI(ctx *Context) ([]xml.Node, error) {
	elem, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	name, err := getAttribute(elem, "name")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if name, err = evalAVT(ctx, name); err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if name == "" || strings.EqualFold(name, "xml") || strings.Contains(name, ":") {
		return nil, ctx.errorWithContext(fmt.Errorf("%s: invalid processing instruction name", name))
	}
	str, err := evalContent(ctx, elem)
	if err != nil {
		return nil, err
	}
	pi := xml.NewInstruction(xml.LocalName(name))
	pi.Content = strings.ReplaceAll(strings.TrimLeft(str, " \t\r\n"), "?>", "? >")
	return []xml.Node{pi}, nil
}

func executeMessage(ctx *Context) ([]xml.Node, error) {
	elem, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	msg, err := evalContent(ctx, elem)
	if err != nil {
		return nil, err
	}
	quit, _ := getAttribute(elem, "terminate")
	ctx.logger.Info(msg, "instruction", elem.QualifiedName(), "terminate", quit == "yes")
	if quit == "yes" {
		return nil, fmt.Errorf("%s: %w", msg, ErrTerminate)
	}
	return nil, nil
}

func executeSort(_ *Context) ([]xml.Node, error) {
	return nil, nil
}

func misplaced(parent string) ExecuteFunc {
	return func(ctx *Context) ([]xml.Node, error) {
		err := fmt.Errorf("instruction only allowed in %s", parent)
		return nil, ctx.errorWithContext(err)
	}
}

func evalVariable(ctx *Context, v *variable) (xpath.Sequence, error) {
	if v.Select != "" {
		return ctx.Query(v.Select)
	}
	if len(v.Nodes) == 0 {
		return xpath.Singleton(""), nil
	}
	nodes, err := executeConstructor(ctx, v.Nodes)
	if err != nil {
		return nil, err
	}
	doc := xml.EmptyDocument()
	if err := appendNodes(doc, nodes); err != nil {
		return nil, err
	}
	return xpath.Singleton(doc), nil
}

func evalParams(ctx *Context, elem *xml.Element) (map[string]xpath.Sequence, error) {
	args := make(map[string]xpath.Sequence)
	for _, n := range elem.Nodes {
		c, ok := n.(*xml.Element)
		if !ok || !isXsl(c, "with-param") {
			continue
		}
		v, err := loadVariable(c)
		if err != nil {
			return nil, ctx.errorWithContext(err)
		}
		seq, err := evalVariable(ctx.WithXsl(c), v)
		if err != nil {
			return nil, ctx.errorWithContext(err)
		}
		args[v.Name] = seq
	}
	return args, nil
}

// evalContent executes the children of elem and returns the string value of
// the nodes produced.
func evalContent(ctx *Context, elem *xml.Element) (string, error) {
	if _, err := getAttribute(elem, "select"); err == nil {
		return "", ctx.errorWithContext(fmt.Errorf("select attribute not supported"))
	}
	nodes, err := executeConstructor(ctx, elem.Nodes)
	if err != nil {
		return "", err
	}
	var str strings.Builder
	for _, n := range nodes {
		switch n.Type() {
		case xml.TypeText, xml.TypeElement, xml.TypeDocument:
			str.WriteString(n.Value())
		default:
		}
	}
	return str.String(), nil
}

func evalName(ctx *Context, elem *xml.Element) (xml.QName, error) {
	var qn xml.QName
	name, err := getAttribute(elem, "name")
	if err != nil {
		return qn, err
	}
	if name, err = evalAVT(ctx, name); err != nil {
		return qn, err
	}
	if qn, err = xml.ParseName(name); err != nil {
		return qn, err
	}
	if ns, err := getAttribute(elem, "namespace"); err == nil {
		qn.Uri, err = evalAVT(ctx, ns)
		return qn, err
	}
	if qn.Space != "" {
		uri, err := ctx.namespaces.Resolve(qn.Space)
		if err != nil {
			return qn, fmt.Errorf("%s: undefined namespace prefix", qn.Space)
		}
		qn.Uri = uri
	}
	return qn, nil
}

type sortKey struct {
	Select  string
	Number  bool
	Reverse bool
}

func getSortKeys(ctx *Context, elem *xml.Element) ([]sortKey, error) {
	var keys []sortKey
	for _, n := range elem.Nodes {
		c, ok := n.(*xml.Element)
		if !ok || !isXsl(c, "sort") {
			continue
		}
		key := sortKey{
			Select: getAttributeDefault(c, "select", "."),
		}
		order, err := evalAVT(ctx, getAttributeDefault(c, "order", "ascending"))
		if err != nil {
			return nil, err
		}
		switch order {
		case "ascending":
		case "descending":
			key.Reverse = true
		default:
			return nil, fmt.Errorf("%s: invalid sort order", order)
		}
		kind, err := evalAVT(ctx, getAttributeDefault(c, "data-type", "text"))
		if err != nil {
			return nil, err
		}
		switch kind {
		case "text":
		case "number":
			key.Number = true
		default:
			return nil, fmt.Errorf("%s: invalid sort data type", kind)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// sortNodes orders the nodes of items with the xsl:sort children of elem.
// Nodes with equal keys keep their document order.
func sortNodes(ctx *Context, elem *xml.Element, items xpath.Sequence) ([]xml.Node, error) {
	nodes := make([]xml.Node, 0, len(items))
	for _, i := range items {
		nodes = append(nodes, i.Node())
	}
	keys, err := getSortKeys(ctx, elem)
	if err != nil || len(keys) == 0 {
		return nodes, err
	}
	type sortable struct {
		node   xml.Node
		texts  []string
		values []float64
	}
	list := make([]sortable, 0, len(nodes))
	for i, n := range nodes {
		s := sortable{
			node: n,
		}
		sub := ctx.WithXpath(n, i+1, len(nodes))
		for _, k := range keys {
			seq, err := sub.Query(k.Select)
			if err != nil {
				return nil, err
			}
			s.texts = append(s.texts, seq.String())
			s.values = append(s.values, seq.Number())
		}
		list = append(list, s)
	}
	slices.SortStableFunc(list, func(a, b sortable) int {
		for i, k := range keys {
			var res int
			if k.Number {
				res = compareNumbers(a.values[i], b.values[i])
			} else {
				res = strings.Compare(a.texts[i], b.texts[i])
			}
			if k.Reverse {
				res = -res
			}
			if res != 0 {
				return res
			}
		}
		return 0
	})
	for i := range list {
		nodes[i] = list[i].node
	}
	return nodes, nil
}

func compareNumbers(a, b float64) int {
	switch x, y := math.IsNaN(a), math.IsNaN(b); {
	case x && y:
		return 0
	case x:
		return -1
	case y:
		return 1
	default:
		return cmp.Compare(a, b)
	}
}

// appendNodes adds nodes to parent. Adjacent text nodes are merged and
// attributes are set on the parent element.
func appendNodes(parent xml.Node, nodes []xml.Node) error {
	for _, n := range nodes {
		switch c := n.(type) {
		case *xml.Attribute:
			el, ok := parent.(*xml.Element)
			if !ok {
				return fmt.Errorf("%s: attribute can not be added to %s", c.QualifiedName(), parent.Type())
			}
			if len(el.Nodes) > 0 {
				return fmt.Errorf("%s: attribute can not be added after children", c.QualifiedName())
			}
			el.SetAttribute(*c)
		case *xml.Text:
			if c.Content == "" {
				continue
			}
			children := xml.Children(parent)
			if k := len(children); k > 0 {
				if t, ok := children[k-1].(*xml.Text); ok {
					t.Content += c.Content
					continue
				}
			}
			appendChild(parent, c)
		case *xml.Document:
			if err := appendNodes(parent, c.Nodes); err != nil {
				return err
			}
		default:
			appendChild(parent, n)
		}
	}
	return nil
}

func appendChild(parent, node xml.Node) {
	switch p := parent.(type) {
	case *xml.Document:
		p.AppendChild(node)
	case *xml.Element:
		p.Append(node)
	}
}

func cloneNode(n xml.Node) xml.Node {
	cloner, ok := n.(xml.Cloner)
	if !ok {
		return n
	}
	return cloner.Clone()
}

func isNamespaceDecl(a xml.Attribute) bool {
	return a.Space == xml.AttrXmlNS || (a.Space == "" && a.Name == xml.AttrXmlNS)
}
