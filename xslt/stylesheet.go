package xslt

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/midbel/angle/environ"
	"github.com/midbel/angle/xml"
	"github.com/midbel/angle/xpath"
)

const (
	XslVersion   = "1.0"
	XslVendor    = "angle"
	XslVendorUrl = "https://github.com/midbel/angle"
)

const NamespaceXSLT = "http://www.w3.org/1999/XSL/Transform"

var (
	errImplemented = errors.New("not implemented")
	ErrTerminate   = errors.New("terminate")
	ErrCircular    = errors.New("circular reference")
	ErrTemplate    = errors.New("template not found")
	ErrProperty    = errors.New("unknown output property")
)

const (
	MethodXML  = "xml"
	MethodText = "text"
	MethodHTML = "html"
)

type Output struct {
	Method     string
	Version    string
	Encoding   string
	MediaType  string
	Standalone string
	Indent     bool
	OmitProlog bool
}

func defaultOutput() Output {
	return Output{
		Method:   MethodXML,
		Version:  xml.SupportedVersion,
		Encoding: xml.SupportedEncoding,
	}
}

// Set changes the output property name. Only the properties of xsl:output
// are recognized.
func (o *Output) Set(name, value string) error {
	var err error
	switch name {
	case "method":
		switch value {
		case MethodXML, MethodText, MethodHTML:
			o.Method = value
		default:
			err = fmt.Errorf("%s: output method not supported", value)
		}
	case "indent":
		o.Indent, err = parseYesNo(value)
	case "omit-xml-declaration":
		o.OmitProlog, err = parseYesNo(value)
	case "encoding":
		if !strings.EqualFold(value, xml.SupportedEncoding) {
			err = fmt.Errorf("%s: encoding not supported", value)
		}
	case "standalone":
		if _, err = parseYesNo(value); err == nil {
			o.Standalone = value
		}
	case "media-type":
		o.MediaType = value
	case "version":
		o.Version = value
	default:
		err = fmt.Errorf("%s: %w", name, ErrProperty)
	}
	return err
}

// ContentType returns the media type of the serialized result.
func (o Output) ContentType() string {
	if o.MediaType != "" {
		return o.MediaType
	}
	switch o.Method {
	case MethodText:
		return "text/plain"
	case MethodHTML:
		return "text/html"
	default:
		return "application/xml"
	}
}

func parseYesNo(value string) (bool, error) {
	switch value {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	default:
		return false, fmt.Errorf("%s: yes or no expected", value)
	}
}

// variable is a top level xsl:param or xsl:variable, or a template
// parameter.
type variable struct {
	Name   string
	Param  bool
	Select string
	Nodes  []xml.Node

	precedence int
}

func loadVariable(el *xml.Element) (*variable, error) {
	ident, err := getAttribute(el, "name")
	if err != nil {
		return nil, err
	}
	v := variable{
		Name:  ident,
		Param: el.LocalName() == "param",
		Nodes: el.Nodes,
	}
	if query, err := getAttribute(el, "select"); err == nil {
		if len(el.Nodes) > 0 {
			return nil, fmt.Errorf("%s: select attribute can not be used with children", ident)
		}
		v.Select = query
	}
	return &v, nil
}

// Stylesheet is a compiled transform sheet. It is never modified after
// Compile returns and can be shared by several Transformer.
type Stylesheet struct {
	Uri string

	output     Output
	namespaces environ.Environ[string]
	templates  []*Template
	named      map[string]*Template
	globals    []*variable
	queries    map[string]xpath.Expr
	strip      []string
	preserve   []string

	doc *xml.Document
}

func Load(file string, resolver Resolver) (*Stylesheet, error) {
	r, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return Compile(r, file, resolver)
}

// Compile reads and compiles the transform sheet from r. base is the uri of
// the sheet, used to resolve the relative references of xsl:include,
// xsl:import and document(). A nil resolver reads from the file system.
func Compile(r io.Reader, base string, resolver Resolver) (*Stylesheet, error) {
	doc, err := parseSheet(r, base)
	if err != nil {
		return nil, err
	}
	sheet := Stylesheet{
		Uri:        base,
		output:     defaultOutput(),
		namespaces: environ.Empty[string](),
		named:      make(map[string]*Template),
		queries:    make(map[string]xpath.Expr),
		doc:        doc,
	}
	ld := loader{
		Stylesheet: &sheet,
		resolver:   getResolver(resolver),
		visiting:   []string{base},
	}
	if err := ld.load(doc, base); err != nil {
		return nil, err
	}
	return &sheet, nil
}

// Output returns the output properties declared by xsl:output.
func (s *Stylesheet) Output() Output {
	return s.output
}

// Params returns the names of the top level parameters.
func (s *Stylesheet) Params() []string {
	var list []string
	for _, v := range s.globals {
		if v.Param {
			list = append(list, v.Name)
		}
	}
	return list
}

// CompileQuery compiles query with the namespaces declared by the sheet.
// Queries found in the sheet are compiled once.
func (s *Stylesheet) CompileQuery(query string) (xpath.Expr, error) {
	if expr, ok := s.queries[query]; ok {
		return expr, nil
	}
	return xpath.CompileNS(query, s.namespaces)
}

func (s *Stylesheet) callTemplate(name string) (*Template, error) {
	tpl, ok := s.named[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrTemplate)
	}
	return tpl, nil
}

// matchTemplate returns the template rule of mode matching node. Conflicts
// are resolved by import precedence, then priority, then the position of the
// rule in the sheet. A nil template means that the built-in rule applies.
func (s *Stylesheet) matchTemplate(node xml.Node, mode string) *Template {
	var (
		found *Template
		prio  float64
	)
	for _, t := range s.templates {
		if t.Mode != mode {
			continue
		}
		for _, p := range t.patterns {
			if found != nil && !t.better(found, p.Priority, prio) {
				continue
			}
			if !p.Match(node) {
				continue
			}
			found, prio = t, p.Priority
		}
	}
	return found
}

func (s *Stylesheet) precompile(node xml.Node) error {
	el, ok := node.(*xml.Element)
	if !ok {
		return nil
	}
	if isXsl(el) {
		for _, a := range el.Attrs {
			var err error
			switch a.Name {
			case "select", "test":
				err = s.addQuery(a.Value())
			case "name", "namespace", "order", "data-type":
				err = s.addAVT(a.Value())
			default:
			}
			if err != nil {
				return errorWithContext(el.QualifiedName(), err)
			}
		}
	} else {
		for _, a := range el.Attrs {
			if err := s.addAVT(a.Value()); err != nil {
				return errorWithContext(el.QualifiedName(), err)
			}
		}
	}
	for _, n := range el.Nodes {
		if err := s.precompile(n); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stylesheet) addQuery(query string) error {
	if _, ok := s.queries[query]; ok {
		return nil
	}
	expr, err := xpath.CompileNS(query, s.namespaces)
	if err != nil {
		return err
	}
	s.queries[query] = expr
	return nil
}

func (s *Stylesheet) addAVT(str string) error {
	for q, ok := range iterAVT(str) {
		if !ok {
			continue
		}
		if err := s.addQuery(q); err != nil {
			return err
		}
	}
	return nil
}

type loader struct {
	*Stylesheet
	resolver Resolver
	visiting []string

	precedence int
	position   int
}

func (ld *loader) load(doc *xml.Document, base string) error {
	root, ok := doc.Root().(*xml.Element)
	if !ok {
		return fmt.Errorf("stylesheet: root element missing")
	}
	ld.defineNamespaces(root)
	if !isXsl(root, "stylesheet", "transform") {
		return ld.loadSimplified(root)
	}
	if err := ld.loadImports(root, base); err != nil {
		return err
	}
	ld.precedence++
	return ld.loadDeclarations(root, base, ld.precedence)
}

func (ld *loader) loadSimplified(root *xml.Element) error {
	ix := slices.IndexFunc(root.Attrs, func(a xml.Attribute) bool {
		return a.Uri == NamespaceXSLT && a.Name == "version"
	})
	if ix < 0 {
		return fmt.Errorf("%s: not a stylesheet", root.QualifiedName())
	}
	ld.precedence++
	tpl := Template{
		Match:      "/",
		Nodes:      []xml.Node{root},
		precedence: ld.precedence,
	}
	if err := tpl.compilePatterns(ld.Stylesheet); err != nil {
		return err
	}
	ld.templates = append(ld.templates, &tpl)
	return ld.precompile(root)
}

func (ld *loader) loadImports(root *xml.Element, base string) error {
	for _, n := range root.Nodes {
		el, ok := n.(*xml.Element)
		if !ok {
			continue
		}
		if !isXsl(el, "import") {
			break
		}
		if err := ld.loadImport(el, base); err != nil {
			return err
		}
	}
	return nil
}

func (ld *loader) loadDeclarations(root *xml.Element, base string, prec int) error {
	var imports = true
	for _, n := range root.Nodes {
		el, ok := n.(*xml.Element)
		if !ok {
			continue
		}
		if !isXsl(el) {
			imports = false
			continue
		}
		var err error
		switch el.Name {
		case "import":
			if !imports {
				return fmt.Errorf("xsl:import should be declared before any other elements")
			}
			continue
		case "include":
			err = ld.loadInclude(el, base, prec)
		case "template":
			err = ld.loadTemplate(el, prec)
		case "param", "variable":
			err = ld.loadGlobal(el, prec)
		case "output":
			err = ld.loadOutput(el)
		case "strip-space":
			ld.strip = append(ld.strip, getAttributeList(el, "elements")...)
		case "preserve-space":
			ld.preserve = append(ld.preserve, getAttributeList(el, "elements")...)
		default:
			err = fmt.Errorf("%s: %w declaration", el.QualifiedName(), errImplemented)
		}
		if err != nil {
			return err
		}
		imports = false
	}
	return nil
}

func (ld *loader) loadImport(el *xml.Element, base string) error {
	doc, uri, err := ld.fetch(el, base)
	if err != nil {
		return err
	}
	defer ld.leave()
	return ld.load(doc, uri)
}

func (ld *loader) loadInclude(el *xml.Element, base string, prec int) error {
	doc, uri, err := ld.fetch(el, base)
	if err != nil {
		return err
	}
	defer ld.leave()

	root, ok := doc.Root().(*xml.Element)
	if !ok || !isXsl(root, "stylesheet", "transform") {
		return fmt.Errorf("%s: included document is not a stylesheet", uri)
	}
	ld.defineNamespaces(root)
	if err := ld.loadImports(root, uri); err != nil {
		return err
	}
	return ld.loadDeclarations(root, uri, prec)
}

func (ld *loader) fetch(el *xml.Element, base string) (*xml.Document, string, error) {
	href, err := getAttribute(el, "href")
	if err != nil {
		return nil, "", err
	}
	src, err := ld.resolver.Resolve(href, base)
	if err != nil {
		return nil, "", ResolveError{
			Href: href,
			Base: base,
			Err:  err,
		}
	}
	defer src.Close()

	uri := src.Uri
	if uri == "" {
		uri = ResolveURI(href, base)
	}
	if slices.Contains(ld.visiting, uri) {
		return nil, "", fmt.Errorf("%s: %w", uri, ErrCircular)
	}
	doc, err := parseSheet(src, uri)
	if err != nil {
		return nil, "", err
	}
	ld.visiting = append(ld.visiting, uri)
	return doc, uri, nil
}

func (ld *loader) leave() {
	if n := len(ld.visiting); n > 0 {
		ld.visiting = ld.visiting[:n-1]
	}
}

func (ld *loader) loadTemplate(el *xml.Element, prec int) error {
	tpl, err := NewTemplate(el)
	if err != nil {
		return err
	}
	tpl.precedence = prec
	tpl.position = ld.position
	ld.position++

	if err := tpl.compilePatterns(ld.Stylesheet); err != nil {
		return err
	}
	if err := ld.precompile(el); err != nil {
		return err
	}
	if tpl.Name != "" {
		other, ok := ld.named[tpl.Name]
		switch {
		case !ok || other.precedence < prec:
			ld.named[tpl.Name] = tpl
		case other.precedence == prec:
			return fmt.Errorf("%s: template already defined", tpl.Name)
		default:
		}
	}
	if tpl.Match != "" {
		ld.templates = append(ld.templates, tpl)
	}
	return nil
}

func (ld *loader) loadGlobal(el *xml.Element, prec int) error {
	v, err := loadVariable(el)
	if err != nil {
		return err
	}
	v.precedence = prec
	if err := ld.precompile(el); err != nil {
		return err
	}
	ix := slices.IndexFunc(ld.globals, func(other *variable) bool {
		return other.Name == v.Name
	})
	if ix < 0 {
		ld.globals = append(ld.globals, v)
		return nil
	}
	switch other := ld.globals[ix]; {
	case other.precedence < prec:
		ld.globals[ix] = v
	case other.precedence == prec:
		return fmt.Errorf("%s: variable already defined", v.Name)
	default:
	}
	return nil
}

func (ld *loader) loadOutput(el *xml.Element) error {
	for _, a := range el.Attributes() {
		switch a.Name {
		case "cdata-section-elements", "doctype-public", "doctype-system":
			continue
		default:
		}
		if err := ld.output.Set(a.Name, a.Value()); err != nil {
			return errorWithContext(el.QualifiedName(), err)
		}
	}
	return nil
}

func (ld *loader) defineNamespaces(root *xml.Element) {
	for _, ns := range root.Namespaces() {
		if ns.Default() {
			continue
		}
		if _, err := ld.namespaces.Resolve(ns.Prefix); err == nil {
			continue
		}
		ld.namespaces.Define(ns.Prefix, ns.Uri)
	}
}

func parseSheet(r io.Reader, uri string) (*xml.Document, error) {
	p := xml.NewParser(r)
	p.KeepEmpty = true
	doc, err := p.Parse()
	if err != nil {
		return nil, err
	}
	doc.Uri = uri
	if root, ok := doc.Root().(*xml.Element); ok {
		stripSheet(root)
	}
	return doc, nil
}

// stripSheet removes the whitespace only text nodes of the sheet except the
// content of xsl:text.
func stripSheet(el *xml.Element) {
	if isXsl(el, "text") {
		return
	}
	if a, ok := el.GetAttribute("xml:space"); ok && a.Value() == "preserve" {
		return
	}
	var nodes []xml.Node
	for _, n := range el.Nodes {
		switch c := n.(type) {
		case *xml.Text:
			if strings.TrimSpace(c.Content) == "" {
				continue
			}
		case *xml.Element:
			stripSheet(c)
		default:
		}
		nodes = append(nodes, n)
	}
	el.Nodes = el.Nodes[:0]
	for _, n := range nodes {
		el.Append(n)
	}
}

func isXsl(el *xml.Element, names ...string) bool {
	if el.Uri != NamespaceXSLT {
		return false
	}
	return len(names) == 0 || slices.Contains(names, el.Name)
}

func getElementFromNode(node xml.Node) (*xml.Element, error) {
	el, ok := node.(*xml.Element)
	if !ok {
		return nil, fmt.Errorf("%s: xml element expected", node.QualifiedName())
	}
	return el, nil
}

var errMissed = errors.New("missing attribute")

func getAttribute(el *xml.Element, ident string) (string, error) {
	ix := slices.IndexFunc(el.Attrs, func(a xml.Attribute) bool {
		return a.Space == "" && a.Name == ident
	})
	if ix < 0 {
		return "", fmt.Errorf("%s: %w %q", el.QualifiedName(), errMissed, ident)
	}
	return el.Attrs[ix].Value(), nil
}

func getAttributeDefault(el *xml.Element, ident, def string) string {
	str, err := getAttribute(el, ident)
	if err != nil {
		return def
	}
	return str
}

func getAttributeList(el *xml.Element, ident string) []string {
	str, _ := getAttribute(el, ident)
	return strings.Fields(str)
}

func parsePriority(str string) (float64, error) {
	p, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid priority", str)
	}
	return p, nil
}
