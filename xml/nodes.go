package xml

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

type NodeType int8

const (
	TypeDocument NodeType = 1 << iota
	TypeElement
	TypeComment
	TypeAttribute
	TypeInstruction
	TypeText
)

const TypeNode = TypeDocument | TypeElement | TypeComment | TypeAttribute | TypeInstruction | TypeText

func (n NodeType) String() string {
	switch n {
	default:
		return "<>"
	case TypeDocument:
		return "document"
	case TypeElement:
		return "element"
	case TypeComment:
		return "comment"
	case TypeAttribute:
		return "attribute"
	case TypeInstruction:
		return "pi"
	case TypeText:
		return "text"
	case TypeNode:
		return "node"
	}
}

var ErrElement = errors.New("element expected")

// Before reports whether left comes before right in document order.
func Before(left, right Node) bool {
	var (
		p1 = left.path()
		p2 = right.path()
	)
	for i := 0; i < len(p1) && i < len(p2); i++ {
		if p1[i] < p2[i] {
			return true
		} else if p1[i] > p2[i] {
			return false
		}
	}
	return len(p1) < len(p2)
}

type Cloner interface {
	Clone() Node
}

type Node interface {
	Type() NodeType
	LocalName() string
	QualifiedName() string
	Leaf() bool
	Position() int
	Parent() Node
	Value() string
	Identity() string

	setParent(Node)
	setPosition(int)
	path() []int
}

// Root returns the top most ancestor of node.
func Root(node Node) Node {
	for node != nil {
		p := node.Parent()
		if p == nil {
			break
		}
		node = p
	}
	return node
}

// Children returns the child nodes of a document or an element.
func Children(node Node) []Node {
	switch n := node.(type) {
	case *Document:
		return n.Nodes
	case *Element:
		return n.Nodes
	default:
		return nil
	}
}

type NS struct {
	Prefix string
	Uri    string
}

func (n NS) Default() bool {
	return n.Prefix == ""
}

type Document struct {
	Version    string
	Encoding   string
	Standalone string
	Uri        string

	Nodes []Node
}

func NewDocument(root Node) *Document {
	doc := EmptyDocument()
	if root != nil {
		doc.AppendChild(root)
	}
	return doc
}

func EmptyDocument() *Document {
	doc := Document{
		Version:  SupportedVersion,
		Encoding: SupportedEncoding,
	}
	return &doc
}

func (d *Document) WriteString() (string, error) {
	var str strings.Builder
	ws := NewWriter(&str)
	ws.WriterOptions |= OptionCompact | OptionNoProlog
	err := ws.Write(d)
	return str.String(), err
}

func (d *Document) Root() Node {
	for i := range d.Nodes {
		if d.Nodes[i].Type() == TypeElement {
			return d.Nodes[i]
		}
	}
	return nil
}

func (d *Document) AppendChild(node Node) {
	node.setParent(d)
	node.setPosition(len(d.Nodes))
	d.Nodes = append(d.Nodes, node)
}

func (d *Document) Clone() Node {
	c := Document{
		Version:    d.Version,
		Encoding:   d.Encoding,
		Standalone: d.Standalone,
		Uri:        d.Uri,
	}
	for i := range d.Nodes {
		c.AppendChild(cloneNode(d.Nodes[i]))
	}
	return &c
}

func (d *Document) Namespaces() []NS {
	el, ok := d.Root().(*Element)
	if !ok {
		return nil
	}
	return el.Namespaces()
}

func (d *Document) Type() NodeType {
	return TypeDocument
}

func (d *Document) LocalName() string {
	return ""
}

func (d *Document) QualifiedName() string {
	return ""
}

func (d *Document) Leaf() bool {
	return false
}

func (d *Document) Position() int {
	return 0
}

func (d *Document) Parent() Node {
	return nil
}

func (d *Document) Value() string {
	return textOf(d.Nodes)
}

func (_ *Document) Identity() string {
	return "document"
}

func (_ *Document) path() []int {
	return nil
}

func (d *Document) setParent(_ Node) {}

func (d *Document) setPosition(_ int) {}

type QName struct {
	Uri   string
	Space string
	Name  string
}

func ParseName(name string) (QName, error) {
	var (
		qn QName
		ok bool
	)
	qn.Space, qn.Name, ok = strings.Cut(name, ":")
	if !ok {
		qn.Name, qn.Space = qn.Space, ""
	}
	if ok && (qn.Space == "" || qn.Name == "") {
		return qn, fmt.Errorf("%s: invalid qualified name", name)
	}
	return qn, nil
}

func ExpandedName(name, space, uri string) QName {
	return QName{
		Name:  name,
		Space: space,
		Uri:   uri,
	}
}

func LocalName(name string) QName {
	return ExpandedName(name, "", "")
}

func QualifiedName(name, space string) QName {
	return ExpandedName(name, space, "")
}

func (q QName) Zero() bool {
	return q.Space == "" && q.Name == ""
}

func (q QName) Equal(other QName) bool {
	if q.Uri != "" || other.Uri != "" {
		return q.Uri == other.Uri && q.Name == other.Name
	}
	return q.Space == other.Space && q.Name == other.Name
}

func (q QName) LocalName() string {
	return q.Name
}

func (q QName) ExpandedName() string {
	if q.Uri == "" {
		return q.LocalName()
	}
	return fmt.Sprintf("{%s}%s", q.Uri, q.Name)
}

func (q QName) QualifiedName() string {
	if q.Space == "" {
		return q.LocalName()
	}
	return fmt.Sprintf("%s:%s", q.Space, q.Name)
}

func (q QName) isNamespaceDecl() bool {
	return q.Name == AttrXmlNS && q.Space == "" || q.Space == AttrXmlNS
}

type Attribute struct {
	QName
	Datum string

	parent   Node
	position int
}

func NewAttribute(name QName, value string) Attribute {
	return Attribute{
		QName: name,
		Datum: value,
	}
}

func (a *Attribute) Clone() Node {
	c := *a
	c.parent = nil
	return &c
}

func (_ *Attribute) Type() NodeType {
	return TypeAttribute
}

func (_ *Attribute) Leaf() bool {
	return true
}

func (a *Attribute) Position() int {
	return a.position
}

func (a *Attribute) Parent() Node {
	return a.parent
}

func (a *Attribute) Value() string {
	return a.Datum
}

func (a *Attribute) Identity() string {
	return fmt.Sprintf("attr(%s)[%s]", a.QualifiedName(), joinPath(a.path()))
}

func (a *Attribute) path() []int {
	if a.parent == nil {
		return []int{a.position}
	}
	offset := a.position
	if el, ok := a.parent.(*Element); ok {
		offset -= len(el.Attrs)
	}
	return append(a.parent.path(), offset)
}

func (a *Attribute) setParent(node Node) {
	a.parent = node
}

func (a *Attribute) setPosition(pos int) {
	a.position = pos
}

type Element struct {
	QName
	Attrs []Attribute
	Nodes []Node

	parent   Node
	position int
}

func NewElement(name QName) *Element {
	return &Element{
		QName: name,
	}
}

func (e *Element) Namespaces() []NS {
	var ns []NS
	for _, a := range e.Attrs {
		if !a.isNamespaceDecl() {
			continue
		}
		n := NS{
			Prefix: a.Name,
			Uri:    a.Value(),
		}
		if a.Space == "" {
			n.Prefix = ""
		}
		ns = append(ns, n)
	}
	return ns
}

// Attributes returns the attributes of e without the namespace declarations.
func (e *Element) Attributes() []Attribute {
	var as []Attribute
	for _, a := range e.Attrs {
		if a.isNamespaceDecl() {
			continue
		}
		as = append(as, a)
	}
	return as
}

// Copy returns a shallow copy of e: name and attributes without children.
func (e *Element) Copy() *Element {
	c := NewElement(e.QName)
	for _, a := range e.Attrs {
		c.SetAttribute(a)
	}
	return c
}

func (e *Element) Clone() Node {
	c := e.Copy()
	for i := range e.Nodes {
		c.Append(cloneNode(e.Nodes[i]))
	}
	return c
}

func (_ *Element) Type() NodeType {
	return TypeElement
}

func (e *Element) Leaf() bool {
	for _, n := range e.Nodes {
		if n.Type() != TypeText {
			return false
		}
	}
	return true
}

func (e *Element) Empty() bool {
	return len(e.Nodes) == 0
}

// Value returns the concatenation of the text of all the descendants of e.
func (e *Element) Value() string {
	return textOf(e.Nodes)
}

func (e *Element) Append(node Node) {
	if a, ok := node.(*Attribute); ok {
		e.SetAttribute(*a)
		return
	}
	node.setParent(e)
	node.setPosition(len(e.Nodes))
	e.Nodes = append(e.Nodes, node)
}

func (e *Element) Position() int {
	return e.position
}

func (e *Element) Parent() Node {
	return e.parent
}

func (e *Element) Identity() string {
	return fmt.Sprintf("node(%s)[%s]", e.QualifiedName(), joinPath(e.path()))
}

func (e *Element) GetAttribute(name string) (Attribute, bool) {
	ix := slices.IndexFunc(e.Attrs, func(a Attribute) bool {
		return a.QualifiedName() == name
	})
	if ix < 0 {
		var attr Attribute
		return attr, false
	}
	return e.Attrs[ix], true
}

// SetAttribute adds attr to e or replaces the attribute with the same
// qualified name.
func (e *Element) SetAttribute(attr Attribute) {
	attr.setParent(e)
	ix := slices.IndexFunc(e.Attrs, func(a Attribute) bool {
		return a.QualifiedName() == attr.QualifiedName()
	})
	if ix < 0 {
		attr.setPosition(len(e.Attrs))
		e.Attrs = append(e.Attrs, attr)
	} else {
		attr.setPosition(ix)
		e.Attrs[ix] = attr
	}
}

func (e *Element) path() []int {
	if e.parent == nil {
		return []int{e.position}
	}
	return append(e.parent.path(), e.position)
}

func (e *Element) setPosition(pos int) {
	e.position = pos
}

func (e *Element) setParent(parent Node) {
	e.parent = parent
}

type Instruction struct {
	QName
	Attrs   []Attribute
	Content string

	parent   Node
	position int
}

func NewInstruction(name QName) *Instruction {
	return &Instruction{
		QName: name,
	}
}

func (i *Instruction) Clone() Node {
	c := *i
	c.Attrs = slices.Clone(i.Attrs)
	c.parent = nil
	return &c
}

func (_ *Instruction) Type() NodeType {
	return TypeInstruction
}

func (i *Instruction) Leaf() bool {
	return true
}

func (i *Instruction) Value() string {
	if i.Content != "" || len(i.Attrs) == 0 {
		return i.Content
	}
	var list []string
	for _, a := range i.Attrs {
		list = append(list, fmt.Sprintf("%s=\"%s\"", a.QualifiedName(), a.Value()))
	}
	return strings.Join(list, " ")
}

func (i *Instruction) Position() int {
	return i.position
}

func (i *Instruction) Parent() Node {
	return i.parent
}

func (i *Instruction) Identity() string {
	return fmt.Sprintf("instr(%s)[%s]", i.QualifiedName(), joinPath(i.path()))
}

func (i *Instruction) path() []int {
	if i.parent == nil {
		return []int{i.position}
	}
	return append(i.parent.path(), i.position)
}

func (i *Instruction) setPosition(pos int) {
	i.position = pos
}

func (i *Instruction) setParent(parent Node) {
	i.parent = parent
}

type CharData struct {
	Content string

	parent   Node
	position int
}

func NewCharacterData(chardata string) *CharData {
	return &CharData{
		Content: chardata,
	}
}

func (c *CharData) Clone() Node {
	return NewCharacterData(c.Content)
}

func (_ *CharData) Type() NodeType {
	return TypeText
}

func (c *CharData) LocalName() string {
	return ""
}

func (c *CharData) QualifiedName() string {
	return ""
}

func (c *CharData) Leaf() bool {
	return true
}

func (c *CharData) Value() string {
	return c.Content
}

func (c *CharData) Position() int {
	return c.position
}

func (c *CharData) Parent() Node {
	return c.parent
}

func (c *CharData) Identity() string {
	return fmt.Sprintf("chardata[%s]", joinPath(c.path()))
}

func (c *CharData) path() []int {
	if c.parent == nil {
		return []int{c.position}
	}
	return append(c.parent.path(), c.position)
}

func (c *CharData) setPosition(pos int) {
	c.position = pos
}

func (c *CharData) setParent(parent Node) {
	c.parent = parent
}

type Text struct {
	Content string

	parent   Node
	position int
}

func NewText(text string) *Text {
	return &Text{
		Content: text,
	}
}

func (t *Text) Clone() Node {
	return NewText(t.Content)
}

func (_ *Text) Type() NodeType {
	return TypeText
}

func (t *Text) LocalName() string {
	return ""
}

func (t *Text) QualifiedName() string {
	return ""
}

func (t *Text) Leaf() bool {
	return true
}

func (t *Text) Value() string {
	return t.Content
}

func (t *Text) Position() int {
	return t.position
}

func (t *Text) Parent() Node {
	return t.parent
}

func (t *Text) Identity() string {
	return fmt.Sprintf("text[%s]", joinPath(t.path()))
}

func (t *Text) path() []int {
	if t.parent == nil {
		return []int{t.position}
	}
	return append(t.parent.path(), t.position)
}

func (t *Text) setPosition(pos int) {
	t.position = pos
}

func (t *Text) setParent(parent Node) {
	t.parent = parent
}

type Comment struct {
	Content string

	parent   Node
	position int
}

func NewComment(comment string) *Comment {
	return &Comment{
		Content: comment,
	}
}

func (c *Comment) Clone() Node {
	return NewComment(c.Content)
}

func (_ *Comment) Type() NodeType {
	return TypeComment
}

func (c *Comment) LocalName() string {
	return ""
}

func (c *Comment) QualifiedName() string {
	return ""
}

func (c *Comment) Leaf() bool {
	return true
}

func (c *Comment) Value() string {
	return c.Content
}

func (c *Comment) Position() int {
	return c.position
}

func (c *Comment) Parent() Node {
	return c.parent
}

func (c *Comment) Identity() string {
	return fmt.Sprintf("comment[%s]", joinPath(c.path()))
}

func (c *Comment) path() []int {
	if c.parent == nil {
		return []int{c.position}
	}
	return append(c.parent.path(), c.position)
}

func (c *Comment) setPosition(pos int) {
	c.position = pos
}

func (c *Comment) setParent(parent Node) {
	c.parent = parent
}

func cloneNode(node Node) Node {
	if c, ok := node.(Cloner); ok {
		return c.Clone()
	}
	return node
}

func textOf(nodes []Node) string {
	var str strings.Builder
	for _, n := range nodes {
		switch n.Type() {
		case TypeText, TypeElement:
			str.WriteString(n.Value())
		default:
		}
	}
	return str.String()
}

func joinPath(path []int) string {
	list := make([]string, 0, len(path))
	for _, p := range path {
		list = append(list, strconv.Itoa(p))
	}
	return strings.Join(list, "/")
}
