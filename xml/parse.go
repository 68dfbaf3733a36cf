package xml

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/midbel/angle/environ"
)

const MaxDepth = 512

const (
	SupportedVersion  = "1.0"
	SupportedEncoding = "UTF-8"
)

const AttrXmlNS = "xmlns"

const (
	NamespaceXML   = "http://www.w3.org/XML/1998/namespace"
	NamespaceXMLNS = "http://www.w3.org/2000/xmlns/"
)

type ParseError struct {
	Position
	Element string
	Message string
}

func createParseError(elem, msg string, pos Position) error {
	return ParseError{
		Position: pos,
		Element:  elem,
		Message:  msg,
	}
}

func (p ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s: %s", p.Line, p.Column, p.Element, p.Message)
}

// Reader tokenizes an xml document and reports its content to a Handler as
// soon as it is read. No tree is built.
type Reader struct {
	scan *Scanner
	curr Token
	peek Token

	OmitProlog bool
	StrictNS   bool
	MaxDepth   int

	namespaces environ.Environ[string]
	stack      []QName
	roots      int
}

func NewReader(r io.Reader) *Reader {
	rs := Reader{
		scan:       Scan(r),
		OmitProlog: true,
		MaxDepth:   MaxDepth,
		namespaces: defaultNamespaces(),
	}
	rs.next()
	rs.next()
	return &rs
}

func defaultNamespaces() environ.Environ[string] {
	env := environ.Empty[string]()
	env.Define("xml", NamespaceXML)
	env.Define(AttrXmlNS, NamespaceXMLNS)
	return env
}

// Emit reads the whole document and sends each of its parts to h.
func (r *Reader) Emit(h Handler) error {
	if err := h.StartDocument(); err != nil {
		return err
	}
	if err := r.readProlog(); err != nil {
		return err
	}
	for !r.done() {
		if err := r.emit(h); err != nil {
			return err
		}
	}
	if n := len(r.stack); n > 0 {
		return r.createError(r.stack[n-1].QualifiedName(), "closing element is missing")
	}
	if r.roots == 0 {
		return r.createError("document", "missing root element")
	}
	return h.EndDocument()
}

func (r *Reader) emit(h Handler) error {
	switch r.curr.Type {
	case OpenTag:
		return r.emitStartElement(h)
	case CloseTag:
		return r.emitEndElement(h)
	case CommentTag:
		defer r.next()
		return h.Comment(C{Content: r.getCurrentLiteral()})
	case ProcInstTag:
		defer r.next()
		name, content := splitInstruction(r.getCurrentLiteral())
		if name == "" {
			return r.createError("processing instruction", "name is missing")
		}
		if strings.EqualFold(name, "xml") {
			return r.createError("processing instruction", "xml declaration not allowed here")
		}
		return h.Instruction(P{QName: LocalName(name), Content: content})
	case Cdata:
		defer r.next()
		if len(r.stack) == 0 {
			return r.createError("document", "character data outside root element")
		}
		return h.Text(T{Content: r.getCurrentLiteral()})
	case Literal:
		defer r.next()
		str := r.getCurrentLiteral()
		if len(r.stack) == 0 {
			if strings.TrimSpace(str) != "" {
				return r.createError("document", "text outside root element")
			}
			return nil
		}
		return h.Text(T{Content: str})
	case DocType:
		r.next()
		return nil
	default:
		return r.createError("document", "unexpected token")
	}
}

func (r *Reader) emitStartElement(h Handler) error {
	if len(r.stack) == 0 {
		if r.roots > 0 {
			return r.createError("document", "only one root element allowed")
		}
		r.roots++
	}
	if len(r.stack) >= r.MaxDepth {
		return r.createError("document", "maximum depth reached")
	}
	r.next()

	var elem E
	if r.is(Namespace) {
		elem.Space = r.getCurrentLiteral()
		r.next()
	}
	if !r.is(Name) {
		return r.createError("element", "name is missing")
	}
	elem.Name = r.getCurrentLiteral()
	r.next()

	r.namespaces = environ.Enclosed(r.namespaces)
	attrs, err := r.readAttributes()
	if err != nil {
		return err
	}
	if elem.Uri, err = r.resolveNS(elem.QName, true); err != nil {
		return err
	}
	for i := range attrs {
		if attrs[i].isNamespaceDecl() {
			attrs[i].Uri = NamespaceXMLNS
			continue
		}
		if attrs[i].Uri, err = r.resolveNS(attrs[i].QName, false); err != nil {
			return err
		}
	}
	elem.Attrs = attrs

	switch r.curr.Type {
	case EmptyElemTag:
		r.next()
		elem.SelfClosed = true
		if err := h.StartElement(elem); err != nil {
			return err
		}
		r.leaveScope()
		return h.EndElement(elem)
	case EndTag:
		r.next()
		r.stack = append(r.stack, elem.QName)
		return h.StartElement(elem)
	default:
		return r.createError(elem.QualifiedName(), "end of element expected")
	}
}

func (r *Reader) emitEndElement(h Handler) error {
	r.next()
	var qn QName
	if r.is(Namespace) {
		qn.Space = r.getCurrentLiteral()
		r.next()
	}
	if !r.is(Name) {
		return r.createError("element", "name is missing")
	}
	qn.Name = r.getCurrentLiteral()
	r.next()
	if !r.is(EndTag) {
		return r.createError(qn.QualifiedName(), "end of element expected")
	}
	r.next()

	n := len(r.stack)
	if n == 0 {
		return r.createError(qn.QualifiedName(), "closing element without opening element")
	}
	open := r.stack[n-1]
	if open.Space != qn.Space {
		return r.createError(qn.QualifiedName(), "namespace mismatched with opening element")
	}
	if open.Name != qn.Name {
		return r.createError(qn.QualifiedName(), "name mismatched with opening element")
	}
	r.stack = r.stack[:n-1]
	r.leaveScope()
	return h.EndElement(E{QName: open})
}

func (r *Reader) readProlog() error {
	if !r.is(ProcInstTag) {
		if !r.OmitProlog {
			return r.createError("document", "xml prolog missing")
		}
		return nil
	}
	name, content := splitInstruction(r.getCurrentLiteral())
	if name != "xml" {
		if !r.OmitProlog {
			return r.createError("document", "xml prolog missing")
		}
		return nil
	}
	attrs := parsePseudoAttrs(content)
	if v := attrs["version"]; v != SupportedVersion {
		return r.createError("document", "xml version not supported")
	}
	if e, ok := attrs["encoding"]; ok && !strings.EqualFold(e, SupportedEncoding) {
		return r.createError("document", "xml encoding not supported")
	}
	r.next()
	return nil
}

func (r *Reader) readAttributes() ([]A, error) {
	var attrs []A
	for !r.done() && !r.is(EndTag) && !r.is(EmptyElemTag) {
		var attr A
		if r.is(Namespace) {
			attr.Space = r.getCurrentLiteral()
			r.next()
		}
		if !r.is(Attr) {
			return nil, r.createError("attribute", "name is expected")
		}
		attr.Name = r.getCurrentLiteral()
		r.next()
		if !r.is(Literal) {
			return nil, r.createError(attr.QualifiedName(), "value is missing")
		}
		attr.Value = r.getCurrentLiteral()
		r.next()
		for _, a := range attrs {
			if a.QualifiedName() == attr.QualifiedName() {
				return nil, r.createError(attr.QualifiedName(), "attribute is already defined")
			}
		}
		if attr.Space == "" && attr.Name == AttrXmlNS {
			r.namespaces.Define("", attr.Value)
		} else if attr.Space == AttrXmlNS {
			r.namespaces.Define(attr.Name, attr.Value)
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

func (r *Reader) resolveNS(qn QName, element bool) (string, error) {
	if qn.Space == "" && !element {
		return "", nil
	}
	uri, err := r.namespaces.Resolve(qn.Space)
	if err != nil {
		if r.StrictNS && qn.Space != "" {
			return "", r.createError(qn.QualifiedName(), "namespace is not defined")
		}
		return "", nil
	}
	return uri, nil
}

func (r *Reader) leaveScope() {
	u, ok := r.namespaces.(interface {
		Unwrap() environ.Environ[string]
	})
	if !ok {
		return
	}
	r.namespaces = u.Unwrap()
}

func (r *Reader) getCurrentLiteral() string {
	return r.curr.Literal
}

func (r *Reader) createError(elem, msg string) error {
	return createParseError(elem, msg, r.curr.Position)
}

func (r *Reader) is(kind rune) bool {
	return r.curr.Type == kind
}

func (r *Reader) done() bool {
	return r.is(EOF)
}

func (r *Reader) next() {
	r.curr = r.peek
	r.peek = r.scan.Scan()
}

// Parser builds a Document from the events of a Reader.
type Parser struct {
	*Reader

	TrimSpace bool
	KeepEmpty bool
}

func NewParser(r io.Reader) *Parser {
	return &Parser{
		Reader: NewReader(r),
	}
}

func ParseString(xml string) (*Document, error) {
	return ParseReader(strings.NewReader(xml))
}

func ParseReader(r io.Reader) (*Document, error) {
	return NewParser(r).Parse()
}

func (p *Parser) Parse() (*Document, error) {
	b := NewBuilder()
	b.TrimSpace = p.TrimSpace
	b.KeepEmpty = p.KeepEmpty
	if err := p.Emit(b); err != nil {
		return nil, err
	}
	return b.Document(), nil
}

func splitInstruction(str string) (string, string) {
	str = strings.TrimSpace(str)
	ix := strings.IndexFunc(str, unicode.IsSpace)
	if ix < 0 {
		return str, ""
	}
	return str[:ix], strings.TrimSpace(str[ix:])
}

func parsePseudoAttrs(str string) map[string]string {
	attrs := make(map[string]string)
	for str != "" {
		str = strings.TrimSpace(str)
		name, rest, ok := strings.Cut(str, "=")
		if !ok {
			break
		}
		rest = strings.TrimSpace(rest)
		if rest == "" || (rest[0] != quote && rest[0] != apos) {
			break
		}
		end := strings.IndexByte(rest[1:], rest[0])
		if end < 0 {
			break
		}
		attrs[strings.TrimSpace(name)] = rest[1 : end+1]
		str = rest[end+2:]
	}
	return attrs
}

const (
	EOF rune = -(1 + iota)
	Name
	Namespace // name:
	Attr      // name=
	Literal
	Cdata
	CommentTag   // <!-- -->
	OpenTag      // <
	EndTag       // >
	CloseTag     // </
	EmptyElemTag // />
	ProcInstTag  // <? ?>
	DocType      // <!DOCTYPE >
	Invalid
)

type Position struct {
	Line   int
	Column int
}

type Token struct {
	Literal string
	Type    rune
	Position
}

func (t Token) String() string {
	switch t.Type {
	case EOF:
		return "<eof>"
	case CommentTag:
		return fmt.Sprintf("comment(%s)", t.Literal)
	case Name:
		return fmt.Sprintf("name(%s)", t.Literal)
	case Namespace:
		return fmt.Sprintf("namespace(%s)", t.Literal)
	case Attr:
		return fmt.Sprintf("attr(%s)", t.Literal)
	case Cdata:
		return fmt.Sprintf("chardata(%s)", t.Literal)
	case Literal:
		return fmt.Sprintf("literal(%s)", t.Literal)
	case OpenTag:
		return "<open-elem-tag>"
	case EndTag:
		return "<end-elem-tag>"
	case CloseTag:
		return "<close-elem-tag>"
	case EmptyElemTag:
		return "<empty-elem-tag>"
	case ProcInstTag:
		return fmt.Sprintf("pi(%s)", t.Literal)
	case DocType:
		return "<doctype>"
	case Invalid:
		return "<invalid>"
	default:
		return "<unknown>"
	}
}

const (
	langle     = '<'
	rangle     = '>'
	lsquare    = '['
	rsquare    = ']'
	colon      = ':'
	quote      = '"'
	apos       = '\''
	slash      = '/'
	question   = '?'
	bang       = '!'
	equal      = '='
	ampersand  = '&'
	semicolon  = ';'
	dash       = '-'
	underscore = '_'
	dot        = '.'
)

type state int8

const (
	literalState state = 1 << iota
)

type Scanner struct {
	input io.RuneScanner
	char  rune
	str   bytes.Buffer

	Position
	old Position

	state
}

func Scan(r io.Reader) *Scanner {
	var (
		rs    = bufio.NewReader(r)
		pk, _ = rs.Peek(3)
	)
	if bytes.Equal(pk, []byte{0xEF, 0xBB, 0xBF}) {
		rs.Discard(3)
	}

	scan := &Scanner{
		input: rs,
	}
	scan.Position.Line = 1
	scan.read()
	return scan
}

func (s *Scanner) Scan() Token {
	var tok Token
	tok.Position = s.Position
	if s.done() {
		tok.Type = EOF
		return tok
	}
	s.str.Reset()
	if s.state == literalState && s.char != langle {
		s.scanLiteral(&tok)
		return tok
	}
	s.state = 0
	if s.char != langle {
		s.skipBlank()
		if s.done() {
			tok.Type = EOF
			return tok
		}
	}
	switch {
	case s.char == langle:
		s.scanOpeningTag(&tok)
	case s.char == rangle:
		s.scanEndTag(&tok)
	case s.char == slash:
		s.scanEmptyTag(&tok)
	case s.char == quote || s.char == apos:
		s.scanValue(&tok)
	case isNameStart(s.char):
		s.scanName(&tok)
	default:
		s.scanLiteral(&tok)
	}
	return tok
}

func (s *Scanner) scanOpeningTag(tok *Token) {
	s.read()
	tok.Type = OpenTag
	switch s.char {
	case bang:
		s.read()
		switch s.char {
		case lsquare:
			s.scanCharData(tok)
		case dash:
			s.scanComment(tok)
		default:
			s.scanDocType(tok)
		}
		s.state = literalState
	case question:
		s.read()
		s.scanInstruction(tok)
		s.state = literalState
	case slash:
		tok.Type = CloseTag
		s.read()
	default:
	}
}

func (s *Scanner) scanInstruction(tok *Token) {
	var done bool
	for !s.done() {
		if s.char == question && s.peek() == rangle {
			s.read()
			s.read()
			done = true
			break
		}
		s.write()
		s.read()
	}
	tok.Literal = s.str.String()
	tok.Type = ProcInstTag
	if !done {
		tok.Type = Invalid
	}
}

func (s *Scanner) scanDocType(tok *Token) {
	var depth int
	for !s.done() {
		if s.char == lsquare {
			depth++
		} else if s.char == rsquare {
			depth--
		} else if s.char == rangle && depth == 0 {
			s.read()
			break
		}
		s.write()
		s.read()
	}
	tok.Type = DocType
	tok.Literal = s.str.String()
	if !strings.HasPrefix(tok.Literal, "DOCTYPE") {
		tok.Type = Invalid
	}
}

func (s *Scanner) scanComment(tok *Token) {
	s.read()
	if s.char != dash {
		tok.Type = Invalid
		return
	}
	s.read()
	var done bool
	for !s.done() {
		if s.char == dash && s.peek() == s.char {
			s.read()
			s.read()
			if done = s.char == rangle; done {
				s.read()
				break
			}
			s.str.WriteRune(dash)
			s.str.WriteRune(dash)
			continue
		}
		s.write()
		s.read()
	}
	tok.Literal = s.str.String()
	tok.Type = CommentTag
	if !done {
		tok.Type = Invalid
	}
}

func (s *Scanner) scanCharData(tok *Token) {
	s.read()
	for !s.done() && s.char != lsquare {
		s.write()
		s.read()
	}
	s.read()
	if s.str.String() != "CDATA" {
		tok.Type = Invalid
		return
	}
	s.str.Reset()
	var done bool
	for !s.done() {
		if s.char == rsquare && s.peek() == s.char {
			s.read()
			s.read()
			if done = s.char == rangle; done {
				s.read()
				break
			}
			s.str.WriteRune(rsquare)
			s.str.WriteRune(rsquare)
			continue
		}
		s.write()
		s.read()
	}
	tok.Literal = s.str.String()
	tok.Type = Cdata
	if !done {
		tok.Type = Invalid
	}
}

func (s *Scanner) scanEndTag(tok *Token) {
	tok.Type = EndTag
	s.state = literalState
	s.read()
}

func (s *Scanner) scanEmptyTag(tok *Token) {
	tok.Type = Invalid
	s.read()
	if s.char == rangle {
		tok.Type = EmptyElemTag
		s.state = literalState
		s.read()
	}
}

func (s *Scanner) scanValue(tok *Token) {
	delim := s.char
	s.read()
	for !s.done() && s.char != delim {
		if s.char == ampersand {
			str := s.scanEntity()
			if str == "" {
				tok.Type = Invalid
				return
			}
			s.str.WriteString(str)
			continue
		}
		s.write()
		s.read()
	}
	tok.Type = Literal
	tok.Literal = s.str.String()
	if s.char != delim {
		tok.Type = Invalid
		return
	}
	s.read()
	s.skipBlank()
}

func (s *Scanner) scanEntity() string {
	var str bytes.Buffer
	str.WriteRune(ampersand)
	s.read()
	for !s.done() && s.char != semicolon && s.char != langle && !unicode.IsSpace(s.char) {
		str.WriteRune(s.char)
		s.read()
	}
	if s.char != semicolon {
		return ""
	}
	str.WriteRune(semicolon)
	s.read()
	return html.UnescapeString(str.String())
}

func (s *Scanner) scanLiteral(tok *Token) {
	tok.Type = Literal
	for !s.done() && s.char != langle {
		if s.char == ampersand {
			str := s.scanEntity()
			if str == "" {
				tok.Type = Invalid
				break
			}
			s.str.WriteString(str)
			continue
		}
		s.write()
		s.read()
	}
	tok.Literal = s.str.String()
	s.state = 0
}

func (s *Scanner) scanName(tok *Token) {
	accept := func() bool {
		return isNameStart(s.char) || unicode.IsDigit(s.char) ||
			s.char == dash || s.char == dot
	}
	for !s.done() && accept() {
		s.write()
		s.read()
	}
	tok.Type = Name
	tok.Literal = s.str.String()
	s.skipBlank()
	if s.char == equal {
		tok.Type = Attr
		s.read()
		s.skipBlank()
	} else if s.char == colon {
		tok.Type = Namespace
		s.read()
	}
}

func (s *Scanner) write() {
	s.str.WriteRune(s.char)
}

func (s *Scanner) read() {
	s.old = s.Position
	if s.char == '\n' {
		s.Column = 0
		s.Line++
	}
	s.Column++
	char, _, err := s.input.ReadRune()
	if errors.Is(err, io.EOF) {
		char = utf8.RuneError
	}
	s.char = char
}

func (s *Scanner) peek() rune {
	defer s.input.UnreadRune()
	r, _, _ := s.input.ReadRune()
	return r
}

func (s *Scanner) done() bool {
	return s.char == utf8.RuneError
}

func (s *Scanner) skipBlank() {
	for !s.done() && unicode.IsSpace(s.char) {
		s.read()
	}
}

func isNameStart(r rune) bool {
	return unicode.IsLetter(r) || r == underscore
}
