package xml_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/midbel/angle/xml"
)

const sample = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE catalog>
<!-- catalog of items -->
<catalog xmlns="urn:catalog" xmlns:x="urn:extra">
	<item id="1" label='single &amp; quoted'>first &lt;item&gt;</item>
	<item id="2"><![CDATA[<raw> & text]]></item>
	<x:note x:lang="en"/>
	<?render mode="fast"?>
</catalog>
`

func TestParseValidDocument(t *testing.T) {
	doc, err := xml.ParseString(sample)
	if err != nil {
		t.Fatalf("fail to parse sample document: %s", err)
	}
	root, ok := doc.Root().(*xml.Element)
	if !ok {
		t.Fatalf("root element expected, got %T", doc.Root())
	}
	if root.Uri != "urn:catalog" {
		t.Errorf("default namespace not applied to root: %q", root.Uri)
	}
	if len(root.Nodes) != 4 {
		t.Fatalf("number of children mismatched! want 4, got %d", len(root.Nodes))
	}
	item := root.Nodes[0].(*xml.Element)
	if got := item.Value(); got != "first <item>" {
		t.Errorf("entities not decoded in text: %q", got)
	}
	if a, ok := item.GetAttribute("label"); !ok || a.Value() != "single & quoted" {
		t.Errorf("single quoted attribute not decoded: %q", a.Value())
	}
	if got := root.Nodes[1].Value(); got != "<raw> & text" {
		t.Errorf("character data mismatched: %q", got)
	}
	note := root.Nodes[2].(*xml.Element)
	if note.Uri != "urn:extra" {
		t.Errorf("prefixed namespace not resolved: %q", note.Uri)
	}
	if a, ok := note.GetAttribute("x:lang"); !ok || a.Uri != "urn:extra" {
		t.Errorf("prefixed attribute not resolved: %+v", a)
	}
	pi, ok := root.Nodes[3].(*xml.Instruction)
	if !ok {
		t.Fatalf("processing instruction expected, got %T", root.Nodes[3])
	}
	if pi.Name != "render" || pi.Content != `mode="fast"` {
		t.Errorf("processing instruction mismatched: %s %s", pi.Name, pi.Content)
	}
	if len(doc.Nodes) != 2 || doc.Nodes[0].Type() != xml.TypeComment {
		t.Errorf("comment before root element expected")
	}
}

func TestParseInvalidDocument(t *testing.T) {
	data := []struct {
		Xml   string
		Cause string
	}{
		{
			Xml:   ``,
			Cause: "document without root element",
		},
		{
			Xml:   `<root empty-attr></root>`,
			Cause: "attribute without value",
		},
		{
			Xml:   `<root id="id-1" id="id-2"></root>`,
			Cause: "duplicate attribute",
		},
		{
			Xml:   `<root><item></root>`,
			Cause: "mismatched closing element",
		},
		{
			Xml:   `<root></root><root></root>`,
			Cause: "multiple root elements",
		},
		{
			Xml:   `<root>`,
			Cause: "element not closed",
		},
		{
			Xml:   `text<root/>`,
			Cause: "text outside root element",
		},
		{
			Xml:   `<?xml version="2.0"?><root/>`,
			Cause: "unsupported version",
		},
		{
			Xml:   `<root><?xml version="1.0"?></root>`,
			Cause: "xml declaration in body",
		},
	}
	for _, d := range data {
		_, err := xml.ParseString(d.Xml)
		if err == nil {
			t.Errorf("%s: invalid document parsed properly!", d.Cause)
			continue
		}
		var perr xml.ParseError
		if !errors.As(err, &perr) {
			t.Errorf("%s: parse error expected, got %T", d.Cause, err)
		}
	}
}

func TestParseRequireProlog(t *testing.T) {
	p := xml.NewParser(strings.NewReader(`<root/>`))
	p.OmitProlog = false
	if _, err := p.Parse(); err == nil {
		t.Errorf("document without prolog parsed properly")
	}
}

func TestParseStrictNamespace(t *testing.T) {
	const str = `<root><ns:item/></root>`
	if _, err := xml.ParseString(str); err != nil {
		t.Errorf("undeclared prefix should be accepted by default: %s", err)
	}
	p := xml.NewParser(strings.NewReader(str))
	p.StrictNS = true
	if _, err := p.Parse(); err == nil {
		t.Errorf("undeclared prefix should be rejected in strict mode")
	}
}

func TestParseMaxDepth(t *testing.T) {
	p := xml.NewParser(strings.NewReader(`<a><b><c/></b></a>`))
	p.MaxDepth = 2
	if _, err := p.Parse(); err == nil {
		t.Errorf("document deeper than limit parsed properly")
	}
}

func TestParseSpaces(t *testing.T) {
	const str = `<root>
	<item>  value  </item>
</root>`
	tests := []struct {
		TrimSpace bool
		KeepEmpty bool
		Children  int
		Value     string
	}{
		{
			Children: 1,
			Value:    "  value  ",
		},
		{
			TrimSpace: true,
			Children:  1,
			Value:     "value",
		},
		{
			KeepEmpty: true,
			Children:  3,
			Value:     "  value  ",
		},
	}
	for _, c := range tests {
		p := xml.NewParser(strings.NewReader(str))
		p.TrimSpace = c.TrimSpace
		p.KeepEmpty = c.KeepEmpty
		doc, err := p.Parse()
		if err != nil {
			t.Fatalf("fail to parse document: %s", err)
		}
		root := doc.Root().(*xml.Element)
		if len(root.Nodes) != c.Children {
			t.Errorf("children mismatched! want %d, got %d", c.Children, len(root.Nodes))
			continue
		}
		var item *xml.Element
		for _, n := range root.Nodes {
			if el, ok := n.(*xml.Element); ok {
				item = el
			}
		}
		if got := item.Value(); got != c.Value {
			t.Errorf("value mismatched! want %q, got %q", c.Value, got)
		}
	}
}

type recorder struct {
	events []string
}

func (r *recorder) StartDocument() error {
	r.events = append(r.events, "start-document")
	return nil
}

func (r *recorder) EndDocument() error {
	r.events = append(r.events, "end-document")
	return nil
}

func (r *recorder) StartElement(e xml.E) error {
	r.events = append(r.events, "start:"+e.QualifiedName())
	return nil
}

func (r *recorder) EndElement(e xml.E) error {
	r.events = append(r.events, "end:"+e.QualifiedName())
	return nil
}

func (r *recorder) Text(t xml.T) error {
	r.events = append(r.events, "text:"+t.Content)
	return nil
}

func (r *recorder) Comment(c xml.C) error {
	r.events = append(r.events, "comment:"+c.Content)
	return nil
}

func (r *recorder) Instruction(p xml.P) error {
	r.events = append(r.events, "pi:"+p.QualifiedName())
	return nil
}

func TestReaderEmit(t *testing.T) {
	const str = `<root><!--c--><item a="1">text</item><empty/><?go run?></root>`
	want := []string{
		"start-document",
		"start:root",
		"comment:c",
		"start:item",
		"text:text",
		"end:item",
		"start:empty",
		"end:empty",
		"pi:go",
		"end:root",
		"end-document",
	}
	var rec recorder
	if err := xml.NewReader(strings.NewReader(str)).Emit(&rec); err != nil {
		t.Fatalf("fail to read document: %s", err)
	}
	if len(rec.events) != len(want) {
		t.Fatalf("events mismatched! want %q, got %q", want, rec.events)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Errorf("event %d mismatched! want %s, got %s", i, want[i], rec.events[i])
		}
	}
}

func TestWalkReplaysDocument(t *testing.T) {
	doc, err := xml.ParseString(`<root><item id="1">one</item><!--note--></root>`)
	if err != nil {
		t.Fatalf("fail to parse document: %s", err)
	}
	b := xml.NewBuilder()
	if err := xml.Walk(doc, b); err != nil {
		t.Fatalf("fail to walk document: %s", err)
	}
	want, _ := doc.WriteString()
	got, _ := b.Document().WriteString()
	if want != got {
		t.Errorf("documents mismatched! want %s, got %s", want, got)
	}
}

func TestBuilderMergeText(t *testing.T) {
	b := xml.NewBuilder()
	b.StartDocument()
	b.StartElement(xml.E{QName: xml.LocalName("root")})
	b.Text(xml.T{Content: "a"})
	b.Text(xml.T{Content: "b"})
	b.EndElement(xml.E{QName: xml.LocalName("root")})
	if err := b.EndDocument(); err != nil {
		t.Fatalf("fail to end document: %s", err)
	}
	root := b.Document().Root().(*xml.Element)
	if len(root.Nodes) != 1 || root.Value() != "ab" {
		t.Errorf("adjacent text nodes should be merged: %d node(s)", len(root.Nodes))
	}
}

func TestBuilderTextOutsideRoot(t *testing.T) {
	b := xml.NewBuilder()
	b.StartDocument()
	if err := b.Text(xml.T{Content: "\n  "}); err != nil {
		t.Errorf("blank text outside root should be ignored: %s", err)
	}
	err := b.Text(xml.T{Content: "result"})
	if !errors.Is(err, xml.ErrOutside) {
		t.Errorf("text outside root should be rejected! got %v", err)
	}
}
