package xml_test

import (
	"strings"
	"testing"

	"github.com/midbel/angle/xml"
)

func TestWriterWrite(t *testing.T) {
	const str = `<?xml version="1.0" encoding="UTF-8"?><test:root id="1" xmlns:test="urn:test"><test:a attr="text">text</test:a><test:a attr="self"/><!--note--></test:root>`

	doc, err := parseDocument(str)
	if err != nil {
		t.Fatalf("fail to parse input document: %s", err)
	}

	data := []struct {
		Want    string
		Options xml.WriterOptions
	}{
		{
			Want:    `<test:root id="1" xmlns:test="urn:test"><test:a attr="text">text</test:a><test:a attr="self"/><!--note--></test:root>`,
			Options: xml.OptionCompact | xml.OptionNoProlog,
		},
		{
			Want:    `<?xml version="1.0" encoding="UTF-8"?><test:root id="1" xmlns:test="urn:test"><test:a attr="text">text</test:a><test:a attr="self"/><!--note--></test:root>`,
			Options: xml.OptionCompact,
		},
		{
			Want:    `<root id="1"><a attr="text">text</a><a attr="self"/></root>`,
			Options: xml.OptionCompact | xml.OptionNoProlog | xml.OptionNoNamespace | xml.OptionNoComment,
		},
		{
			Want: strings.Join([]string{
				`<?xml version="1.0" encoding="UTF-8"?>`,
				`<test:root id="1" xmlns:test="urn:test">`,
				`  <test:a attr="text">text</test:a>`,
				`  <test:a attr="self"/>`,
				`  <!--note-->`,
				`</test:root>`,
				``,
			}, "\n"),
		},
	}

	for _, d := range data {
		var (
			buf strings.Builder
			ws  = xml.NewWriter(&buf)
		)
		ws.WriterOptions = d.Options
		if err := ws.Write(doc); err != nil {
			t.Fatalf("error writing document: %s", err)
		}
		got := buf.String()
		if got != d.Want {
			t.Errorf("result mismatched")
			t.Logf("want: %s", d.Want)
			t.Logf("got : %s", got)
		}
	}
}

func TestWriterEscape(t *testing.T) {
	root := xml.NewElement(xml.LocalName("root"))
	root.SetAttribute(xml.NewAttribute(xml.LocalName("q"), `a "b" & 'c'`))
	root.Append(xml.NewText("1 < 2 & 3 > 2"))

	want := `<root q="a &quot;b&quot; &amp; &apos;c&apos;">1 &lt; 2 &amp; 3 &gt; 2</root>`
	if got := xml.WriteNode(root); got != want {
		t.Errorf("escaping mismatched! want %s, got %s", want, got)
	}
}

func TestWriterHTML(t *testing.T) {
	root := xml.NewElement(xml.LocalName("div"))
	root.Append(xml.NewElement(xml.LocalName("br")))
	root.Append(xml.NewElement(xml.LocalName("span")))

	var (
		buf strings.Builder
		ws  = xml.NewWriter(&buf)
	)
	ws.WriterOptions = xml.OptionCompact | xml.OptionHTML
	if err := ws.Write(xml.NewDocument(root)); err != nil {
		t.Fatalf("error writing document: %s", err)
	}
	want := `<div><br/><span></span></div>`
	if got := buf.String(); got != want {
		t.Errorf("html output mismatched! want %s, got %s", want, got)
	}
}

func TestStreamWriter(t *testing.T) {
	const str = `<root><item id="1">a &amp; b</item><empty/><!--c--><?go run?></root>`

	var buf strings.Builder
	ws := xml.Stream(&buf)
	ws.NoProlog = true
	if err := xml.NewReader(strings.NewReader(str)).Emit(ws); err != nil {
		t.Fatalf("fail to stream document: %s", err)
	}
	if got := buf.String(); got != str {
		t.Errorf("streamed document mismatched! want %s, got %s", str, got)
	}
}

func TestStreamWriterUnbalanced(t *testing.T) {
	var buf strings.Builder
	ws := xml.Stream(&buf)
	ws.StartDocument()
	ws.StartElement(xml.E{QName: xml.LocalName("root")})
	if err := ws.EndElement(xml.E{QName: xml.LocalName("other")}); err == nil {
		t.Errorf("closing unknown element should fail")
	}
	if err := ws.EndDocument(); err == nil {
		t.Errorf("ending document with open element should fail")
	}
}

func parseDocument(doc string) (*xml.Document, error) {
	return xml.NewParser(strings.NewReader(doc)).Parse()
}
