package xslt

import (
	"strings"
	"testing"

	"github.com/midbel/angle/xml"
	"github.com/midbel/angle/xpath"
)

const sample = `<?xml version="1.0" encoding="UTF-8"?>

<root>
	<item id="node" lang="en">foobar</item>
</root>
`

func TestMatch(t *testing.T) {
	doc, err := xml.ParseString(sample)
	if err != nil {
		t.Fatalf("fail to parse sample xml document: %s", err)
	}
	var (
		root = xml.NewElement(xml.LocalName("root"))
		foo  = xml.NewElement(xml.LocalName("foo"))
		bar  = xml.NewElement(xml.LocalName("bar"))
		txt  = xml.NewText("foobar")
	)
	bar.SetAttribute(xml.NewAttribute(xml.LocalName("id"), "node"))
	bar.Append(txt)
	foo.Append(bar)
	root.Append(foo)

	attr := &bar.Attrs[0]
	tests := []struct {
		Pattern string
		Want    bool
		xml.Node
	}{
		{
			Pattern: "/",
			Want:    true,
			Node:    doc,
		},
		{
			Pattern: "root",
			Want:    true,
			Node:    doc.Root(),
		},
		{
			Pattern: "foo/bar",
			Want:    true,
			Node:    bar,
		},
		{
			Pattern: "root",
			Want:    false,
			Node:    foo,
		},
		{
			Pattern: "@id",
			Want:    true,
			Node:    attr,
		},
		{
			Pattern: "@*",
			Want:    true,
			Node:    attr,
		},
		{
			Pattern: "@lang",
			Want:    false,
			Node:    attr,
		},
		{
			Pattern: "text()",
			Want:    true,
			Node:    txt,
		},
		{
			Pattern: "text()",
			Want:    false,
			Node:    attr,
		},
		{
			Pattern: "text()",
			Want:    false,
			Node:    doc.Root(),
		},
		{
			Pattern: "foo | bar",
			Want:    true,
			Node:    foo,
		},
		{
			Pattern: "foo | bar",
			Want:    true,
			Node:    bar,
		},
		{
			Pattern: "foo | bar",
			Want:    false,
			Node:    doc,
		},
		{
			Pattern: "*",
			Want:    false,
			Node:    doc,
		},
		{
			Pattern: "*",
			Want:    true,
			Node:    doc.Root(),
		},
		{
			Pattern: "node()",
			Want:    true,
			Node:    doc.Root(),
		},
		{
			Pattern: "item[@lang='en']",
			Want:    true,
			Node:    xml.Children(doc.Root())[0],
		},
		{
			Pattern: "item[@lang='fr']",
			Want:    false,
			Node:    xml.Children(doc.Root())[0],
		},
	}
	for _, c := range tests {
		expr, err := xpath.CompileString(c.Pattern)
		if err != nil {
			t.Errorf("%s: fail to compile pattern: %s", c.Pattern, err)
			continue
		}
		var got bool
		for _, alt := range xpath.Alternatives(expr) {
			p := pattern{
				Expr: alt,
			}
			if p.Match(c.Node) {
				got = true
				break
			}
		}
		if c.Want != got {
			t.Errorf("%s: result mismatched!!! want %t, got %t", c.Pattern, c.Want, got)
		}
	}
}

func TestMatchTemplate(t *testing.T) {
	const sheet = `<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
	<xsl:template match="*">any</xsl:template>
	<xsl:template match="item">item</xsl:template>
	<xsl:template match="root/item">path</xsl:template>
	<xsl:template match="item" priority="-1">low</xsl:template>
	<xsl:template match="item" mode="alt">alt</xsl:template>
	<xsl:template match="text()">text</xsl:template>
</xsl:stylesheet>`

	style, err := Compile(strings.NewReader(sheet), "", nil)
	if err != nil {
		t.Fatalf("fail to compile stylesheet: %s", err)
	}
	doc, err := xml.ParseString(sample)
	if err != nil {
		t.Fatalf("fail to parse sample xml document: %s", err)
	}
	var (
		root = doc.Root()
		item = xml.Children(root)[0]
		text = xml.Children(item)[0]
	)
	tests := []struct {
		Name string
		Mode string
		Want string
		xml.Node
	}{
		{
			Name: "wildcard",
			Node: root,
			Want: "any",
		},
		{
			Name: "path",
			Node: item,
			Want: "path",
		},
		{
			Name: "mode",
			Node: item,
			Mode: "alt",
			Want: "alt",
		},
		{
			Name: "text",
			Node: text,
			Want: "text",
		},
	}
	for _, c := range tests {
		t.Run(c.Name, func(t *testing.T) {
			tpl := style.matchTemplate(c.Node, c.Mode)
			if tpl == nil {
				t.Fatalf("no template found")
			}
			got := tpl.Nodes[0].Value()
			if got != c.Want {
				t.Errorf("template mismatched! want %s, got %s", c.Want, got)
			}
		})
	}
	if tpl := style.matchTemplate(doc, ""); tpl != nil {
		t.Errorf("document should be handled by the built-in rule")
	}
}

func TestTemplatePriority(t *testing.T) {
	tests := []struct {
		Pattern  string
		Priority float64
	}{
		{
			Pattern:  "item",
			Priority: 0,
		},
		{
			Pattern:  "*",
			Priority: -0.25,
		},
		{
			Pattern:  "node()",
			Priority: -0.5,
		},
		{
			Pattern:  "root/item",
			Priority: 0.5,
		},
		{
			Pattern:  "item[1]",
			Priority: 0.5,
		},
	}
	for _, c := range tests {
		expr, err := xpath.CompileString(c.Pattern)
		if err != nil {
			t.Errorf("%s: fail to compile pattern: %s", c.Pattern, err)
			continue
		}
		got := xpath.DefaultPriority(expr)
		if got != c.Priority {
			t.Errorf("%s: priority mismatched! want %.2f, got %.2f", c.Pattern, c.Priority, got)
		}
	}
}

func TestIterAVT(t *testing.T) {
	tests := []struct {
		Input string
		Parts []string
		Exprs []bool
	}{
		{
			Input: "literal",
			Parts: []string{"literal"},
			Exprs: []bool{false},
		},
		{
			Input: "{@id}",
			Parts: []string{"@id"},
			Exprs: []bool{true},
		},
		{
			Input: "item-{@id}.xml",
			Parts: []string{"item-", "@id", ".xml"},
			Exprs: []bool{false, true, false},
		},
		{
			Input: "{{literal}}",
			Parts: []string{"{literal}"},
			Exprs: []bool{false},
		},
		{
			Input: "{a}{b}",
			Parts: []string{"a", "b"},
			Exprs: []bool{true, true},
		},
	}
	for _, c := range tests {
		var (
			parts []string
			exprs []bool
		)
		for str, ok := range iterAVT(c.Input) {
			parts = append(parts, str)
			exprs = append(exprs, ok)
		}
		if strings.Join(parts, "|") != strings.Join(c.Parts, "|") {
			t.Errorf("%s: parts mismatched! want %q, got %q", c.Input, c.Parts, parts)
			continue
		}
		for i := range exprs {
			if exprs[i] != c.Exprs[i] {
				t.Errorf("%s: kind of part %d mismatched", c.Input, i)
			}
		}
	}
}
