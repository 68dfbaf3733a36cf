package xslt

import (
	"fmt"

	"github.com/midbel/angle/xml"
	"github.com/midbel/angle/xpath"
)

func callSystemProperty(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	if len(args) != 1 {
		return nil, xpath.ErrArgument
	}
	list, err := xpath.Evaluate(ctx, args)
	if err != nil {
		return nil, err
	}
	var str string
	switch prop := list[0].String(); prop {
	case "xsl:version":
		return xpath.Singleton(1.0), nil
	case "xsl:vendor":
		str = XslVendor
	case "xsl:vendor-url":
		str = XslVendorUrl
	default:
	}
	return xpath.Singleton(str), nil
}

// documentLoader loads the documents requested by document(). Documents are
// cached by uri for the lifetime of a transformer.
type documentLoader struct {
	sheet    *Stylesheet
	resolver Resolver
	docs     map[string]*xml.Document
}

func (d *documentLoader) callDocument(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, xpath.ErrArgument
	}
	list, err := xpath.Evaluate(ctx, args)
	if err != nil {
		return nil, err
	}
	base := d.sheet.Uri
	if len(list) == 2 {
		if !list[1].Nodes() || list[1].Empty() {
			return nil, fmt.Errorf("%w: node-set expected as second argument", xpath.ErrType)
		}
		base = documentUri(list[1][0].Node(), base)
	}
	var seq xpath.Sequence
	if !list[0].Nodes() {
		doc, err := d.load(list[0].String(), base)
		if err != nil {
			return nil, err
		}
		seq.Append(xpath.NewNodeItem(doc))
		return seq, nil
	}
	for _, i := range list[0] {
		href := i.Node().Value()
		if len(list) == 1 {
			base = documentUri(i.Node(), d.sheet.Uri)
		}
		doc, err := d.load(href, base)
		if err != nil {
			return nil, err
		}
		seq.Append(xpath.NewNodeItem(doc))
	}
	return seq.Unique(), nil
}

func (d *documentLoader) load(href, base string) (*xml.Document, error) {
	if href == "" {
		return d.sheet.doc, nil
	}
	uri := ResolveURI(href, base)
	if doc, ok := d.docs[uri]; ok {
		return doc, nil
	}
	src, err := d.resolver.Resolve(href, base)
	if err != nil {
		return nil, ResolveError{
			Href: href,
			Base: base,
			Err:  err,
		}
	}
	defer src.Close()

	doc, err := xml.NewParser(src).Parse()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", uri, err)
	}
	if doc.Uri = src.Uri; doc.Uri == "" {
		doc.Uri = uri
	}
	d.docs[uri] = doc
	return doc, nil
}

func documentUri(node xml.Node, def string) string {
	if doc, ok := xml.Root(node).(*xml.Document); ok && doc.Uri != "" {
		return doc.Uri
	}
	return def
}
