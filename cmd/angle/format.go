package main

import (
	"context"
	"flag"

	"github.com/midbel/cli"

	"github.com/midbel/angle/xml"
)

var formatCmd = cli.Command{
	Name:    "format",
	Alias:   []string{"fmt"},
	Summary: "pretty print a xml document",
	Help:    "format [-o file] [-compact] [-no-namespace] [-no-prolog] [-no-comment] <document>",
	Handler: &FormatCmd{},
}

type FormatCmd struct {
	File        string
	NoNamespace bool
	NoProlog    bool
	NoComment   bool
	Compact     bool
	Indent      string
}

func (f *FormatCmd) Run(args []string) error {
	set := flag.NewFlagSet("format", flag.ContinueOnError)
	set.BoolVar(&f.NoNamespace, "no-namespace", false, "don't write xml namespace into the output document")
	set.BoolVar(&f.NoProlog, "no-prolog", false, "don't write the xml prolog into the output document")
	set.BoolVar(&f.NoComment, "no-comment", false, "dont't write the comment present in the input document")
	set.BoolVar(&f.Compact, "compact", false, "write compact output")
	set.StringVar(&f.Indent, "indent", "  ", "indentation string")
	set.StringVar(&f.File, "o", "", "specify the path to the file where the document will be written")
	if err := set.Parse(args); err != nil {
		return err
	}
	doc, err := parseDocument(context.Background(), set.Arg(0))
	if err != nil {
		return err
	}
	w, err := createOutput(f.File)
	if err != nil {
		return err
	}
	defer w.Close()

	ws := xml.NewWriter(w)
	ws.Indent = f.Indent
	if f.NoNamespace {
		ws.WriterOptions |= xml.OptionNoNamespace
	}
	if f.NoComment {
		ws.WriterOptions |= xml.OptionNoComment
	}
	if f.NoProlog {
		ws.WriterOptions |= xml.OptionNoProlog
	}
	if f.Compact {
		ws.WriterOptions |= xml.OptionCompact
	}
	return ws.Write(doc)
}
