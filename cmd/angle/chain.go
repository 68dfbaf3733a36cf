package main

import (
	"context"
	"errors"
	"flag"

	"github.com/midbel/cli"

	"github.com/midbel/angle/resource"
	"github.com/midbel/angle/transform"
)

var chainCmd = cli.Command{
	Name:    "chain",
	Summary: "apply several transform sheets to a xml document in a single pass",
	Help:    "chain [-o file] [-p name=value...] [-sequential] <document> <sheet> <sheet...>",
	Handler: &ChainCmd{},
}

type ChainCmd struct {
	Sequential bool
	Params     paramsFlag
	OutputOptions
}

func (c *ChainCmd) Run(args []string) error {
	c.Params = make(paramsFlag)

	set := flag.NewFlagSet("chain", flag.ContinueOnError)
	set.StringVar(&c.File, "o", "", "write result to file")
	set.BoolVar(&c.Indent, "indent", false, "indent result")
	set.BoolVar(&c.OmitDecl, "omit-decl", false, "omit xml declaration")
	set.BoolVar(&c.Sequential, "sequential", false, "serialize the result of each stage before the next one")
	set.Var(c.Params, "p", "parameter given to every stage (name=value)")
	if err := set.Parse(args); err != nil {
		return err
	}
	if set.NArg() < 2 {
		return errors.New("chain: document and at least one sheet are required")
	}
	ctx := context.Background()

	doc, err := fetch(ctx, set.Arg(0))
	if err != nil {
		return err
	}
	opts := pipelineOptions(transform.WithResolver(transform.NewResolver(ctx, nil)))
	last, err := c.stages(ctx, doc, set.Args()[1:], fetch, opts)
	if err != nil {
		return err
	}
	defer last.Release()

	last.SetOutputOptions(c.Options())
	return execute(ctx, last, c.File)
}

type fetchFunc func(context.Context, string) (resource.Representation, error)

// stages creates a pipeline per sheet, each one reading the result of the
// previous one, and returns the last. doc is released when a sheet can not
// be fetched.
func (c *ChainCmd) stages(ctx context.Context, doc resource.Representation, files []string, get fetchFunc, opts []transform.Option) (*transform.Pipeline, error) {
	var last *transform.Pipeline
	for i, file := range files {
		sheet, err := get(ctx, file)
		if err != nil {
			if last != nil {
				last.Release()
			} else {
				doc.Release()
			}
			return nil, err
		}
		var source transform.Source
		switch {
		case i == 0:
			source = transform.Document(doc)
		case c.Sequential:
			source = transform.Document(last)
		default:
			source = transform.Chain(last)
		}
		last = transform.New(source, sheet, opts...)
		last.SetParameters(c.Params)
		last.SetIdentifier(doc.Identifier())
	}
	if last == nil {
		doc.Release()
		return nil, errors.New("chain: no sheet given")
	}
	return last, nil
}
