package main

import (
	"context"
	"errors"
	"flag"
	"time"

	"github.com/midbel/cli"

	"github.com/midbel/angle/transform"
	"github.com/midbel/angle/xslt"
)

var transformCmd = cli.Command{
	Name:    "transform",
	Alias:   []string{"xslt"},
	Summary: "apply a transform sheet to a xml document",
	Help:    "transform [-o file] [-indent] [-omit-decl] [-method xml|text|html] [-trace] <sheet> <document> [name=value...]",
	Handler: &TransformCmd{},
}

type TransformCmd struct {
	Trace bool
	OutputOptions
}

func (c *TransformCmd) Run(args []string) error {
	set := flag.NewFlagSet("transform", flag.ContinueOnError)
	set.StringVar(&c.File, "o", "", "write result to file")
	set.BoolVar(&c.Indent, "indent", false, "indent result")
	set.BoolVar(&c.OmitDecl, "omit-decl", false, "omit xml declaration")
	set.StringVar(&c.Method, "method", "", "output method")
	set.BoolVar(&c.Trace, "trace", false, "trace instructions executed")
	if err := set.Parse(args); err != nil {
		return err
	}
	if set.NArg() < 2 {
		return errors.New("transform: sheet and document are required")
	}
	params, err := parseParams(set.Args()[2:])
	if err != nil {
		return err
	}
	ctx := context.Background()

	sheet, err := fetch(ctx, set.Arg(0))
	if err != nil {
		return err
	}
	doc, err := fetch(ctx, set.Arg(1))
	if err != nil {
		return err
	}
	opts := pipelineOptions(transform.WithResolver(transform.NewResolver(ctx, nil)))
	if c.Trace {
		opts = append(opts, transform.WithInstructionTracer(xslt.TraceLogger(globals.logger)))
	}
	pipe := transform.New(transform.Document(doc), sheet, opts...)
	defer pipe.Release()

	pipe.SetParameters(params)
	pipe.SetOutputOptions(c.Options())
	return execute(ctx, pipe, c.File)
}

func execute(ctx context.Context, pipe *transform.Pipeline, file string) error {
	w, err := createOutput(file)
	if err != nil {
		return err
	}
	defer w.Close()

	now := time.Now()
	if err := pipe.Execute(ctx, w); err != nil {
		return err
	}
	if file != "" && file != "-" {
		printSummary("%s written in %s", file, time.Since(now))
	}
	return nil
}
