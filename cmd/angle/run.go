package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/midbel/cli"

	"github.com/midbel/angle/plan"
	"github.com/midbel/angle/transform"
)

var runCmd = cli.Command{
	Name:    "run",
	Summary: "execute the pipeline described in a plan file",
	Help:    "run [-o file] [-progress] <plan.yml>",
	Handler: &RunCmd{},
}

type RunCmd struct {
	File     string
	Progress bool
}

func (c *RunCmd) Run(args []string) error {
	set := flag.NewFlagSet("run", flag.ContinueOnError)
	set.StringVar(&c.File, "o", "", "write result to file (override plan output)")
	set.BoolVar(&c.Progress, "progress", false, "show progress while compiling sheets")
	if err := set.Parse(args); err != nil {
		return err
	}
	if set.NArg() != 1 {
		return errors.New("run: plan file is required")
	}
	p, err := plan.Load(set.Arg(0))
	if err != nil {
		return err
	}
	logger := createLogger(globals.Verbose, p.Log.Level)

	var (
		ctx = context.Background()
		reg = transform.NewRegistry()
	)
	reg.Metrics = globals.metrics

	compile := func() error {
		return p.Compile(ctx, reg)
	}
	if c.Progress {
		spin := NewSpinner()
		spin.SetMessage(fmt.Sprintf("compiling %d stage(s)", len(p.Stages)))
		err = spin.Run(compile)
	} else {
		err = compile()
	}
	if err != nil {
		return err
	}
	logger.Debug("plan compiled", "plan", p.Name, "programs", reg.Len(), "streaming", p.Streaming)

	pipe, err := p.Build(ctx, transform.WithLogger(logger), transform.WithMetrics(globals.metrics), transform.WithRegistry(reg))
	if err != nil {
		return err
	}
	defer pipe.Release()

	file := p.Output
	if c.File != "" {
		file = c.File
	}
	return execute(ctx, pipe, file)
}
