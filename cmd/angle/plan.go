package main

import (
	"errors"
	"os"

	"github.com/midbel/cli"

	"github.com/midbel/angle/plan"
)

var planShowCmd = cli.Command{
	Name:    "show",
	Summary: "print a plan after the environment and the defaults are applied",
	Help:    "plan show <plan.yml>",
	Handler: &PlanShowCmd{},
}

type PlanShowCmd struct{}

func (c *PlanShowCmd) Run(args []string) error {
	set := cli.NewFlagSet("plan show")
	if err := set.Parse(args); err != nil {
		return err
	}
	files := set.Args()
	if len(files) != 1 {
		return errors.New("plan show: plan file is required")
	}
	p, err := plan.Load(files[0])
	if err != nil {
		return err
	}
	return p.Render(os.Stdout)
}
