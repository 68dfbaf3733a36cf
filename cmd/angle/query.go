package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/midbel/cli"

	"github.com/midbel/angle/xml"
	"github.com/midbel/angle/xpath"
)

var queryCmd = cli.Command{
	Name:    "query",
	Alias:   []string{"exec"},
	Summary: "evaluate a xpath expression against a xml document",
	Help:    "query [-text] [-quiet] [-limit n] [-var name=value...] [-trace] <expr> <document>",
	Handler: &QueryCmd{},
}

type QueryCmd struct {
	Noout bool
	Limit int
	Text  bool
	Trace bool
	Vars  paramsFlag
}

const queryInfo = "query took %s - %d item(s) matching %q"

func (q *QueryCmd) Run(args []string) error {
	q.Vars = make(paramsFlag)

	set := flag.NewFlagSet("query", flag.ContinueOnError)
	set.IntVar(&q.Limit, "limit", 0, "limit number of results printed")
	set.BoolVar(&q.Noout, "quiet", false, "suppress output - default is to print the result nodes")
	set.BoolVar(&q.Text, "text", false, "print only value of node")
	set.BoolVar(&q.Trace, "trace", false, "trace compilation of the expression")
	set.Var(q.Vars, "var", "variable available to the expression (name=value)")
	if err := set.Parse(args); err != nil {
		return err
	}
	if set.NArg() != 2 {
		return errors.New("query: expression and document are required")
	}
	doc, err := parseDocument(context.Background(), set.Arg(1))
	if err != nil {
		return err
	}
	now := time.Now()
	if q.Trace {
		cp := xpath.NewCompiler(strings.NewReader(set.Arg(0)))
		cp.Tracer = xpath.TraceLogger(globals.logger)
		if _, err := cp.Compile(); err != nil {
			return err
		}
	}
	query, err := xpath.Build(set.Arg(0))
	if err != nil {
		return err
	}
	for k, v := range q.Vars {
		query.Define(k, v)
	}
	results, err := query.Find(doc)
	if err != nil {
		return err
	}
	elapsed := time.Since(now)
	if q.Limit > 0 && results.Len() > q.Limit {
		results = results[:q.Limit]
	}
	if !q.Noout {
		printResults(results, q.Text)
	}
	printSummary(queryInfo, elapsed, results.Len(), set.Arg(0))
	if results.Len() == 0 {
		return errFail
	}
	return nil
}

func printResults(results xpath.Sequence, text bool) {
	for _, i := range results {
		if i.Atomic() || text {
			fmt.Fprintln(os.Stdout, atomicString(i))
			continue
		}
		fmt.Fprintln(os.Stdout, xml.WriteNode(i.Node()))
	}
}

func atomicString(i xpath.Item) string {
	if !i.Atomic() {
		return i.Node().Value()
	}
	seq := xpath.Singleton(i)
	return seq.String()
}
