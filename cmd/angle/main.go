package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/midbel/cli"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/midbel/angle/transform"
)

var errFail = errors.New("fail")

var (
	summary = "angle applies xslt transformations to xml documents"
	help    = `angle transforms xml documents with xslt transform sheets.

Several transform sheets can be chained: the document is then streamed
through every stage in a single pass. Pipelines can also be described in a
plan file (yaml) and executed with the run command.`
)

var globals struct {
	Verbose bool
	Metrics string

	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *transform.Metrics
}

func main() {
	set := flag.NewFlagSet("angle", flag.ContinueOnError)
	set.BoolVar(&globals.Verbose, "v", false, "verbose output")
	set.StringVar(&globals.Metrics, "metrics", "", "expose prometheus metrics on the given address while running")

	root := prepare()
	root.SetSummary(summary)
	root.SetHelp(help)
	if err := set.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			root.Help()
			os.Exit(2)
		}
		os.Exit(1)
	}
	setup()

	err := root.Execute(set.Args())
	if err != nil {
		if s, ok := err.(cli.SuggestionError); ok && len(s.Others) > 0 {
			fmt.Fprintln(os.Stderr, "similar command(s)")
			for _, n := range s.Others {
				fmt.Fprintln(os.Stderr, "-", n)
			}
		}
		if !errors.Is(err, errFail) {
			printError(err)
		}
		os.Exit(1)
	}
}

func setup() {
	globals.logger = createLogger(globals.Verbose, "")
	slog.SetDefault(globals.logger)

	globals.registry = prometheus.NewRegistry()
	globals.metrics = transform.NewMetrics(globals.registry)
	if globals.Metrics == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(globals.registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(globals.Metrics, mux); err != nil {
			globals.logger.Error("metrics server stopped", "addr", globals.Metrics, "err", err)
		}
	}()
	globals.logger.Debug("metrics exposed", "addr", globals.Metrics)
}

func prepare() *cli.CommandTrie {
	root := cli.New()
	root.Register([]string{"transform"}, &transformCmd)
	root.Register([]string{"chain"}, &chainCmd)
	root.Register([]string{"run"}, &runCmd)
	root.Register([]string{"plan", "show"}, &planShowCmd)
	root.Register([]string{"query"}, &queryCmd)
	root.Register([]string{"format"}, &formatCmd)
	return root
}
