package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/log"

	"github.com/midbel/angle/resource"
	"github.com/midbel/angle/transform"
	"github.com/midbel/angle/xml"
)

var (
	styleError = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	styleKind  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	styleDim   = lipgloss.NewStyle().Faint(true)
	styleOk    = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
)

// createLogger returns a logger writing to stderr. level is the name of a
// log level and is ignored in verbose mode.
func createLogger(verbose bool, level string) *slog.Logger {
	lvl := log.InfoLevel
	if verbose {
		lvl = log.DebugLevel
	} else if level != "" {
		if l, err := log.ParseLevel(level); err == nil {
			lvl = l
		}
	}
	handler := log.NewWithOptions(os.Stderr, log.Options{
		Level:           lvl,
		ReportTimestamp: verbose,
		Prefix:          "angle",
	})
	return slog.New(handler)
}

func printError(err error) {
	kind := errorKind(err)
	lipgloss.Fprintln(os.Stderr, styleError.Render("error")+" "+styleKind.Render(kind)+" "+err.Error())
}

func printSummary(what string, args ...any) {
	lipgloss.Fprintln(os.Stderr, styleOk.Render("✔")+" "+styleDim.Render(fmt.Sprintf(what, args...)))
}

func errorKind(err error) string {
	var (
		ce  transform.CompileError
		re  transform.ResolveError
		ch  transform.ChainError
		te  transform.TransformError
		ioe transform.IOError
		pe  xml.ParseError
	)
	switch {
	case errors.As(err, &ch):
		return "[chain]"
	case errors.As(err, &re):
		return "[resolve]"
	case errors.As(err, &ce):
		return "[compile]"
	case errors.As(err, &te):
		return "[transform]"
	case errors.As(err, &ioe):
		return "[io]"
	case errors.As(err, &pe):
		return "[parse]"
	default:
		return "[angle]"
	}
}

// fetch returns the representation of uri. uri can be a path or an url.
func fetch(ctx context.Context, uri string) (resource.Representation, error) {
	if uri == "" || uri == "-" {
		return resource.Reader(os.Stdin, ""), nil
	}
	return resource.DefaultDispatcher().Get(ctx, uri)
}

func parseDocument(ctx context.Context, uri string) (*xml.Document, error) {
	rep, err := fetch(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer rep.Release()

	rc, err := rep.Stream()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	doc, err := xml.ParseReader(rc)
	if err != nil {
		return nil, err
	}
	doc.Uri = rep.Identifier()
	return doc, nil
}

// parseParams reads parameters given as name=value.
func parseParams(args []string) (map[string]any, error) {
	params := make(map[string]any)
	for _, a := range args {
		name, value, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%s: parameter should be written as name=value", a)
		}
		params[name] = value
	}
	return params, nil
}

type paramsFlag map[string]any

func (p paramsFlag) String() string {
	var parts []string
	for k, v := range p {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, ",")
}

func (p paramsFlag) Set(str string) error {
	params, err := parseParams([]string{str})
	if err != nil {
		return err
	}
	for k, v := range params {
		p[k] = v
	}
	return nil
}

type OutputOptions struct {
	File     string
	Indent   bool
	OmitDecl bool
	Method   string
}

func (o OutputOptions) Options() map[string]string {
	options := make(map[string]string)
	if o.Indent {
		options["indent"] = "yes"
	}
	if o.OmitDecl {
		options["omit-xml-declaration"] = "yes"
	}
	if o.Method != "" {
		options["method"] = o.Method
	}
	return options
}

func createOutput(file string) (io.WriteCloser, error) {
	if file == "" || file == "-" {
		return nopCloser{Writer: os.Stdout}, nil
	}
	return os.Create(file)
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error {
	return nil
}

func pipelineOptions(extra ...transform.Option) []transform.Option {
	opts := []transform.Option{
		transform.WithLogger(globals.logger),
		transform.WithMetrics(globals.metrics),
	}
	return append(opts, extra...)
}
