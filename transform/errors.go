package transform

import (
	"errors"
	"fmt"

	"github.com/midbel/angle/xml"
	"github.com/midbel/angle/xpath"
	"github.com/midbel/angle/xslt"
)

var (
	ErrReleased = errors.New("pipeline released")
	ErrCycle    = errors.New("cycle detected in transformation chain")
	ErrSource   = errors.New("invalid source")
)

// CompileError reports a transform sheet that can not be read or compiled.
type CompileError struct {
	Sheet string
	Err   error
}

func (e CompileError) Error() string {
	if e.Sheet == "" {
		return fmt.Sprintf("compile: %s", e.Err)
	}
	return fmt.Sprintf("compile %s: %s", e.Sheet, e.Err)
}

func (e CompileError) Unwrap() error {
	return e.Err
}

// ResolveError reports a document referenced by a transform sheet that could
// not be fetched. The operation can be retried.
type ResolveError struct {
	Href string
	Base string
	Err  error
}

func (e ResolveError) Error() string {
	if e.Base == "" {
		return fmt.Sprintf("resolve %s: %s", e.Href, e.Err)
	}
	return fmt.Sprintf("resolve %s (from %s): %s", e.Href, e.Base, e.Err)
}

func (e ResolveError) Unwrap() error {
	return e.Err
}

func (e ResolveError) Temporary() bool {
	return true
}

// ChainError reports a failure while assembling a chain of pipelines. Depth
// is the distance between the executed pipeline and the failing one.
type ChainError struct {
	Depth int
	Err   error
}

func (e ChainError) Error() string {
	return fmt.Sprintf("chain (depth %d): %s", e.Depth, e.Err)
}

func (e ChainError) Unwrap() error {
	return e.Err
}

// TransformError reports a failure of the transformation itself.
type TransformError struct {
	Err error
}

func (e TransformError) Error() string {
	return fmt.Sprintf("transform: %s", e.Err)
}

func (e TransformError) Unwrap() error {
	return e.Err
}

// IOError reports a failure of the source or of the sink.
type IOError struct {
	Op  string
	Err error
}

func (e IOError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e IOError) Unwrap() error {
	return e.Err
}

func compileError(sheet string, err error) error {
	var re xslt.ResolveError
	if errors.As(err, &re) {
		err = ResolveError{
			Href: re.Href,
			Base: re.Base,
			Err:  re.Err,
		}
	}
	return CompileError{
		Sheet: sheet,
		Err:   err,
	}
}

// classify wraps err in the error type matching its cause. Errors already
// classified are returned as is.
func classify(err error) error {
	if err == nil || isClassified(err) {
		return err
	}
	var re xslt.ResolveError
	switch {
	case errors.As(err, &re):
		return ResolveError{
			Href: re.Href,
			Base: re.Base,
			Err:  re.Err,
		}
	case errors.Is(err, ErrReleased), errors.Is(err, ErrSource):
		return err
	default:
		return TransformError{Err: err}
	}
}

func isClassified(err error) bool {
	var (
		ce  CompileError
		re  ResolveError
		ch  ChainError
		te  TransformError
		ioe IOError
	)
	return errors.As(err, &ce) || errors.As(err, &re) || errors.As(err, &ch) ||
		errors.As(err, &te) || errors.As(err, &ioe)
}

// statusOf returns the label used to report the outcome of an operation.
func statusOf(err error) string {
	var (
		ce  CompileError
		re  ResolveError
		ch  ChainError
		ioe IOError
		pe  xml.ParseError
		se  xpath.SyntaxError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ch):
		return "chain"
	case errors.As(err, &re):
		return "resolve"
	case errors.As(err, &se):
		return "syntax"
	case errors.As(err, &ce):
		return "compile"
	case errors.As(err, &ioe):
		return "io"
	case errors.As(err, &pe):
		return "parse"
	default:
		return "transform"
	}
}
