package xslt

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Source is a document returned by a Resolver. Uri identifies the document
// and is used as base for the references it contains.
type Source struct {
	io.ReadCloser
	Uri string
}

func NewSource(r io.Reader, uri string) *Source {
	rc, ok := r.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(r)
	}
	return &Source{
		ReadCloser: rc,
		Uri:        uri,
	}
}

// Resolver fetches the documents referenced by a stylesheet: xsl:include and
// xsl:import at compile time, document() at run time.
type Resolver interface {
	Resolve(href, base string) (*Source, error)
}

type ResolverFunc func(href, base string) (*Source, error)

func (fn ResolverFunc) Resolve(href, base string) (*Source, error) {
	return fn(href, base)
}

type ResolveError struct {
	Href string
	Base string
	Err  error
}

func (e ResolveError) Error() string {
	if e.Base == "" {
		return fmt.Sprintf("%s: fail to resolve: %s", e.Href, e.Err)
	}
	return fmt.Sprintf("%s (from %s): fail to resolve: %s", e.Href, e.Base, e.Err)
}

func (e ResolveError) Unwrap() error {
	return e.Err
}

type fileResolver struct{}

// FileResolver resolves references against the local file system, relative
// to the directory of the referencing document.
func FileResolver() Resolver {
	return fileResolver{}
}

func (fileResolver) Resolve(href, base string) (*Source, error) {
	uri := ResolveURI(href, base)
	if u, err := url.Parse(uri); err == nil && u.Scheme == "file" {
		uri = u.Path
	} else if err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		return nil, fmt.Errorf("%s: scheme not supported", u.Scheme)
	}
	r, err := os.Open(uri)
	if err != nil {
		return nil, err
	}
	return NewSource(r, uri), nil
}

// ResolveURI makes href absolute using base. base can be a file path or an
// url. An empty href refers to base itself.
func ResolveURI(href, base string) string {
	if href == "" {
		return base
	}
	if isAbsURL(href) || base == "" {
		return href
	}
	if isAbsURL(base) {
		b, err := url.Parse(base)
		if err != nil {
			return href
		}
		r, err := url.Parse(href)
		if err != nil {
			return href
		}
		return b.ResolveReference(r).String()
	}
	if filepath.IsAbs(href) {
		return href
	}
	return filepath.Join(filepath.Dir(base), filepath.FromSlash(href))
}

func isAbsURL(str string) bool {
	u, err := url.Parse(str)
	if err != nil {
		return false
	}
	// single letter schemes are windows drive letters
	return len(u.Scheme) > 1 && strings.Contains(str, ":")
}

func getResolver(r Resolver) Resolver {
	if r == nil {
		return FileResolver()
	}
	return r
}
