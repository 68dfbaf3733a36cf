package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const DefaultAccept = "application/xml, text/xml;q=0.9, application/xslt+xml;q=0.9, */*;q=0.1"

// Dispatcher fetches representations by uri.
type Dispatcher interface {
	Get(ctx context.Context, uri string) (Representation, error)
}

type DispatcherFunc func(context.Context, string) (Representation, error)

func (fn DispatcherFunc) Get(ctx context.Context, uri string) (Representation, error) {
	return fn(ctx, uri)
}

// FileDispatcher fetches files from the local file system. Relative paths are
// resolved against Root.
type FileDispatcher struct {
	Root string
}

func (d FileDispatcher) Get(ctx context.Context, uri string) (Representation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := uri
	if u, err := url.Parse(uri); err == nil && u.Scheme == "file" {
		path = u.Path
	}
	if !filepath.IsAbs(path) && d.Root != "" {
		path = filepath.Join(d.Root, path)
	}
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", uri, ErrNotFound)
		}
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s: is a directory", uri)
	}
	return File(path), nil
}

// HTTPDispatcher fetches representations with GET requests. The body of the
// response is read entirely so that the representation can be streamed more
// than once.
type HTTPDispatcher struct {
	Client *http.Client
	Accept string
}

func (d HTTPDispatcher) Get(ctx context.Context, uri string) (Representation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	accept := d.Accept
	if accept == "" {
		accept = DefaultAccept
	}
	req.Header.Set("Accept", accept)

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%s: %w", uri, ErrNotFound)
	case res.StatusCode < 200 || res.StatusCode >= 300:
		return nil, fmt.Errorf("%s: unexpected status %s", uri, res.Status)
	default:
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", uri, err)
	}
	rep := Bytes(body).WithIdentifier(uri)
	if mt, _, err := mime.ParseMediaType(res.Header.Get("Content-Type")); err == nil {
		rep.WithMediaType(mt)
	}
	return rep, nil
}

// Mux selects the dispatcher to use from the scheme of the uri. Uri without
// scheme are handled by the file dispatcher.
type Mux struct {
	mu      sync.RWMutex
	schemes map[string]Dispatcher
}

func NewMux() *Mux {
	return &Mux{
		schemes: make(map[string]Dispatcher),
	}
}

// DefaultDispatcher returns a Mux handling file, http and https uri.
func DefaultDispatcher() *Mux {
	mux := NewMux()
	mux.Handle("file", FileDispatcher{})
	mux.Handle("http", HTTPDispatcher{})
	mux.Handle("https", HTTPDispatcher{})
	return mux
}

func (m *Mux) Handle(scheme string, d Dispatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemes[strings.ToLower(scheme)] = d
}

func (m *Mux) Get(ctx context.Context, uri string) (Representation, error) {
	scheme := schemeOf(uri)

	m.mu.RLock()
	d, ok := m.schemes[scheme]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: no dispatcher for scheme %q", uri, scheme)
	}
	return d.Get(ctx, uri)
}

func schemeOf(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || len(u.Scheme) <= 1 {
		return "file"
	}
	return strings.ToLower(u.Scheme)
}
