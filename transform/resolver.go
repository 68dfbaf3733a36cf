package transform

import (
	"context"

	"github.com/midbel/angle/resource"
	"github.com/midbel/angle/xslt"
)

// ContextResolver resolves references with a dispatcher. Context is given to
// every request of the dispatcher.
type ContextResolver struct {
	Dispatcher resource.Dispatcher
	Context    context.Context
}

// NewResolver returns a resolver fetching documents through d.
func NewResolver(ctx context.Context, d resource.Dispatcher) ContextResolver {
	if d == nil {
		d = resource.DefaultDispatcher()
	}
	return ContextResolver{
		Dispatcher: d,
		Context:    ctx,
	}
}

func (r ContextResolver) Resolve(href, base string) (*xslt.Source, error) {
	ctx := r.Context
	if ctx == nil {
		ctx = context.Background()
	}
	uri := xslt.ResolveURI(href, base)
	rep, err := r.Dispatcher.Get(ctx, uri)
	if err != nil {
		return nil, err
	}
	rc, err := rep.Stream()
	if err != nil {
		return nil, err
	}
	if id := rep.Identifier(); id != "" {
		uri = id
	}
	return xslt.NewSource(rc, uri), nil
}
