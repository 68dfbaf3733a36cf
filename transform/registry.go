package transform

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/midbel/angle/resource"
)

// Registry shares compiled programs between pipelines. Programs are keyed by
// the identifier of their sheet and by the resolver used to compile it. Each
// sheet is compiled once even when requested by several goroutines at the
// same time. Failures are not kept.
type Registry struct {
	group singleflight.Group

	mu       sync.RWMutex
	programs map[string]entry
	scopes   map[any]int

	Metrics *Metrics
}

type entry struct {
	uri     string
	program *Program
}

func NewRegistry() *Registry {
	return &Registry{
		programs: make(map[string]entry),
		scopes:   make(map[any]int),
	}
}

// Program returns the program compiled from sheet. Sheets without
// identifier, or resolved by a resolver that can not be compared, are
// compiled every time.
func (r *Registry) Program(ctx context.Context, sheet resource.Representation, resolver Resolver) (*Program, error) {
	return r.program(ctx, sheet, resolver, nil)
}

// program is Program reporting the compilation it triggers to m as well.
func (r *Registry) program(ctx context.Context, sheet resource.Representation, resolver Resolver, m *Metrics) (*Program, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	uri := sheet.Identifier()
	key, ok := r.key(uri, resolver)
	if !ok {
		return r.compile(sheet, resolver, m)
	}
	r.mu.RLock()
	e, ok := r.programs[key]
	r.mu.RUnlock()
	if ok {
		return e.program, nil
	}
	v, err, _ := r.group.Do(key, func() (any, error) {
		r.mu.RLock()
		e, ok := r.programs[key]
		r.mu.RUnlock()
		if ok {
			return e.program, nil
		}
		prog, err := r.compile(sheet, resolver, m)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.programs[key] = entry{
			uri:     uri,
			program: prog,
		}
		r.mu.Unlock()
		return prog, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Program), nil
}

func (r *Registry) compile(sheet resource.Representation, resolver Resolver, m *Metrics) (*Program, error) {
	prog, err := Compile(sheet, resolver)
	r.Metrics.recordCompilation(err)
	if m != r.Metrics {
		m.recordCompilation(err)
	}
	return prog, err
}

func (r *Registry) key(uri string, resolver Resolver) (string, bool) {
	if uri == "" {
		return "", false
	}
	scope, ok := resolverScope(resolver)
	if !ok {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.scopes[scope]
	if !ok {
		id = len(r.scopes)
		r.scopes[scope] = id
	}
	return fmt.Sprintf("%d:%s", id, uri), true
}

// resolverScope returns the value identifying the documents reachable
// through resolver. A ContextResolver is identified by its dispatcher only.
func resolverScope(resolver Resolver) (any, bool) {
	var scope any = resolver
	if cr, ok := resolver.(ContextResolver); ok {
		scope = cr.Dispatcher
	}
	if scope == nil {
		return nil, true
	}
	if !reflect.ValueOf(scope).Comparable() {
		return nil, false
	}
	return scope, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.programs)
}

// Forget drops the programs compiled for uri, whatever their resolver.
func (r *Registry) Forget(uri string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, e := range r.programs {
		if e.uri == uri {
			delete(r.programs, key)
		}
	}
	for _, id := range r.scopes {
		r.group.Forget(fmt.Sprintf("%d:%s", id, uri))
	}
}
