package environ

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

var (
	ErrUndefined = errors.New("undefined identifier")
	ErrDefined   = errors.New("identifier already defined in scope")
)

// Environ is a chain of scopes. Lookups walk from the innermost scope to the
// outermost one.
type Environ[T any] interface {
	Resolve(string) (T, error)
	Define(string, T)
	Names() []string
	Len() int
}

type Env[T any] struct {
	values map[string]T
	parent Environ[T]
}

func Empty[T any]() Environ[T] {
	return Enclosed[T](nil)
}

func Enclosed[T any](parent Environ[T]) Environ[T] {
	e := Env[T]{
		values: make(map[string]T),
		parent: parent,
	}
	return &e
}

// From builds a single scope from the given values.
func From[T any](values map[string]T) Environ[T] {
	e := Env[T]{
		values: maps.Clone(values),
	}
	if e.values == nil {
		e.values = make(map[string]T)
	}
	return &e
}

func (e *Env[T]) Len() int {
	return len(e.values)
}

func (e *Env[T]) Names() []string {
	names := slices.Collect(maps.Keys(e.values))
	slices.Sort(names)
	return names
}

func (e *Env[T]) Define(ident string, value T) {
	e.values[ident] = value
}

// DefineOnce fails when ident already exists in the innermost scope.
func (e *Env[T]) DefineOnce(ident string, value T) error {
	if _, ok := e.values[ident]; ok {
		return fmt.Errorf("%s: %w", ident, ErrDefined)
	}
	e.values[ident] = value
	return nil
}

func (e *Env[T]) Resolve(ident string) (T, error) {
	value, ok := e.values[ident]
	if ok {
		return value, nil
	}
	if e.parent != nil {
		return e.parent.Resolve(ident)
	}
	var t T
	return t, fmt.Errorf("%s: %w", ident, ErrUndefined)
}

func (e *Env[T]) Unwrap() Environ[T] {
	if e.parent == nil {
		return e
	}
	return e.parent
}

func (e *Env[T]) Clone() Environ[T] {
	var x Env[T]
	x.values = maps.Clone(e.values)
	if c, ok := e.parent.(interface{ Clone() Environ[T] }); ok {
		x.parent = c.Clone()
	}
	return &x
}
