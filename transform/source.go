package transform

import (
	"github.com/midbel/angle/resource"
)

type sourceKind int8

const (
	kindInvalid sourceKind = iota
	kindDocument
	kindChain
)

// Source is the input of a pipeline: either a document or the result of
// another pipeline. The zero value is not a valid source.
type Source struct {
	kind     sourceKind
	doc      resource.Representation
	pipeline *Pipeline
}

// Document returns a source reading rep.
func Document(rep resource.Representation) Source {
	if rep == nil {
		return Source{}
	}
	return Source{
		kind: kindDocument,
		doc:  rep,
	}
}

// Chain returns a source made of the result of p. Executing a pipeline whose
// source is a chain streams the root document through every stage in one
// pass.
func Chain(p *Pipeline) Source {
	if p == nil {
		return Source{}
	}
	return Source{
		kind:     kindChain,
		pipeline: p,
	}
}

func (s Source) Valid() bool {
	return s.kind != kindInvalid
}

func (s Source) Chained() bool {
	return s.kind == kindChain
}

func (s Source) release() error {
	switch s.kind {
	case kindDocument:
		return s.doc.Release()
	case kindChain:
		return s.pipeline.Release()
	case kindInvalid:
		return nil
	}
	return nil
}
