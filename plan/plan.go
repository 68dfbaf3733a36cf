package plan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"golang.org/x/sync/errgroup"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/midbel/angle/resource"
	"github.com/midbel/angle/transform"
)

const (
	SchemaVersion = "v1"
	EnvPrefix     = "ANGLE_"
)

var (
	ErrSchema = errors.New("schema version not supported")
	ErrPlan   = errors.New("invalid plan")
)

type Stage struct {
	Sheet  string            `koanf:"sheet" yaml:"sheet"`
	Params map[string]string `koanf:"params" yaml:"params,omitempty"`
	Output map[string]string `koanf:"output" yaml:"output,omitempty"`
}

type LogConfig struct {
	Level string `koanf:"level" yaml:"level"`
}

// Plan describes a sequence of transformations applied to a source
// document.
type Plan struct {
	SchemaVersion string    `koanf:"schema_version" yaml:"schema_version"`
	Name          string    `koanf:"name" yaml:"name,omitempty"`
	Source        string    `koanf:"source" yaml:"source"`
	Stages        []Stage   `koanf:"stages" yaml:"stages"`
	Streaming     bool      `koanf:"streaming" yaml:"streaming"`
	Output        string    `koanf:"output" yaml:"output,omitempty"`
	Log           LogConfig `koanf:"log" yaml:"log"`

	dispatcher resource.Dispatcher
}

// Load reads the plan in file and merges the ANGLE_ environment variables
// into it (ANGLE_LOG__LEVEL overrides log.level). Relative paths are
// resolved against the directory of file.
func Load(path string) (*Plan, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, err
	}
	if sv := k.String("schema_version"); sv != "" && sv != SchemaVersion {
		return nil, fmt.Errorf("%q: %w (want %s)", sv, ErrSchema, SchemaVersion)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	var p Plan
	if err := k.Unmarshal("", &p); err != nil {
		return nil, err
	}
	if !k.Exists("streaming") {
		p.Streaming = true
	}
	applyDefaults(&p)
	if err := p.validate(); err != nil {
		return nil, err
	}
	p.resolvePaths(filepath.Dir(path))
	return &p, nil
}

func envKey(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

func applyDefaults(p *Plan) {
	if p.SchemaVersion == "" {
		p.SchemaVersion = SchemaVersion
	}
	if p.Log.Level == "" {
		p.Log.Level = "info"
	}
}

func (p *Plan) validate() error {
	if p.Source == "" {
		return fmt.Errorf("%w: source is missing", ErrPlan)
	}
	if len(p.Stages) == 0 {
		return fmt.Errorf("%w: no stage defined", ErrPlan)
	}
	for i, s := range p.Stages {
		if s.Sheet == "" {
			return fmt.Errorf("%w: stage %d: sheet is missing", ErrPlan, i+1)
		}
	}
	return nil
}

func (p *Plan) resolvePaths(dir string) {
	p.Source = resolvePath(p.Source, dir)
	if p.Output != "" && p.Output != "-" {
		p.Output = resolvePath(p.Output, dir)
	}
	for i := range p.Stages {
		p.Stages[i].Sheet = resolvePath(p.Stages[i].Sheet, dir)
	}
}

func resolvePath(path, dir string) string {
	if u, err := url.Parse(path); err == nil && len(u.Scheme) > 1 {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// SetDispatcher changes the dispatcher used to fetch the source and the
// sheets of the plan.
func (p *Plan) SetDispatcher(d resource.Dispatcher) {
	p.dispatcher = d
}

func (p *Plan) getDispatcher() resource.Dispatcher {
	if p.dispatcher == nil {
		p.dispatcher = resource.DefaultDispatcher()
	}
	return p.dispatcher
}

// Build creates the pipelines of the plan and returns the last one. In
// streaming mode, the stages are chained and executed in a single pass.
// Otherwise each stage reads the serialized result of the previous one. Every
// pipeline carries the identifier of the source so relative references
// resolve the same way in both modes.
func (p *Plan) Build(ctx context.Context, opts ...transform.Option) (*transform.Pipeline, error) {
	var (
		mux      = p.getDispatcher()
		resolver = transform.NewResolver(ctx, mux)
	)
	doc, err := mux.Get(ctx, p.Source)
	if err != nil {
		return nil, err
	}
	opts = append(opts, transform.WithResolver(resolver))

	var last *transform.Pipeline
	for i, s := range p.Stages {
		sheet, err := mux.Get(ctx, s.Sheet)
		if err != nil {
			if last != nil {
				last.Release()
			} else {
				doc.Release()
			}
			return nil, fmt.Errorf("stage %d: %w", i+1, err)
		}
		var source transform.Source
		switch {
		case last == nil:
			source = transform.Document(doc)
		case p.Streaming:
			source = transform.Chain(last)
		default:
			source = transform.Document(last)
		}
		curr := transform.New(source, sheet, opts...)
		curr.SetParameters(s.parameters())
		curr.SetOutputOptions(s.Output)
		curr.SetIdentifier(doc.Identifier())
		last = curr
	}
	return last, nil
}

// Compile compiles every sheet of the plan concurrently and stores the
// programs in reg.
func (p *Plan) Compile(ctx context.Context, reg *transform.Registry) error {
	var (
		mux      = p.getDispatcher()
		resolver = transform.NewResolver(ctx, mux)
	)
	grp, ctx := errgroup.WithContext(ctx)
	for i, s := range p.Stages {
		grp.Go(func() error {
			sheet, err := mux.Get(ctx, s.Sheet)
			if err != nil {
				return fmt.Errorf("stage %d: %w", i+1, err)
			}
			if _, err := reg.Program(ctx, sheet, resolver); err != nil {
				return fmt.Errorf("stage %d: %w", i+1, err)
			}
			return nil
		})
	}
	return grp.Wait()
}

// Render writes p as yaml to w.
func (p *Plan) Render(w io.Writer) error {
	enc := yamlv3.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return err
	}
	return enc.Close()
}

func (s Stage) parameters() map[string]any {
	params := make(map[string]any, len(s.Params))
	for k, v := range s.Params {
		params[k] = v
	}
	return params
}
