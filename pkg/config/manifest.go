package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/devkit/devkit/pkg/engine"
)

// LoadManifest reads a unit manifest. Files ending in .cue are parsed as
// CUE; everything else as YAML.
//
//	units:
//	  - name: homebrew
//	    cost: 60s
//	  - name: git
//	    version: "2.44"
//	    depends_on: [homebrew]
func LoadManifest(ctx context.Context, path string) (*Manifest, error) {
	var (
		m   *Manifest
		err error
	)

	if filepath.Ext(path) == ".cue" {
		m, err = NewCUEParser().ParseFile(ctx, path)
	} else {
		m, err = parseYAMLManifest(path)
	}
	if err != nil {
		return nil, err
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return m, nil
}

func parseYAMLManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, ValidationErrors{{File: path, Message: err.Error()}}
	}
	m.Source = path

	return &m, nil
}

// Validate checks the manifest against its struct tags.
func (m *Manifest) Validate() error {
	err := validator.New().Struct(m)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid manifest: %w", err)
	}

	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			File:    m.Source,
			Path:    fe.Namespace(),
			Message: fmt.Sprintf("failed %s validation", fe.Tag()),
		})
	}
	return out
}

// Specs converts the manifest units to engine unit descriptors, in order.
func (m *Manifest) Specs() ([]engine.UnitSpec, error) {
	specs := make([]engine.UnitSpec, 0, len(m.Units))
	for _, u := range m.Units {
		spec, err := engine.NewUnitSpec(u.Name, u.Version, u.DependsOn...)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Costs returns the per-unit costs set in the manifest.
func (m *Manifest) Costs() map[string]time.Duration {
	costs := make(map[string]time.Duration)
	for _, u := range m.Units {
		if u.Cost != nil {
			costs[u.Name] = u.Cost.Duration()
		}
	}
	return costs
}

// CostFunc resolves a unit's cost from, in order: its manifest cost, the
// cost script, the manifest default_cost and finally fallback.
func (m *Manifest) CostFunc(ctx context.Context, fallback time.Duration, onError func(engine.UnitSpec, error)) (engine.CostFunc, error) {
	def := fallback
	if m.DefaultCost != nil {
		def = m.DefaultCost.Duration()
	}

	base := engine.UniformCost(def)

	if m.CostScript != "" {
		script := m.CostScript
		if !filepath.IsAbs(script) && m.Source != "" {
			script = filepath.Join(filepath.Dir(m.Source), script)
		}

		sc, err := LoadStarlarkCost(script, DefaultScriptTimeout)
		if err != nil {
			return nil, err
		}
		base = sc.CostFunc(ctx, base, onError)
	}

	table := m.Costs()
	return func(u engine.UnitSpec) time.Duration {
		if d, ok := table[u.Name]; ok {
			return d
		}
		return base(u)
	}, nil
}
