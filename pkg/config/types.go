package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Cost is an expected install time. Manifests write it as a Go duration
// ("90s") or as a number of seconds (90).
type Cost time.Duration

// Duration returns c as a time.Duration.
func (c Cost) Duration() time.Duration {
	return time.Duration(c)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Cost) UnmarshalYAML(node *yaml.Node) error {
	d, err := parseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid cost %q: %w", node.Line, node.Value, err)
	}
	*c = Cost(d)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Cost) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var text string
	switch v := raw.(type) {
	case float64:
		text = strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		text = v
	default:
		return fmt.Errorf("invalid cost %s", string(data))
	}

	d, err := parseDuration(text)
	if err != nil {
		return fmt.Errorf("invalid cost %q: %w", text, err)
	}
	*c = Cost(d)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (c Cost) MarshalYAML() (interface{}, error) {
	return time.Duration(c).String(), nil
}

// UnitEntry is one unit in a manifest.
type UnitEntry struct {
	// Name is the unit name. In CUE manifests that key units by name it
	// may be omitted.
	Name string `yaml:"name" json:"name" validate:"required"`

	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	// DependsOn names the units that must be installed first.
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty" validate:"dive,required"`

	// Cost overrides the expected install time of this unit.
	Cost *Cost `yaml:"cost,omitempty" json:"cost,omitempty"`
}

// Manifest is a batch of units to plan, read by LoadManifest.
type Manifest struct {
	Units []UnitEntry `yaml:"units" json:"units" validate:"required,min=1,dive"`

	// DefaultCost applies to units without a cost or script result.
	DefaultCost *Cost `yaml:"default_cost,omitempty" json:"default_cost,omitempty"`

	// CostScript is a Starlark file defining cost(unit). Relative paths are
	// resolved against the manifest directory.
	CostScript string `yaml:"cost_script,omitempty" json:"cost_script,omitempty"`

	// MaxParallel overrides scheduler.max_parallel for this manifest.
	MaxParallel int `yaml:"max_parallel,omitempty" json:"max_parallel,omitempty" validate:"gte=0"`

	// Source is the file the manifest was read from.
	Source string `yaml:"-" json:"-"`
}

// ValidationError reports a problem at a position in a manifest.
type ValidationError struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	default:
		return e.Message
	}
}

// ValidationErrors collects every problem found in a manifest.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (errs ValidationErrors) Error() string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	msg := fmt.Sprintf("%d manifest errors:", len(errs))
	for _, e := range errs {
		msg += "\n  " + e.Error()
	}
	return msg
}
