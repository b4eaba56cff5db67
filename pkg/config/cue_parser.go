package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// CUEParser parses unit manifests written in CUE.
type CUEParser struct {
	ctx            *cue.Context
	schemaRegistry *SchemaRegistry
}

// NewCUEParser creates a new CUE parser.
func NewCUEParser() *CUEParser {
	ctx := cuecontext.New()
	return &CUEParser{
		ctx:            ctx,
		schemaRegistry: NewSchemaRegistry(ctx),
	}
}

// ParseFile parses a CUE manifest file.
func (cp *CUEParser) ParseFile(ctx context.Context, path string) (*Manifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := cp.parse(string(content), path)
	if err != nil {
		return nil, err
	}
	m.Source = path
	return m, nil
}

// ParseInline parses inline CUE content.
func (cp *CUEParser) ParseInline(ctx context.Context, content string) (*Manifest, error) {
	return cp.parse(content, "inline")
}

func (cp *CUEParser) parse(content, filename string) (*Manifest, error) {
	val := cp.ctx.CompileString(content, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}

	unified, err := cp.schemaRegistry.Unify("manifest", val)
	if err != nil {
		return nil, convertCUEErrors(err)
	}

	return cp.extractManifest(unified)
}

// extractManifest decodes a schema-checked manifest value.
func (cp *CUEParser) extractManifest(val cue.Value) (*Manifest, error) {
	m := &Manifest{}
	var errs ValidationErrors

	for _, field := range []struct {
		path string
		dst  interface{}
	}{
		{"default_cost", &m.DefaultCost},
		{"cost_script", &m.CostScript},
		{"max_parallel", &m.MaxParallel},
	} {
		v := val.LookupPath(cue.ParsePath(field.path))
		if !v.Exists() {
			continue
		}
		if err := decodeJSON(v, field.dst); err != nil {
			errs = append(errs, ValidationError{Path: field.path, Message: err.Error()})
		}
	}

	unitsVal := val.LookupPath(cue.ParsePath("units"))
	switch unitsVal.Kind() {
	case cue.StructKind:
		iter, err := unitsVal.Fields()
		if err != nil {
			return nil, ValidationErrors{{Path: "units", Message: fmt.Sprintf("failed to iterate units: %v", err)}}
		}
		for iter.Next() {
			name := iter.Selector().Unquoted()
			unit, err := extractUnit(name, iter.Value())
			if err != nil {
				errs = append(errs, ValidationError{Path: "units." + name, Message: err.Error()})
				continue
			}
			m.Units = append(m.Units, unit)
		}

	case cue.ListKind:
		list, err := unitsVal.List()
		if err != nil {
			return nil, ValidationErrors{{Path: "units", Message: fmt.Sprintf("failed to list units: %v", err)}}
		}
		for idx := 0; list.Next(); idx++ {
			unit, err := extractUnit("", list.Value())
			if err != nil {
				errs = append(errs, ValidationError{Path: fmt.Sprintf("units[%d]", idx), Message: err.Error()})
				continue
			}
			m.Units = append(m.Units, unit)
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return m, nil
}

// extractUnit decodes one unit. A unit keyed by name takes the key as its
// name unless it sets one.
func extractUnit(key string, val cue.Value) (UnitEntry, error) {
	var unit UnitEntry
	if err := decodeJSON(val, &unit); err != nil {
		return unit, fmt.Errorf("failed to decode unit: %w", err)
	}

	if unit.Name == "" {
		unit.Name = key
	}

	return unit, nil
}

// decodeJSON decodes a concrete CUE value through its JSON form, so custom
// json.Unmarshaler types such as Cost apply.
func decodeJSON(val cue.Value, dst interface{}) error {
	data, err := val.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// convertCUEErrors converts CUE errors to ValidationErrors.
func convertCUEErrors(err error) ValidationErrors {
	var validationErrors ValidationErrors

	for _, e := range errors.Errors(err) {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:    file,
			Line:    line,
			Column:  column,
			Message: errors.Details(e, nil),
		})
	}

	if len(validationErrors) == 0 {
		validationErrors = append(validationErrors, ValidationError{Message: err.Error()})
	}

	return validationErrors
}

// GetSchemaRegistry returns the schema registry.
func (cp *CUEParser) GetSchemaRegistry() *SchemaRegistry {
	return cp.schemaRegistry
}
