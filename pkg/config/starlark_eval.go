package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/devkit/devkit/pkg/engine"
)

// DefaultScriptTimeout bounds a single cost() call.
const DefaultScriptTimeout = 2 * time.Second

// StarlarkCost evaluates a Starlark script that defines cost(unit).
//
//	def cost(unit):
//	    if unit.name.startswith("xcode"):
//	        return 1800
//	    return 30 + 5 * len(unit.dependencies)
//
// unit is a struct with name, version and dependencies. The result is a
// number of seconds; None means "no opinion" and falls through to the
// default cost.
type StarlarkCost struct {
	fn      starlark.Callable
	timeout time.Duration
}

// LoadStarlarkCost compiles the script at path.
func LoadStarlarkCost(path string, timeout time.Duration) (*StarlarkCost, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cost script: %w", err)
	}
	return NewStarlarkCost(path, string(src), timeout)
}

// NewStarlarkCost compiles script once. filename is used in error messages.
func NewStarlarkCost(filename, script string, timeout time.Duration) (*StarlarkCost, error) {
	if timeout <= 0 {
		timeout = DefaultScriptTimeout
	}

	thread := newThread("devkit-cost-init")
	stop := time.AfterFunc(timeout, func() { thread.Cancel("script initialization timed out") })
	defer stop.Stop()

	globals, err := starlark.ExecFile(thread, filename, script, starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	})
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	fn, ok := globals["cost"].(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%s does not define a cost(unit) function", filename)
	}

	return &StarlarkCost{fn: fn, timeout: timeout}, nil
}

func newThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name:  name,
		Print: func(_ *starlark.Thread, _ string) {},
	}
}

// Cost calls cost(unit). ok is false when the script returned None.
func (sc *StarlarkCost) Cost(ctx context.Context, unit engine.UnitSpec) (d time.Duration, ok bool, err error) {
	thread := newThread("devkit-cost")

	timer := time.AfterFunc(sc.timeout, func() {
		thread.Cancel(fmt.Sprintf("cost(%s) timed out after %v", unit.Name, sc.timeout))
	})
	defer timer.Stop()
	stop := context.AfterFunc(ctx, func() { thread.Cancel("context cancelled") })
	defer stop()

	result, err := starlark.Call(thread, sc.fn, starlark.Tuple{unitValue(unit)}, nil)
	if err != nil {
		return 0, false, fmt.Errorf("cost(%s) failed: %w", unit.Name, err)
	}

	secs, ok, err := toSeconds(result)
	if err != nil || !ok {
		return 0, ok, err
	}
	return time.Duration(secs * float64(time.Second)), true, nil
}

// CostFunc adapts the script to an engine.CostFunc. Units the script has no
// opinion on, or fails for, cost fallback; failures are reported to onError
// when it is non-nil.
func (sc *StarlarkCost) CostFunc(ctx context.Context, fallback engine.CostFunc, onError func(engine.UnitSpec, error)) engine.CostFunc {
	return func(u engine.UnitSpec) time.Duration {
		d, ok, err := sc.Cost(ctx, u)
		if err != nil {
			if onError != nil {
				onError(u, err)
			}
			return fallback(u)
		}
		if !ok {
			return fallback(u)
		}
		return d
	}
}

// unitValue converts a unit to the struct passed to cost().
func unitValue(u engine.UnitSpec) starlark.Value {
	deps := make([]starlark.Value, len(u.Dependencies))
	for i, dep := range u.Dependencies {
		deps[i] = starlark.String(dep)
	}

	return starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
		"name":         starlark.String(u.Name),
		"version":      starlark.String(u.Version),
		"dependencies": starlark.Tuple(deps),
	})
}

func toSeconds(v starlark.Value) (float64, bool, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return 0, false, nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return 0, false, fmt.Errorf("cost %s is too large", val)
		}
		return float64(i), true, nil
	case starlark.Float:
		return float64(val), true, nil
	default:
		return 0, false, fmt.Errorf("cost must be a number of seconds, got %s", v.Type())
	}
}
