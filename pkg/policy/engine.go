package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/devkit/devkit/pkg/optimizer"
	"github.com/devkit/devkit/pkg/telemetry"
)

// Engine evaluates Rego advisory policies. It implements optimizer.Advisor.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   *telemetry.Logger
	events   *telemetry.EventPublisher
	loader   *Loader
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *telemetry.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithEventPublisher publishes a policy.reloaded event after every reload.
func WithEventPublisher(ep *telemetry.EventPublisher) EngineOption {
	return func(e *Engine) {
		e.events = ep
	}
}

// NewEngine creates a policy engine with the built-in policies loaded.
func NewEngine(ctx context.Context, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   telemetry.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.NewComponentLogger("policy-engine")
	e.loader = NewLoader(e.logger)

	builtins := BuiltinPolicies()
	for i := range builtins {
		if err := e.compileAndStorePolicy(ctx, &builtins[i]); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
	}

	e.logger.Debugf("loaded %d built-in policies", len(builtins))
	return e, nil
}

// Advise evaluates every enabled policy and returns the advisory messages.
func (e *Engine) Advise(ctx context.Context, input optimizer.AdvisoryInput) ([]string, error) {
	advisories, err := e.Evaluate(ctx, input)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(advisories))
	for _, a := range advisories {
		out = append(out, a.Message)
	}
	return out, nil
}

// Evaluate evaluates every enabled policy against input. A policy that fails
// to evaluate is logged and skipped; the error is returned only if every
// enabled policy failed.
func (e *Engine) Evaluate(ctx context.Context, input optimizer.AdvisoryInput) ([]Advisory, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	startTime := time.Now()
	var advisories []Advisory
	var lastErr error
	evaluated, failed := 0, 0

	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		evaluated++

		messages, err := evaluatePolicy(ctx, cp, input)
		if err != nil {
			failed++
			lastErr = err
			e.logger.WithField("policy", name).WithError(err).Warn("policy evaluation failed")
			continue
		}

		for _, msg := range messages {
			advisories = append(advisories, Advisory{
				Policy:   name,
				Message:  msg,
				Severity: cp.policy.Severity,
			})
		}
	}

	if evaluated > 0 && failed == evaluated {
		return nil, fmt.Errorf("all %d policies failed, last error: %w", failed, lastErr)
	}

	e.logger.WithFields(map[string]interface{}{
		"policies":   evaluated,
		"advisories": len(advisories),
		"duration":   time.Since(startTime).String(),
	}).Debug("advisory evaluation completed")

	return advisories, nil
}

// evaluatePolicy runs the prepared advise query of a single policy.
func evaluatePolicy(ctx context.Context, cp *compiledPolicy, input optimizer.AdvisoryInput) ([]string, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var messages []string
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		set, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, v := range set {
			switch msg := v.(type) {
			case string:
				messages = append(messages, msg)
			default:
				messages = append(messages, fmt.Sprintf("%v", msg))
			}
		}
	}

	sort.Strings(messages)
	return messages, nil
}

// extractPackageName returns the package path declared by a Rego module.
func extractPackageName(src string) string {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return ""
}

// compileAndStorePolicy compiles a policy and stores it. The caller must hold
// the write lock or be the constructor.
func (e *Engine) compileAndStorePolicy(ctx context.Context, policy *Policy) error {
	if _, err := ast.ParseModuleWithOpts(policy.Name, policy.Rego, ast.ParserOptions{RegoVersion: ast.RegoV1}); err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}

	pkg := extractPackageName(policy.Rego)
	if pkg == "" {
		return fmt.Errorf("policy %s declares no package", policy.Name)
	}

	r := rego.New(
		rego.Module(policy.Name+".rego", policy.Rego),
		rego.Query(fmt.Sprintf("data.%s.advise", pkg)),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}

	if policy.LoadedAt.IsZero() {
		policy.LoadedAt = time.Now()
	}
	e.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		query:    query,
		compiled: time.Now(),
	}

	e.logger.WithField("policy", policy.Name).Debug("policy compiled")
	return nil
}

// LoadPolicies loads and compiles custom policies from files or directories.
// Nothing is changed if any policy fails to compile.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := e.loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	return e.addCustom(ctx, policies, false)
}

// ReplaceCustom swaps every custom policy for policies. Built-in policies are
// kept. Nothing is changed if any policy fails to compile.
func (e *Engine) ReplaceCustom(ctx context.Context, policies []Policy) error {
	return e.addCustom(ctx, policies, true)
}

func (e *Engine) addCustom(ctx context.Context, policies []Policy, replace bool) error {
	staged := &Engine{policies: make(map[string]*compiledPolicy), logger: e.logger}
	for i := range policies {
		p := policies[i]
		p.Builtin = false
		if err := staged.compileAndStorePolicy(ctx, &p); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if replace {
		for name, cp := range e.policies {
			if !cp.policy.Builtin {
				delete(e.policies, name)
			}
		}
	}
	for name, cp := range staged.policies {
		if existing, ok := e.policies[name]; ok && existing.policy.Builtin {
			e.logger.WithField("policy", name).Warn("custom policy overrides a built-in policy")
		}
		e.policies[name] = cp
	}

	e.logger.Infof("loaded %d custom policies", len(staged.policies))
	return nil
}

// Watch loads the policies under dir and reloads them whenever a file there
// changes, until ctx is done.
func (e *Engine) Watch(ctx context.Context, dir string) error {
	if err := e.LoadPolicies(ctx, []string{dir}); err != nil {
		return err
	}

	return e.loader.Watch(ctx, []string{dir}, func(policies []Policy) error {
		if err := e.ReplaceCustom(ctx, policies); err != nil {
			return err
		}
		_ = e.events.PublishPolicyReloaded(dir, len(policies))
		return nil
	})
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}

	return cp.policy, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedNames() {
		policies = append(policies, *e.policies[name].policy)
	}

	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = enabled
	e.logger.WithField("policy", name).WithField("enabled", enabled).Info("policy toggled")
	return nil
}

// Close stops watching policy files.
func (e *Engine) Close() error {
	return e.loader.StopWatching()
}

func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
