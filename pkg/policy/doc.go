// Package policy evaluates Rego advisory policies with Open Policy Agent.
//
// A policy is a Rego module whose advise rule is a set of strings. The engine
// evaluates each enabled policy against an optimizer.AdvisoryInput (cache
// stats, unit install history, timing summaries and thresholds) and returns
// the messages as advisories. Engine implements optimizer.Advisor, so its
// output is appended to the built-in suggestions.
//
// Advisories are hints only. They never change what the optimizer decides to
// install.
//
// # Usage
//
//	eng, err := policy.NewEngine(ctx, policy.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	opt, err := optimizer.New(store, optimizer.WithAdvisor(eng))
//
// # Built-in Policies
//
//   - cache-effectiveness: the cache mostly misses
//   - retry-failed: the last install of a unit failed
//   - flaky-units: a unit has both succeeded and failed
//   - parallelism: an operation dominates total install time
//
// # Custom Policies
//
// LoadPolicies reads .rego files (named after the file, described by their
// leading comment) and .yaml definitions:
//
//	name: old-node
//	severity: warning
//	rego: |
//	  package devkit.advisories.old_node
//
//	  advise contains "upgrade node" if {
//	    some unit in input.units
//	    unit.unit == "node"
//	    startswith(unit.last_version, "16.")
//	  }
//
// Modules use Rego v1 syntax. Watch reloads a directory whenever a policy
// file changes; built-in policies are never removed by a reload.
package policy
