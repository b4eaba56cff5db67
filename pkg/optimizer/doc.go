// Package optimizer decides whether installation units need to be installed,
// based on outcomes recorded in a cache.Store, and offers advisory
// suggestions.
//
// The decision for a (unit, version) pair is:
//
//   - never recorded: install
//   - most recent outcome a failure: install
//   - successful outcome older than its TTL: install
//   - otherwise: skip
//
// Suggestions come from built-in heuristics (cache size, repeated failures,
// slow operations) and from an optional Advisor such as the Rego rules in
// package policy. They are hints for the user and never affect decisions.
package optimizer
