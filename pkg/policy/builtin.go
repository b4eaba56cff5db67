package policy

// BuiltinPolicies returns the advisory policies shipped with devkit.
func BuiltinPolicies() []Policy {
	return []Policy{
		cacheEffectivenessPolicy(),
		retryFailedPolicy(),
		flakyUnitsPolicy(),
		parallelismPolicy(),
	}
}

// cacheEffectivenessPolicy flags a cache that mostly misses.
func cacheEffectivenessPolicy() Policy {
	return Policy{
		Name:        "cache-effectiveness",
		Description: "Flags a cache whose lookups mostly miss",
		Severity:    SeverityInfo,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"cache"},
		Rego: `package devkit.advisories.cache_effectiveness

lookups := input.cache.hits + input.cache.misses

advise contains msg if {
	lookups > 0
	lookups >= input.thresholds.min_lookups
	ratio := input.cache.misses / lookups
	ratio > input.thresholds.miss_ratio
	msg := sprintf("Cache miss ratio is %v%% over %v lookups: consider a longer TTL", [round(ratio * 100), lookups])
}
`,
	}
}

// retryFailedPolicy lists units whose most recent install failed.
func retryFailedPolicy() Policy {
	return Policy{
		Name:        "retry-failed",
		Description: "Lists units whose most recent install failed",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"units"},
		Rego: `package devkit.advisories.retry_failed

advise contains msg if {
	some unit in input.units
	unit.attempts > 0
	not unit.last_success
	msg := sprintf("Retry %s@%s: the last install failed", [unit.unit, unit.last_version])
}
`,
	}
}

// flakyUnitsPolicy flags units that both succeeded and failed.
func flakyUnitsPolicy() Policy {
	return Policy{
		Name:        "flaky-units",
		Description: "Flags units with a mix of successful and failed installs",
		Severity:    SeverityInfo,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"units"},
		Rego: `package devkit.advisories.flaky_units

advise contains msg if {
	some unit in input.units
	unit.attempts >= input.thresholds.min_attempts
	unit.failures > 0
	unit.failures < unit.attempts
	msg := sprintf("%s is flaky: %v of %v installs failed", [unit.unit, unit.failures, unit.attempts])
}
`,
	}
}

// parallelismPolicy flags labels that dominate total install time.
func parallelismPolicy() Policy {
	return Policy{
		Name:        "parallelism",
		Description: "Flags operations whose total time suggests raising max_parallel",
		Severity:    SeverityInfo,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"scheduler"},
		Rego: `package devkit.advisories.parallelism

advise contains msg if {
	some label, m in input.metrics
	m.count > 1
	m.total_seconds > 10 * input.thresholds.slow_seconds
	msg := sprintf("%s took %vs across %v runs: consider raising scheduler.max_parallel", [label, round(m.total_seconds), m.count])
}
`,
	}
}
