// Package config loads devkit settings and unit manifests.
//
// # Settings
//
// Settings are read in three layers: built-in defaults, the YAML file
// (~/.devkit/config.yaml unless --config names another) and environment
// overrides. An override names a section and a key separated by a double
// underscore:
//
//	DEVKIT_SCHEDULER__MAX_PARALLEL=8
//	DEVKIT_CACHE__BACKEND=sqlite
//	DEVKIT_CACHE__DEFAULT_TTL=12h
//
// The merged settings are checked with validator struct tags, so a
// max_parallel below 1 or an unknown cache backend fails at load time.
//
// # Manifests
//
// A manifest lists the units to plan. YAML manifests hold a list:
//
//	default_cost: 30s
//	cost_script: costs.star
//	units:
//	  - name: homebrew
//	    cost: 60s
//	  - name: git
//	    depends_on: [homebrew]
//
// CUE manifests are checked against the built-in #Manifest schema and may
// key units by name, keeping declaration order:
//
//	units: {
//	    homebrew: {cost: 60}
//	    git: {depends_on: ["homebrew"]}
//	}
//
// # Cost Scripts
//
// A Starlark cost script defines cost(unit) returning seconds, or None to
// defer to the default cost. The script is compiled once; each call is
// bounded by a timeout and print output is discarded.
package config
