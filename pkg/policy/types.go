package policy

import (
	"time"
)

// Severity represents the severity level of an advisory.
type Severity string

const (
	// SeverityInfo is for informational hints.
	SeverityInfo Severity = "info"

	// SeverityWarning is for hints that should be reviewed.
	SeverityWarning Severity = "warning"
)

// Policy is a named Rego module whose advise rule yields suggestion strings.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego module source.
	Rego string `json:"rego"`

	// Severity is attached to every advisory the policy produces.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is evaluated.
	Enabled bool `json:"enabled"`

	// Builtin marks policies shipped with devkit. Reloading custom policies
	// never removes them.
	Builtin bool `json:"builtin"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from, if any.
	Source string `json:"source,omitempty"`

	// LoadedAt is when the policy was loaded.
	LoadedAt time.Time `json:"loaded_at"`
}

// Advisory is one suggestion produced by a policy.
type Advisory struct {
	// Policy is the name of the policy that produced the advisory.
	Policy string `json:"policy"`

	// Message is the suggestion text.
	Message string `json:"message"`

	// Severity is the policy severity.
	Severity Severity `json:"severity"`
}
