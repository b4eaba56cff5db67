package engine

import (
	"encoding/json"
	"fmt"
)

// RunStatus represents the overall status of a plan execution run.
type RunStatus string

const (
	// RunStatusPending indicates the run has not started yet.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning indicates the run is currently executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates every unit succeeded or was skipped as installed.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates no unit succeeded and at least one failed.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled indicates the run was cancelled through its context.
	RunStatusCancelled RunStatus = "cancelled"

	// RunStatusPartial indicates the run partially succeeded (some units failed).
	RunStatusPartial RunStatus = "partial"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed ||
		s == RunStatusCancelled || s == RunStatusPartial
}

// IsActive returns true if the run is currently active (pending or running).
func (s RunStatus) IsActive() bool {
	return s == RunStatusPending || s == RunStatusRunning
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusSucceeded,
		RunStatusFailed, RunStatusCancelled, RunStatusPartial:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}

// UnitStatus represents the status of a single unit during a run.
type UnitStatus string

const (
	// UnitStatusPending indicates the unit is waiting for its wave.
	UnitStatusPending UnitStatus = "pending"

	// UnitStatusRunning indicates the unit is currently installing.
	UnitStatusRunning UnitStatus = "running"

	// UnitStatusSucceeded indicates the unit installed successfully.
	UnitStatusSucceeded UnitStatus = "succeeded"

	// UnitStatusFailed indicates the install function returned an error.
	UnitStatusFailed UnitStatus = "failed"

	// UnitStatusCached indicates the unit was skipped because a live successful
	// install is recorded.
	UnitStatusCached UnitStatus = "cached"

	// UnitStatusSkipped indicates the unit was skipped because an in-batch
	// dependency did not complete.
	UnitStatusSkipped UnitStatus = "skipped"

	// UnitStatusCancelled indicates the run was cancelled before the unit started.
	UnitStatusCancelled UnitStatus = "cancelled"
)

// IsTerminal returns true if the unit status represents a final state.
func (s UnitStatus) IsTerminal() bool {
	return s == UnitStatusSucceeded || s == UnitStatusFailed || s == UnitStatusCached ||
		s == UnitStatusSkipped || s == UnitStatusCancelled
}

// Satisfied reports whether dependents of a unit in this state may run.
func (s UnitStatus) Satisfied() bool {
	return s == UnitStatusSucceeded || s == UnitStatusCached
}

// Validate checks if the unit status is valid.
func (s UnitStatus) Validate() error {
	switch s {
	case UnitStatusPending, UnitStatusRunning, UnitStatusSucceeded, UnitStatusFailed,
		UnitStatusCached, UnitStatusSkipped, UnitStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid unit status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s UnitStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *UnitStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = UnitStatus(str)
	return s.Validate()
}
