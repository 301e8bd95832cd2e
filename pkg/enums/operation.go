package enums

import "fmt"

// OperationKind is the billable shape of a generation request.
type OperationKind string

const (
	OperationGenerate     OperationKind = "generate"
	OperationEdit         OperationKind = "edit"
	OperationVirtualModel OperationKind = "virtual_model"
	OperationRetouch      OperationKind = "retouch"
)

var validOperationKinds = []OperationKind{
	OperationGenerate,
	OperationEdit,
	OperationVirtualModel,
	OperationRetouch,
}

// String implements fmt.Stringer.
func (k OperationKind) String() string {
	return string(k)
}

// IsValid reports whether the value is known.
func (k OperationKind) IsValid() bool {
	for _, candidate := range validOperationKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseOperationKind converts raw input into an OperationKind.
func ParseOperationKind(value string) (OperationKind, error) {
	for _, candidate := range validOperationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid operation kind %q", value)
}

// OperationStatus tracks the settlement state of an operation.
type OperationStatus string

const (
	OperationStatusPending   OperationStatus = "pending"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
)

var validOperationStatuses = []OperationStatus{
	OperationStatusPending,
	OperationStatusCompleted,
	OperationStatusFailed,
}

// String implements fmt.Stringer.
func (s OperationStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s OperationStatus) IsValid() bool {
	for _, candidate := range validOperationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the operation has been settled.
func (s OperationStatus) IsTerminal() bool {
	return s == OperationStatusCompleted || s == OperationStatusFailed
}

// ParseOperationStatus converts raw input into an OperationStatus.
func ParseOperationStatus(value string) (OperationStatus, error) {
	for _, candidate := range validOperationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid operation status %q", value)
}

// OperationOutcome is what the orchestration reports back on finalize.
type OperationOutcome string

const (
	OutcomeCompleted OperationOutcome = "completed"
	OutcomeFailed    OperationOutcome = "failed"
)

// IsValid reports whether the value is known.
func (o OperationOutcome) IsValid() bool {
	return o == OutcomeCompleted || o == OutcomeFailed
}

// Status maps the outcome to the terminal operation status.
func (o OperationOutcome) Status() OperationStatus {
	if o == OutcomeCompleted {
		return OperationStatusCompleted
	}
	return OperationStatusFailed
}

// ParseOperationOutcome converts raw input into an OperationOutcome.
func ParseOperationOutcome(value string) (OperationOutcome, error) {
	o := OperationOutcome(value)
	if !o.IsValid() {
		return "", fmt.Errorf("invalid operation outcome %q", value)
	}
	return o, nil
}
