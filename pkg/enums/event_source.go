package enums

// EventSource identifies who delivered an external event.
type EventSource string

const (
	EventSourceStripe EventSource = "stripe"
	EventSourceSystem EventSource = "system"
)

// IsValid reports whether the value is known.
func (s EventSource) IsValid() bool {
	return s == EventSourceStripe || s == EventSourceSystem
}
