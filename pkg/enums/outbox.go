package enums

import "fmt"

// OutboxAggregateType maps to outbox_events.aggregate_type.
type OutboxAggregateType string

const (
	AggregateAccount   OutboxAggregateType = "account"
	AggregateOperation OutboxAggregateType = "operation"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateAccount,
	AggregateOperation,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to outbox_events.event_type.
type OutboxEventType string

const (
	EventOperationAuthorized OutboxEventType = "operation_authorized"
	EventOperationCompleted  OutboxEventType = "operation_completed"
	EventOperationFailed     OutboxEventType = "operation_failed"
	EventCreditsPurchased    OutboxEventType = "credits_purchased"
	EventCreditsGranted      OutboxEventType = "credits_granted"
	EventSubscriptionChanged OutboxEventType = "subscription_changed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOperationAuthorized,
	EventOperationCompleted,
	EventOperationFailed,
	EventCreditsPurchased,
	EventCreditsGranted,
	EventSubscriptionChanged,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
