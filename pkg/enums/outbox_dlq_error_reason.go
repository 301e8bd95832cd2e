package enums

import "fmt"

// OutboxDLQErrorReason records why a credit event left the outbox for the
// dead-letter table instead of Pub/Sub.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonUnresolvable: the row could not be mapped to a topic or
	// its payload did not decode.
	OutboxDLQReasonUnresolvable OutboxDLQErrorReason = "unresolvable"
	// OutboxDLQReasonNonRetryable: Pub/Sub rejected the message outright.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonUnresolvable,
	OutboxDLQReasonNonRetryable,
	OutboxDLQReasonMaxAttempts,
}

func (r OutboxDLQErrorReason) String() string {
	return string(r)
}

func (r OutboxDLQErrorReason) IsValid() bool {
	for _, candidate := range validOutboxDLQErrorReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	for _, candidate := range validOutboxDLQErrorReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox dlq error reason %q", value)
}
