package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
)

// OperationAuthorizedEvent is emitted when credits are reserved for an operation.
type OperationAuthorizedEvent struct {
	OperationID uuid.UUID           `json:"operation_id"`
	AccountID   string              `json:"account_id"`
	Kind        enums.OperationKind `json:"kind"`
	Cost        int64               `json:"cost"`
	NewBalance  int64               `json:"new_balance"`
}

// OperationSettledEvent covers both completion and failure. Refunded is the
// amount credited back (zero on completion).
type OperationSettledEvent struct {
	OperationID     uuid.UUID             `json:"operation_id"`
	AccountID       string                `json:"account_id"`
	Kind            enums.OperationKind   `json:"kind"`
	Status          enums.OperationStatus `json:"status"`
	Cost            int64                 `json:"cost"`
	ImagesGenerated int                   `json:"images_generated"`
	Refunded        int64                 `json:"refunded"`
	Reason          string                `json:"reason,omitempty"`
	SettledAt       time.Time             `json:"settled_at"`
}

// CreditsPurchasedEvent is emitted when a payment grants credits.
type CreditsPurchasedEvent struct {
	AccountID       string                `json:"account_id"`
	ExternalEventID string                `json:"external_event_id"`
	PriceID         string                `json:"price_id"`
	PackageName     string                `json:"package_name"`
	Credits         int64                 `json:"credits"`
	NewBalance      int64                 `json:"new_balance"`
	Type            enums.TransactionType `json:"type"`
}

// CreditsGrantedEvent is emitted for non-payment grants such as signup.
type CreditsGrantedEvent struct {
	AccountID  string                `json:"account_id"`
	Type       enums.TransactionType `json:"type"`
	Credits    int64                 `json:"credits"`
	NewBalance int64                 `json:"new_balance"`
}

// SubscriptionChangedEvent mirrors the account's subscription fields after a webhook.
type SubscriptionChangedEvent struct {
	AccountID      string     `json:"account_id"`
	Plan           enums.Plan `json:"plan"`
	SubscriptionID string     `json:"subscription_id,omitempty"`
	Status         string     `json:"status,omitempty"`
	PriceID        string     `json:"price_id,omitempty"`
}
