package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
)

// CreditEventRow is one ledger event as stored in the credit_events table.
type CreditEventRow struct {
	EventID       string              `bigquery:"event_id"`
	EventType     string              `bigquery:"event_type"`
	AggregateType string              `bigquery:"aggregate_type"`
	AggregateID   string              `bigquery:"aggregate_id"`
	AccountID     bigquery.NullString `bigquery:"account_id"`
	OperationID   bigquery.NullString `bigquery:"operation_id"`
	Credits       bigquery.NullInt64  `bigquery:"credits"`
	Payload       string              `bigquery:"payload"`
	OccurredAt    time.Time           `bigquery:"occurred_at"`
	IngestedAt    time.Time           `bigquery:"ingested_at"`
}

// UsageDailyRow mirrors one usage_daily row. Exports are snapshots; the
// newest exported_at wins per (account_id, day).
type UsageDailyRow struct {
	AccountID        string            `bigquery:"account_id"`
	Day              bigquery.NullDate `bigquery:"day"`
	GenerationsCount int64             `bigquery:"generations_count"`
	ImagesGenerated  int64             `bigquery:"images_generated"`
	CreditsUsed      int64             `bigquery:"credits_used"`
	ExportedAt       time.Time         `bigquery:"exported_at"`
}
