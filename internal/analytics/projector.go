package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/angelmondragon/snapstudio-backend/internal/analytics/types"
	bq "github.com/angelmondragon/snapstudio-backend/pkg/bigquery"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
	"github.com/angelmondragon/snapstudio-backend/pkg/logger"
	"github.com/angelmondragon/snapstudio-backend/pkg/outbox/payloads"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

type rowWriter interface {
	WriteCreditEvent(ctx context.Context, row bq.CreditEventRow) error
}

// Projector flattens ledger events into credit_events rows.
type Projector struct {
	writer rowWriter
	logg   *logger.Logger
	now    func() time.Time
}

func NewProjector(writer rowWriter, logg *logger.Logger) (*Projector, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Projector{writer: writer, logg: logg, now: time.Now}, nil
}

// Handle projects and writes one envelope.
func (p *Projector) Handle(ctx context.Context, envelope types.Envelope) error {
	row, err := p.Project(envelope)
	if err != nil {
		return err
	}
	return p.writer.WriteCreditEvent(ctx, row)
}

// Project builds the warehouse row. Credits is the signed balance effect:
// negative for authorizations, positive for grants and refunds, and null
// for events that do not move the balance.
func (p *Projector) Project(envelope types.Envelope) (bq.CreditEventRow, error) {
	row := bq.CreditEventRow{
		EventID:       envelope.EventID,
		EventType:     string(envelope.EventType),
		AggregateType: string(envelope.AggregateType),
		AggregateID:   envelope.AggregateID,
		Payload:       string(envelope.Payload),
		OccurredAt:    envelope.OccurredAt.UTC(),
		IngestedAt:    p.now().UTC(),
	}

	var (
		accountID   string
		operationID string
		credits     *int64
	)
	switch envelope.EventType {
	case enums.EventOperationAuthorized:
		var ev payloads.OperationAuthorizedEvent
		if err := decode(envelope, &ev); err != nil {
			return row, err
		}
		accountID, operationID = ev.AccountID, ev.OperationID.String()
		credits = ptr(-ev.Cost)
	case enums.EventOperationCompleted, enums.EventOperationFailed:
		var ev payloads.OperationSettledEvent
		if err := decode(envelope, &ev); err != nil {
			return row, err
		}
		accountID, operationID = ev.AccountID, ev.OperationID.String()
		credits = ptr(ev.Refunded)
	case enums.EventCreditsPurchased:
		var ev payloads.CreditsPurchasedEvent
		if err := decode(envelope, &ev); err != nil {
			return row, err
		}
		accountID, credits = ev.AccountID, ptr(ev.Credits)
	case enums.EventCreditsGranted:
		var ev payloads.CreditsGrantedEvent
		if err := decode(envelope, &ev); err != nil {
			return row, err
		}
		accountID, credits = ev.AccountID, ptr(ev.Credits)
	case enums.EventSubscriptionChanged:
		var ev payloads.SubscriptionChangedEvent
		if err := decode(envelope, &ev); err != nil {
			return row, err
		}
		accountID = ev.AccountID
	default:
		return row, fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}

	if accountID == "" {
		accountID = envelope.AccountID
	}
	row.AccountID = bigquery.NullString{StringVal: accountID, Valid: accountID != ""}
	row.OperationID = bigquery.NullString{StringVal: operationID, Valid: operationID != ""}
	if credits != nil {
		row.Credits = bigquery.NullInt64{Int64: *credits, Valid: true}
	}
	return row, nil
}

func decode(envelope types.Envelope, dst any) error {
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}
	if err := json.Unmarshal(envelope.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}
	return nil
}

func ptr(v int64) *int64 { return &v }
