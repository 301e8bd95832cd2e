package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/snapstudio-backend/internal/analytics/types"
	bq "github.com/angelmondragon/snapstudio-backend/pkg/bigquery"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
	"github.com/angelmondragon/snapstudio-backend/pkg/logger"
	"github.com/angelmondragon/snapstudio-backend/pkg/outbox/payloads"
)

type recordingWriter struct {
	rows []bq.CreditEventRow
	err  error
}

func (w *recordingWriter) WriteCreditEvent(ctx context.Context, row bq.CreditEventRow) error {
	if w.err != nil {
		return w.err
	}
	w.rows = append(w.rows, row)
	return nil
}

func newProjector(t *testing.T, w *recordingWriter) *Projector {
	t.Helper()
	p, err := NewProjector(w, logger.New(logger.Options{ServiceName: "analytics-test"}))
	require.NoError(t, err)
	p.now = func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }
	return p
}

func envelopeFor(t *testing.T, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, aggregateID string, data any) types.Envelope {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return types.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   aggregateID,
		OccurredAt:    time.Date(2026, 4, 30, 12, 0, 0, 0, time.UTC),
		Payload:       raw,
	}
}

func TestProjectSignsCreditMovements(t *testing.T) {
	opID := uuid.New()
	cases := []struct {
		name    string
		env     types.Envelope
		credits int64
		opID    string
	}{
		{
			name: "authorized deducts",
			env: envelopeFor(t, enums.EventOperationAuthorized, enums.AggregateOperation, opID.String(),
				payloads.OperationAuthorizedEvent{OperationID: opID, AccountID: "acct_1", Kind: enums.OperationGenerate, Cost: 12, NewBalance: 8}),
			credits: -12,
			opID:    opID.String(),
		},
		{
			name: "failed refunds",
			env: envelopeFor(t, enums.EventOperationFailed, enums.AggregateOperation, opID.String(),
				payloads.OperationSettledEvent{OperationID: opID, AccountID: "acct_1", Status: enums.OperationStatusFailed, Cost: 12, Refunded: 12}),
			credits: 12,
			opID:    opID.String(),
		},
		{
			name: "purchase grants",
			env: envelopeFor(t, enums.EventCreditsPurchased, enums.AggregateAccount, "acct_1",
				payloads.CreditsPurchasedEvent{AccountID: "acct_1", Credits: 150, Type: enums.TransactionPurchase}),
			credits: 150,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			row, err := newProjector(t, &recordingWriter{}).Project(tc.env)
			require.NoError(t, err)
			assert.Equal(t, tc.env.EventID, row.EventID)
			assert.Equal(t, "acct_1", row.AccountID.StringVal)
			assert.True(t, row.Credits.Valid)
			assert.Equal(t, tc.credits, row.Credits.Int64)
			assert.Equal(t, tc.opID != "", row.OperationID.Valid)
			assert.Equal(t, tc.opID, row.OperationID.StringVal)
		})
	}
}

func TestProjectSubscriptionChangeHasNoCredits(t *testing.T) {
	env := envelopeFor(t, enums.EventSubscriptionChanged, enums.AggregateAccount, "acct_1",
		payloads.SubscriptionChangedEvent{AccountID: "acct_1", Plan: enums.PlanPro})
	row, err := newProjector(t, &recordingWriter{}).Project(env)
	require.NoError(t, err)
	assert.False(t, row.Credits.Valid)
	assert.Equal(t, "acct_1", row.AccountID.StringVal)
}

func TestHandleWritesRow(t *testing.T) {
	w := &recordingWriter{}
	env := envelopeFor(t, enums.EventCreditsGranted, enums.AggregateAccount, "acct_1",
		payloads.CreditsGrantedEvent{AccountID: "acct_1", Type: enums.TransactionSignupGrant, Credits: 30})
	require.NoError(t, newProjector(t, w).Handle(context.Background(), env))
	require.Len(t, w.rows, 1)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), w.rows[0].IngestedAt)
}

func TestHandleRejectsUnknownAndMalformed(t *testing.T) {
	p := newProjector(t, &recordingWriter{})
	err := p.Handle(context.Background(), types.Envelope{EventType: "order_created", Payload: json.RawMessage(`{}`)})
	assert.True(t, errors.Is(err, ErrUnsupportedEventType))

	err = p.Handle(context.Background(), types.Envelope{EventType: enums.EventCreditsGranted})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnsupportedEventType))
}
