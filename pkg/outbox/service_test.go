package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/snapstudio-backend/pkg/db/dbtest"
	"github.com/angelmondragon/snapstudio-backend/pkg/db/models"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
	"github.com/angelmondragon/snapstudio-backend/pkg/outbox"
	"github.com/angelmondragon/snapstudio-backend/pkg/outbox/payloads"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	client := dbtest.Open(t)
	repo := outbox.NewRepository(client.DB())
	svc := outbox.NewService(repo, nil)
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCreditsGranted,
			AggregateType: enums.AggregateAccount,
			AggregateID:   "acct_1",
			Actor:         &outbox.ActorRef{AccountID: "acct_1", Role: "user"},
			Data:          payloads.CreditsGrantedEvent{AccountID: "acct_1", Type: enums.TransactionSignupGrant, Credits: 30, NewBalance: 30},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, client.DB().Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "acct_1", rows[0].AggregateID)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, rows[0].ID.String(), envelope.EventID)
	assert.Equal(t, 1, envelope.Version)

	var data payloads.CreditsGrantedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.EqualValues(t, 30, data.Credits)
}

func TestEmitRolledBackWithTransaction(t *testing.T) {
	client := dbtest.Open(t)
	svc := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := svc.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOperationFailed,
			AggregateType: enums.AggregateOperation,
			AggregateID:   "op_1",
			Data:          map[string]string{"reason": "timeout"},
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	client := dbtest.Open(t)
	repo := outbox.NewRepository(client.DB())
	svc := outbox.NewService(repo, nil)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
			return svc.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventCreditsGranted,
				AggregateType: enums.AggregateAccount,
				AggregateID:   id,
				Data:          map[string]string{"id": id},
			})
		}))
	}

	var batch []models.OutboxEvent
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		batch, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		if err != nil {
			return err
		}
		if err := repo.MarkPublishedTx(tx, batch[0].ID); err != nil {
			return err
		}
		if err := repo.MarkFailedTx(tx, batch[1].ID, errors.New("unavailable")); err != nil {
			return err
		}
		return repo.MarkTerminalTx(tx, batch[2].ID, errors.New("bad payload"), 3)
	}))
	require.Len(t, batch, 3)

	var remaining []models.OutboxEvent
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		remaining, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	require.Len(t, remaining, 1)
	assert.Equal(t, batch[1].ID, remaining[0].ID)
	assert.Equal(t, 1, remaining[0].AttemptCount)
	require.NotNil(t, remaining[0].LastError)
	assert.Equal(t, "unavailable", *remaining[0].LastError)

	pending, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, pending)

	var deleted int64
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		deleted, err = repo.DeletePublishedBefore(ctx, tx, time.Now().UTC().Add(time.Minute))
		return err
	}))
	assert.EqualValues(t, 1, deleted)
}
