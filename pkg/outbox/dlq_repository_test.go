package outbox

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/snapstudio-backend/pkg/db/dbtest"
	"github.com/angelmondragon/snapstudio-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/snapstudio-backend/pkg/db/types"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
)

func deadLetter(aggregateID string, reason enums.OutboxDLQErrorReason, failedAt time.Time) models.OutboxDLQ {
	return models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventCreditsGranted,
		AggregateType: enums.AggregateAccount,
		AggregateID:   aggregateID,
		Payload:       dbtypes.JSON(`{"version":1}`),
		ErrorReason:   reason,
		AttemptCount:  3,
		FailedAt:      failedAt,
	}
}

func TestDLQRepositoryFiltersAndCounts(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewDLQRepository(client.DB())
	ctx := context.Background()
	base := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	entries := []models.OutboxDLQ{
		deadLetter("acct_1", enums.OutboxDLQReasonMaxAttempts, base),
		deadLetter("acct_1", enums.OutboxDLQReasonUnresolvable, base.Add(time.Minute)),
		deadLetter("acct_2", enums.OutboxDLQReasonMaxAttempts, base.Add(2*time.Minute)),
	}
	for _, entry := range entries {
		require.NoError(t, repo.InsertTx(client.DB(), entry))
	}

	rows, err := repo.List(ctx, DLQFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "acct_2", rows[0].AggregateID, "newest first")

	rows, err = repo.List(ctx, DLQFilter{Reason: enums.OutboxDLQReasonMaxAttempts, AggregateID: "acct_1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, entries[0].EventID, rows[0].EventID)

	counts, err := repo.CountByReason(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[enums.OutboxDLQErrorReason]int64{
		enums.OutboxDLQReasonMaxAttempts:  2,
		enums.OutboxDLQReasonUnresolvable: 1,
	}, counts)

	found, err := repo.FindByEventID(ctx, entries[1].EventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	missing, err := repo.FindByEventID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDLQRepositoryKeepsTruncatedMessagesValid(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewDLQRepository(client.DB())

	msg := "x" + strings.Repeat("送", 600)
	entry := deadLetter("acct_1", enums.OutboxDLQReasonNonRetryable, time.Now())
	entry.ErrorMessage = &msg
	require.NoError(t, repo.InsertTx(client.DB(), entry))

	stored, err := repo.FindByEventID(context.Background(), entry.EventID)
	require.NoError(t, err)
	require.NotNil(t, stored.ErrorMessage)
	assert.True(t, utf8.ValidString(*stored.ErrorMessage))
	assert.LessOrEqual(t, len(*stored.ErrorMessage), maxDLQErrorLen)
	assert.Equal(t, 1+(maxDLQErrorLen-1)/3, utf8.RuneCountInString(*stored.ErrorMessage))
}
