package usage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/snapstudio-backend/pkg/db/dbtest"
	pkgerrors "github.com/angelmondragon/snapstudio-backend/pkg/errors"
)

func TestDayOfTruncatesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	got := DayOf(time.Date(2026, 3, 1, 22, 30, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), got)
}

func TestRecordAccumulates(t *testing.T) {
	client := dbtest.Open(t)
	agg := NewAggregator(client.DB())
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, agg.Record(ctx, "acct_1", day, Delta{Generations: 1, Images: 3, Credits: 9}))
	require.NoError(t, agg.Record(ctx, "acct_1", day.Add(5*time.Hour), Delta{Generations: 1, Images: 1, Credits: 3}))
	require.NoError(t, agg.Record(ctx, "acct_1", day.Add(24*time.Hour), Delta{Generations: 1, Images: 2, Credits: 6}))

	rows, err := agg.List(ctx, "acct_1", day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.EqualValues(t, 2, rows[0].GenerationsCount)
	assert.EqualValues(t, 4, rows[0].ImagesGenerated)
	assert.EqualValues(t, 12, rows[0].CreditsUsed)
	assert.EqualValues(t, 6, rows[1].CreditsUsed)
}

func TestRecordConcurrentIncrementsAreNotLost(t *testing.T) {
	client := dbtest.Open(t)
	agg := NewAggregator(client.DB())
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, agg.Record(ctx, "acct_1", day, Delta{Generations: 1, Images: 2, Credits: 3}))
		}()
	}
	wg.Wait()

	rows, err := agg.ListDay(ctx, day)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 20, rows[0].GenerationsCount)
	assert.EqualValues(t, 40, rows[0].ImagesGenerated)
	assert.EqualValues(t, 60, rows[0].CreditsUsed)
}

func TestListValidatesRange(t *testing.T) {
	client := dbtest.Open(t)
	agg := NewAggregator(client.DB())
	now := time.Now()

	_, err := agg.List(context.Background(), "acct_1", now, now.Add(-48*time.Hour))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = agg.List(context.Background(), "acct_1", now.Add(-400*24*time.Hour), now)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRecordRequiresAccount(t *testing.T) {
	client := dbtest.Open(t)
	assert.Error(t, NewAggregator(client.DB()).Record(context.Background(), "", time.Now(), Delta{}))
}
