package cron

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"go.uber.org/multierr"

	bq "github.com/angelmondragon/snapstudio-backend/pkg/bigquery"
	"github.com/angelmondragon/snapstudio-backend/pkg/db/models"
	"github.com/angelmondragon/snapstudio-backend/pkg/logger"
)

const (
	usageExportEvery     = time.Hour
	usageExportChunkSize = 500
)

type usageDayLister interface {
	ListDay(ctx context.Context, day time.Time) ([]models.UsageDaily, error)
}

type UsageExportJobParams struct {
	Logger   *logger.Logger
	Usage    usageDayLister
	Inserter bq.RowInserter
	Table    string
}

// NewUsageExportJob snapshots yesterday's and today's usage_daily rows into
// the warehouse. Rows are append-only there; readers keep the newest
// exported_at per (account_id, day).
func NewUsageExportJob(params UsageExportJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Usage == nil {
		return nil, fmt.Errorf("usage lister required")
	}
	if params.Inserter == nil {
		return nil, fmt.Errorf("bigquery inserter required")
	}
	if params.Table == "" {
		return nil, fmt.Errorf("usage table required")
	}
	return &usageExportJob{
		logg:     params.Logger,
		usage:    params.Usage,
		inserter: params.Inserter,
		table:    params.Table,
		now:      time.Now,
	}, nil
}

type usageExportJob struct {
	logg     *logger.Logger
	usage    usageDayLister
	inserter bq.RowInserter
	table    string
	now      func() time.Time
}

func (j *usageExportJob) Name() string { return "usage-export" }

func (j *usageExportJob) Every() time.Duration { return usageExportEvery }

func (j *usageExportJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs error
	exported := 0
	for _, day := range []time.Time{now.AddDate(0, 0, -1), now} {
		n, err := j.exportDay(ctx, day, now)
		exported += n
		errs = multierr.Append(errs, err)
	}
	if errs != nil {
		return fmt.Errorf("usage export: %w", errs)
	}
	j.logg.Info(j.logg.WithField(ctx, "rows_exported", exported), "usage export complete")
	return nil
}

func (j *usageExportJob) exportDay(ctx context.Context, day, exportedAt time.Time) (int, error) {
	rows, err := j.usage.ListDay(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("list usage for %s: %w", day.Format(time.DateOnly), err)
	}
	exported := 0
	for start := 0; start < len(rows); start += usageExportChunkSize {
		end := min(start+usageExportChunkSize, len(rows))
		batch := make([]any, 0, end-start)
		for _, row := range rows[start:end] {
			batch = append(batch, usageRow(row, exportedAt))
		}
		if err := j.inserter.InsertRows(ctx, j.table, batch); err != nil {
			return exported, fmt.Errorf("insert usage rows for %s: %w", day.Format(time.DateOnly), err)
		}
		exported += len(batch)
	}
	return exported, nil
}

func usageRow(row models.UsageDaily, exportedAt time.Time) bq.UsageDailyRow {
	return bq.UsageDailyRow{
		AccountID:        row.AccountID,
		Day:              bigquery.NullDate{Date: civil.DateOf(row.Day), Valid: true},
		GenerationsCount: row.GenerationsCount,
		ImagesGenerated:  row.ImagesGenerated,
		CreditsUsed:      row.CreditsUsed,
		ExportedAt:       exportedAt,
	}
}
