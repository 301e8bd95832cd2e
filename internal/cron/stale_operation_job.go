package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/snapstudio-backend/pkg/logger"
)

const (
	defaultStaleAfter = 30 * time.Minute
	defaultStaleBatch = 100
)

type staleReleaser interface {
	ReleaseStale(ctx context.Context, olderThan time.Duration, batch int) (int, error)
}

type StaleOperationJobParams struct {
	Logger     *logger.Logger
	Releaser   staleReleaser
	StaleAfter time.Duration
	BatchSize  int
}

// NewStaleOperationJob fails and refunds operations left pending past
// StaleAfter, e.g. by a crashed API replica.
func NewStaleOperationJob(params StaleOperationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Releaser == nil {
		return nil, fmt.Errorf("releaser required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultStaleBatch
	}
	return &staleOperationJob{
		logg:       params.Logger,
		releaser:   params.Releaser,
		staleAfter: staleAfter,
		batch:      batch,
	}, nil
}

type staleOperationJob struct {
	logg       *logger.Logger
	releaser   staleReleaser
	staleAfter time.Duration
	batch      int
}

func (j *staleOperationJob) Name() string { return "stale-operation-release" }

// Run drains stale operations batch by batch. A short batch means the
// backlog is empty.
func (j *staleOperationJob) Run(ctx context.Context) error {
	total := 0
	for {
		released, err := j.releaser.ReleaseStale(ctx, j.staleAfter, j.batch)
		total += released
		if err != nil {
			return fmt.Errorf("release stale operations: %w", err)
		}
		if released < j.batch {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"stale_after": j.staleAfter.String(),
		"released":    total,
	})
	j.logg.Info(logCtx, "stale operations released")
	return nil
}
