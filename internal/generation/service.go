package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/snapstudio-backend/internal/credits"
	"github.com/angelmondragon/snapstudio-backend/internal/pricing"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/snapstudio-backend/pkg/errors"
	"github.com/angelmondragon/snapstudio-backend/pkg/logger"
	"github.com/angelmondragon/snapstudio-backend/pkg/metrics"
)

const (
	defaultMaxParallel = 4
	defaultTimeout     = 9 * time.Minute
)

type gate interface {
	Authorize(ctx context.Context, input credits.AuthorizeInput) (*credits.Authorization, error)
	Finalize(ctx context.Context, input credits.FinalizeInput) (*credits.Settlement, error)
}

type ServiceParams struct {
	Gate        gate
	Generator   Generator
	MaxParallel int
	Timeout     time.Duration
	Metrics     *metrics.LedgerMetrics
	Logger      *logger.Logger
}

// Service runs a billable generation end to end: authorize, fan out, settle.
type Service struct {
	gate        gate
	generator   Generator
	maxParallel int
	timeout     time.Duration
	metrics     *metrics.LedgerMetrics
	logg        *logger.Logger
}

type RunInput struct {
	AccountID  string
	Kind       enums.OperationKind
	Parameters pricing.Parameters
}

// Result is a completed generation.
type Result struct {
	OperationID uuid.UUID `json:"operation_id"`
	Cost        int64     `json:"cost"`
	NewBalance  int64     `json:"new_balance"`
	Artifacts   []string  `json:"artifacts"`
}

// FailureDetails accompany a GENERATION_FAILED error.
type FailureDetails struct {
	OperationID uuid.UUID `json:"operation_id"`
	Refunded    int64     `json:"refunded"`
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Gate == nil {
		return nil, errors.New("credit gate required")
	}
	if params.Generator == nil {
		return nil, errors.New("generator required")
	}
	parallel := params.MaxParallel
	if parallel <= 0 {
		parallel = defaultMaxParallel
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Service{
		gate:        params.Gate,
		generator:   params.Generator,
		maxParallel: parallel,
		timeout:     timeout,
		metrics:     params.Metrics,
		logg:        params.Logger,
	}, nil
}

// Run reserves credits, produces every image of the batch and settles. The
// batch is all or nothing: one failed task fails the operation and refunds
// the full cost.
func (s *Service) Run(ctx context.Context, input RunInput) (*Result, error) {
	auth, err := s.gate.Authorize(ctx, credits.AuthorizeInput{
		AccountID:  input.AccountID,
		Kind:       input.Kind,
		Parameters: input.Parameters,
	})
	if err != nil {
		return nil, err
	}

	started := time.Now()
	tasks := PlanTasks(auth.OperationID, input.AccountID, input.Kind, input.Parameters, auth.Quote)
	artifacts, genErr := s.fanOut(ctx, tasks)
	if genErr != nil {
		s.metrics.ObserveGeneration(input.Kind.String(), "failed", time.Since(started))
		return nil, s.release(ctx, input.AccountID, auth.OperationID, genErr)
	}

	if _, err := s.gate.Finalize(context.WithoutCancel(ctx), credits.FinalizeInput{
		OperationID: auth.OperationID,
		Outcome:     enums.OutcomeCompleted,
		Artifacts:   artifacts,
	}); err != nil {
		s.logFailure(ctx, input.AccountID, auth.OperationID, "finalize completed operation failed", err)
		return nil, err
	}
	s.metrics.ObserveGeneration(input.Kind.String(), "completed", time.Since(started))

	return &Result{
		OperationID: auth.OperationID,
		Cost:        auth.Cost,
		NewBalance:  auth.NewBalance,
		Artifacts:   artifacts,
	}, nil
}

func (s *Service) fanOut(ctx context.Context, tasks []Task) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)
	artifacts := make([]string, len(tasks))
	for i, task := range tasks {
		g.Go(func() error {
			path, err := s.generator.Generate(gctx, task)
			if err != nil {
				return err
			}
			artifacts[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return artifacts, nil
}

// release refunds the operation. It runs detached from the request context
// so a client disconnect or timeout cannot skip it.
func (s *Service) release(ctx context.Context, accountID string, opID uuid.UUID, cause error) error {
	details := FailureDetails{OperationID: opID}
	settlement, err := s.gate.Finalize(context.WithoutCancel(ctx), credits.FinalizeInput{
		OperationID: opID,
		Outcome:     enums.OutcomeFailed,
		Reason:      truncate(cause.Error(), 500),
	})
	if err != nil {
		// the stale-operation job refunds it later
		s.logFailure(ctx, accountID, opID, "release after failed generation failed", err)
	} else {
		details.Refunded = settlement.Refunded
	}
	s.logFailure(ctx, accountID, opID, "generation failed", cause)
	return pkgerrors.Wrap(pkgerrors.CodeGenerationFailed, cause, fmt.Sprintf("generation failed for operation %s", opID)).
		WithDetails(details)
}

func (s *Service) logFailure(ctx context.Context, accountID string, opID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithOperationID(s.logg.WithAccountID(ctx, accountID), opID.String())
	s.logg.Error(logCtx, msg, err)
}

// truncate caps s at n bytes without splitting a character. Gateway error
// text is not guaranteed to be valid UTF-8, so it is repaired first.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
