package credits

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/snapstudio-backend/internal/ledger"
	"github.com/angelmondragon/snapstudio-backend/internal/operations"
	"github.com/angelmondragon/snapstudio-backend/internal/pricing"
	"github.com/angelmondragon/snapstudio-backend/internal/usage"
	"github.com/angelmondragon/snapstudio-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/snapstudio-backend/pkg/db/types"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/snapstudio-backend/pkg/errors"
	"github.com/angelmondragon/snapstudio-backend/pkg/logger"
	"github.com/angelmondragon/snapstudio-backend/pkg/metrics"
	"github.com/angelmondragon/snapstudio-backend/pkg/outbox"
	"github.com/angelmondragon/snapstudio-backend/pkg/outbox/payloads"
)

const (
	defaultStaleBatch  = 100
	staleFailureReason = "operation timed out before settlement"
)

type quoter interface {
	Quote(ctx context.Context, kind enums.OperationKind, params pricing.Parameters) (pricing.Quote, error)
}

type ledgerWriter interface {
	RunInTx(ctx context.Context, op string, fn func(tx *gorm.DB) error) error
	Apply(ctx context.Context, tx *gorm.DB, entry ledger.Entry) (*models.CreditTransaction, error)
	RecordGeneration(ctx context.Context, tx *gorm.DB, accountID string, images int, at time.Time) error
}

type usageRecorder interface {
	Record(ctx context.Context, accountID string, day time.Time, delta usage.Delta) error
}

type GateParams struct {
	Ledger     ledgerWriter
	Operations *operations.Repository
	Pricing    quoter
	Usage      usageRecorder
	Outbox     outbox.Emitter
	Metrics    *metrics.LedgerMetrics
	Logger     *logger.Logger
}

// Gate reserves credits before expensive work and settles them afterwards.
type Gate struct {
	ledger  ledgerWriter
	ops     *operations.Repository
	pricing quoter
	usage   usageRecorder
	outbox  outbox.Emitter
	metrics *metrics.LedgerMetrics
	logg    *logger.Logger
	now     func() time.Time
}

type AuthorizeInput struct {
	AccountID  string
	Kind       enums.OperationKind
	Parameters pricing.Parameters
}

// Authorization is a successful reservation.
type Authorization struct {
	OperationID uuid.UUID     `json:"operation_id"`
	Cost        int64         `json:"cost"`
	NewBalance  int64         `json:"new_balance"`
	Quote       pricing.Quote `json:"quote"`
}

type FinalizeInput struct {
	OperationID uuid.UUID
	Outcome     enums.OperationOutcome
	Artifacts   []string
	Reason      string
}

// Settlement reports the final state of an operation. AlreadySettled is set
// when the call repeated an earlier identical finalize.
type Settlement struct {
	OperationID    uuid.UUID             `json:"operation_id"`
	AccountID      string                `json:"account_id"`
	Status         enums.OperationStatus `json:"status"`
	Cost           int64                 `json:"cost"`
	Refunded       int64                 `json:"refunded"`
	AlreadySettled bool                  `json:"already_settled"`
}

func NewGate(params GateParams) (*Gate, error) {
	switch {
	case params.Ledger == nil:
		return nil, errors.New("ledger required")
	case params.Operations == nil:
		return nil, errors.New("operations repository required")
	case params.Pricing == nil:
		return nil, errors.New("pricing required")
	case params.Outbox == nil:
		return nil, errors.New("outbox emitter required")
	}
	return &Gate{
		ledger:  params.Ledger,
		ops:     params.Operations,
		pricing: params.Pricing,
		usage:   params.Usage,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     time.Now,
	}, nil
}

// Authorize prices the operation, debits the account and records a pending
// operation in one transaction. A short balance yields INSUFFICIENT_CREDITS
// with the need and have read inside the final attempt.
func (g *Gate) Authorize(ctx context.Context, input AuthorizeInput) (*Authorization, error) {
	accountID := strings.TrimSpace(input.AccountID)
	if accountID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	if !input.Kind.IsValid() {
		g.metrics.IncAuthorization(string(input.Kind), "invalid")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown operation kind")
	}
	quote, err := g.pricing.Quote(ctx, input.Kind, input.Parameters)
	if err != nil {
		g.metrics.IncAuthorization(input.Kind.String(), "invalid")
		return nil, err
	}
	rawParams, err := json.Marshal(input.Parameters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode parameters")
	}

	opID := uuid.New()
	var newBalance int64
	err = g.ledger.RunInTx(ctx, "authorize", func(tx *gorm.DB) error {
		txn, err := g.ledger.Apply(ctx, tx, ledger.Entry{
			AccountID:   accountID,
			Type:        enums.TransactionDeduction,
			Amount:      -quote.Cost,
			OperationID: &opID,
			Description: "Charge for " + input.Kind.String(),
		})
		if err != nil {
			return err
		}
		newBalance = txn.BalanceAfter

		if err := g.ops.WithTx(tx).Create(ctx, &models.Operation{
			ID:              opID,
			AccountID:       accountID,
			Kind:            input.Kind,
			Status:          enums.OperationStatusPending,
			Cost:            quote.Cost,
			ImagesRequested: quote.Images,
			Parameters:      dbtypes.JSON(rawParams),
			Artifacts:       dbtypes.StringList{},
			CreatedAt:       g.now().UTC(),
		}); err != nil {
			return err
		}

		return g.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOperationAuthorized,
			AggregateType: enums.AggregateOperation,
			AggregateID:   opID.String(),
			Actor:         &outbox.ActorRef{AccountID: accountID, Role: enums.RoleUser.String()},
			Data: payloads.OperationAuthorizedEvent{
				OperationID: opID,
				AccountID:   accountID,
				Kind:        input.Kind,
				Cost:        quote.Cost,
				NewBalance:  newBalance,
			},
		})
	})
	if err != nil {
		g.metrics.IncAuthorization(input.Kind.String(), authorizeOutcome(err))
		if pkgerrors.As(err) == nil {
			g.logError(ctx, accountID, opID, "authorize failed", err)
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "authorize operation")
		}
		return nil, err
	}

	g.metrics.IncAuthorization(input.Kind.String(), "authorized")
	return &Authorization{OperationID: opID, Cost: quote.Cost, NewBalance: newBalance, Quote: quote}, nil
}

func authorizeOutcome(err error) string {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeInsufficientCredits:
		return "insufficient"
	case pkgerrors.CodeConflict:
		return "conflict"
	case pkgerrors.CodeNotFound:
		return "unknown_account"
	default:
		return "error"
	}
}

// Finalize settles a pending operation. Completion keeps the debit and
// bumps usage; failure refunds the full cost in the same transaction.
// Repeating the same outcome is a no-op and the opposite outcome is
// STATE_CONFLICT.
func (g *Gate) Finalize(ctx context.Context, input FinalizeInput) (*Settlement, error) {
	if input.OperationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "operation id is required")
	}
	if !input.Outcome.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "outcome must be completed or failed")
	}
	target := input.Outcome.Status()

	var (
		settlement Settlement
		images     int
	)
	err := g.ledger.RunInTx(ctx, "finalize", func(tx *gorm.DB) error {
		ops := g.ops.WithTx(tx)
		op, err := ops.FindByID(ctx, input.OperationID)
		if err != nil {
			return err
		}
		if op == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "operation not found")
		}
		settlement = Settlement{OperationID: op.ID, AccountID: op.AccountID, Status: op.Status, Cost: op.Cost}

		if op.Status.IsTerminal() {
			if op.Status != target {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "operation already "+op.Status.String()).
					WithDetails(map[string]any{"operation_id": op.ID, "status": op.Status})
			}
			settlement.AlreadySettled = true
			if op.Status == enums.OperationStatusFailed {
				settlement.Refunded = op.Cost
			}
			return nil
		}

		now := g.now().UTC()
		if target == enums.OperationStatusCompleted {
			images, err = g.complete(ctx, tx, op, input.Artifacts, now)
		} else {
			err = g.fail(ctx, tx, op, input.Reason, now)
			settlement.Refunded = op.Cost
		}
		if err != nil {
			return err
		}
		settlement.Status = target
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			g.logError(ctx, "", input.OperationID, "finalize failed", err)
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "finalize operation")
		}
		return nil, err
	}

	if settlement.AlreadySettled {
		g.metrics.IncFinalization("noop")
		return &settlement, nil
	}
	g.metrics.IncFinalization(string(input.Outcome))
	if settlement.Status == enums.OperationStatusCompleted {
		g.recordUsage(ctx, settlement, images)
	}
	return &settlement, nil
}

func (g *Gate) complete(ctx context.Context, tx *gorm.DB, op *models.Operation, artifacts []string, now time.Time) (int, error) {
	paths := cleanArtifacts(artifacts)
	ok, err := g.ops.WithTx(tx).TransitionFromPending(ctx, op.ID, enums.OperationStatusCompleted, map[string]any{
		"artifacts":    dbtypes.StringList(paths),
		"completed_at": now,
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ledger.ErrWriteConflict
	}

	images := len(paths)
	if images == 0 {
		images = op.ImagesRequested
	}
	if err := g.ledger.RecordGeneration(ctx, tx, op.AccountID, images, now); err != nil {
		return 0, err
	}
	return images, g.outbox.Emit(ctx, tx, settledEvent(op, enums.EventOperationCompleted, images, 0, "", now))
}

func (g *Gate) fail(ctx context.Context, tx *gorm.DB, op *models.Operation, reason string, now time.Time) error {
	reason = strings.TrimSpace(strings.ToValidUTF8(reason, "\uFFFD"))
	if reason == "" {
		reason = "generation failed"
	}
	ok, err := g.ops.WithTx(tx).TransitionFromPending(ctx, op.ID, enums.OperationStatusFailed, map[string]any{
		"failure_reason": reason,
		"failed_at":      now,
	})
	if err != nil {
		return err
	}
	if !ok {
		return ledger.ErrWriteConflict
	}

	opID := op.ID
	if _, err := g.ledger.Apply(ctx, tx, ledger.Entry{
		AccountID:   op.AccountID,
		Type:        enums.TransactionRefund,
		Amount:      op.Cost,
		OperationID: &opID,
		Description: "Refund for failed " + op.Kind.String(),
	}); err != nil {
		return err
	}
	return g.outbox.Emit(ctx, tx, settledEvent(op, enums.EventOperationFailed, 0, op.Cost, reason, now))
}

func settledEvent(op *models.Operation, eventType enums.OutboxEventType, images int, refunded int64, reason string, now time.Time) outbox.DomainEvent {
	status := enums.OperationStatusCompleted
	if eventType == enums.EventOperationFailed {
		status = enums.OperationStatusFailed
	}
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOperation,
		AggregateID:   op.ID.String(),
		Actor:         &outbox.ActorRef{AccountID: op.AccountID, Role: enums.RoleService.String()},
		Data: payloads.OperationSettledEvent{
			OperationID:     op.ID,
			AccountID:       op.AccountID,
			Kind:            op.Kind,
			Status:          status,
			Cost:            op.Cost,
			ImagesGenerated: images,
			Refunded:        refunded,
			Reason:          reason,
			SettledAt:       now,
		},
	}
}

// recordUsage runs after commit; failures only cost report accuracy.
func (g *Gate) recordUsage(ctx context.Context, settlement Settlement, images int) {
	if g.usage == nil {
		return
	}
	err := g.usage.Record(ctx, settlement.AccountID, g.now(), usage.Delta{
		Generations: 1,
		Images:      int64(images),
		Credits:     settlement.Cost,
	})
	if err != nil && g.logg != nil {
		logCtx := g.logg.WithOperationID(g.logg.WithAccountID(ctx, settlement.AccountID), settlement.OperationID.String())
		g.logg.Warn(logCtx, "usage record dropped: "+err.Error())
	}
}

// ReleaseStale fails and refunds operations still pending after olderThan.
// It returns how many it released.
func (g *Gate) ReleaseStale(ctx context.Context, olderThan time.Duration, batch int) (int, error) {
	if batch <= 0 {
		batch = defaultStaleBatch
	}
	ids, err := g.ops.ListStalePending(ctx, g.now().Add(-olderThan), batch)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale operations")
	}

	released := 0
	var errs error
	for _, id := range ids {
		settlement, err := g.Finalize(ctx, FinalizeInput{OperationID: id, Outcome: enums.OutcomeFailed, Reason: staleFailureReason})
		switch {
		case err == nil && !settlement.AlreadySettled:
			released++
		case err == nil, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
			// settled by the orchestration in the meantime
		default:
			errs = multierr.Append(errs, err)
		}
	}
	return released, errs
}

func cleanArtifacts(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (g *Gate) logError(ctx context.Context, accountID string, opID uuid.UUID, msg string, err error) {
	if g.logg == nil {
		return
	}
	logCtx := g.logg.WithOperationID(ctx, opID.String())
	if accountID != "" {
		logCtx = g.logg.WithAccountID(logCtx, accountID)
	}
	g.logg.Error(logCtx, msg, err)
}
