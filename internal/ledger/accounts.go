package ledger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/snapstudio-backend/pkg/db/models"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/snapstudio-backend/pkg/errors"
	"github.com/angelmondragon/snapstudio-backend/pkg/pagination"
)

// SubscriptionState is the provider view of an account's subscription.
type SubscriptionState struct {
	Plan           enums.Plan
	SubscriptionID string
	CustomerID     string
	Status         string
	PriceID        string
	PeriodEnd      *time.Time
}

// TransactionPage is one page of history, newest first.
type TransactionPage struct {
	Transactions []models.CreditTransaction
	NextCursor   string
}

// SetPlan changes the plan column only.
func (s *Service) SetPlan(ctx context.Context, tx *gorm.DB, accountID string, plan enums.Plan) error {
	if !plan.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid plan")
	}
	return s.updateAccount(ctx, tx, accountID, map[string]any{"plan": plan})
}

// SetSubscription mirrors the provider subscription onto the account.
func (s *Service) SetSubscription(ctx context.Context, tx *gorm.DB, accountID string, state SubscriptionState) error {
	if !state.Plan.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid plan")
	}
	updates := map[string]any{
		"plan":                    state.Plan,
		"subscription_id":         nullable(state.SubscriptionID),
		"subscription_status":     nullable(state.Status),
		"subscription_price_id":   nullable(state.PriceID),
		"subscription_period_end": state.PeriodEnd,
	}
	if state.CustomerID != "" {
		updates["stripe_customer_id"] = state.CustomerID
	}
	return s.updateAccount(ctx, tx, accountID, updates)
}

// ClearSubscription drops the account back to the free plan.
func (s *Service) ClearSubscription(ctx context.Context, tx *gorm.DB, accountID string) error {
	return s.updateAccount(ctx, tx, accountID, map[string]any{
		"plan":                    enums.PlanFree,
		"subscription_id":         nil,
		"subscription_status":     nil,
		"subscription_price_id":   nil,
		"subscription_period_end": nil,
	})
}

// MarkPurchase stores the paying customer and the purchase time.
func (s *Service) MarkPurchase(ctx context.Context, tx *gorm.DB, accountID, customerID string, at time.Time) error {
	updates := map[string]any{"last_purchase_at": at.UTC()}
	if customerID != "" {
		updates["stripe_customer_id"] = customerID
	}
	return s.updateAccount(ctx, tx, accountID, updates)
}

// RecordGeneration bumps the account stats after a completed operation.
func (s *Service) RecordGeneration(ctx context.Context, tx *gorm.DB, accountID string, images int, at time.Time) error {
	return s.updateAccount(ctx, tx, accountID, map[string]any{
		"total_generations":      gorm.Expr("total_generations + 1"),
		"total_images_generated": gorm.Expr("total_images_generated + ?", images),
		"last_generation_at":     at.UTC(),
	})
}

func (s *Service) updateAccount(ctx context.Context, tx *gorm.DB, accountID string, updates map[string]any) error {
	if tx == nil {
		return errors.New("account update requires a transaction")
	}
	err := s.repo.WithTx(tx).UpdateAccount(ctx, accountID, updates)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	}
	return err
}

// ListTransactions returns the account history newest first.
func (s *Service) ListTransactions(ctx context.Context, accountID string, params pagination.Params) (*TransactionPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListTransactions(ctx, accountID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}

	page := &TransactionPage{}
	page.Transactions, page.NextCursor = pagination.Trim(rows, params.Limit, func(txn models.CreditTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: txn.CreatedAt, ID: txn.ID}
	})
	return page, nil
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
