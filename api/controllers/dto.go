package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/snapstudio-backend/pkg/db/models"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
)

type accountResponse struct {
	ID                   string             `json:"id"`
	Email                string             `json:"email"`
	DisplayName          string             `json:"display_name"`
	Balance              int64              `json:"balance"`
	LifetimeCredits      int64              `json:"lifetime_credits"`
	Plan                 enums.Plan         `json:"plan"`
	Subscription         *subscriptionBlock `json:"subscription,omitempty"`
	TotalGenerations     int64              `json:"total_generations"`
	TotalImagesGenerated int64              `json:"total_images_generated"`
	LastGenerationAt     *time.Time         `json:"last_generation_at,omitempty"`
	LastPurchaseAt       *time.Time         `json:"last_purchase_at,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
}

type subscriptionBlock struct {
	ID        string     `json:"id"`
	Status    string     `json:"status,omitempty"`
	PriceID   string     `json:"price_id,omitempty"`
	PeriodEnd *time.Time `json:"period_end,omitempty"`
}

func newAccountResponse(a *models.Account) accountResponse {
	resp := accountResponse{
		ID:                   a.ID,
		Email:                a.Email,
		DisplayName:          a.DisplayName,
		Balance:              a.Balance,
		LifetimeCredits:      a.LifetimeCredits,
		Plan:                 a.Plan,
		TotalGenerations:     a.TotalGenerations,
		TotalImagesGenerated: a.TotalImagesGenerated,
		LastGenerationAt:     a.LastGenerationAt,
		LastPurchaseAt:       a.LastPurchaseAt,
		CreatedAt:            a.CreatedAt,
	}
	if a.SubscriptionID != nil && *a.SubscriptionID != "" {
		resp.Subscription = &subscriptionBlock{
			ID:        *a.SubscriptionID,
			Status:    deref(a.SubscriptionStatus),
			PriceID:   deref(a.SubscriptionPriceID),
			PeriodEnd: a.SubscriptionPeriodEnd,
		}
	}
	return resp
}

type transactionResponse struct {
	ID              uuid.UUID             `json:"id"`
	Type            enums.TransactionType `json:"type"`
	Amount          int64                 `json:"amount"`
	BalanceBefore   int64                 `json:"balance_before"`
	BalanceAfter    int64                 `json:"balance_after"`
	OperationID     *uuid.UUID            `json:"operation_id,omitempty"`
	ExternalEventID *string               `json:"external_event_id,omitempty"`
	Description     string                `json:"description,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
}

type transactionPageResponse struct {
	Items  []transactionResponse `json:"items"`
	Cursor string                `json:"cursor"`
}

func newTransactionResponse(t models.CreditTransaction) transactionResponse {
	return transactionResponse{
		ID:              t.ID,
		Type:            t.Type,
		Amount:          t.Amount,
		BalanceBefore:   t.BalanceBefore,
		BalanceAfter:    t.BalanceAfter,
		OperationID:     t.OperationID,
		ExternalEventID: t.ExternalEventID,
		Description:     t.Description,
		CreatedAt:       t.CreatedAt,
	}
}

type usageDayResponse struct {
	Day              string `json:"day"`
	GenerationsCount int64  `json:"generations_count"`
	ImagesGenerated  int64  `json:"images_generated"`
	CreditsUsed      int64  `json:"credits_used"`
}

type usageResponse struct {
	From             string             `json:"from"`
	To               string             `json:"to"`
	Days             []usageDayResponse `json:"days"`
	GenerationsCount int64              `json:"generations_count"`
	ImagesGenerated  int64              `json:"images_generated"`
	CreditsUsed      int64              `json:"credits_used"`
}

func newUsageResponse(from, to time.Time, rows []models.UsageDaily) usageResponse {
	resp := usageResponse{
		From: from.Format(dateLayout),
		To:   to.Format(dateLayout),
		Days: make([]usageDayResponse, 0, len(rows)),
	}
	for _, row := range rows {
		resp.Days = append(resp.Days, usageDayResponse{
			Day:              row.Day.UTC().Format(dateLayout),
			GenerationsCount: row.GenerationsCount,
			ImagesGenerated:  row.ImagesGenerated,
			CreditsUsed:      row.CreditsUsed,
		})
		resp.GenerationsCount += row.GenerationsCount
		resp.ImagesGenerated += row.ImagesGenerated
		resp.CreditsUsed += row.CreditsUsed
	}
	return resp
}

type packageResponse struct {
	PriceID  string     `json:"price_id"`
	Name     string     `json:"name"`
	Credits  int64      `json:"credits"`
	Plan     enums.Plan `json:"plan"`
	Price    string     `json:"price"`
	Currency string     `json:"currency"`
}

func newPackageResponses(pkgs []models.CreditPackage) []packageResponse {
	out := make([]packageResponse, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, packageResponse{
			PriceID:  p.PriceID,
			Name:     p.Name,
			Credits:  p.Credits,
			Plan:     p.Plan,
			Price:    p.PriceAmount.StringFixed(2),
			Currency: p.Currency,
		})
	}
	return out
}

const dateLayout = "2006-01-02"

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
