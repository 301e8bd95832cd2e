package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/snapstudio-backend/api/middleware"
	"github.com/angelmondragon/snapstudio-backend/api/responses"
	"github.com/angelmondragon/snapstudio-backend/api/validators"
	"github.com/angelmondragon/snapstudio-backend/internal/ledger"
	"github.com/angelmondragon/snapstudio-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/snapstudio-backend/pkg/errors"
	"github.com/angelmondragon/snapstudio-backend/pkg/logger"
	"github.com/angelmondragon/snapstudio-backend/pkg/pagination"
)

const defaultUsageWindow = 30 * 24 * time.Hour

// AccountService is the ledger surface behind the account routes.
type AccountService interface {
	OpenAccount(ctx context.Context, input ledger.OpenAccountInput) (*models.Account, bool, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	ListTransactions(ctx context.Context, accountID string, params pagination.Params) (*ledger.TransactionPage, error)
}

// UsageReader serves the daily usage counters.
type UsageReader interface {
	List(ctx context.Context, accountID string, from, to time.Time) ([]models.UsageDaily, error)
}

type openAccountRequest struct {
	DisplayName string `json:"display_name" validate:"omitempty,max=120"`
}

// AccountOpen ensures the caller's account exists. The first call grants the
// signup credits and answers 201; repeats answer 200 with the stored account.
func AccountOpen(svc AccountService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "account service unavailable"))
			return
		}
		accountID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		var body openAccountRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		account, created, err := svc.OpenAccount(r.Context(), ledger.OpenAccountInput{
			AccountID:   accountID,
			Email:       middleware.EmailFromContext(r.Context()),
			DisplayName: validators.SanitizeString(body.DisplayName, 120),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, newAccountResponse(account))
	}
}

func AccountGet(svc AccountService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "account service unavailable"))
			return
		}
		accountID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		account, err := svc.GetAccount(r.Context(), accountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAccountResponse(account))
	}
}

// AccountTransactions pages through the caller's credit history, newest first.
func AccountTransactions(svc AccountService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "account service unavailable"))
			return
		}
		accountID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListTransactions(r.Context(), accountID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := transactionPageResponse{
			Items:  make([]transactionResponse, 0, len(page.Transactions)),
			Cursor: page.NextCursor,
		}
		for _, txn := range page.Transactions {
			resp.Items = append(resp.Items, newTransactionResponse(txn))
		}
		responses.WriteSuccess(w, resp)
	}
}

// AccountUsage returns daily usage between from and to (YYYY-MM-DD, inclusive).
// The default window is the last 30 days.
func AccountUsage(usage UsageReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if usage == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "usage service unavailable"))
			return
		}
		accountID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		now := time.Now().UTC()
		to, err := validators.ParseQueryDate(r, "to", now)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		from, err := validators.ParseQueryDate(r, "from", to.Add(-defaultUsageWindow))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := usage.List(r.Context(), accountID, from, to)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newUsageResponse(from, to, rows))
	}
}

func requireUser(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (string, bool) {
	userID := strings.TrimSpace(middleware.UserIDFromContext(r.Context()))
	if userID == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return "", false
	}
	return userID, true
}

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}
