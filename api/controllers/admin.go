package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/snapstudio-backend/api/middleware"
	"github.com/angelmondragon/snapstudio-backend/api/responses"
	"github.com/angelmondragon/snapstudio-backend/api/validators"
	"github.com/angelmondragon/snapstudio-backend/internal/ledger"
	"github.com/angelmondragon/snapstudio-backend/internal/pricing"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/snapstudio-backend/pkg/errors"
	"github.com/angelmondragon/snapstudio-backend/pkg/logger"
)

// PriceTableAdmin reads and versions the price table.
type PriceTableAdmin interface {
	CurrentTable(ctx context.Context) (*pricing.Table, error)
	History(ctx context.Context, limit int) ([]*pricing.Table, error)
	UpdateTable(ctx context.Context, input pricing.UpdateTableInput) (*pricing.Table, error)
}

// Reconciler replays an account's transaction log.
type Reconciler interface {
	Reconcile(ctx context.Context, accountID string) (*ledger.Reconciliation, error)
}

type priceTableResponse struct {
	Current *pricing.Table   `json:"current"`
	History []*pricing.Table `json:"history,omitempty"`
}

type updatePriceTableRequest struct {
	Entries map[enums.PriceKey]int64 `json:"entries" validate:"required,min=1"`
	Note    string                   `json:"note" validate:"omitempty,max=500"`
}

// AdminPriceTableGet returns the active table. history=N adds the N most
// recent versions.
func AdminPriceTableGet(svc PriceTableAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pricing service unavailable"))
			return
		}
		historyLimit, err := validators.ParseQueryInt(r, "history", 0, 0, 50)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		current, err := svc.CurrentTable(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := priceTableResponse{Current: current}
		if historyLimit > 0 {
			if resp.History, err = svc.History(r.Context(), historyLimit); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		responses.WriteSuccess(w, resp)
	}
}

// AdminPriceTableUpdate writes a new table version. Entries overlay the
// current version; unspecified keys keep their cost.
func AdminPriceTableUpdate(svc PriceTableAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pricing service unavailable"))
			return
		}
		var body updatePriceTableRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		table, err := svc.UpdateTable(r.Context(), pricing.UpdateTableInput{
			Actor:   middleware.UserIDFromContext(r.Context()),
			Note:    validators.SanitizeString(body.Note, 500),
			Entries: body.Entries,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, table)
	}
}

func AdminReconcile(svc Reconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		accountID := strings.TrimSpace(chi.URLParam(r, "accountId"))
		if accountID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "account id is required"))
			return
		}
		report, err := svc.Reconcile(r.Context(), accountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !report.Consistent && logg != nil {
			logCtx := logg.WithFields(logg.WithAccountID(r.Context(), accountID), map[string]any{
				"stored_balance":   report.StoredBalance,
				"replayed_balance": report.ReplayedBalance,
				"problems":         report.Problems,
			})
			logg.Warn(logCtx, "ledger.reconcile.drift")
		}
		responses.WriteSuccess(w, report)
	}
}
