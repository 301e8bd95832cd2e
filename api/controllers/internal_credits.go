package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/snapstudio-backend/api/responses"
	"github.com/angelmondragon/snapstudio-backend/api/validators"
	"github.com/angelmondragon/snapstudio-backend/internal/credits"
	"github.com/angelmondragon/snapstudio-backend/internal/ledger"
	"github.com/angelmondragon/snapstudio-backend/internal/pricing"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/snapstudio-backend/pkg/errors"
	"github.com/angelmondragon/snapstudio-backend/pkg/logger"
)

// CreditGate is the reservation surface used by trusted callers.
type CreditGate interface {
	Authorize(ctx context.Context, input credits.AuthorizeInput) (*credits.Authorization, error)
	Finalize(ctx context.Context, input credits.FinalizeInput) (*credits.Settlement, error)
}

type authorizeRequest struct {
	AccountID  string             `json:"account_id" validate:"required,max=128"`
	Kind       string             `json:"kind" validate:"required"`
	Parameters pricing.Parameters `json:"parameters"`
}

type authorizedResponse struct {
	Authorized  bool      `json:"authorized"`
	OperationID uuid.UUID `json:"operation_id"`
	Cost        int64     `json:"cost"`
	NewBalance  int64     `json:"new_balance"`
}

type declinedResponse struct {
	Authorized bool  `json:"authorized"`
	Need       int64 `json:"need"`
	Have       int64 `json:"have"`
}

type finalizeRequest struct {
	Outcome   string   `json:"outcome" validate:"required,oneof=completed failed"`
	Artifacts []string `json:"artifacts" validate:"omitempty,max=64,dive,required,max=1024"`
	Reason    string   `json:"reason" validate:"omitempty,max=2000"`
}

// InternalAuthorize reserves credits for an operation. A short balance is a
// regular answer (402 with need and have) rather than an error envelope.
func InternalAuthorize(gate CreditGate, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if gate == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credit gate unavailable"))
			return
		}
		var body authorizeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req := operationRequest{Kind: body.Kind}
		kind, err := req.kind()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithAccountID(ctx, body.AccountID)
		}
		auth, err := gate.Authorize(ctx, credits.AuthorizeInput{
			AccountID:  strings.TrimSpace(body.AccountID),
			Kind:       kind,
			Parameters: body.Parameters,
		})
		if err != nil {
			if shortfall, ok := ledger.ShortfallOf(err); ok {
				responses.WriteSuccessStatus(w, http.StatusPaymentRequired, declinedResponse{
					Authorized: false,
					Need:       shortfall.Need,
					Have:       shortfall.Have,
				})
				return
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, authorizedResponse{
			Authorized:  true,
			OperationID: auth.OperationID,
			Cost:        auth.Cost,
			NewBalance:  auth.NewBalance,
		})
	}
}

// InternalFinalize settles a pending operation as completed or failed.
func InternalFinalize(gate CreditGate, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if gate == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credit gate unavailable"))
			return
		}
		id, err := operationIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body finalizeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		outcome, err := enums.ParseOperationOutcome(body.Outcome)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid outcome"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOperationID(ctx, id.String())
		}
		settlement, err := gate.Finalize(ctx, credits.FinalizeInput{
			OperationID: id,
			Outcome:     outcome,
			Artifacts:   body.Artifacts,
			Reason:      validators.SanitizeString(body.Reason, 2000),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, settlement)
	}
}
