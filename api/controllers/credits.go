package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/snapstudio-backend/api/responses"
	"github.com/angelmondragon/snapstudio-backend/api/validators"
	"github.com/angelmondragon/snapstudio-backend/internal/billing"
	"github.com/angelmondragon/snapstudio-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/snapstudio-backend/pkg/errors"
	"github.com/angelmondragon/snapstudio-backend/pkg/logger"
)

// CheckoutService sells credit packages through hosted checkout.
type CheckoutService interface {
	Packages(ctx context.Context) ([]models.CreditPackage, error)
	StartCheckout(ctx context.Context, input billing.CheckoutInput) (*billing.CheckoutResult, error)
}

type checkoutRequest struct {
	PriceID string `json:"price_id" validate:"required,max=255"`
}

func CreditsPackages(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}
		pkgs, err := svc.Packages(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPackageResponses(pkgs))
	}
}

// CreditsCheckout opens a checkout session for one package. Credits are
// granted later by the payment webhook, never here.
func CreditsCheckout(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}
		accountID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		var body checkoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.StartCheckout(r.Context(), billing.CheckoutInput{
			AccountID: accountID,
			PriceID:   validators.SanitizeString(body.PriceID, 255),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
