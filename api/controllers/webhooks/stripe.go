package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/snapstudio-backend/api/responses"
	stripewebhook "github.com/angelmondragon/snapstudio-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/snapstudio-backend/pkg/errors"
	"github.com/angelmondragon/snapstudio-backend/pkg/logger"
)

// maxPayloadBytes matches the provider's documented event size ceiling.
const maxPayloadBytes = 65536

type StripeWebhookService interface {
	Handle(ctx context.Context, payload []byte, signature string) (*stripewebhook.Result, error)
}

type receivedResponse struct {
	Received  bool   `json:"received"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
}

// StripeWebhook verifies and applies payment events. Signature failures
// answer 400; other failures answer 5xx so the provider redelivers.
func StripeWebhook(svc StripeWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		result, err := svc.Handle(ctx, payload, r.Header.Get("Stripe-Signature"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, receivedResponse{
			Received:  true,
			EventID:   result.EventID,
			Duplicate: result.Duplicate,
			Ignored:   result.Ignored,
		})
	}
}
