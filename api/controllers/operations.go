package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/snapstudio-backend/api/responses"
	"github.com/angelmondragon/snapstudio-backend/api/validators"
	"github.com/angelmondragon/snapstudio-backend/internal/generation"
	"github.com/angelmondragon/snapstudio-backend/internal/operations"
	"github.com/angelmondragon/snapstudio-backend/internal/pricing"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/snapstudio-backend/pkg/errors"
	"github.com/angelmondragon/snapstudio-backend/pkg/logger"
	"github.com/angelmondragon/snapstudio-backend/pkg/pagination"
)

// GenerationRunner runs a billable operation end to end.
type GenerationRunner interface {
	Run(ctx context.Context, input generation.RunInput) (*generation.Result, error)
}

// Quoter prices an operation without charging.
type Quoter interface {
	Quote(ctx context.Context, kind enums.OperationKind, params pricing.Parameters) (pricing.Quote, error)
}

// OperationReader serves operation records to their owner.
type OperationReader interface {
	Get(ctx context.Context, accountID string, id uuid.UUID) (*operations.View, error)
	List(ctx context.Context, accountID string, params pagination.Params) (*operations.Page, error)
	Delete(ctx context.Context, accountID string, id uuid.UUID) error
}

type operationRequest struct {
	Kind       string             `json:"kind" validate:"required"`
	Parameters pricing.Parameters `json:"parameters"`
}

func (req operationRequest) kind() (enums.OperationKind, error) {
	kind, err := enums.ParseOperationKind(strings.TrimSpace(req.Kind))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown operation kind").
			WithDetails(map[string]string{"kind": "must be one of generate edit virtual_model retouch"})
	}
	return kind, nil
}

// OperationCreate charges the caller, runs the generation and returns the
// artifacts. Failures refund in full before the error is returned.
func OperationCreate(runner GenerationRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runner == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "generation service unavailable"))
			return
		}
		accountID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		var body operationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		kind, err := body.kind()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := runner.Run(r.Context(), generation.RunInput{
			AccountID:  accountID,
			Kind:       kind,
			Parameters: body.Parameters,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func OperationQuote(quoter Quoter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if quoter == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pricing service unavailable"))
			return
		}
		var body operationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		kind, err := body.kind()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quote, err := quoter.Quote(r.Context(), kind, body.Parameters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

func OperationGet(svc OperationReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "operations service unavailable"))
			return
		}
		accountID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		id, err := operationIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Get(r.Context(), accountID, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func OperationList(svc OperationReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "operations service unavailable"))
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
		page, err := svc.List(r.Context(), accountID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// OperationDelete removes a settled operation and its stored artifacts. The
// ledger is not touched.
func OperationDelete(svc OperationReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "operations service unavailable"))
			return
		}
		accountID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		id, err := operationIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), accountID, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}

func operationIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "operationId"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid operation id")
	}
	return id, nil
}
