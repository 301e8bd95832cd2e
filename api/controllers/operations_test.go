package controllers

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/snapstudio-backend/internal/generation"
	"github.com/angelmondragon/snapstudio-backend/internal/operations"
	"github.com/angelmondragon/snapstudio-backend/internal/pricing"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/snapstudio-backend/pkg/errors"
	"github.com/angelmondragon/snapstudio-backend/pkg/pagination"
)

type stubRunner struct {
	input  generation.RunInput
	result *generation.Result
	err    error
}

func (s *stubRunner) Run(ctx context.Context, input generation.RunInput) (*generation.Result, error) {
	s.input = input
	return s.result, s.err
}

type stubQuoter struct{}

func (stubQuoter) Quote(ctx context.Context, kind enums.OperationKind, params pricing.Parameters) (pricing.Quote, error) {
	if len(params.Scenes) == 0 {
		return pricing.Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid parameters")
	}
	return pricing.Quote{Kind: kind, Cost: int64(len(params.Scenes)) * 3, Units: len(params.Scenes)}, nil
}

type stubOperations struct {
	views   map[uuid.UUID]*operations.View
	owners  map[uuid.UUID]string
	deleted []uuid.UUID
}

func (s *stubOperations) Get(ctx context.Context, accountID string, id uuid.UUID) (*operations.View, error) {
	view, ok := s.views[id]
	if !ok || s.owners[id] != accountID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "operation not found")
	}
	return view, nil
}

func (s *stubOperations) List(ctx context.Context, accountID string, params pagination.Params) (*operations.Page, error) {
	page := &operations.Page{}
	for id, view := range s.views {
		if s.owners[id] == accountID {
			page.Items = append(page.Items, *view)
		}
	}
	return page, nil
}

func (s *stubOperations) Delete(ctx context.Context, accountID string, id uuid.UUID) error {
	view, err := s.Get(ctx, accountID, id)
	if err != nil {
		return err
	}
	if view.Status == enums.OperationStatusPending {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "operation is still running")
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func TestOperationCreateRunsForCaller(t *testing.T) {
	opID := uuid.New()
	runner := &stubRunner{result: &generation.Result{OperationID: opID, Cost: 6, NewBalance: 24, Artifacts: []string{"a.png", "b.png"}}}
	body := `{"kind":"generate","parameters":{"image_path":"in.png","product_type":"shoe","scenes":["beach","studio"]}}`

	rec := serve(OperationCreate(runner, testLogger()), newRequest(http.MethodPost, "/api/v1/operations", strings.NewReader(body), "acct_1", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if runner.input.AccountID != "acct_1" || runner.input.Kind != enums.OperationGenerate || len(runner.input.Parameters.Scenes) != 2 {
		t.Fatalf("unexpected run input %+v", runner.input)
	}
	var result generation.Result
	decodeData(t, rec, &result)
	if result.OperationID != opID || len(result.Artifacts) != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestOperationCreateRejectsUnknownKind(t *testing.T) {
	runner := &stubRunner{}
	rec := serve(OperationCreate(runner, testLogger()), newRequest(http.MethodPost, "/api/v1/operations", strings.NewReader(`{"kind":"upscale"}`), "acct_1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if runner.input.AccountID != "" {
		t.Fatal("runner should not be called")
	}
}

func TestOperationCreateSurfacesInsufficientCredits(t *testing.T) {
	runner := &stubRunner{err: pkgerrors.New(pkgerrors.CodeInsufficientCredits, "insufficient credits").WithDetails(map[string]int64{"need": 6, "have": 1})}
	rec := serve(OperationCreate(runner, testLogger()), newRequest(http.MethodPost, "/api/v1/operations", strings.NewReader(`{"kind":"generate"}`), "acct_1", nil))
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeInsufficientCredits) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestOperationCreateSurfacesGenerationFailure(t *testing.T) {
	runner := &stubRunner{err: pkgerrors.New(pkgerrors.CodeGenerationFailed, "generation failed").WithDetails(generation.FailureDetails{OperationID: uuid.New(), Refunded: 6})}
	rec := serve(OperationCreate(runner, testLogger()), newRequest(http.MethodPost, "/api/v1/operations", strings.NewReader(`{"kind":"generate"}`), "acct_1", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"refunded":6`) {
		t.Fatalf("expected refund details, got %s", rec.Body.String())
	}
}

func TestOperationQuote(t *testing.T) {
	rec := serve(OperationQuote(stubQuoter{}, testLogger()), newRequest(http.MethodPost, "/api/v1/operations/quote", strings.NewReader(`{"kind":"generate","parameters":{"scenes":["a","b"]}}`), "acct_1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var quote pricing.Quote
	decodeData(t, rec, &quote)
	if quote.Cost != 6 || quote.Units != 2 {
		t.Fatalf("unexpected quote %+v", quote)
	}

	rec = serve(OperationQuote(stubQuoter{}, testLogger()), newRequest(http.MethodPost, "/api/v1/operations/quote", strings.NewReader(`{"kind":"generate"}`), "acct_1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestOperationGetAndListScopedToOwner(t *testing.T) {
	mine, theirs := uuid.New(), uuid.New()
	svc := &stubOperations{
		views: map[uuid.UUID]*operations.View{
			mine:   {ID: mine, Status: enums.OperationStatusCompleted},
			theirs: {ID: theirs, Status: enums.OperationStatusCompleted},
		},
		owners: map[uuid.UUID]string{mine: "acct_1", theirs: "acct_2"},
	}

	rec := serve(OperationGet(svc, testLogger()), newRequest(http.MethodGet, "/", nil, "acct_1", map[string]string{"operationId": mine.String()}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = serve(OperationGet(svc, testLogger()), newRequest(http.MethodGet, "/", nil, "acct_1", map[string]string{"operationId": theirs.String()}))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another account's operation, got %d", rec.Code)
	}
	rec = serve(OperationGet(svc, testLogger()), newRequest(http.MethodGet, "/", nil, "acct_1", map[string]string{"operationId": "nope"}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}

	rec = serve(OperationList(svc, testLogger()), newRequest(http.MethodGet, "/api/v1/operations", nil, "acct_1", nil))
	var page operations.Page
	decodeData(t, rec, &page)
	if len(page.Items) != 1 || page.Items[0].ID != mine {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestOperationDelete(t *testing.T) {
	done, running := uuid.New(), uuid.New()
	svc := &stubOperations{
		views: map[uuid.UUID]*operations.View{
			done:    {ID: done, Status: enums.OperationStatusFailed},
			running: {ID: running, Status: enums.OperationStatusPending},
		},
		owners: map[uuid.UUID]string{done: "acct_1", running: "acct_1"},
	}

	rec := serve(OperationDelete(svc, testLogger()), newRequest(http.MethodDelete, "/", nil, "acct_1", map[string]string{"operationId": done.String()}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = serve(OperationDelete(svc, testLogger()), newRequest(http.MethodDelete, "/", nil, "acct_1", map[string]string{"operationId": running.String()}))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for pending operation, got %d", rec.Code)
	}
	rec = serve(OperationDelete(svc, testLogger()), newRequest(http.MethodDelete, "/", nil, "acct_2", map[string]string{"operationId": done.String()}))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for non-owner, got %d", rec.Code)
	}
	if len(svc.deleted) != 1 || svc.deleted[0] != done {
		t.Fatalf("unexpected deletions %v", svc.deleted)
	}
}
