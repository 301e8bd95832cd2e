package operations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/snapstudio-backend/pkg/db/models"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/snapstudio-backend/pkg/errors"
	"github.com/angelmondragon/snapstudio-backend/pkg/logger"
	"github.com/angelmondragon/snapstudio-backend/pkg/pagination"
	"github.com/angelmondragon/snapstudio-backend/pkg/storage/gcs"
)

const defaultReadURLTTL = 15 * time.Minute

type operationsRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Operation, error)
	ListByAccount(ctx context.Context, accountID string, cursor *pagination.Cursor, limit int) ([]models.Operation, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// View is an operation as returned to its owner.
type View struct {
	ID              uuid.UUID             `json:"id"`
	Kind            enums.OperationKind   `json:"kind"`
	Status          enums.OperationStatus `json:"status"`
	Cost            int64                 `json:"cost"`
	ImagesRequested int                   `json:"images_requested"`
	Artifacts       []Artifact            `json:"artifacts"`
	FailureReason   *string               `json:"failure_reason,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	CompletedAt     *time.Time            `json:"completed_at,omitempty"`
	FailedAt        *time.Time            `json:"failed_at,omitempty"`
}

// Artifact is one stored output. URL is a short-lived signed read link.
type Artifact struct {
	Path string `json:"path"`
	URL  string `json:"url,omitempty"`
}

// Page is one page of operations, newest first.
type Page struct {
	Items  []View `json:"items"`
	Cursor string `json:"cursor"`
}

type ServiceParams struct {
	Repo       operationsRepository
	Store      gcs.ArtifactStore
	ReadURLTTL time.Duration
	Logger     *logger.Logger
}

// Service serves operation records to their owners.
type Service struct {
	repo       operationsRepository
	store      gcs.ArtifactStore
	readURLTTL time.Duration
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("operations repository required")
	}
	ttl := params.ReadURLTTL
	if ttl <= 0 {
		ttl = defaultReadURLTTL
	}
	return &Service{
		repo:       params.Repo,
		store:      params.Store,
		readURLTTL: ttl,
		logg:       params.Logger,
	}, nil
}

// Get returns the operation when accountID owns it. Other accounts get
// NOT_FOUND so ids cannot be enumerated.
func (s *Service) Get(ctx context.Context, accountID string, id uuid.UUID) (*View, error) {
	op, err := s.owned(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	view := s.toView(*op)
	return &view, nil
}

// List pages the account's operations.
func (s *Service) List(ctx context.Context, accountID string, params pagination.Params) (*Page, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByAccount(ctx, accountID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list operations")
	}

	rows, next := pagination.Trim(rows, params.Limit, func(op models.Operation) pagination.Cursor {
		return pagination.Cursor{CreatedAt: op.CreatedAt, ID: op.ID}
	})
	page := &Page{Items: make([]View, 0, len(rows)), Cursor: next}
	for _, op := range rows {
		page.Items = append(page.Items, s.toView(op))
	}
	return page, nil
}

// Delete removes a settled operation and its stored artifacts. The ledger is
// not touched: credits spent on a deleted operation stay spent.
func (s *Service) Delete(ctx context.Context, accountID string, id uuid.UUID) error {
	op, err := s.owned(ctx, accountID, id)
	if err != nil {
		return err
	}
	if op.Status == enums.OperationStatusPending {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "operation is still running")
	}

	if s.store != nil && len(op.Artifacts) > 0 {
		var errs error
		bucket := s.store.DefaultBucket()
		for _, path := range op.Artifacts {
			errs = multierr.Append(errs, s.store.DeleteObject(ctx, bucket, path))
		}
		if errs != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "delete artifacts")
		}
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete operation")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "operation changed while deleting")
	}
	if s.logg != nil {
		logCtx := s.logg.WithOperationID(s.logg.WithAccountID(ctx, accountID), id.String())
		s.logg.Info(logCtx, "operation deleted")
	}
	return nil
}

func (s *Service) owned(ctx context.Context, accountID string, id uuid.UUID) (*models.Operation, error) {
	op, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load operation")
	}
	if op == nil || op.AccountID != accountID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "operation not found")
	}
	return op, nil
}

func (s *Service) toView(op models.Operation) View {
	view := View{
		ID:              op.ID,
		Kind:            op.Kind,
		Status:          op.Status,
		Cost:            op.Cost,
		ImagesRequested: op.ImagesRequested,
		Artifacts:       make([]Artifact, 0, len(op.Artifacts)),
		FailureReason:   op.FailureReason,
		CreatedAt:       op.CreatedAt,
		CompletedAt:     op.CompletedAt,
		FailedAt:        op.FailedAt,
	}
	for _, path := range op.Artifacts {
		view.Artifacts = append(view.Artifacts, Artifact{Path: path, URL: s.readURL(path)})
	}
	return view
}

// readURL signs a link for path. Signing failures leave the URL empty and the
// path still identifies the artifact.
func (s *Service) readURL(path string) string {
	if s.store == nil {
		return ""
	}
	url, err := s.store.SignedReadURL(s.store.DefaultBucket(), path, s.readURLTTL)
	if err != nil {
		return ""
	}
	return url
}
