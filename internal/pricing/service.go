package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/snapstudio-backend/pkg/db"
	"github.com/angelmondragon/snapstudio-backend/pkg/db/models"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/snapstudio-backend/pkg/errors"
	"github.com/angelmondragon/snapstudio-backend/pkg/logger"
)

const defaultCacheTTL = 5 * time.Minute

type ServiceParams struct {
	Repo     Repository
	TxRunner db.TxRunner
	CacheTTL time.Duration
	Logger   *logger.Logger
}

// Service owns the price table: cached reads for the request path and
// versioned writes for administrators.
type Service struct {
	repo     Repository
	txRunner db.TxRunner
	cache    *Cache
	logg     *logger.Logger
}

// UpdateTableInput overlays Entries on the current table to form a new version.
type UpdateTableInput struct {
	Actor   string
	Note    string
	Entries map[enums.PriceKey]int64
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("pricing repository required")
	}
	if params.TxRunner == nil {
		return nil, errors.New("transaction runner required")
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	s := &Service{repo: params.Repo, txRunner: params.TxRunner, logg: params.Logger}
	s.cache = NewCache(s.repo.LatestTable, ttl)
	return s, nil
}

// CurrentTable returns the cached current table.
func (s *Service) CurrentTable(ctx context.Context) (*Table, error) {
	table, err := s.cache.Get(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load price table")
	}
	if table == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "price table not configured")
	}
	return table, nil
}

// Quote prices an operation against the current table.
func (s *Service) Quote(ctx context.Context, kind enums.OperationKind, params Parameters) (Quote, error) {
	if err := params.Validate(kind); err != nil {
		return Quote{}, err
	}
	table, err := s.CurrentTable(ctx)
	if err != nil {
		return Quote{}, err
	}
	return Resolve(table, kind, params)
}

// UpdateTable writes a new immutable version and drops the cached table.
func (s *Service) UpdateTable(ctx context.Context, input UpdateTableInput) (*Table, error) {
	if len(input.Entries) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one price entry is required")
	}
	fields := FieldErrors{}
	for key, cost := range input.Entries {
		if !key.IsValid() {
			fields[string(key)] = "unknown price key"
			continue
		}
		if cost <= 0 {
			fields[string(key)] = "cost must be a positive integer"
		}
	}
	if len(fields) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid price table").WithDetails(fields)
	}

	var created *Table
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.LatestTable(ctx)
		if err != nil {
			return err
		}

		merged := map[enums.PriceKey]int64{}
		next := int64(1)
		if current != nil {
			for k, v := range current.Entries {
				merged[k] = v
			}
			next = current.Version + 1
		}
		for k, v := range input.Entries {
			merged[k] = v
		}
		missing := []string{}
		for _, key := range enums.PriceKeys() {
			if _, ok := merged[key]; !ok {
				missing = append(missing, string(key))
			}
		}
		if len(missing) > 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "price table incomplete: missing "+strings.Join(missing, ", "))
		}

		version := models.PriceTableVersion{
			Version:   next,
			CreatedBy: strings.TrimSpace(input.Actor),
			Note:      strings.TrimSpace(input.Note),
			CreatedAt: time.Now().UTC(),
		}
		for _, key := range enums.PriceKeys() {
			version.Entries = append(version.Entries, models.PriceTableEntry{Version: next, Key: key, Cost: merged[key]})
		}
		if err := repo.CreateVersion(ctx, &version); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "price table was updated concurrently")
			}
			return err
		}
		created = tableFromModel(version)
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write price table")
	}

	s.cache.Invalidate()
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"price_table_version": created.Version,
			"actor":               created.CreatedBy,
		})
		s.logg.Info(logCtx, "price table updated")
	}
	return created, nil
}

// History lists recent versions, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]*Table, error) {
	versions, err := s.repo.ListVersions(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list price table versions")
	}
	out := make([]*Table, 0, len(versions))
	for _, v := range versions {
		out = append(out, tableFromModel(v))
	}
	return out, nil
}

func (s *Service) ListPackages(ctx context.Context, activeOnly bool) ([]models.CreditPackage, error) {
	packages, err := s.repo.ListPackages(ctx, activeOnly)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list credit packages")
	}
	return packages, nil
}

// FindPackage resolves a Stripe price id. tx may be nil outside a transaction.
func (s *Service) FindPackage(ctx context.Context, tx *gorm.DB, priceID string) (*models.CreditPackage, error) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return nil, nil
	}
	pkg, err := s.repo.WithTx(tx).FindPackage(ctx, priceID)
	if err != nil {
		return nil, fmt.Errorf("find credit package %s: %w", priceID, err)
	}
	return pkg, nil
}
