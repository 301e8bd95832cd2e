package pricing

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/snapstudio-backend/pkg/db/models"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
)

// Repository persists price table versions and the credit package catalog.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LatestTable(ctx context.Context) (*Table, error)
	CreateVersion(ctx context.Context, version *models.PriceTableVersion) error
	ListVersions(ctx context.Context, limit int) ([]models.PriceTableVersion, error)
	ListPackages(ctx context.Context, activeOnly bool) ([]models.CreditPackage, error)
	FindPackage(ctx context.Context, priceID string) (*models.CreditPackage, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LatestTable returns the highest version, or nil when none exists.
func (r *repository) LatestTable(ctx context.Context) (*Table, error) {
	var version models.PriceTableVersion
	err := r.db.WithContext(ctx).
		Preload("Entries").
		Order("version DESC").
		First(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tableFromModel(version), nil
}

func (r *repository) CreateVersion(ctx context.Context, version *models.PriceTableVersion) error {
	return r.db.WithContext(ctx).Create(version).Error
}

func (r *repository) ListVersions(ctx context.Context, limit int) ([]models.PriceTableVersion, error) {
	var versions []models.PriceTableVersion
	q := r.db.WithContext(ctx).Preload("Entries").Order("version DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

func (r *repository) ListPackages(ctx context.Context, activeOnly bool) ([]models.CreditPackage, error) {
	var packages []models.CreditPackage
	q := r.db.WithContext(ctx)
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	if err := q.Order("sort_order ASC").Order("price_id ASC").Find(&packages).Error; err != nil {
		return nil, err
	}
	return packages, nil
}

// FindPackage returns nil when priceID is not in the catalog.
func (r *repository) FindPackage(ctx context.Context, priceID string) (*models.CreditPackage, error) {
	var pkg models.CreditPackage
	err := r.db.WithContext(ctx).Where("price_id = ?", priceID).First(&pkg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

func tableFromModel(version models.PriceTableVersion) *Table {
	entries := make(map[enums.PriceKey]int64, len(version.Entries))
	for _, e := range version.Entries {
		entries[e.Key] = e.Cost
	}
	return &Table{
		Version:   version.Version,
		Entries:   entries,
		CreatedBy: version.CreatedBy,
		Note:      version.Note,
		CreatedAt: version.CreatedAt,
	}
}
