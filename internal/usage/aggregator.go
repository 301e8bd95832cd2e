package usage

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/snapstudio-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/snapstudio-backend/pkg/errors"
)

// MaxRange bounds a usage report.
const MaxRange = 366 * 24 * time.Hour

// Delta is what one settled operation adds to a day.
type Delta struct {
	Generations int64
	Images      int64
	Credits     int64
}

// Aggregator keeps the per-account, per-day counters. Counts are approximate:
// callers log and drop errors instead of failing the operation.
type Aggregator struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAggregator(db *gorm.DB) *Aggregator {
	return &Aggregator{db: db, now: time.Now}
}

// DayOf truncates t to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Record adds delta to the account's row for day, creating it when missing.
func (a *Aggregator) Record(ctx context.Context, accountID string, day time.Time, delta Delta) error {
	if strings.TrimSpace(accountID) == "" {
		return errors.New("usage: account id required")
	}
	row := models.UsageDaily{
		AccountID:        accountID,
		Day:              DayOf(day),
		GenerationsCount: delta.Generations,
		ImagesGenerated:  delta.Images,
		CreditsUsed:      delta.Credits,
		UpdatedAt:        a.now().UTC(),
	}
	return a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]any{
			"generations_count": gorm.Expr("usage_daily.generations_count + excluded.generations_count"),
			"images_generated":  gorm.Expr("usage_daily.images_generated + excluded.images_generated"),
			"credits_used":      gorm.Expr("usage_daily.credits_used + excluded.credits_used"),
			"updated_at":        gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&row).Error
}

// List returns the account's rows with from <= day <= to, oldest first.
func (a *Aggregator) List(ctx context.Context, accountID string, from, to time.Time) ([]models.UsageDaily, error) {
	from, to = DayOf(from), DayOf(to)
	if to.Before(from) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must not be after to")
	}
	if to.Sub(from) > MaxRange {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "range is limited to one year")
	}
	var rows []models.UsageDaily
	err := a.db.WithContext(ctx).
		Where("account_id = ? AND day >= ? AND day <= ?", accountID, from, to).
		Order("day ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list usage")
	}
	return rows, nil
}

// ListDay returns every account's row for day, used by the export job.
func (a *Aggregator) ListDay(ctx context.Context, day time.Time) ([]models.UsageDaily, error) {
	var rows []models.UsageDaily
	err := a.db.WithContext(ctx).
		Where("day = ?", DayOf(day)).
		Order("account_id ASC").
		Find(&rows).Error
	return rows, err
}
