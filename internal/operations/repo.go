package operations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/snapstudio-backend/pkg/db/models"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
	"github.com/angelmondragon/snapstudio-backend/pkg/pagination"
)

// Repository persists operation records.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an operations repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create persists a new operation.
func (r *Repository) Create(ctx context.Context, op *models.Operation) error {
	return r.db.WithContext(ctx).Create(op).Error
}

// FindByID returns nil when the operation does not exist.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Operation, error) {
	var op models.Operation
	err := r.db.WithContext(ctx).First(&op, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// TransitionFromPending moves a pending operation to status and applies the
// extra column updates. It reports false when the operation was no longer
// pending.
func (r *Repository) TransitionFromPending(ctx context.Context, id uuid.UUID, status enums.OperationStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": status, "updated_at": time.Now().UTC()}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Operation{}).
		Where("id = ? AND status = ?", id, enums.OperationStatusPending).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListByAccount pages an account's operations newest first.
func (r *Repository) ListByAccount(ctx context.Context, accountID string, cursor *pagination.Cursor, limit int) ([]models.Operation, error) {
	q := r.db.WithContext(ctx).Where("account_id = ?", accountID)
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Operation
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListStalePending returns ids of operations still pending that were created
// before cutoff, oldest first.
func (r *Repository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Operation{}).
		Where("status = ? AND created_at < ?", enums.OperationStatusPending, cutoff.UTC()).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// Delete removes a settled operation. Pending rows are never deleted.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status <> ?", id, enums.OperationStatusPending).
		Delete(&models.Operation{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
