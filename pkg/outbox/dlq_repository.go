package outbox

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/snapstudio-backend/pkg/db/models"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
)

const (
	maxDLQErrorLen  = 1024
	defaultDLQLimit = 50
	maxDLQListLimit = 500
)

// DLQRepository stores credit events the publisher gave up on. Rows are
// written in the same transaction that marks the outbox row terminal.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// DLQFilter narrows List. Zero values match everything.
type DLQFilter struct {
	Reason      enums.OutboxDLQErrorReason
	AggregateID string
	Limit       int
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ErrorMessage != nil {
		msg := truncateDLQError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var dlq models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&dlq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dlq, nil
}

// List returns the newest dead-lettered events first. AggregateID is an
// account id for credit events or an operation id for generation events.
func (r *DLQRepository) List(ctx context.Context, filter DLQFilter) ([]models.OutboxDLQ, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDLQLimit
	}
	limit = min(limit, maxDLQListLimit)

	q := r.db.WithContext(ctx).Model(&models.OutboxDLQ{})
	if filter.Reason != "" {
		q = q.Where("error_reason = ?", filter.Reason)
	}
	if id := strings.TrimSpace(filter.AggregateID); id != "" {
		q = q.Where("aggregate_id = ?", id)
	}
	var rows []models.OutboxDLQ
	err := q.Order("failed_at DESC").Order("id").Limit(limit).Find(&rows).Error
	return rows, err
}

// CountByReason backs the operator summary of why events were dropped.
func (r *DLQRepository) CountByReason(ctx context.Context) (map[enums.OutboxDLQErrorReason]int64, error) {
	var rows []struct {
		ErrorReason enums.OutboxDLQErrorReason
		Total       int64
	}
	err := r.db.WithContext(ctx).Model(&models.OutboxDLQ{}).
		Select("error_reason, COUNT(*) AS total").
		Group("error_reason").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[enums.OutboxDLQErrorReason]int64, len(rows))
	for _, row := range rows {
		counts[row.ErrorReason] = row.Total
	}
	return counts, nil
}

// truncateDLQError caps the stored message without splitting a character.
func truncateDLQError(message string) string {
	message = strings.ToValidUTF8(message, "\uFFFD")
	if len(message) <= maxDLQErrorLen {
		return message
	}
	n := maxDLQErrorLen
	for n > 0 && !utf8.RuneStart(message[n]) {
		n--
	}
	return message[:n]
}
