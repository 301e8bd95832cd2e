package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/snapstudio-backend/pkg/db/models"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
)

var (
	ErrTransactionRequired = errors.New("claim requires the caller's transaction")
	ErrEventIDRequired     = errors.New("event id is required")
)

// Recorder deduplicates externally delivered events. A claim only holds once
// the caller's transaction commits; a rollback releases it for redelivery.
type Recorder interface {
	TryClaim(ctx context.Context, tx *gorm.DB, source enums.EventSource, eventID, eventType string) (bool, error)
	Exists(ctx context.Context, eventID string) (bool, error)
	Get(ctx context.Context, eventID string) (*models.ProcessedEvent, error)
}

type recorder struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRecorder(db *gorm.DB) Recorder {
	return &recorder{db: db, now: time.Now}
}

// TryClaim inserts the processed_events row and reports whether this caller
// owns the event. A concurrent duplicate blocks on the primary key until the
// first transaction finishes and then sees no inserted row.
func (r *recorder) TryClaim(ctx context.Context, tx *gorm.DB, source enums.EventSource, eventID, eventType string) (bool, error) {
	if tx == nil {
		return false, ErrTransactionRequired
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, ErrEventIDRequired
	}
	row := models.ProcessedEvent{
		EventID:     eventID,
		Source:      source,
		EventType:   eventType,
		ProcessedAt: r.now().UTC(),
	}
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *recorder) Exists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ProcessedEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	return count > 0, err
}

func (r *recorder) Get(ctx context.Context, eventID string) (*models.ProcessedEvent, error) {
	var row models.ProcessedEvent
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
