package models

import (
	"time"

	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
)

// ProcessedEvent marks an external event as applied.
type ProcessedEvent struct {
	EventID     string            `gorm:"column:event_id;primaryKey"`
	Source      enums.EventSource `gorm:"column:source;not null"`
	EventType   string            `gorm:"column:event_type;not null"`
	ProcessedAt time.Time         `gorm:"column:processed_at;not null"`
}

func (ProcessedEvent) TableName() string { return "processed_events" }
