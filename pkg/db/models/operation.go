package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/angelmondragon/snapstudio-backend/pkg/db/types"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
)

// Operation is one billable generation request.
type Operation struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	AccountID       string                `gorm:"column:account_id;not null;index:idx_operations_account_created,priority:1"`
	Kind            enums.OperationKind   `gorm:"column:kind;not null"`
	Status          enums.OperationStatus `gorm:"column:status;not null;index:idx_operations_status_created,priority:1"`
	Cost            int64                 `gorm:"column:cost;not null"`
	ImagesRequested int                   `gorm:"column:images_requested;not null;default:0"`
	Parameters      dbtypes.JSON          `gorm:"column:parameters;type:jsonb"`
	Artifacts       dbtypes.StringList    `gorm:"column:artifacts;type:jsonb;not null"`
	FailureReason   *string               `gorm:"column:failure_reason"`
	CreatedAt       time.Time             `gorm:"column:created_at;not null;index:idx_operations_account_created,priority:2;index:idx_operations_status_created,priority:2"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
	CompletedAt     *time.Time            `gorm:"column:completed_at"`
	FailedAt        *time.Time            `gorm:"column:failed_at"`
}

func (Operation) TableName() string { return "operations" }
