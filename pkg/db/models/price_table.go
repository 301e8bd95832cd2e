package models

import (
	"time"

	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
)

// PriceTableVersion is immutable once written; the highest version is current.
type PriceTableVersion struct {
	Version   int64     `gorm:"column:version;primaryKey;autoIncrement"`
	CreatedBy string    `gorm:"column:created_by;not null;default:''"`
	Note      string    `gorm:"column:note;not null;default:''"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`

	Entries []PriceTableEntry `gorm:"foreignKey:Version;references:Version"`
}

func (PriceTableVersion) TableName() string { return "price_table_versions" }

type PriceTableEntry struct {
	Version int64          `gorm:"column:version;primaryKey"`
	Key     enums.PriceKey `gorm:"column:price_key;primaryKey"`
	Cost    int64          `gorm:"column:cost;not null;check:chk_price_table_entries_cost_positive,cost > 0"`
}

func (PriceTableEntry) TableName() string { return "price_table_entries" }
