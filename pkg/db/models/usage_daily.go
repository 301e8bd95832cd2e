package models

import "time"

// UsageDaily is an approximate per-account, per-day counter row.
type UsageDaily struct {
	AccountID        string    `gorm:"column:account_id;primaryKey"`
	Day              time.Time `gorm:"column:day;type:date;primaryKey"`
	GenerationsCount int64     `gorm:"column:generations_count;not null;default:0"`
	ImagesGenerated  int64     `gorm:"column:images_generated;not null;default:0"`
	CreditsUsed      int64     `gorm:"column:credits_used;not null;default:0"`
	UpdatedAt        time.Time `gorm:"column:updated_at;not null"`
}

func (UsageDaily) TableName() string { return "usage_daily" }
