package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
)

// CreditPackage maps a Stripe price id to the credits it grants.
type CreditPackage struct {
	PriceID     string          `gorm:"column:price_id;primaryKey"`
	Name        string          `gorm:"column:name;not null"`
	Credits     int64           `gorm:"column:credits;not null;check:chk_credit_packages_credits_positive,credits > 0"`
	Plan        enums.Plan      `gorm:"column:plan;not null"`
	PriceAmount decimal.Decimal `gorm:"column:price_amount;type:numeric(10,2);not null"`
	Currency    string          `gorm:"column:currency;not null;default:'usd'"`
	Active      bool            `gorm:"column:active;not null;default:true"`
	SortOrder   int             `gorm:"column:sort_order;not null;default:0"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (CreditPackage) TableName() string { return "credit_packages" }
