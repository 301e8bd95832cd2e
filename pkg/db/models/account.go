package models

import (
	"time"

	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
)

// Account is keyed by the identity-provider user id. Balance, LifetimeCredits
// and Version are written only by the ledger.
type Account struct {
	ID                    string     `gorm:"column:id;primaryKey"`
	Email                 string     `gorm:"column:email;not null;default:''"`
	DisplayName           string     `gorm:"column:display_name;not null;default:''"`
	Balance               int64      `gorm:"column:balance;not null;default:0;check:chk_accounts_balance_non_negative,balance >= 0"`
	LifetimeCredits       int64      `gorm:"column:lifetime_credits;not null;default:0"`
	Plan                  enums.Plan `gorm:"column:plan;not null;default:'free'"`
	StripeCustomerID      *string    `gorm:"column:stripe_customer_id"`
	SubscriptionID        *string    `gorm:"column:subscription_id"`
	SubscriptionStatus    *string    `gorm:"column:subscription_status"`
	SubscriptionPriceID   *string    `gorm:"column:subscription_price_id"`
	SubscriptionPeriodEnd *time.Time `gorm:"column:subscription_period_end"`
	TotalGenerations      int64      `gorm:"column:total_generations;not null;default:0"`
	TotalImagesGenerated  int64      `gorm:"column:total_images_generated;not null;default:0"`
	LastGenerationAt      *time.Time `gorm:"column:last_generation_at"`
	LastPurchaseAt        *time.Time `gorm:"column:last_purchase_at"`
	Version               int64      `gorm:"column:version;not null;default:0"`
	CreatedAt             time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Account) TableName() string { return "accounts" }
