package migrate

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/snapstudio-backend/pkg/db/models"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
)

// DefaultPriceEntries mirrors the price table seeded by the pricing migration.
func DefaultPriceEntries() map[enums.PriceKey]int64 {
	return map[enums.PriceKey]int64{
		enums.PriceBasic:        1,
		enums.PriceProfessional: 3,
		enums.PriceBackground:   6,
		enums.PriceEdit:         3,
		enums.PriceVirtualModel: 3,
		enums.PriceRetouch:      2,
	}
}

// DefaultCreditPackages mirrors the catalog seeded by the pricing migration.
func DefaultCreditPackages() []models.CreditPackage {
	return []models.CreditPackage{
		{PriceID: "price_12345", Name: "Starter", Credits: 50, Plan: enums.PlanStarter, PriceAmount: decimal.RequireFromString("9.99"), Currency: "usd", Active: true, SortOrder: 1},
		{PriceID: "price_67890", Name: "Pro", Credits: 120, Plan: enums.PlanPro, PriceAmount: decimal.RequireFromString("19.99"), Currency: "usd", Active: true, SortOrder: 2},
		{PriceID: "price_13579", Name: "Business", Credits: 350, Plan: enums.PlanBusiness, PriceAmount: decimal.RequireFromString("49.99"), Currency: "usd", Active: true, SortOrder: 3},
	}
}

// SeedDefaults writes price table version 1 and the package catalog when they
// are missing. Existing rows are left untouched.
func SeedDefaults(ctx context.Context, conn *gorm.DB) error {
	return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		version := models.PriceTableVersion{Version: 1, CreatedBy: "migration", Note: "initial price table"}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&version).Error; err != nil {
			return err
		}
		for key, cost := range DefaultPriceEntries() {
			entry := models.PriceTableEntry{Version: 1, Key: key, Cost: cost}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error; err != nil {
				return err
			}
		}
		packages := DefaultCreditPackages()
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&packages).Error
	})
}
