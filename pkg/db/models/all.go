package models

// All lists every persisted model, in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&Account{},
		&CreditTransaction{},
		&ProcessedEvent{},
		&PriceTableVersion{},
		&PriceTableEntry{},
		&CreditPackage{},
		&Operation{},
		&UsageDaily{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
