package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
)

// CreditTransaction is one immutable balance change. Sequence is the account
// version the change produced, so replaying by Sequence is creation order.
type CreditTransaction struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	AccountID       string                `gorm:"column:account_id;not null;index:idx_credit_transactions_account_created,priority:1;uniqueIndex:uq_credit_transactions_account_seq,priority:1"`
	Sequence        int64                 `gorm:"column:seq;not null;uniqueIndex:uq_credit_transactions_account_seq,priority:2"`
	Type            enums.TransactionType `gorm:"column:type;not null;uniqueIndex:uq_credit_transactions_operation_type,priority:2"`
	Amount          int64                 `gorm:"column:amount;not null"`
	BalanceBefore   int64                 `gorm:"column:balance_before;not null"`
	BalanceAfter    int64                 `gorm:"column:balance_after;not null;check:chk_credit_transactions_balance,balance_after = balance_before + amount"`
	OperationID     *uuid.UUID            `gorm:"column:operation_id;type:uuid;uniqueIndex:uq_credit_transactions_operation_type,priority:1"`
	ExternalEventID *string               `gorm:"column:external_event_id;uniqueIndex:uq_credit_transactions_external_event,where:external_event_id IS NOT NULL"`
	Description     string                `gorm:"column:description;not null;default:''"`
	CreatedAt       time.Time             `gorm:"column:created_at;not null;index:idx_credit_transactions_account_created,priority:2"`
}

func (CreditTransaction) TableName() string { return "credit_transactions" }
