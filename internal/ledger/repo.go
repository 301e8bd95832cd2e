package ledger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/snapstudio-backend/pkg/db/models"
	"github.com/angelmondragon/snapstudio-backend/pkg/pagination"
)

// Repository manages accounts and the append-only transaction log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindAccount(ctx context.Context, id string) (*models.Account, error)
	FindAccountBySubscription(ctx context.Context, subscriptionID string) (*models.Account, error)
	FindAccountByCustomer(ctx context.Context, customerID string) (*models.Account, error)
	CreateAccount(ctx context.Context, account *models.Account) (bool, error)
	SwapBalance(ctx context.Context, id string, expectedVersion, newBalance, lifetimeDelta int64) (bool, error)
	UpdateAccount(ctx context.Context, id string, updates map[string]any) error
	InsertTransaction(ctx context.Context, txn *models.CreditTransaction) error
	ListTransactions(ctx context.Context, accountID string, cursor *pagination.Cursor, limit int) ([]models.CreditTransaction, error)
	ReplayTransactions(ctx context.Context, accountID string) ([]models.CreditTransaction, error)
	ListAccountIDs(ctx context.Context, afterID string, limit int) ([]string, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindAccount(ctx context.Context, id string) (*models.Account, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *repository) FindAccountBySubscription(ctx context.Context, subscriptionID string) (*models.Account, error) {
	return r.first(ctx, "subscription_id = ?", subscriptionID)
}

func (r *repository) FindAccountByCustomer(ctx context.Context, customerID string) (*models.Account, error) {
	return r.first(ctx, "stripe_customer_id = ?", customerID)
}

func (r *repository) first(ctx context.Context, query string, arg any) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where(query, arg).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// CreateAccount inserts the account unless it already exists and reports
// whether this call created it.
func (r *repository) CreateAccount(ctx context.Context, account *models.Account) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(account)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SwapBalance writes the new balance only if the account is still at
// expectedVersion. It is the single write path for balance.
func (r *repository) SwapBalance(ctx context.Context, id string, expectedVersion, newBalance, lifetimeDelta int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]any{
			"balance":          newBalance,
			"lifetime_credits": gorm.Expr("lifetime_credits + ?", lifetimeDelta),
			"version":          gorm.Expr("version + 1"),
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateAccount writes non-ledger columns (plan, subscription, stats).
func (r *repository) UpdateAccount(ctx context.Context, id string, updates map[string]any) error {
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := r.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) InsertTransaction(ctx context.Context, txn *models.CreditTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

// ListTransactions pages newest first on (created_at, id).
func (r *repository) ListTransactions(ctx context.Context, accountID string, cursor *pagination.Cursor, limit int) ([]models.CreditTransaction, error) {
	q := r.db.WithContext(ctx).Where("account_id = ?", accountID)
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.CreditTransaction
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ReplayTransactions returns every transaction in application order.
func (r *repository) ReplayTransactions(ctx context.Context, accountID string) ([]models.CreditTransaction, error) {
	var rows []models.CreditTransaction
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("seq ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListAccountIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
