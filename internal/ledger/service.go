package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/snapstudio-backend/pkg/db"
	"github.com/angelmondragon/snapstudio-backend/pkg/db/models"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/snapstudio-backend/pkg/errors"
	"github.com/angelmondragon/snapstudio-backend/pkg/logger"
	"github.com/angelmondragon/snapstudio-backend/pkg/metrics"
	"github.com/angelmondragon/snapstudio-backend/pkg/outbox"
	"github.com/angelmondragon/snapstudio-backend/pkg/outbox/payloads"
)

const (
	defaultMaxAttempts = 5
	defaultBaseBackoff = 15 * time.Millisecond
	maxBackoff         = 500 * time.Millisecond
)

type ServiceParams struct {
	Repo        Repository
	TxRunner    db.TxRunner
	Outbox      outbox.Emitter
	Metrics     *metrics.LedgerMetrics
	Logger      *logger.Logger
	SignupGrant int64
	MaxAttempts int
	BaseBackoff time.Duration
}

// Service is the only writer of account balances.
type Service struct {
	repo        Repository
	txRunner    db.TxRunner
	outbox      outbox.Emitter
	metrics     *metrics.LedgerMetrics
	logg        *logger.Logger
	signupGrant int64
	maxAttempts int
	baseBackoff time.Duration
	now         func() time.Time
}

// Entry is one balance change. Amount is signed: grants and refunds are
// positive, deductions negative.
type Entry struct {
	AccountID       string
	Type            enums.TransactionType
	Amount          int64
	OperationID     *uuid.UUID
	ExternalEventID *string
	Description     string
}

type OpenAccountInput struct {
	AccountID   string
	Email       string
	DisplayName string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("ledger repository required")
	}
	if params.TxRunner == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	if params.SignupGrant < 0 {
		return nil, errors.New("signup grant must not be negative")
	}
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	backoff := params.BaseBackoff
	if backoff <= 0 {
		backoff = defaultBaseBackoff
	}
	return &Service{
		repo:        params.Repo,
		txRunner:    params.TxRunner,
		outbox:      params.Outbox,
		metrics:     params.Metrics,
		logg:        params.Logger,
		signupGrant: params.SignupGrant,
		maxAttempts: attempts,
		baseBackoff: backoff,
		now:         time.Now,
	}, nil
}

// RunInTx runs fn in a transaction and retries it on write conflicts with
// jittered backoff. Each attempt starts from a fresh read. After the last
// attempt the conflict surfaces as CONFLICT.
func (s *Service) RunInTx(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	for attempt := 1; ; attempt++ {
		err := s.txRunner.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		s.metrics.IncConflict(op)
		if attempt >= s.maxAttempts {
			if s.logg != nil {
				logCtx := s.logg.WithFields(ctx, map[string]any{"ledger_op": op, "attempts": attempt})
				s.logg.Warn(logCtx, "ledger write conflict retries exhausted")
			}
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "ledger is busy, retry the request")
		}
		if err := sleep(ctx, s.backoff(attempt)); err != nil {
			return err
		}
	}
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrWriteConflict) || db.IsSerializationFailure(err)
}

func (s *Service) backoff(attempt int) time.Duration {
	d := s.baseBackoff << (attempt - 1)
	if d > maxBackoff {
		d = maxBackoff
	}
	return d + rand.N(s.baseBackoff)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Apply appends one transaction and moves the balance inside tx. It fails
// with INSUFFICIENT_CREDITS when the change would go below zero and with
// ErrWriteConflict when another writer got there first.
func (s *Service) Apply(ctx context.Context, tx *gorm.DB, entry Entry) (*models.CreditTransaction, error) {
	if tx == nil {
		return nil, errors.New("ledger apply requires a transaction")
	}
	if err := validateEntry(entry); err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	account, err := repo.FindAccount(ctx, entry.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	}

	newBalance := account.Balance + entry.Amount
	if newBalance < 0 {
		return nil, insufficientCredits(-entry.Amount, account.Balance)
	}
	var lifetimeDelta int64
	if entry.Type.IsGrant() {
		lifetimeDelta = entry.Amount
	}

	swapped, err := repo.SwapBalance(ctx, account.ID, account.Version, newBalance, lifetimeDelta)
	if err != nil {
		if db.IsCheckViolation(err) {
			return nil, insufficientCredits(-entry.Amount, account.Balance)
		}
		return nil, err
	}
	if !swapped {
		return nil, ErrWriteConflict
	}

	txn := &models.CreditTransaction{
		ID:              uuid.New(),
		AccountID:       account.ID,
		Sequence:        account.Version + 1,
		Type:            entry.Type,
		Amount:          entry.Amount,
		BalanceBefore:   account.Balance,
		BalanceAfter:    newBalance,
		OperationID:     entry.OperationID,
		ExternalEventID: entry.ExternalEventID,
		Description:     entry.Description,
		CreatedAt:       s.now().UTC(),
	}
	if err := repo.InsertTransaction(ctx, txn); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "ledger entry already recorded")
		}
		return nil, err
	}
	return txn, nil
}

func validateEntry(entry Entry) error {
	if strings.TrimSpace(entry.AccountID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	if !entry.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", entry.Type))
	}
	switch {
	case entry.Amount == 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must not be zero")
	case entry.Type == enums.TransactionDeduction && entry.Amount > 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "deductions must be negative")
	case entry.Type != enums.TransactionDeduction && entry.Amount < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s must be positive", entry.Type))
	}
	if (entry.Type == enums.TransactionDeduction || entry.Type == enums.TransactionRefund) && entry.OperationID == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "operation id is required for deductions and refunds")
	}
	return nil
}

// SignupEventID is the external event id of an account's signup grant, which
// keeps the grant unique per account.
func SignupEventID(accountID string) string {
	return "signup:" + accountID
}

// OpenAccount creates the account on first sight and grants the signup
// credits once. Later calls return the stored account unchanged.
func (s *Service) OpenAccount(ctx context.Context, input OpenAccountInput) (*models.Account, bool, error) {
	accountID := strings.TrimSpace(input.AccountID)
	if accountID == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}

	var (
		account *models.Account
		created bool
	)
	err := s.RunInTx(ctx, "open_account", func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now().UTC()
		var err error
		created, err = repo.CreateAccount(ctx, &models.Account{
			ID:          accountID,
			Email:       strings.TrimSpace(input.Email),
			DisplayName: strings.TrimSpace(input.DisplayName),
			Plan:        enums.PlanFree,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return err
		}

		if created && s.signupGrant > 0 {
			eventID := SignupEventID(accountID)
			txn, err := s.Apply(ctx, tx, Entry{
				AccountID:       accountID,
				Type:            enums.TransactionSignupGrant,
				Amount:          s.signupGrant,
				ExternalEventID: &eventID,
				Description:     "Welcome bonus credits",
			})
			if err != nil {
				return err
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventCreditsGranted,
				AggregateType: enums.AggregateAccount,
				AggregateID:   accountID,
				Actor:         &outbox.ActorRef{AccountID: accountID, Role: enums.RoleUser.String()},
				Data: payloads.CreditsGrantedEvent{
					AccountID:  accountID,
					Type:       enums.TransactionSignupGrant,
					Credits:    txn.Amount,
					NewBalance: txn.BalanceAfter,
				},
			}); err != nil {
				return err
			}
		}

		account, err = repo.FindAccount(ctx, accountID)
		return err
	})
	if err != nil {
		return nil, false, wrapInternal(err, "open account")
	}
	if created && s.logg != nil {
		logCtx := s.logg.WithAccountID(ctx, accountID)
		s.logg.Info(logCtx, "account opened")
	}
	return account, created, nil
}

// GetAccount reads an account outside any transaction.
func (s *Service) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	account, err := s.repo.FindAccount(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
	}
	if account == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	}
	return account, nil
}

// FindAccount reads an account inside tx; nil means not found.
func (s *Service) FindAccount(ctx context.Context, tx *gorm.DB, id string) (*models.Account, error) {
	return s.repo.WithTx(tx).FindAccount(ctx, id)
}

// FindAccountForSubscription resolves the owner of a provider subscription by
// subscription id, then by customer id.
func (s *Service) FindAccountForSubscription(ctx context.Context, tx *gorm.DB, subscriptionID, customerID string) (*models.Account, error) {
	repo := s.repo.WithTx(tx)
	if subscriptionID != "" {
		account, err := repo.FindAccountBySubscription(ctx, subscriptionID)
		if err != nil || account != nil {
			return account, err
		}
	}
	if customerID != "" {
		return repo.FindAccountByCustomer(ctx, customerID)
	}
	return nil, nil
}

func wrapInternal(err error, msg string) error {
	if pkgerrors.As(err) != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
}
