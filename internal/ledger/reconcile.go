package ledger

import (
	"context"
	"fmt"

	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/snapstudio-backend/pkg/errors"
)

// Reconciliation compares the stored balance with a replay of the log.
type Reconciliation struct {
	AccountID        string   `json:"account_id"`
	StoredBalance    int64    `json:"stored_balance"`
	ReplayedBalance  int64    `json:"replayed_balance"`
	StoredLifetime   int64    `json:"stored_lifetime_credits"`
	Granted          int64    `json:"granted"`
	Deducted         int64    `json:"deducted"`
	Refunded         int64    `json:"refunded"`
	TransactionCount int      `json:"transaction_count"`
	Consistent       bool     `json:"consistent"`
	Problems         []string `json:"problems,omitempty"`
}

// Reconcile replays every transaction of the account in order and checks the
// chain: each row starts where the previous one ended, no balance goes
// negative, and the final balance matches the account.
func (s *Service) Reconcile(ctx context.Context, accountID string) (*Reconciliation, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ReplayTransactions(ctx, accountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transactions")
	}

	out := &Reconciliation{
		AccountID:        accountID,
		StoredBalance:    account.Balance,
		StoredLifetime:   account.LifetimeCredits,
		TransactionCount: len(rows),
	}
	var running int64
	for i, row := range rows {
		if row.BalanceBefore != running {
			out.Problems = append(out.Problems, fmt.Sprintf("seq %d starts at %d, expected %d", row.Sequence, row.BalanceBefore, running))
		}
		if row.BalanceAfter != row.BalanceBefore+row.Amount {
			out.Problems = append(out.Problems, fmt.Sprintf("seq %d does not add up", row.Sequence))
		}
		if want := int64(i + 1); row.Sequence != want {
			out.Problems = append(out.Problems, fmt.Sprintf("seq %d found at position %d", row.Sequence, want))
		}
		running += row.Amount
		if running < 0 {
			out.Problems = append(out.Problems, fmt.Sprintf("balance negative after seq %d", row.Sequence))
		}
		switch {
		case row.Type == enums.TransactionDeduction:
			out.Deducted += -row.Amount
		case row.Type == enums.TransactionRefund:
			out.Refunded += row.Amount
		case row.Type.IsGrant():
			out.Granted += row.Amount
		}
	}
	out.ReplayedBalance = running

	if running != account.Balance {
		out.Problems = append(out.Problems, fmt.Sprintf("stored balance %d, replayed %d", account.Balance, running))
	}
	if out.Granted != account.LifetimeCredits {
		out.Problems = append(out.Problems, fmt.Sprintf("stored lifetime credits %d, granted %d", account.LifetimeCredits, out.Granted))
	}
	if account.Version != int64(len(rows)) {
		out.Problems = append(out.Problems, fmt.Sprintf("account version %d, %d transactions", account.Version, len(rows)))
	}
	out.Consistent = len(out.Problems) == 0
	return out, nil
}

// ReconcileAll walks every account in id order and calls visit with each
// result. It stops at the first error from the store or from visit.
func (s *Service) ReconcileAll(ctx context.Context, batch int, visit func(*Reconciliation) error) error {
	if batch <= 0 {
		batch = 200
	}
	after := ""
	for {
		ids, err := s.repo.ListAccountIDs(ctx, after, batch)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list accounts")
		}
		for _, id := range ids {
			result, err := s.Reconcile(ctx, id)
			if err != nil {
				return err
			}
			if err := visit(result); err != nil {
				return err
			}
		}
		if len(ids) < batch {
			return nil
		}
		after = ids[len(ids)-1]
	}
}
