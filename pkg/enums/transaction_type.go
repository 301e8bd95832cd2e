package enums

import "fmt"

// TransactionType classifies a credit_transactions row.
type TransactionType string

const (
	TransactionSignupGrant       TransactionType = "signup_grant"
	TransactionPurchase          TransactionType = "purchase"
	TransactionSubscriptionGrant TransactionType = "subscription_grant"
	TransactionDeduction         TransactionType = "deduction"
	TransactionRefund            TransactionType = "refund"
)

var validTransactionTypes = []TransactionType{
	TransactionSignupGrant,
	TransactionPurchase,
	TransactionSubscriptionGrant,
	TransactionDeduction,
	TransactionRefund,
}

// String implements fmt.Stringer.
func (t TransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is known.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsGrant reports whether the type adds credits that count toward lifetime credits.
func (t TransactionType) IsGrant() bool {
	switch t {
	case TransactionSignupGrant, TransactionPurchase, TransactionSubscriptionGrant:
		return true
	}
	return false
}

// ParseTransactionType converts raw input into a TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
