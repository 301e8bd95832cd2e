package ledger

import (
	"errors"
	"fmt"

	pkgerrors "github.com/angelmondragon/snapstudio-backend/pkg/errors"
)

// ErrWriteConflict means the account changed between read and compare-and-set.
// RunInTx retries it.
var ErrWriteConflict = errors.New("ledger write conflict")

// Shortfall is the user-visible detail of an insufficient-credits rejection.
type Shortfall struct {
	Need int64 `json:"need"`
	Have int64 `json:"have"`
}

func insufficientCredits(need, have int64) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientCredits, fmt.Sprintf("insufficient credits: need %d, have %d", need, have)).
		WithDetails(Shortfall{Need: need, Have: have})
}

// ShortfallOf extracts need/have from an insufficient-credits error.
func ShortfallOf(err error) (Shortfall, bool) {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientCredits {
		return Shortfall{}, false
	}
	s, ok := typed.Details().(Shortfall)
	return s, ok
}
