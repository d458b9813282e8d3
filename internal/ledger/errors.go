package ledger

import (
	"errors"
	"fmt"
)

// Business declines. Callers branch with errors.Is and turn these into
// user-facing messages; they are never logged as errors.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientQuota   = errors.New("insufficient quota")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// GrantError marks a purchase whose entitlement grant failed after the wallet
// was already debited. The ledger issues a compensating credit before
// returning it; the condition is still operator-visible because a failing
// grant path means money movement and entitlement state can drift.
type GrantError struct {
	Err error
}

func (e *GrantError) Error() string {
	return fmt.Sprintf("entitlement grant failed: %v", e.Err)
}

func (e *GrantError) Unwrap() error {
	return e.Err
}
