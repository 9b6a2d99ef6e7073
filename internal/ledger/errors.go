package ledger

import "errors"

// Business rejections. The account is left untouched when Apply returns one
// of these; they describe normal input, not failures of the engine.
var (
	ErrAccountLocked        = errors.New("account locked")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrAlreadyDisputed      = errors.New("transaction already disputed")
	ErrNotDisputed          = errors.New("transaction not in dispute")
	ErrUnknownKind          = errors.New("unknown transaction kind")
)

// ErrWrongAccount means a transaction reached an account it does not belong
// to. That can only happen through a routing bug.
var ErrWrongAccount = errors.New("transaction delivered to wrong account")

// IsRejection reports whether err is a business rejection rather than an
// internal fault.
func IsRejection(err error) bool {
	return errors.Is(err, ErrAccountLocked) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrDuplicateTransaction) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrAlreadyDisputed) ||
		errors.Is(err, ErrNotDisputed)
}
