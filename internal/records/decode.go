package records

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fastprodman/txengine/internal/ledger"
)

var (
	ErrUnknownType     = errors.New("unknown type")
	ErrBadClient       = errors.New("invalid client id")
	ErrBadTxID         = errors.New("invalid transaction id")
	ErrMissingAmount   = errors.New("missing amount")
	ErrBadAmount       = errors.New("invalid amount")
	ErrNegativeAmount  = errors.New("negative amount")
	ErrAmountPrecision = errors.New("amount exceeds 4 decimal places")
	ErrAmountRange     = errors.New("amount out of range")
)

// maxAmount bounds a single amount so it fits a NUMERIC(24,4) column.
var maxAmount = decimal.New(1, 20)

// maxAmountLen leaves room for trailing zeros past the fourth place.
const maxAmountLen = 64

// DecodeError is a malformed record. The record still consumes its index.
type DecodeError struct {
	Index uint64
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode record %d: %v", e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode turns a raw record into a transaction. It never mutates rec and is
// safe for concurrent use.
func (l Layout) Decode(rec RawRecord) (ledger.Transaction, error) {
	tx, err := l.decode(rec.Fields)
	if err != nil {
		return ledger.Transaction{}, &DecodeError{Index: rec.Index, Err: err}
	}

	return tx, nil
}

func (l Layout) decode(fields []string) (ledger.Transaction, error) {
	kind, err := ledger.ParseKind(field(fields, l.typ))
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("%w: %q", ErrUnknownType, field(fields, l.typ))
	}

	client, err := strconv.ParseUint(field(fields, l.client), 10, 16)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("%w: %w", ErrBadClient, err)
	}

	id, err := strconv.ParseUint(field(fields, l.tx), 10, 32)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("%w: %w", ErrBadTxID, err)
	}

	tx := ledger.Transaction{
		Kind:   kind,
		Client: ledger.ClientID(client),
		ID:     ledger.TxID(id),
	}

	if !tx.HasAmount() {
		return tx, nil
	}

	amount, err := parseAmount(field(fields, l.amount))
	if err != nil {
		return ledger.Transaction{}, err
	}

	tx.Amount = amount

	return tx, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Decimal{}, ErrMissingAmount
	}

	// No exponent forms: "1e9999999" would be a ten million digit amount.
	if strings.ContainsAny(raw, "eE") {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrBadAmount, raw)
	}

	if len(raw) > maxAmountLen {
		return decimal.Decimal{}, fmt.Errorf("%w: %d characters", ErrAmountRange, len(raw))
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrBadAmount, raw)
	}

	if amount.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrNegativeAmount, raw)
	}

	if !amount.Equal(amount.Truncate(ledger.AmountPlaces)) {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrAmountPrecision, raw)
	}

	if amount.GreaterThanOrEqual(maxAmount) {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrAmountRange, raw)
	}

	return amount, nil
}

// field returns the trimmed value at i, or "" when the row is short.
func field(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}

	return strings.TrimSpace(fields[i])
}
