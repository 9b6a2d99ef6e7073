package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountPlaces is the fixed-point precision of every amount.
const AmountPlaces = 4

type (
	ClientID uint16
	TxID     uint32
)

type Kind uint8

const (
	KindDeposit Kind = iota + 1
	KindWithdrawal
	KindDispute
	KindResolve
	KindChargeback
)

func (k Kind) String() string {
	switch k {
	case KindDeposit:
		return "deposit"
	case KindWithdrawal:
		return "withdrawal"
	case KindDispute:
		return "dispute"
	case KindResolve:
		return "resolve"
	case KindChargeback:
		return "chargeback"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind maps a record type tag to a Kind. Matching ignores case and
// surrounding whitespace.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deposit":
		return KindDeposit, nil
	case "withdrawal":
		return KindWithdrawal, nil
	case "dispute":
		return KindDispute, nil
	case "resolve":
		return KindResolve, nil
	case "chargeback":
		return KindChargeback, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Transaction is a single decoded record. Amount is only meaningful for
// deposits and withdrawals; the dispute family references an earlier ID.
type Transaction struct {
	Kind   Kind
	Client ClientID
	ID     TxID
	Amount decimal.Decimal
}

// HasAmount reports whether the kind carries an amount of its own.
func (t Transaction) HasAmount() bool {
	return t.Kind == KindDeposit || t.Kind == KindWithdrawal
}

func (t Transaction) String() string {
	if t.HasAmount() {
		return fmt.Sprintf("%s client=%d tx=%d amount=%s", t.Kind, t.Client, t.ID, t.Amount.StringFixed(AmountPlaces))
	}

	return fmt.Sprintf("%s client=%d tx=%d", t.Kind, t.Client, t.ID)
}

func Deposit(client ClientID, id TxID, amount decimal.Decimal) Transaction {
	return Transaction{Kind: KindDeposit, Client: client, ID: id, Amount: amount}
}

func Withdrawal(client ClientID, id TxID, amount decimal.Decimal) Transaction {
	return Transaction{Kind: KindWithdrawal, Client: client, ID: id, Amount: amount}
}

func Dispute(client ClientID, id TxID) Transaction {
	return Transaction{Kind: KindDispute, Client: client, ID: id}
}

func Resolve(client ClientID, id TxID) Transaction {
	return Transaction{Kind: KindResolve, Client: client, ID: id}
}

func Chargeback(client ClientID, id TxID) Transaction {
	return Transaction{Kind: KindChargeback, Client: client, ID: id}
}
