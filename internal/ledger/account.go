package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type DisputeState uint8

const (
	Undisputed DisputeState = iota
	Disputed
	// ChargedBack is terminal: the entry can never be disputed again.
	ChargedBack
)

func (s DisputeState) String() string {
	switch s {
	case Undisputed:
		return "undisputed"
	case Disputed:
		return "disputed"
	case ChargedBack:
		return "charged_back"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Record is a deposit or withdrawal kept for later dispute lookups.
type Record struct {
	ID     TxID
	Kind   Kind
	Amount decimal.Decimal
	State  DisputeState
}

// Snapshot is the immutable view of an account handed to reporting.
type Snapshot struct {
	Client    ClientID
	Available decimal.Decimal
	Held      decimal.Decimal
	Total     decimal.Decimal
	Locked    bool
}

// Account holds one client's balances and history. It is not safe for
// concurrent use; exactly one shard worker owns it for the whole run.
type Account struct {
	client    ClientID
	available decimal.Decimal
	held      decimal.Decimal
	locked    bool
	history   map[TxID]*Record
}

func NewAccount(client ClientID) *Account {
	return &Account{
		client:  client,
		history: make(map[TxID]*Record),
	}
}

func (a *Account) Client() ClientID           { return a.client }
func (a *Account) Available() decimal.Decimal { return a.available }
func (a *Account) Held() decimal.Decimal      { return a.held }
func (a *Account) Total() decimal.Decimal     { return a.available.Add(a.held) }
func (a *Account) Locked() bool               { return a.locked }

// Lookup returns a copy of the history entry for id.
func (a *Account) Lookup(id TxID) (Record, bool) {
	rec, ok := a.history[id]
	if !ok {
		return Record{}, false
	}

	return *rec, true
}

func (a *Account) Snapshot() Snapshot {
	return Snapshot{
		Client:    a.client,
		Available: a.available,
		Held:      a.held,
		Total:     a.Total(),
		Locked:    a.locked,
	}
}

// Apply runs one transaction against the account. A returned rejection
// (see IsRejection) leaves the account exactly as it was.
func (a *Account) Apply(tx Transaction) error {
	if tx.Client != a.client {
		return fmt.Errorf("%w: account %d got %s", ErrWrongAccount, a.client, tx)
	}

	switch tx.Kind {
	case KindDeposit:
		return a.deposit(tx)
	case KindWithdrawal:
		return a.withdraw(tx)
	case KindDispute:
		return a.dispute(tx)
	case KindResolve:
		return a.resolve(tx)
	case KindChargeback:
		return a.chargeback(tx)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, tx.Kind)
	}
}

func (a *Account) deposit(tx Transaction) error {
	err := a.checkNew(tx)
	if err != nil {
		return err
	}

	a.available = a.available.Add(tx.Amount)
	a.record(tx)

	return nil
}

func (a *Account) withdraw(tx Transaction) error {
	err := a.checkNew(tx)
	if err != nil {
		return err
	}

	if a.available.LessThan(tx.Amount) {
		return fmt.Errorf("%w: client %d available %s, needed %s",
			ErrInsufficientFunds, a.client, a.available.StringFixed(AmountPlaces), tx.Amount.StringFixed(AmountPlaces))
	}

	a.available = a.available.Sub(tx.Amount)
	a.record(tx)

	return nil
}

// dispute moves the referenced amount into held. Available may go negative
// when funds were already spent.
func (a *Account) dispute(tx Transaction) error {
	rec, err := a.find(tx.ID)
	if err != nil {
		return err
	}

	if rec.State != Undisputed {
		return fmt.Errorf("%w: client %d tx %d is %s", ErrAlreadyDisputed, a.client, tx.ID, rec.State)
	}

	a.available = a.available.Sub(rec.Amount)
	a.held = a.held.Add(rec.Amount)
	rec.State = Disputed

	return nil
}

func (a *Account) resolve(tx Transaction) error {
	rec, err := a.findDisputed(tx.ID)
	if err != nil {
		return err
	}

	a.held = a.held.Sub(rec.Amount)
	a.available = a.available.Add(rec.Amount)
	rec.State = Undisputed

	return nil
}

func (a *Account) chargeback(tx Transaction) error {
	rec, err := a.findDisputed(tx.ID)
	if err != nil {
		return err
	}

	a.held = a.held.Sub(rec.Amount)
	rec.State = ChargedBack
	a.locked = true

	return nil
}

func (a *Account) checkNew(tx Transaction) error {
	if a.locked {
		return fmt.Errorf("%w: client %d rejects %s", ErrAccountLocked, a.client, tx.Kind)
	}

	_, seen := a.history[tx.ID]
	if seen {
		return fmt.Errorf("%w: client %d tx %d", ErrDuplicateTransaction, a.client, tx.ID)
	}

	return nil
}

func (a *Account) find(id TxID) (*Record, error) {
	rec, ok := a.history[id]
	if !ok {
		return nil, fmt.Errorf("%w: client %d tx %d", ErrTransactionNotFound, a.client, id)
	}

	return rec, nil
}

func (a *Account) findDisputed(id TxID) (*Record, error) {
	rec, err := a.find(id)
	if err != nil {
		return nil, err
	}

	if rec.State != Disputed {
		return nil, fmt.Errorf("%w: client %d tx %d is %s", ErrNotDisputed, a.client, id, rec.State)
	}

	return rec, nil
}

func (a *Account) record(tx Transaction) {
	a.history[tx.ID] = &Record{
		ID:     tx.ID,
		Kind:   tx.Kind,
		Amount: tx.Amount,
		State:  Undisputed,
	}
}
