package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()

	d, err := decimal.NewFromString(s)
	require.NoError(t, err)

	return d
}

func assertBalances(t *testing.T, a *Account, available, held string, locked bool) {
	t.Helper()

	snap := a.Snapshot()
	assert.Equal(t, dec(t, available).StringFixed(AmountPlaces), snap.Available.StringFixed(AmountPlaces), "available")
	assert.Equal(t, dec(t, held).StringFixed(AmountPlaces), snap.Held.StringFixed(AmountPlaces), "held")
	assert.True(t, snap.Total.Equal(snap.Available.Add(snap.Held)), "total must equal available + held")
	assert.Equal(t, locked, snap.Locked, "locked")
}

func TestAccount_Apply(t *testing.T) {
	t.Parallel()

	type step struct {
		tx      func(t *testing.T) Transaction
		wantErr error
	}

	deposit := func(id TxID, amount string) func(t *testing.T) Transaction {
		return func(t *testing.T) Transaction { return Deposit(1, id, dec(t, amount)) }
	}
	withdrawal := func(id TxID, amount string) func(t *testing.T) Transaction {
		return func(t *testing.T) Transaction { return Withdrawal(1, id, dec(t, amount)) }
	}
	ref := func(build func(ClientID, TxID) Transaction, id TxID) func(t *testing.T) Transaction {
		return func(*testing.T) Transaction { return build(1, id) }
	}

	tests := []struct {
		name          string
		steps         []step
		wantAvailable string
		wantHeld      string
		wantLocked    bool
	}{
		{
			name:          "deposit",
			steps:         []step{{tx: deposit(1, "100")}},
			wantAvailable: "100",
			wantHeld:      "0",
		},
		{
			name: "duplicate_deposit_rejected",
			steps: []step{
				{tx: deposit(1, "100")},
				{tx: deposit(1, "100"), wantErr: ErrDuplicateTransaction},
			},
			wantAvailable: "100",
			wantHeld:      "0",
		},
		{
			name: "withdrawal_then_insufficient",
			steps: []step{
				{tx: deposit(1, "100")},
				{tx: withdrawal(2, "100")},
				{tx: withdrawal(3, "0.0001"), wantErr: ErrInsufficientFunds},
			},
			wantAvailable: "0",
			wantHeld:      "0",
		},
		{
			name: "fractional_amounts_keep_precision",
			steps: []step{
				{tx: deposit(1, "1.1111")},
				{tx: deposit(2, "2.2222")},
				{tx: withdrawal(3, "0.3333")},
			},
			wantAvailable: "3",
			wantHeld:      "0",
		},
		{
			name: "dispute_unknown_is_noop",
			steps: []step{
				{tx: deposit(1, "10")},
				{tx: ref(Dispute, 99), wantErr: ErrTransactionNotFound},
			},
			wantAvailable: "10",
			wantHeld:      "0",
		},
		{
			name: "double_dispute_is_noop",
			steps: []step{
				{tx: deposit(1, "10")},
				{tx: ref(Dispute, 1)},
				{tx: ref(Dispute, 1), wantErr: ErrAlreadyDisputed},
			},
			wantAvailable: "0",
			wantHeld:      "10",
		},
		{
			name: "resolve_undisputed_is_noop",
			steps: []step{
				{tx: deposit(1, "10")},
				{tx: ref(Resolve, 1), wantErr: ErrNotDisputed},
				{tx: ref(Resolve, 7), wantErr: ErrTransactionNotFound},
			},
			wantAvailable: "10",
			wantHeld:      "0",
		},
		{
			name: "dispute_then_resolve",
			steps: []step{
				{tx: deposit(1, "10")},
				{tx: ref(Dispute, 1)},
				{tx: ref(Resolve, 1)},
			},
			wantAvailable: "10",
			wantHeld:      "0",
		},
		{
			name: "resolved_entry_can_be_disputed_again",
			steps: []step{
				{tx: deposit(1, "10")},
				{tx: ref(Dispute, 1)},
				{tx: ref(Resolve, 1)},
				{tx: ref(Dispute, 1)},
			},
			wantAvailable: "0",
			wantHeld:      "10",
		},
		{
			name: "chargeback_undisputed_is_noop",
			steps: []step{
				{tx: deposit(1, "10")},
				{tx: ref(Chargeback, 1), wantErr: ErrNotDisputed},
			},
			wantAvailable: "10",
			wantHeld:      "0",
		},
		{
			name: "chargeback_locks_and_rejects_deposit",
			steps: []step{
				{tx: deposit(1, "100")},
				{tx: ref(Dispute, 1)},
				{tx: ref(Chargeback, 1)},
				{tx: deposit(2, "50"), wantErr: ErrAccountLocked},
				{tx: withdrawal(3, "0"), wantErr: ErrAccountLocked},
			},
			wantAvailable: "0",
			wantHeld:      "0",
			wantLocked:    true,
		},
		{
			name: "charged_back_entry_cannot_be_disputed_again",
			steps: []step{
				{tx: deposit(1, "100")},
				{tx: ref(Dispute, 1)},
				{tx: ref(Chargeback, 1)},
				{tx: ref(Dispute, 1), wantErr: ErrAlreadyDisputed},
			},
			wantAvailable: "0",
			wantHeld:      "0",
			wantLocked:    true,
		},
		{
			name: "locked_account_still_settles_open_disputes",
			steps: []step{
				{tx: deposit(1, "100")},
				{tx: deposit(2, "40")},
				{tx: ref(Dispute, 1)},
				{tx: ref(Dispute, 2)},
				{tx: ref(Chargeback, 1)},
				{tx: ref(Resolve, 2)},
			},
			wantAvailable: "40",
			wantHeld:      "0",
			wantLocked:    true,
		},
		{
			name: "dispute_may_drive_available_negative",
			steps: []step{
				{tx: deposit(1, "10")},
				{tx: withdrawal(3, "3")},
				{tx: ref(Dispute, 1)},
			},
			wantAvailable: "-3",
			wantHeld:      "10",
		},
		{
			name: "withdrawal_dispute_holds_withdrawn_amount",
			steps: []step{
				{tx: deposit(1, "10")},
				{tx: withdrawal(2, "4")},
				{tx: ref(Dispute, 2)},
			},
			wantAvailable: "2",
			wantHeld:      "4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			acct := NewAccount(1)

			for i, s := range tt.steps {
				tx := s.tx(t)
				before := acct.Snapshot()

				err := acct.Apply(tx)
				if s.wantErr == nil {
					require.NoError(t, err, "step %d (%s)", i, tx)

					continue
				}

				require.ErrorIs(t, err, s.wantErr, "step %d (%s)", i, tx)
				assert.True(t, IsRejection(err))
				assert.Equal(t, before, acct.Snapshot(), "rejected step %d must not change state", i)
			}

			assertBalances(t, acct, tt.wantAvailable, tt.wantHeld, tt.wantLocked)
		})
	}
}

func TestAccount_WrongAccountIsFatal(t *testing.T) {
	t.Parallel()

	acct := NewAccount(1)

	err := acct.Apply(Deposit(2, 1, decimal.NewFromInt(5)))
	require.ErrorIs(t, err, ErrWrongAccount)
	assert.False(t, IsRejection(err))
	assertBalances(t, acct, "0", "0", false)
}

func TestAccount_UnknownKind(t *testing.T) {
	t.Parallel()

	acct := NewAccount(1)

	err := acct.Apply(Transaction{Kind: Kind(42), Client: 1, ID: 1})
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestAccount_LookupTracksDisputeState(t *testing.T) {
	t.Parallel()

	acct := NewAccount(3)
	require.NoError(t, acct.Apply(Deposit(3, 9, decimal.NewFromInt(12))))

	rec, ok := acct.Lookup(9)
	require.True(t, ok)
	assert.Equal(t, Undisputed, rec.State)

	require.NoError(t, acct.Apply(Dispute(3, 9)))

	rec, ok = acct.Lookup(9)
	require.True(t, ok)
	assert.Equal(t, Disputed, rec.State)

	require.NoError(t, acct.Apply(Chargeback(3, 9)))

	rec, _ = acct.Lookup(9)
	assert.Equal(t, ChargedBack, rec.State)

	_, ok = acct.Lookup(10)
	assert.False(t, ok)
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	for _, k := range []Kind{KindDeposit, KindWithdrawal, KindDispute, KindResolve, KindChargeback} {
		got, err := ParseKind("  " + k.String() + " ")
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	got, err := ParseKind("DePoSiT")
	require.NoError(t, err)
	assert.Equal(t, KindDeposit, got)

	_, err = ParseKind("transfer")
	require.ErrorIs(t, err, ErrUnknownKind)
}
