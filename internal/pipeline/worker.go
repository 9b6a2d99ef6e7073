package pipeline

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/fastprodman/txengine/internal/ledger"
)

// ErrMisrouted means a shard received a client it does not own.
var ErrMisrouted = errors.New("transaction routed to wrong shard")

// worker owns every account whose client maps to its shard. Accounts are
// never shared, so no locking is needed around them.
type worker struct {
	shard    int
	owns     func(ledger.ClientID) int
	accounts map[ledger.ClientID]*ledger.Account
	log      *slog.Logger
	stats    *Stats
}

func newWorker(shard int, owns func(ledger.ClientID) int, log *slog.Logger, stats *Stats) *worker {
	return &worker{
		shard:    shard,
		owns:     owns,
		accounts: make(map[ledger.ClientID]*ledger.Account),
		log:      log.With("shard", shard),
		stats:    stats,
	}
}

// run applies queued transactions until the queue is closed.
func (w *worker) run(queue <-chan ledger.Transaction) error {
	for tx := range queue {
		err := w.apply(tx)
		if err != nil {
			return err
		}
	}

	return nil
}

func (w *worker) apply(tx ledger.Transaction) error {
	if w.owns(tx.Client) != w.shard {
		return fmt.Errorf("%w: shard %d got %s", ErrMisrouted, w.shard, tx)
	}

	acct, ok := w.accounts[tx.Client]
	if !ok {
		acct = ledger.NewAccount(tx.Client)
		w.accounts[tx.Client] = acct
	}

	err := acct.Apply(tx)
	switch {
	case err == nil:
		w.stats.applied.Add(1)
	case ledger.IsRejection(err):
		w.stats.rejected.Add(1)
		w.logRejection(acct, tx, err)
	default:
		return fmt.Errorf("apply %s: %w", tx, err)
	}

	return nil
}

// logRejection includes the dispute state of the referenced history entry,
// when there is one.
func (w *worker) logRejection(acct *ledger.Account, tx ledger.Transaction, reason error) {
	attrs := []any{"client", tx.Client, "tx", tx.ID, "kind", tx.Kind.String(), "reason", reason}

	rec, ok := acct.Lookup(tx.ID)
	if ok {
		attrs = append(attrs, "tx_state", rec.State.String())
	}

	w.log.Debug("transaction rejected", attrs...)
}

func (w *worker) snapshots() []ledger.Snapshot {
	out := make([]ledger.Snapshot, 0, len(w.accounts))
	for _, acct := range w.accounts {
		out = append(out, acct.Snapshot())
	}

	return out
}
