package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/fastprodman/txengine/internal/ledger"
)

// Router hands ordered transactions to shard queues keyed by client id.
// Each client always lands on the same queue, so a client's transactions
// reach its worker in the order Route was called.
type Router struct {
	queues    []chan ledger.Transaction
	closeOnce sync.Once
}

func NewRouter(shards, queueSize int) *Router {
	if shards <= 0 {
		shards = 1
	}

	if queueSize < 0 {
		queueSize = 0
	}

	queues := make([]chan ledger.Transaction, shards)
	for i := range queues {
		queues[i] = make(chan ledger.Transaction, queueSize)
	}

	return &Router{queues: queues}
}

func (r *Router) Shards() int {
	return len(r.queues)
}

// ShardFor returns the shard owning client.
func (r *Router) ShardFor(client ledger.ClientID) int {
	return int(client) % len(r.queues)
}

// Queue returns the receive side of shard i.
func (r *Router) Queue(i int) <-chan ledger.Transaction {
	return r.queues[i]
}

// Route blocks until tx is queued on its shard or ctx is done.
func (r *Router) Route(ctx context.Context, tx ledger.Transaction) error {
	select {
	case r.queues[r.ShardFor(tx.Client)] <- tx:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("route %s: %w", tx, ctx.Err())
	}
}

// Close closes every shard queue. Route must not be called afterwards.
func (r *Router) Close() {
	r.closeOnce.Do(func() {
		for _, q := range r.queues {
			close(q)
		}
	})
}
