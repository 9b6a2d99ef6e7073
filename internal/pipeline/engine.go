// Package pipeline applies a stream of transaction records to client accounts
// in parallel while producing exactly the result of a sequential pass.
//
// Records are decoded by a pool of goroutines, put back into input order by
// a Sequencer, and routed by client id to a fixed set of shard workers. Each
// shard applies its clients' transactions one at a time, so per-client order
// equals input order. Once every shard has drained, the account snapshots
// are collected into a Result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/fastprodman/txengine/internal/ledger"
	"github.com/fastprodman/txengine/internal/records"
)

const defaultQueueSize = 1024

// DecodeFunc turns a raw record into a transaction. It must be safe for
// concurrent use.
type DecodeFunc func(records.RawRecord) (ledger.Transaction, error)

type Options struct {
	// DecodeWorkers is the decode pool size. Defaults to NumCPU-1, at least 1.
	DecodeWorkers int
	// Shards is the number of account workers. Defaults to DecodeWorkers.
	Shards int
	// QueueSize bounds the raw record channel and every shard queue.
	QueueSize int
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.DecodeWorkers <= 0 {
		o.DecodeWorkers = max(runtime.NumCPU()-1, 1)
	}

	if o.Shards <= 0 {
		o.Shards = o.DecodeWorkers
	}

	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}

	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	return o
}

// Result is the final state of a completed run.
type Result struct {
	Accounts []ledger.Snapshot
	Stats    Summary
}

type Engine struct {
	opts Options
}

func New(opts Options) *Engine {
	return &Engine{opts: opts.withDefaults()}
}

func (e *Engine) Options() Options {
	return e.opts
}

// Run consumes src until io.EOF and returns every account it touched, sorted
// by client id. Any source failure or internal invariant violation fails
// the whole run; no partial result is returned.
func (e *Engine) Run(ctx context.Context, src records.Source, decode DecodeFunc) (Result, error) {
	log := e.opts.Logger
	stats := new(Stats)
	router := NewRouter(e.opts.Shards, e.opts.QueueSize)
	seq := NewSequencer(router.Route, log, stats)

	// Shard workers outlive the decode stage; routing uses their context so
	// already decoded records still drain after a source failure.
	shardGroup, shardCtx := errgroup.WithContext(ctx)
	workers := make([]*worker, router.Shards())

	for i := range workers {
		w := newWorker(i, router.ShardFor, log, stats)
		workers[i] = w
		queue := router.Queue(i)

		shardGroup.Go(func() error {
			return w.run(queue)
		})
	}

	decodeErr := e.decode(shardCtx, src, decode, seq, stats)

	router.Close()

	shardErr := shardGroup.Wait()

	switch {
	case shardErr != nil:
		return Result{}, fmt.Errorf("apply transactions: %w", shardErr)
	case decodeErr != nil:
		return Result{}, decodeErr
	}

	err := seq.Close(stats.records.Load())
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Accounts: collect(workers),
		Stats:    stats.Summary(),
	}

	log.Info("run complete",
		"records", res.Stats.Records,
		"applied", res.Stats.Applied,
		"rejected", res.Stats.Rejected,
		"decode_failures", res.Stats.DecodeFailures,
		"accounts", len(res.Accounts),
	)

	return res, nil
}

// decode reads src and feeds the decode pool until the source is exhausted
// or fails. It returns once every read record has been submitted.
func (e *Engine) decode(ctx context.Context, src records.Source, decode DecodeFunc, seq *Sequencer, stats *Stats) error {
	raw := make(chan records.RawRecord, e.opts.QueueSize)
	pool, poolCtx := errgroup.WithContext(ctx)

	var readErr error

	readDone := make(chan struct{})

	go func() {
		defer close(readDone)
		defer close(raw)

		for {
			rec, err := src.Next()
			if errors.Is(err, io.EOF) {
				return
			}

			if err != nil {
				readErr = fmt.Errorf("read record: %w", err)

				return
			}

			stats.records.Add(1)

			select {
			case raw <- rec:
			case <-poolCtx.Done():
				readErr = poolCtx.Err()

				return
			}
		}
	}()

	for range e.opts.DecodeWorkers {
		pool.Go(func() error {
			for rec := range raw {
				tx, err := decode(rec)

				serr := seq.Submit(poolCtx, Decoded{Index: rec.Index, Tx: tx, Err: err})
				if serr != nil {
					return serr
				}
			}

			return nil
		})
	}

	poolErr := pool.Wait()

	if poolErr != nil {
		// Unblock the reader if it is waiting on a full channel.
		for range raw {
		}
	}

	<-readDone

	if poolErr != nil {
		return poolErr
	}

	return readErr
}

func collect(workers []*worker) []ledger.Snapshot {
	out := make([]ledger.Snapshot, 0)
	for _, w := range workers {
		out = append(out, w.snapshots()...)
	}

	slices.SortFunc(out, func(a, b ledger.Snapshot) int {
		return int(a.Client) - int(b.Client)
	})

	return out
}
