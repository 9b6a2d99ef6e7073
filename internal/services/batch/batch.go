package batch

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/fastprodman/txengine/internal/infra/pgutils"
	"github.com/fastprodman/txengine/internal/ledger"
	"github.com/fastprodman/txengine/internal/pipeline"
	"github.com/fastprodman/txengine/internal/records"
	"github.com/fastprodman/txengine/internal/repos/snapshots"
	pgsnapshots "github.com/fastprodman/txengine/internal/repos/snapshots/postgres"
)

var (
	// ErrInvalidInput marks batches whose CSV could not be read: a missing
	// header, a missing column or broken CSV framing.
	ErrInvalidInput        = errors.New("invalid batch input")
	ErrPersistenceDisabled = errors.New("persistence disabled")
	// ErrStorageUnavailable is returned without touching the database while
	// the storage circuit breaker is open.
	ErrStorageUnavailable = errors.New("batch storage unavailable")
)

const (
	breakerTrips   = 5
	breakerTimeout = 30 * time.Second
)

// Batch is the outcome of one engine run.
type Batch struct {
	ID       uuid.UUID
	Stats    pipeline.Summary
	Accounts []ledger.Snapshot
}

type BatchService struct {
	db        *sql.DB
	snapshots snapshots.Snapshots
	breaker   *gobreaker.CircuitBreaker
	opts      pipeline.Options
	log       *slog.Logger
}

// New returns a service running the engine with opts. A nil db disables
// persistence: runs are still processed, but nothing is stored.
func New(db *sql.DB, opts pipeline.Options) *BatchService {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &BatchService{db: db, opts: opts, log: log}
	if db != nil {
		s.snapshots = pgsnapshots.New(db)
		s.breaker = newBreaker(log)
	}

	return s
}

// newBreaker trips after breakerTrips consecutive storage failures. Misses,
// conflicts and rejected values are answers from a healthy database and do
// not count.
func newBreaker(log *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "postgres",
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTrips
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, snapshots.ErrBatchNotFound) ||
				errors.Is(err, snapshots.ErrDuplicateBatch) ||
				errors.Is(err, snapshots.ErrUnstorable) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("storage breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// guard runs fn through the breaker.
func (s *BatchService) guard(fn func() error) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	return err
}

// Persistent reports whether runs are stored.
func (s *BatchService) Persistent() bool {
	return s.db != nil
}

// Run processes the CSV in r as one batch under a fresh id and, when
// persistence is enabled, stores the batch header and every account
// snapshot in a single transaction.
func (s *BatchService) Run(ctx context.Context, r io.Reader) (Batch, error) {
	id := uuid.New()
	log := s.log.With("batch_id", id.String())

	src, err := records.NewCSVSource(r)
	if err != nil {
		return Batch{}, fmt.Errorf("open source: %w", classify(err))
	}

	opts := s.opts
	opts.Logger = log

	res, err := pipeline.New(opts).Run(ctx, src, src.Layout().Decode)
	if err != nil {
		return Batch{}, fmt.Errorf("run batch %s: %w", id, classify(err))
	}

	batch := Batch{ID: id, Stats: res.Stats, Accounts: res.Accounts}

	if !s.Persistent() {
		return batch, nil
	}

	err = s.guard(func() error {
		return pgutils.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
			err := s.snapshots.InsertBatch(tx, snapshots.Batch{ID: id, Stats: res.Stats})
			if err != nil {
				return fmt.Errorf("insert batch: %w", err)
			}

			err = s.snapshots.InsertAccounts(tx, id, res.Accounts)
			if err != nil {
				return fmt.Errorf("insert accounts: %w", err)
			}

			return nil
		})
	})
	if err != nil {
		return Batch{}, fmt.Errorf("persist batch %s: %w", id, err)
	}

	log.Info("batch stored", "accounts", len(res.Accounts))

	return batch, nil
}

// GetAccounts returns the stored accounts of a batch, sorted by client id.
func (s *BatchService) GetAccounts(ctx context.Context, batchID uuid.UUID) ([]ledger.Snapshot, error) {
	if !s.Persistent() {
		return nil, ErrPersistenceDisabled
	}

	var accounts []ledger.Snapshot

	err := s.guard(func() error {
		var err error

		accounts, err = s.snapshots.GetAccounts(ctx, batchID)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get accounts: %w", err)
	}

	return accounts, nil
}

// GetBatch returns the stored header and run stats of a batch.
func (s *BatchService) GetBatch(ctx context.Context, batchID uuid.UUID) (snapshots.Batch, error) {
	if !s.Persistent() {
		return snapshots.Batch{}, ErrPersistenceDisabled
	}

	var b snapshots.Batch

	err := s.guard(func() error {
		var err error

		b, err = s.snapshots.GetBatch(ctx, batchID)

		return err
	})
	if err != nil {
		return snapshots.Batch{}, fmt.Errorf("get batch: %w", err)
	}

	return b, nil
}

func classify(err error) error {
	var parseErr *csv.ParseError

	switch {
	case errors.As(err, &parseErr),
		errors.Is(err, records.ErrMissingHeader),
		errors.Is(err, records.ErrMissingColumn):
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	default:
		return err
	}
}
