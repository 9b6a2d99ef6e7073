package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fastprodman/txengine/internal/ledger"
)

// Invariant violations. Any of these means records were lost or duplicated
// between the source and the sequencer.
var (
	ErrStaleIndex     = errors.New("sequence index already emitted")
	ErrDuplicateIndex = errors.New("sequence index already buffered")
	ErrReorderGap     = errors.New("reorder buffer not empty at end of input")
	ErrLostIndex      = errors.New("sequence index never submitted")
)

// Decoded is a decode result paired with the index of its source record.
// Exactly one of Tx and Err is meaningful.
type Decoded struct {
	Index uint64
	Tx    ledger.Transaction
	Err   error
}

// EmitFunc receives transactions in input order.
type EmitFunc func(ctx context.Context, tx ledger.Transaction) error

// Sequencer restores input order from out-of-order decode results.
// Submit may be called from any number of goroutines; emission happens under
// the sequencer's lock, one transaction at a time.
type Sequencer struct {
	mu      sync.Mutex
	next    uint64
	pending map[uint64]Decoded

	emit  EmitFunc
	log   *slog.Logger
	stats *Stats
}

func NewSequencer(emit EmitFunc, log *slog.Logger, stats *Stats) *Sequencer {
	if log == nil {
		log = slog.Default()
	}

	if stats == nil {
		stats = new(Stats)
	}

	return &Sequencer{
		pending: make(map[uint64]Decoded),
		emit:    emit,
		log:     log,
		stats:   stats,
	}
}

// Submit accepts one decode result. If it is the next expected index it is
// emitted together with every buffered successor; otherwise it is buffered.
func (s *Sequencer) Submit(ctx context.Context, d Decoded) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case d.Index < s.next:
		return fmt.Errorf("%w: index %d, next %d", ErrStaleIndex, d.Index, s.next)
	case d.Index > s.next:
		_, dup := s.pending[d.Index]
		if dup {
			return fmt.Errorf("%w: index %d", ErrDuplicateIndex, d.Index)
		}

		s.pending[d.Index] = d

		return nil
	}

	err := s.release(ctx, d)
	if err != nil {
		return err
	}

	for {
		nd, ok := s.pending[s.next]
		if !ok {
			return nil
		}

		delete(s.pending, s.next)

		err = s.release(ctx, nd)
		if err != nil {
			return err
		}
	}
}

// release emits d and advances next. Caller holds mu.
func (s *Sequencer) release(ctx context.Context, d Decoded) error {
	s.next++

	if d.Err != nil {
		s.stats.decodeFailures.Add(1)
		s.log.Warn("skipping malformed record", "index", d.Index, "error", d.Err)

		return nil
	}

	err := s.emit(ctx, d.Tx)
	if err != nil {
		return fmt.Errorf("emit record %d: %w", d.Index, err)
	}

	return nil
}

// Close verifies that all read records, indexes 0 through read-1, have been
// emitted and nothing is left in the buffer.
func (s *Sequencer) Close(read uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) != 0 {
		return fmt.Errorf("%w: next %d, %d buffered", ErrReorderGap, s.next, len(s.pending))
	}

	if s.next != read {
		return fmt.Errorf("%w: next %d, %d read", ErrLostIndex, s.next, read)
	}

	return nil
}

// Next returns the index the sequencer is waiting for.
func (s *Sequencer) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.next
}

// Pending returns the number of buffered out-of-order results.
func (s *Sequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.pending)
}
