package pipeline

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/txengine/internal/ledger"
)

// recorder collects emitted transactions; the tx ID doubles as the index.
type recorder struct {
	mu  sync.Mutex
	ids []ledger.TxID
}

func (r *recorder) emit(_ context.Context, tx ledger.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ids = append(r.ids, tx.ID)

	return nil
}

func (r *recorder) got() []ledger.TxID {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]ledger.TxID(nil), r.ids...)
}

func item(i uint64) Decoded {
	return Decoded{Index: i, Tx: ledger.Dispute(1, ledger.TxID(i))}
}

func TestSequencer_RestoresOrderUnderConcurrency(t *testing.T) {
	t.Parallel()

	const n = 2000

	for round := range 5 {
		rec := new(recorder)
		seq := NewSequencer(rec.emit, nil, nil)

		perm := rand.Perm(n)
		work := make(chan int)

		var wg sync.WaitGroup

		for range 8 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				for i := range work {
					if rand.IntN(4) == 0 {
						time.Sleep(time.Duration(rand.IntN(50)) * time.Microsecond)
					}

					err := seq.Submit(t.Context(), item(uint64(i)))
					assert.NoError(t, err)
				}
			}()
		}

		for _, i := range perm {
			work <- i
		}

		close(work)
		wg.Wait()

		require.NoError(t, seq.Close(n), "round %d", round)

		got := rec.got()
		require.Len(t, got, n)

		for i, id := range got {
			require.Equal(t, ledger.TxID(i), id, "round %d position %d", round, i)
		}

		assert.Equal(t, uint64(n), seq.Next())
		assert.Zero(t, seq.Pending())
	}
}

func TestSequencer_BuffersUntilGapFilled(t *testing.T) {
	t.Parallel()

	rec := new(recorder)
	seq := NewSequencer(rec.emit, nil, nil)

	for _, i := range []uint64{3, 1, 2} {
		require.NoError(t, seq.Submit(t.Context(), item(i)))
	}

	assert.Empty(t, rec.got())
	assert.Equal(t, 3, seq.Pending())
	require.ErrorIs(t, seq.Close(4), ErrReorderGap)

	require.NoError(t, seq.Submit(t.Context(), item(0)))

	assert.Equal(t, []ledger.TxID{0, 1, 2, 3}, rec.got())
	assert.Zero(t, seq.Pending())
	require.NoError(t, seq.Close(4))
}

func TestSequencer_DecodeErrorsConsumeIndex(t *testing.T) {
	t.Parallel()

	rec := new(recorder)
	stats := new(Stats)
	seq := NewSequencer(rec.emit, nil, stats)

	bad := Decoded{Index: 1, Err: errors.New("garbage")}

	require.NoError(t, seq.Submit(t.Context(), item(2)))
	require.NoError(t, seq.Submit(t.Context(), bad))
	require.NoError(t, seq.Submit(t.Context(), item(0)))

	assert.Equal(t, []ledger.TxID{0, 2}, rec.got())
	assert.Equal(t, uint64(3), seq.Next())
	assert.Equal(t, uint64(1), stats.Summary().DecodeFailures)
	require.NoError(t, seq.Close(3))
}

func TestSequencer_InvariantViolations(t *testing.T) {
	t.Parallel()

	rec := new(recorder)
	seq := NewSequencer(rec.emit, nil, nil)

	require.NoError(t, seq.Submit(t.Context(), item(0)))
	require.ErrorIs(t, seq.Submit(t.Context(), item(0)), ErrStaleIndex)

	require.NoError(t, seq.Submit(t.Context(), item(5)))
	require.ErrorIs(t, seq.Submit(t.Context(), item(5)), ErrDuplicateIndex)
}

func TestSequencer_CloseDetectsMissingTail(t *testing.T) {
	t.Parallel()

	rec := new(recorder)
	seq := NewSequencer(rec.emit, nil, nil)

	require.NoError(t, seq.Submit(t.Context(), item(0)))
	require.NoError(t, seq.Submit(t.Context(), item(1)))

	// Three records were read but the last one never reached the sequencer.
	err := seq.Close(3)
	require.ErrorIs(t, err, ErrLostIndex)
	assert.Zero(t, seq.Pending())

	require.NoError(t, seq.Close(2))
}

func TestSequencer_EmitErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("queue gone")
	seq := NewSequencer(func(context.Context, ledger.Transaction) error { return boom }, nil, nil)

	require.NoError(t, seq.Submit(t.Context(), item(1)))
	require.ErrorIs(t, seq.Submit(t.Context(), item(0)), boom)
}
