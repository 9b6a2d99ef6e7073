package shutdownqueue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAddNilTaskIsNoop(t *testing.T) {
	t.Parallel()

	q := New()
	q.Add(nil)

	if q.Len() != 0 {
		t.Fatalf("nil task must not be queued")
	}

	err := q.Shutdown(t.Context())
	if err != nil {
		t.Fatalf("expected nil after adding nil task; got %v", err)
	}
}

func TestLIFOOrder(t *testing.T) {
	t.Parallel()

	q := New()

	var (
		orderMu sync.Mutex
		order   []int
	)

	for i := 1; i <= 3; i++ {
		q.Add(func(context.Context) error {
			orderMu.Lock()
			defer orderMu.Unlock()

			order = append(order, i)

			return nil
		})
	}

	err := q.Shutdown(t.Context())
	if err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}

	want := []int{3, 2, 1}
	if len(order) != len(want) {
		t.Fatalf("order len mismatch: got %v, want %v", order, want)
	}

	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %v, want %v", i, order, want)
		}
	}
}

func TestPanicRecoveryIncludedAndContinues(t *testing.T) {
	t.Parallel()

	q := New()

	var ranAfterPanic atomic.Bool

	q.Add(func(context.Context) error {
		ranAfterPanic.Store(true)

		return nil
	})
	q.Add(func(context.Context) error { panic("boom") })

	err := q.Shutdown(t.Context())
	if err == nil {
		t.Fatalf("expected aggregated error with panic; got nil")
	}

	if !strings.Contains(err.Error(), "panic in shutdown task: boom") {
		t.Fatalf("expected panic message in error; got: %q", err.Error())
	}

	if !ranAfterPanic.Load() {
		t.Fatalf("expected tasks after the panic to still run")
	}
}

func TestEarlyCancelStopsDrain(t *testing.T) {
	t.Parallel()

	q := New()

	errA := errors.New("taskA")

	var ranB atomic.Bool

	gateReady := make(chan struct{})

	q.Add(func(context.Context) error { return errA })
	q.Add(func(context.Context) error {
		ranB.Store(true)

		return nil
	})
	q.Add(func(ctx context.Context) error {
		close(gateReady)
		<-ctx.Done()

		return nil
	})

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)

	go func() {
		errCh <- q.Shutdown(ctx)
	}()

	<-gateReady
	cancel()

	err := <-errCh
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected errors.Is(err, context.Canceled); got: %v", err)
	}

	if ranB.Load() {
		t.Fatalf("expected taskB not to run after cancel")
	}

	if errors.Is(err, errA) {
		t.Fatalf("did not expect joined error to include taskA")
	}
}

func TestIdempotentAndRunsOnce(t *testing.T) {
	t.Parallel()

	q := New()

	var count atomic.Int32

	q.Add(func(context.Context) error {
		count.Add(1)

		return nil
	})

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()

	for range 2 {
		err := q.Shutdown(ctx)
		if err != nil {
			t.Fatalf("Shutdown error: %v", err)
		}
	}

	if got := count.Load(); got != 1 {
		t.Fatalf("expected count=1; got %d", got)
	}
}

func TestAddDuringShutdownIsIgnored(t *testing.T) {
	t.Parallel()

	q := New()

	started := make(chan struct{})
	unblock := make(chan struct{})

	q.Add(func(context.Context) error {
		close(started)
		<-unblock

		return nil
	})

	done := make(chan struct{})

	go func() {
		_ = q.Shutdown(t.Context())

		close(done)
	}()

	<-started

	var ran atomic.Bool

	q.Add(func(context.Context) error {
		ran.Store(true)

		return nil
	})

	close(unblock)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Shutdown did not finish")
	}

	if ran.Load() {
		t.Fatalf("task added after shutdown start must not run")
	}
}

func TestTaskErrorsAreJoined(t *testing.T) {
	t.Parallel()

	q := New()

	err1 := errors.New("alpha")
	err2 := errors.New("beta")

	q.Add(func(context.Context) error { return err1 })
	q.Add(func(context.Context) error { return err2 })

	err := q.Shutdown(t.Context())
	if !errors.Is(err, err1) || !errors.Is(err, err2) {
		t.Fatalf("expected joined error to contain both; got: %v", err)
	}
}

//nolint:paralleltest
func TestDefaultQueue(t *testing.T) {
	var ran atomic.Bool

	Add(func(context.Context) error {
		ran.Store(true)

		return nil
	})

	err := Shutdown(t.Context())
	if err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}

	if !ran.Load() {
		t.Fatalf("task on default queue did not run")
	}

	err = Shutdown(t.Context())
	if err != nil {
		t.Fatalf("second Shutdown must be a no-op; got %v", err)
	}
}
