package core

import (
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/najoast/gproc/future"
)

func promises[T any](n int) ([]*future.Promise[T], []future.Future[T]) {
	ps := make([]*future.Promise[T], n)
	fs := make([]future.Future[T], n)
	for i := range ps {
		ps[i] = future.NewPromise[T]()
		fs[i] = ps[i].Future()
	}
	return ps, fs
}

func TestCollect(t *testing.T) {
	rt := newTestRuntime(t)

	t.Run("InputOrder", func(t *testing.T) {
		ps, fs := promises[int](4)
		f := Collect(rt, fs, future.Forever)

		for _, i := range []int{2, 0, 3, 1} {
			ps[i].Set(i + 1)
		}

		values := await(t, f)
		expected := []int{1, 2, 3, 4}
		for i := range expected {
			if values[i] != expected[i] {
				t.Fatalf("Expected %v, got %v", expected, values)
			}
		}
	})

	t.Run("Failure", func(t *testing.T) {
		ps, fs := promises[int](2)
		f := Collect(rt, fs, future.Forever)

		ps[0].Set(1)
		ps[1].Fail(errors.New("x"))

		if !f.Await(5 * time.Second) {
			t.Fatal("Expected future to settle")
		}
		if !f.IsFailed() {
			t.Fatalf("Expected failure, got %s", f.State())
		}
		if !strings.Contains(f.Failure().Error(), "x") {
			t.Errorf("Expected failure to reference 'x', got '%v'", f.Failure())
		}
	})

	t.Run("DiscardedInput", func(t *testing.T) {
		_, fs := promises[int](2)
		f := Collect(rt, fs, future.Forever)

		fs[1].Discard()

		if !f.Await(5 * time.Second) {
			t.Fatal("Expected future to settle")
		}
		if !errors.Is(f.Failure(), future.ErrDiscarded) {
			t.Errorf("Expected ErrDiscarded, got %v", f.Failure())
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		_, fs := promises[int](1)
		f := Collect(rt, fs, 0)

		if !f.Await(5 * time.Second) {
			t.Fatal("Expected future to settle")
		}
		if !errors.Is(f.Failure(), ErrTimeout) {
			t.Errorf("Expected ErrTimeout, got %v", f.Failure())
		}
		if !fs[0].IsDiscarded() {
			t.Errorf("Expected input to be discarded, got %s", fs[0].State())
		}
	})

	t.Run("Empty", func(t *testing.T) {
		values := await(t, Collect[int](rt, nil, time.Second))
		if len(values) != 0 {
			t.Errorf("Expected no values, got %v", values)
		}
	})

	t.Run("DiscardResult", func(t *testing.T) {
		_, fs := promises[int](2)
		f := Collect(rt, fs, future.Forever)

		f.Discard()
		for i, input := range fs {
			if !input.Await(5 * time.Second) || !input.IsDiscarded() {
				t.Errorf("Expected input %d to be discarded, got %s", i, input.State())
			}
		}
	})
}

func TestCollectVirtualTimeout(t *testing.T) {
	rt := newTestRuntime(t)
	rt.Clock().Pause()

	ps, fs := promises[string](2)
	f := Collect(rt, fs, 10*time.Second)
	rt.Clock().Settle()

	ps[0].Set("a")
	rt.Clock().Advance(9 * time.Second)
	rt.Clock().Settle()

	if !f.IsPending() {
		t.Fatalf("Expected collect to be pending before the timeout, got %s", f.State())
	}

	rt.Clock().Advance(time.Second)
	rt.Clock().Settle()

	if !errors.Is(f.Failure(), ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", f.Failure())
	}
	if !fs[0].IsReady() {
		t.Errorf("Expected settled input to stay ready, got %s", fs[0].State())
	}
	if !fs[1].IsDiscarded() {
		t.Errorf("Expected pending input to be discarded, got %s", fs[1].State())
	}
}

func TestAwaitAll(t *testing.T) {
	rt := newTestRuntime(t)

	t.Run("MixedOutcomes", func(t *testing.T) {
		ps, fs := promises[int](3)
		f := AwaitAll(rt, fs, future.Forever)

		ps[2].Set(3)
		ps[0].Fail(errors.New("failed"))
		ps[1].Discard()

		settled := await(t, f)
		if len(settled) != 3 {
			t.Fatalf("Expected 3 futures, got %d", len(settled))
		}
		if !settled[0].IsFailed() || !settled[1].IsDiscarded() || !settled[2].IsReady() {
			t.Errorf("Expected [failed discarded ready], got [%s %s %s]",
				settled[0].State(), settled[1].State(), settled[2].State())
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		ps, fs := promises[int](2)
		ps[0].Set(1)
		f := AwaitAll(rt, fs, 0)

		if !f.Await(5 * time.Second) {
			t.Fatal("Expected future to settle")
		}
		if !errors.Is(f.Failure(), ErrTimeout) {
			t.Errorf("Expected ErrTimeout, got %v", f.Failure())
		}
		if !fs[1].IsDiscarded() {
			t.Errorf("Expected pending input to be discarded, got %s", fs[1].State())
		}
	})
}
