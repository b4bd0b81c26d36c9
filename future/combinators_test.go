package future

import (
	"errors"
	"strconv"
	"strings"
	"testing"
)

func TestThen(t *testing.T) {
	t.Run("Value", func(t *testing.T) {
		promise := NewPromise[int]()
		f := Then(promise.Future(), strconv.Itoa)
		promise.Set(42)

		v, err := f.Get()
		if err != nil || v != "42" {
			t.Errorf("Expected '42', got '%s' (%v)", v, err)
		}
	})

	t.Run("Failure", func(t *testing.T) {
		f := Then(Failed[int](errors.New("boom")), strconv.Itoa)
		if !f.IsFailed() || f.Failure().Error() != "boom" {
			t.Errorf("Expected failure 'boom', got %s (%v)", f.State(), f.Failure())
		}
	})

	t.Run("Future", func(t *testing.T) {
		inner := NewPromise[string]()
		f := ThenFuture(Ready(1), func(int) Future[string] {
			return inner.Future()
		})
		if !f.IsPending() {
			t.Fatalf("Expected pending, got %s", f.State())
		}
		inner.Set("done")
		if v, _ := f.Result(); v != "done" {
			t.Errorf("Expected 'done', got '%s'", v)
		}
	})

	t.Run("DiscardPropagates", func(t *testing.T) {
		source := NewPromise[int]()
		f := Then(source.Future(), strconv.Itoa)
		f.Discard()
		if !source.Future().IsDiscarded() {
			t.Errorf("Expected source discarded, got %s", source.Future().State())
		}
	})
}

func TestRecover(t *testing.T) {
	f := Recover(Failed[int](errors.New("x")), func(Future[int]) Future[int] {
		return Ready(5)
	})
	if v, _ := f.Result(); v != 5 {
		t.Errorf("Expected 5, got %d", v)
	}

	g := Recover(Ready(1), func(Future[int]) Future[int] {
		t.Error("Recover should not run for ready future")
		return Ready(0)
	})
	if v, _ := g.Result(); v != 1 {
		t.Errorf("Expected 1, got %d", v)
	}
}

func TestUndiscardable(t *testing.T) {
	source := NewPromise[int]()
	f := Undiscardable(source.Future())
	f.Discard()
	if source.Future().HasDiscard() {
		t.Error("Expected discard not to reach source")
	}
}

func TestCollect(t *testing.T) {
	t.Run("InputOrder", func(t *testing.T) {
		promises := make([]*Promise[int], 4)
		futures := make([]Future[int], 4)
		for i := range promises {
			promises[i] = NewPromise[int]()
			futures[i] = promises[i].Future()
		}

		collected := Collect(futures...)

		for _, i := range []int{2, 0, 3, 1} {
			promises[i].Set(i + 1)
		}

		values, err := collected.Get()
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		expected := []int{1, 2, 3, 4}
		for i := range expected {
			if values[i] != expected[i] {
				t.Fatalf("Expected %v, got %v", expected, values)
			}
		}
	})

	t.Run("FailurePropagates", func(t *testing.T) {
		p1, p2 := NewPromise[int](), NewPromise[int]()
		collected := Collect(p1.Future(), p2.Future())
		p1.Set(1)
		p2.Fail(errors.New("x"))

		if !collected.IsFailed() {
			t.Fatalf("Expected failed, got %s", collected.State())
		}
		if !strings.Contains(collected.Failure().Error(), "x") {
			t.Errorf("Expected failure to mention 'x', got '%v'", collected.Failure())
		}
	})

	t.Run("DiscardedInputFails", func(t *testing.T) {
		p := NewPromise[int]()
		collected := Collect(p.Future())
		p.Discard()
		if !collected.IsFailed() {
			t.Errorf("Expected failed, got %s", collected.State())
		}
	})

	t.Run("Empty", func(t *testing.T) {
		values, err := Collect[int]().Get()
		if err != nil || len(values) != 0 {
			t.Errorf("Expected empty result, got %v (%v)", values, err)
		}
	})
}

func TestAwaitAll(t *testing.T) {
	p1, p2, p3 := NewPromise[int](), NewPromise[int](), NewPromise[int]()
	all := AwaitAll(p1.Future(), p2.Future(), p3.Future())

	p3.Discard()
	p1.Fail(errors.New("x"))
	if !all.IsPending() {
		t.Fatalf("Expected pending, got %s", all.State())
	}
	p2.Set(2)

	futures, err := all.Get()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !futures[0].IsFailed() || !futures[1].IsReady() || !futures[2].IsDiscarded() {
		t.Errorf("Unexpected states: %s %s %s", futures[0], futures[1], futures[2])
	}
}

func TestSelect(t *testing.T) {
	p1, p2 := NewPromise[int](), NewPromise[int]()
	selected := Select(p1.Future(), p2.Future())

	p2.Set(2)
	p1.Set(1)

	winner, err := selected.Get()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if winner != p2.Future() {
		t.Error("Expected second future to win")
	}

	if !Select[int]().IsFailed() {
		t.Error("Expected empty select to fail")
	}
}
