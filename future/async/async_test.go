package async

import (
	"testing"
)

func TestMutex(t *testing.T) {
	var m Mutex

	first := m.Lock()
	if !first.IsReady() {
		t.Fatal("Expected first lock to be acquired immediately")
	}

	second := m.Lock()
	third := m.Lock()
	if !second.IsPending() || !third.IsPending() {
		t.Fatal("Expected later locks to wait")
	}

	second.Discard()
	m.Unlock()

	if !third.IsReady() {
		t.Errorf("Expected lock to skip discarded waiter, got %s", third.State())
	}

	m.Unlock()
	if !m.Lock().IsReady() {
		t.Error("Expected lock to be free after final unlock")
	}
}

func TestQueue(t *testing.T) {
	t.Run("Buffered", func(t *testing.T) {
		var q Queue[int]
		q.Put(1)
		q.Put(2)

		if q.Len() != 2 {
			t.Errorf("Expected 2 items, got %d", q.Len())
		}
		if v, _ := q.Get().Result(); v != 1 {
			t.Errorf("Expected 1, got %d", v)
		}
		if v, _ := q.Get().Result(); v != 2 {
			t.Errorf("Expected 2, got %d", v)
		}
	})

	t.Run("Waiting", func(t *testing.T) {
		var q Queue[string]
		skipped := q.Get()
		waiting := q.Get()
		skipped.Discard()

		q.Put("a")
		if v, _ := waiting.Result(); v != "a" {
			t.Errorf("Expected 'a', got '%s'", v)
		}
		if q.Len() != 0 {
			t.Errorf("Expected empty queue, got %d", q.Len())
		}
	})
}

func TestOnce(t *testing.T) {
	var once Once

	if !once.Begin() {
		t.Fatal("Expected first caller to begin")
	}
	if once.Begin() {
		t.Error("Expected second caller not to begin")
	}

	f := once.Future()
	if !f.IsPending() {
		t.Fatal("Expected pending until Done")
	}
	once.Done()
	if !f.IsReady() {
		t.Error("Expected ready after Done")
	}
}

func TestCountDownLatch(t *testing.T) {
	latch := NewCountDownLatch(3)
	f := latch.Triggered()

	for i := 0; i < 2; i++ {
		latch.Decrement()
		if !f.IsPending() {
			t.Fatalf("Expected pending after %d decrements, got %s", i+1, f.State())
		}
	}

	latch.Decrement()
	if !f.IsReady() {
		t.Errorf("Expected ready after 3 decrements, got %s", f.State())
	}

	// past zero
	latch.Decrement()
	if !f.IsReady() {
		t.Errorf("Expected to stay ready, got %s", f.State())
	}

	if !NewCountDownLatch(0).Triggered().IsReady() {
		t.Error("Expected a zero latch to be ready")
	}
}
