package keylock

import (
	"sync"
	"testing"
	"time"
)

func TestLockSerializesSameKey(t *testing.T) {
	m := NewMap()
	const workers = 50
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("report-1")
			defer unlock()
			// Unsynchronized read-modify-write; only the keylock protects it.
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Errorf("counter = %d, want %d (lost updates)", counter, workers)
	}
	if m.Len() != 0 {
		t.Errorf("lock table not drained: %d entries remain", m.Len())
	}
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	m := NewMap()
	unlockA := m.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := m.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on different key blocked")
	}
}

func TestLockAll(t *testing.T) {
	m := NewMap()

	unlock := m.LockAll([]string{"c", "a", "b", "a"})
	if m.Len() != 3 {
		t.Errorf("expected 3 held keys, got %d", m.Len())
	}

	blocked := make(chan struct{})
	go func() {
		u := m.Lock("b")
		u()
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatal("single-key lock acquired while LockAll held the key")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-blocked:
	case <-time.After(2 * time.Second):
		t.Fatal("single-key lock never acquired after LockAll released")
	}

	if m.Len() != 0 {
		t.Errorf("lock table not drained: %d entries remain", m.Len())
	}
}

func TestConcurrentMultiAndSingleHolders(t *testing.T) {
	m := NewMap()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock := m.LockAll([]string{"x", "y", "z"})
			time.Sleep(time.Microsecond)
			unlock()
		}()
		go func() {
			defer wg.Done()
			unlock := m.Lock("y")
			time.Sleep(time.Microsecond)
			unlock()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock between multi-key and single-key holders")
	}
}
