package sessionlock

import (
	"sync"
	"testing"
)

func TestLockSerializesSameKey(t *testing.T) {
	locker := New()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locker.Lock("session-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
	if len(locker.locks) != 0 {
		t.Errorf("lock table should be empty after release, has %d entries", len(locker.locks))
	}
}

func TestLockDifferentKeysIndependent(t *testing.T) {
	locker := New()

	unlockA := locker.Lock("a")
	// Must not block even while "a" is held.
	unlockB := locker.Lock("b")
	unlockB()
	unlockA()
}
