package orchestration

import (
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"
)

func TestThreadLocks_SerializesSameThread(t *testing.T) {
	defer goleak.VerifyNone(t)

	locks := NewThreadLocks()
	var (
		active  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("thread-1")
			defer unlock()
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxSeen)
	}
	if locks.Len() != 0 {
		t.Fatalf("expected lock table to be empty, got %d", locks.Len())
	}
}

func TestThreadLocks_IndependentThreads(t *testing.T) {
	locks := NewThreadLocks()
	unlockA := locks.Lock("a")
	unlockB := locks.Lock("b")
	if locks.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", locks.Len())
	}
	unlockA()
	unlockB()
	if locks.Len() != 0 {
		t.Fatalf("expected 0 entries, got %d", locks.Len())
	}
}
