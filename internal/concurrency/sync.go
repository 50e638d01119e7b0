// Package concurrency provides the replica-local primitives the scheduler
// uses to bound in-flight work: a resizable semaphore and a close-once stop
// channel. Adapted from aistore's cmn/sync.go (DynSemaphore, StopCh).
package concurrency

import "sync"

type (
	// StopCh is a specialized channel for stopping things.
	StopCh struct {
		once sync.Once
		ch   chan struct{}
	}

	// DynSemaphore implements a semaphore whose size can change during use.
	// It backs the scheduler's maxConcurrentChecks cap (§5).
	DynSemaphore struct {
		size int
		cur  int
		c    *sync.Cond
		mu   sync.Mutex
	}
)

func NewStopCh() *StopCh {
	return &StopCh{ch: make(chan struct{})}
}

func (sc *StopCh) Listen() <-chan struct{} { return sc.ch }

func (sc *StopCh) Close() {
	sc.once.Do(func() { close(sc.ch) })
}

func NewDynSemaphore(n int) *DynSemaphore {
	if n < 1 {
		panic("concurrency: semaphore size must be >= 1")
	}
	sema := &DynSemaphore{size: n}
	sema.c = sync.NewCond(&sema.mu)
	return sema
}

func (s *DynSemaphore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *DynSemaphore) SetSize(n int) {
	if n < 1 {
		panic("concurrency: semaphore size must be >= 1")
	}
	s.mu.Lock()
	s.size = n
	s.c.Broadcast()
	s.mu.Unlock()
}

// TryAcquire acquires one permit without blocking. It reports whether the
// permit was obtained, so the scheduler can "defer" instead of holding a
// tick (§4.6 step 5).
func (s *DynSemaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur >= s.size {
		return false
	}
	s.cur++
	return true
}

// Acquire blocks until a permit is available.
func (s *DynSemaphore) Acquire() {
	s.mu.Lock()
	for s.cur >= s.size {
		s.c.Wait()
	}
	s.cur++
	s.mu.Unlock()
}

func (s *DynSemaphore) Release() {
	s.mu.Lock()
	if s.cur <= 0 {
		s.mu.Unlock()
		panic("concurrency: release without matching acquire")
	}
	s.cur--
	s.c.Signal()
	s.mu.Unlock()
}

// InUse reports the number of permits currently held, for observability.
func (s *DynSemaphore) InUse() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// InFlightSet tracks configurationIds currently dispatched by this replica,
// guarding against self-overlap (§4.6 step 3). Safe for concurrent probing.
type InFlightSet struct {
	mu  sync.Mutex
	set map[string]struct{}
}

func NewInFlightSet() *InFlightSet {
	return &InFlightSet{set: make(map[string]struct{})}
}

// TryMark marks id in-flight and reports true, or reports false if it was
// already marked.
func (s *InFlightSet) TryMark(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[id]; ok {
		return false
	}
	s.set[id] = struct{}{}
	return true
}

func (s *InFlightSet) Clear(id string) {
	s.mu.Lock()
	delete(s.set, id)
	s.mu.Unlock()
}

func (s *InFlightSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.set)
}
