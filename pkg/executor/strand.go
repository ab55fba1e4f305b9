package executor

import (
	"sync"
	"sync/atomic"
)

// Strand is a FIFO serializer ("strand") that runs posted jobs one at a
// time atop an upstream Pool. It guarantees:
//   - jobs posted to the same Strand run in FIFO order and never concurrently;
//   - at most one drain loop runs at a time (a single drainer token);
//   - WaitIdle blocks until no job is running and the queue is empty;
//   - a job that panics is recovered and does not kill the strand.
//
// This mirrors original_source/src/util/SerialExecutor.hpp translated from
// a mutex+condvar+atomics design to Go's sync primitives.
type Strand struct {
	upstream *Pool

	mu       sync.Mutex
	queue    []Job
	idleCond *sync.Cond

	workerScheduled atomic.Bool
	running         atomic.Bool
	queued          atomic.Int64
}

// NewStrand creates a Strand draining onto upstream.
func NewStrand(upstream *Pool) *Strand {
	s := &Strand{upstream: upstream}
	s.idleCond = sync.NewCond(&s.mu)
	return s
}

// Post enqueues job and, if no drain is currently scheduled, posts a single
// drain task to the upstream pool.
func (s *Strand) Post(job Job) {
	s.mu.Lock()
	s.queue = append(s.queue, job)
	s.queued.Add(1)
	s.mu.Unlock()

	s.scheduleOnce()
}

func (s *Strand) scheduleOnce() {
	if s.workerScheduled.CompareAndSwap(false, true) {
		s.upstream.Post(s.drain)
	}
}

func (s *Strand) drain() {
	s.running.Store(true)

	for {
		var job Job
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running.Store(false)
			s.workerScheduled.Store(false)
			s.idleCond.Broadcast()

			// Race check: a Post may have landed between the empty check
			// and clearing the flags above. If so, try to re-win the
			// drainer token and keep going; otherwise another Post will
			// schedule a fresh drain.
			if len(s.queue) > 0 && s.workerScheduled.CompareAndSwap(false, true) {
				s.running.Store(true)
				s.mu.Unlock()
				continue
			}
			s.mu.Unlock()
			return
		}
		job = s.queue[0]
		s.queue = s.queue[1:]
		s.queued.Add(-1)
		s.mu.Unlock()

		runJob(job)
	}
}

func runJob(job Job) {
	defer func() {
		// Swallow panics: a strand job failing must not take down the
		// drain loop or any other queued job.
		_ = recover()
	}()
	job()
}

// Running reports whether the strand's drain loop is currently executing a
// job.
func (s *Strand) Running() bool {
	return s.running.Load()
}

// Queued returns the number of queued jobs, not including one currently
// executing.
func (s *Strand) Queued() int {
	return int(s.queued.Load())
}

// IsBusy reports whether a job is running or jobs are queued.
func (s *Strand) IsBusy() bool {
	return s.Running() || s.Queued() > 0
}

// WaitIdle blocks until no job is running and the queue is empty.
func (s *Strand) WaitIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.running.Load() || len(s.queue) > 0 {
		s.idleCond.Wait()
	}
}
