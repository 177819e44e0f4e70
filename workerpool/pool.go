// Package workerpool implements a bounded, fire-and-forget thread pool.
//
// It exists because the standard library has no built-in worker-pool type:
// a fixed number of goroutines drain a bounded channel, and submission never
// blocks - callers get a boolean telling them whether the task was queued.
// There is no way to retrieve a result or an error from a submitted task;
// that is deliberately out of scope (see Non-goals in SPEC_FULL.md).
package workerpool

import (
	"runtime"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

// idleTick is how long a worker waits on an empty queue before looping
// again. It exists so a worker goroutine never parks forever on a channel
// that might later need to be abandoned (e.g. during process shutdown);
// today it is a plain no-op continue, since dynamic pool shutdown is a
// Non-goal, but the shape matches the corpus's "bounded wait" pattern.
const idleTick = time.Second

// Pool is a fixed-size set of goroutines consuming a bounded task queue.
// The zero value is not usable; construct with New.
type Pool struct {
	tasks  chan func()
	logger *logrus.Logger
}

// New starts numWorkers goroutines eagerly and returns a ready Pool.
// numWorkers <= 0 defaults to runtime.GOMAXPROCS(0). queueSize is the
// capacity of the task channel; 0 means FireAsync only succeeds when a
// worker is immediately ready to receive.
//
// Pool goroutines are never joined - they run until the process exits, the
// same "daemon worker" contract the distilled spec calls for, which in Go
// just means we never close the channel or wait on them.
func New(numWorkers, queueSize int, logger *logrus.Logger) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	p := &Pool{
		tasks:  make(chan func(), queueSize),
		logger: logger,
	}

	for i := 0; i < numWorkers; i++ {
		go p.worker(i)
	}

	return p
}

// FireAsync enqueues task if there is room and returns true. If the queue
// is full it returns false immediately without blocking and without
// running the task.
func (p *Pool) FireAsync(task func()) bool {
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

func (p *Pool) worker(id int) {
	ticker := time.NewTicker(idleTick)
	defer ticker.Stop()

	for {
		select {
		case task := <-p.tasks:
			p.run(id, task)
		case <-ticker.C:
			// Nothing to do; loop again. See idleTick doc comment.
		}
	}
}

func (p *Pool) run(id int, task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(logrus.Fields{
				"worker": id,
				"panic":  r,
				"stack":  string(debug.Stack()),
			}).Debug("workerpool: task panicked")
		}
	}()
	task()
}
