// Package eventloop provides the single-threaded cooperative scheduler
// the link engine runs on. All session and transfer state is mutated only
// from the loop goroutine: transports post their byte chunks and events
// here, timers fire here, and callers marshal requests in with Post.
//
// Backpressure discipline: posted work is queued, never run inline; a
// single drain goroutine consumes the queue one item at a time and yields
// the processor between items, so a burst of small chunks cannot starve
// other goroutines (serial drivers misbehave under sustained unyielded
// callback storms).
package eventloop

import (
	"errors"
	"runtime"
	"sync"
	"time"
)

// ErrStopped is returned by Post after the loop has shut down.
var ErrStopped = errors.New("eventloop: loop stopped")

// Loop is the single-consumer work queue.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped bool

	done chan struct{}
}

// New creates a loop. Call Start before posting work.
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Start launches the drain goroutine.
func (l *Loop) Start() {
	go l.drain()
}

// Stop shuts the loop down and waits for the drain goroutine to exit.
// Work still queued is discarded; pending timers never fire.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.stopped = true
	l.queue = nil
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.done
}

// Post enqueues fn for execution on the loop goroutine. Safe from any
// goroutine, including the loop itself (re-entrant posts enqueue, they
// never recurse).
func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrStopped
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// drain runs queued work one item at a time.
func (l *Loop) drain() {
	defer close(l.done)
	for {
		l.mu.Lock()
		if l.stopped {
			l.mu.Unlock()
			return
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			<-l.wake
			continue
		}
		fn := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()

		// Yield between items so a chunk burst cannot monopolize the
		// thread.
		runtime.Gosched()
	}
}

// Timer fires a callback on the loop goroutine after a delay. A stopped
// timer is guaranteed not to run its callback: the stop flag is checked
// on the loop itself, so cancelling from loop context is synchronous and
// no callback can fire into discarded state afterwards.
type Timer struct {
	loop *Loop
	fn   func()

	mu      sync.Mutex
	t       *time.Timer
	stopped bool
}

// AfterFunc schedules fn to run on the loop after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	tm := &Timer{loop: l, fn: fn}
	tm.t = time.AfterFunc(d, tm.post)
	return tm
}

func (tm *Timer) post() {
	tm.loop.Post(func() {
		tm.mu.Lock()
		stopped := tm.stopped
		tm.mu.Unlock()
		if !stopped {
			tm.fn()
		}
	})
}

// Stop cancels the timer. The callback will not run after Stop returns
// when called from the loop goroutine.
func (tm *Timer) Stop() {
	tm.mu.Lock()
	tm.stopped = true
	if tm.t != nil {
		tm.t.Stop()
	}
	tm.mu.Unlock()
}

// Reset re-arms the timer for d from now.
func (tm *Timer) Reset(d time.Duration) {
	tm.mu.Lock()
	tm.stopped = false
	if tm.t != nil {
		tm.t.Stop()
	}
	tm.t = time.AfterFunc(d, tm.post)
	tm.mu.Unlock()
}
