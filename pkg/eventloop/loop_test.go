package eventloop

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPostRunsInOrder(t *testing.T) {
	l := New()
	l.Start()
	defer l.Stop()

	var got []int
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		i := i
		l.Post(func() {
			got = append(got, i)
			if i == 9 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not drain")
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("out of order execution: %v", got)
		}
	}
}

func TestReentrantPostEnqueues(t *testing.T) {
	l := New()
	l.Start()
	defer l.Stop()

	done := make(chan struct{})
	var order []string
	l.Post(func() {
		l.Post(func() {
			order = append(order, "inner")
			close(done)
		})
		order = append(order, "outer")
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("inner post never ran")
	}
	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Errorf("order = %v", order)
	}
}

func TestPostAfterStop(t *testing.T) {
	l := New()
	l.Start()
	l.Stop()
	if err := l.Post(func() {}); err != ErrStopped {
		t.Errorf("Post after Stop = %v, want ErrStopped", err)
	}
}

func TestTimerFiresOnLoop(t *testing.T) {
	l := New()
	l.Start()
	defer l.Stop()

	done := make(chan struct{})
	l.AfterFunc(10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}

func TestTimerStopFromLoopIsSynchronous(t *testing.T) {
	l := New()
	l.Start()
	defer l.Stop()

	var fired atomic.Bool
	tm := l.AfterFunc(5*time.Millisecond, func() { fired.Store(true) })

	// Stop the timer from loop context after its deadline has already
	// passed; the queued callback must still observe the stop.
	stopped := make(chan struct{})
	l.Post(func() {
		time.Sleep(20 * time.Millisecond)
		tm.Stop()
		close(stopped)
	})

	<-stopped
	// Let any stray callback run.
	flush := make(chan struct{})
	l.Post(func() { close(flush) })
	<-flush

	if fired.Load() {
		t.Error("timer fired after Stop")
	}
}

func TestTimerReset(t *testing.T) {
	l := New()
	l.Start()
	defer l.Stop()

	fired := make(chan struct{}, 2)
	tm := l.AfterFunc(10*time.Millisecond, func() { fired <- struct{}{} })
	<-fired

	tm.Reset(10 * time.Millisecond)
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("reset timer never fired")
	}
}

func TestStopDiscardsQueuedWork(t *testing.T) {
	l := New()
	l.Start()

	var ran atomic.Int32
	block := make(chan struct{})
	l.Post(func() { <-block })
	for i := 0; i < 5; i++ {
		l.Post(func() { ran.Add(1) })
	}
	close(block)
	l.Stop()

	// Stop discards anything not yet started; at most the item that was
	// mid-flight completed.
	if ran.Load() > 5 {
		t.Errorf("ran = %d", ran.Load())
	}
}
