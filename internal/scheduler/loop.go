// Package scheduler runs the station controller on a single goroutine.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"stationd/internal/wifi"
)

// ErrStopped is returned by Call once the loop has exited.
var ErrStopped = errors.New("scheduler: loop stopped")

const queueSize = 64

// Loop is a cooperative event loop. Posted functions and scheduled tasks run
// one at a time on the goroutine that called Run. Loop implements
// wifi.Scheduler.
type Loop struct {
	log   logr.Logger
	queue chan func()
	done  chan struct{}
	once  sync.Once

	mu     sync.Mutex
	next   wifi.TaskHandle
	timers map[wifi.TaskHandle]*time.Timer
}

// New creates a loop. Nothing runs until Run is called.
func New(log logr.Logger) *Loop {
	return &Loop{
		log:    log.WithName("loop"),
		queue:  make(chan func(), queueSize),
		done:   make(chan struct{}),
		timers: make(map[wifi.TaskHandle]*time.Timer),
	}
}

// Run executes queued work until ctx is cancelled. Pending timers are
// stopped on return.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stop()
	l.log.V(1).Info("Loop started")
	for {
		select {
		case <-ctx.Done():
			l.log.V(1).Info("Loop stopping", "reason", ctx.Err())
			return nil
		case fn := <-l.queue:
			fn()
		}
	}
}

func (l *Loop) stop() {
	l.once.Do(func() {
		close(l.done)
		l.mu.Lock()
		for h, t := range l.timers {
			t.Stop()
			delete(l.timers, h)
		}
		l.mu.Unlock()
	})
}

// Post queues fn. It is dropped if the loop has stopped.
func (l *Loop) Post(fn func()) {
	select {
	case l.queue <- fn:
	case <-l.done:
	}
}

// Call runs fn on the loop and waits for it to return. It must not be
// called from the loop goroutine.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case l.queue <- func() { fn(); close(finished) }:
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ScheduleAfter runs task on the loop once delay has elapsed.
func (l *Loop) ScheduleAfter(delay time.Duration, task wifi.Task) wifi.TaskHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	h := l.next
	l.timers[h] = time.AfterFunc(delay, func() {
		l.Post(func() { l.fire(h, task) })
	})
	return h
}

func (l *Loop) fire(h wifi.TaskHandle, task wifi.Task) {
	l.mu.Lock()
	_, pending := l.timers[h]
	delete(l.timers, h)
	l.mu.Unlock()
	if pending {
		task.Run()
	}
}

// Cancel stops a pending task. Unknown or finished handles are ignored.
func (l *Loop) Cancel(h wifi.TaskHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.timers[h]; ok {
		t.Stop()
		delete(l.timers, h)
	}
}

// IsScheduled is true from ScheduleAfter until the task runs or is cancelled.
func (l *Loop) IsScheduled(h wifi.TaskHandle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.timers[h]
	return ok
}
