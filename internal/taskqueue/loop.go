// SPDX-License-Identifier: MPL-2.0

package taskqueue

import (
	"context"
	"sync"
)

type (
	// Loop is a FIFO task queue drivable by one goroutine at a time.
	Loop struct {
		mu    sync.Mutex
		queue []func()
		wake  chan struct{}
		sem   chan struct{}
	}

	driverKey struct{ loop *Loop }
)

// NewLoop creates an empty loop.
func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		sem:  make(chan struct{}, 1),
	}
}

// Post appends task to the queue. It is safe to call from any goroutine.
func (l *Loop) Post(task func()) {
	l.mu.Lock()
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Driving returns ctx marked as running on l's driver. RunUntil calls made with
// such a context drive the queue inline instead of waiting for the driver, which
// would otherwise be blocked on the caller.
func (l *Loop) Driving(ctx context.Context) context.Context {
	return context.WithValue(ctx, driverKey{loop: l}, true)
}

// IsDriving reports whether ctx was marked by Driving for l.
func (l *Loop) IsDriving(ctx context.Context) bool {
	v, _ := ctx.Value(driverKey{loop: l}).(bool)
	return v
}

// RunUntil drives the queue until p settles and returns its result. If another
// goroutine is already driving, RunUntil waits for p or for the driver to finish.
func (l *Loop) RunUntil(ctx context.Context, p *Promise) (any, error) {
	if l.IsDriving(ctx) {
		if err := l.drive(ctx, p); err != nil {
			return nil, err
		}
		return p.Result()
	}

	for {
		select {
		case <-p.Done():
			return p.Result()
		case <-ctx.Done():
			return nil, ctx.Err()
		case l.sem <- struct{}{}:
			err := l.drive(ctx, p)
			<-l.sem
			if err != nil {
				return nil, err
			}
			return p.Result()
		}
	}
}

// Drain runs queued tasks until the queue is empty.
func (l *Loop) Drain() {
	for {
		task := l.pop()
		if task == nil {
			return
		}
		task()
	}
}

func (l *Loop) drive(ctx context.Context, p *Promise) error {
	for !p.Settled() {
		if task := l.pop(); task != nil {
			task()
			continue
		}
		select {
		case <-l.wake:
		case <-p.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (l *Loop) pop() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task
}
