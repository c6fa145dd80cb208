// SPDX-License-Identifier: MPL-2.0

package taskqueue

import (
	"fmt"
	"sync/atomic"
)

type (
	// Coroutine runs a body that may suspend on promises. Control is handed back and
	// forth over unbuffered channels, so exactly one of the body and its resumer runs
	// at any time.
	Coroutine struct {
		loop      *Loop
		toBody    chan struct{}
		toCaller  chan struct{}
		promise   *Promise
		suspended atomic.Bool
		finished  atomic.Bool
	}

	// Yielder is handed to a coroutine body to suspend it.
	Yielder struct {
		co *Coroutine
	}

	// PanicError wraps a value recovered from a panicking coroutine body.
	PanicError struct {
		Value any
	}
)

// Start runs body on a new coroutine until it first suspends or finishes. The
// returned coroutine's Promise settles with the body's result.
func Start(loop *Loop, body func(y *Yielder) (any, error)) *Coroutine {
	return StartWith(NewPromise(loop), body)
}

// StartWith is like Start but settles p, which callers may have published before
// the body first runs.
func StartWith(p *Promise, body func(y *Yielder) (any, error)) *Coroutine {
	co := &Coroutine{
		loop:     p.loop,
		toBody:   make(chan struct{}),
		toCaller: make(chan struct{}),
		promise:  p,
	}

	go func() {
		<-co.toBody
		v, err := co.run(body)
		co.finished.Store(true)
		if err != nil {
			co.promise.Reject(err)
		} else {
			co.promise.Resolve(v)
		}
		co.toCaller <- struct{}{}
	}()

	co.step()
	return co
}

// Promise settles when the body returns.
func (co *Coroutine) Promise() *Promise { return co.promise }

// Suspended reports whether the body has suspended at least once.
func (co *Coroutine) Suspended() bool { return co.suspended.Load() }

// Finished reports whether the body has returned.
func (co *Coroutine) Finished() bool { return co.finished.Load() }

// Await returns p's result, suspending the body until p settles when it is still
// pending. The body is resumed by a loop task.
func (y *Yielder) Await(p *Promise) (any, error) {
	if p.Settled() {
		return p.Result()
	}
	co := y.co
	co.suspended.Store(true)
	p.Then(func(any, error) { co.step() })

	co.toCaller <- struct{}{}
	<-co.toBody
	return p.Result()
}

// Loop returns the loop the coroutine is scheduled on.
func (y *Yielder) Loop() *Loop { return y.co.loop }

// Suspended reports whether the body has suspended so far.
func (y *Yielder) Suspended() bool { return y.co.suspended.Load() }

func (e *PanicError) Error() string { return fmt.Sprintf("module body panicked: %v", e.Value) }

// step hands control to the body and blocks until it suspends or finishes.
func (co *Coroutine) step() {
	co.toBody <- struct{}{}
	<-co.toCaller
}

func (co *Coroutine) run(body func(y *Yielder) (any, error)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return body(&Yielder{co: co})
}
