// SPDX-License-Identifier: MPL-2.0

package taskqueue

import "sync"

const (
	Pending PromiseState = iota
	Fulfilled
	Rejected
)

type (
	// PromiseState is the settlement state of a Promise.
	PromiseState int

	// Promise is a value that settles once, either fulfilled or rejected.
	Promise struct {
		loop      *Loop
		mu        sync.Mutex
		state     PromiseState
		value     any
		err       error
		callbacks []func(any, error)
		done      chan struct{}
	}
)

// NewPromise creates a pending promise whose callbacks run on loop.
func NewPromise(loop *Loop) *Promise {
	return &Promise{loop: loop, done: make(chan struct{})}
}

// FulfilledPromise returns a promise already fulfilled with v.
func FulfilledPromise(loop *Loop, v any) *Promise {
	p := NewPromise(loop)
	p.Resolve(v)
	return p
}

// RejectedPromise returns a promise already rejected with err.
func RejectedPromise(loop *Loop, err error) *Promise {
	p := NewPromise(loop)
	p.Reject(err)
	return p
}

// Resolve fulfills p with v. It returns false when p was already settled.
func (p *Promise) Resolve(v any) bool { return p.settle(Fulfilled, v, nil) }

// Reject rejects p with err. It returns false when p was already settled.
func (p *Promise) Reject(err error) bool { return p.settle(Rejected, nil, err) }

// Then schedules fn on the loop once p settles.
func (p *Promise) Then(fn func(v any, err error)) {
	p.mu.Lock()
	if p.state == Pending {
		p.callbacks = append(p.callbacks, fn)
		p.mu.Unlock()
		return
	}
	v, err := p.value, p.err
	p.mu.Unlock()
	p.loop.Post(func() { fn(v, err) })
}

// Done is closed when p settles.
func (p *Promise) Done() <-chan struct{} { return p.done }

// State returns the current state.
func (p *Promise) State() PromiseState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Settled reports whether p is fulfilled or rejected.
func (p *Promise) Settled() bool { return p.State() != Pending }

// Result returns the settled value or error. It returns (nil, nil) while pending.
func (p *Promise) Result() (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}

func (p *Promise) settle(state PromiseState, v any, err error) bool {
	p.mu.Lock()
	if p.state != Pending {
		p.mu.Unlock()
		return false
	}
	p.state, p.value, p.err = state, v, err
	callbacks := p.callbacks
	p.callbacks = nil
	close(p.done)
	p.mu.Unlock()

	for _, fn := range callbacks {
		p.loop.Post(func() { fn(v, err) })
	}
	return true
}

// All returns a promise fulfilled with the values of ps, in order, once every one
// is fulfilled, or rejected with the first rejection.
func All(loop *Loop, ps []*Promise) *Promise {
	out := NewPromise(loop)
	if len(ps) == 0 {
		out.Resolve([]any{})
		return out
	}

	values := make([]any, len(ps))
	var mu sync.Mutex
	remaining := len(ps)
	for i, p := range ps {
		p.Then(func(v any, err error) {
			if err != nil {
				out.Reject(err)
				return
			}
			mu.Lock()
			values[i] = v
			remaining--
			last := remaining == 0
			mu.Unlock()
			if last {
				out.Resolve(values)
			}
		})
	}
	return out
}
