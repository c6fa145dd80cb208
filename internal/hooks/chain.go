// SPDX-License-Identifier: MPL-2.0

package hooks

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/invowk/modload/pkg/moderr"
)

const (
	// FirstRegisteredOutermost runs the first registered hook first; its next
	// reaches the second registered hook, and so on down to the default.
	FirstRegisteredOutermost Order = iota
	// LastRegisteredOutermost runs the most recently registered hook first.
	LastRegisteredOutermost
)

const (
	StageResolve  Stage = "resolve"
	StageLoad     Stage = "load"
	StageEvaluate Stage = "evaluate"
)

type (
	// Order is the policy deciding which registration sees a run first.
	Order int

	// Stage names one of the pipeline stages hooks can intercept.
	Stage string

	// Hooks groups the stage functions of one registration. Any of them may be nil.
	Hooks struct {
		// Name identifies the registration in errors and logs.
		Name     string
		Resolve  ResolveHook
		Load     LoadHook
		Evaluate EvaluateHook
	}

	// Chain is an ordered set of hook registrations. It is safe for concurrent use.
	Chain struct {
		mu     sync.Mutex
		regs   atomic.Pointer[[]*registration]
		nextID uint64
		order  Order
		logger *log.Logger
	}

	// Handle removes a registration from its chain.
	Handle struct {
		chain *Chain
		id    uint64
		once  sync.Once
	}

	// Option configures a Chain.
	Option func(*Chain)

	registration struct {
		id    uint64
		hooks Hooks
	}

	// link is one hook of a run, adapted to the generic core.
	link[A, R any] struct {
		id   uint64
		name string
		fn   func(ctx context.Context, args A, next func(context.Context, A) (R, error)) (R, error)
	}
)

// ParseOrder parses "first" or "last".
func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "first":
		return FirstRegisteredOutermost, nil
	case "last":
		return LastRegisteredOutermost, nil
	default:
		return 0, fmt.Errorf("invalid hook order %q (must be \"first\" or \"last\")", s)
	}
}

// String returns "first" or "last".
func (o Order) String() string {
	if o == LastRegisteredOutermost {
		return "last"
	}
	return "first"
}

// WithOrder sets the ordering policy.
func WithOrder(o Order) Option {
	return func(c *Chain) { c.order = o }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *log.Logger) Option {
	return func(c *Chain) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewChain creates an empty chain.
func NewChain(opts ...Option) *Chain {
	c := &Chain{logger: log.New(io.Discard)}
	empty := []*registration{}
	c.regs.Store(&empty)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register appends h to the chain and returns its removal handle.
func (c *Chain) Register(h Hooks) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	reg := &registration{id: c.nextID, hooks: h}
	next := append(slices.Clone(*c.regs.Load()), reg)
	c.regs.Store(&next)

	c.logger.Debug("hook registered", "id", reg.id, "name", h.Name)
	return &Handle{chain: c, id: reg.id}
}

// Len returns the number of live registrations.
func (c *Chain) Len() int { return len(*c.regs.Load()) }

// Order returns the ordering policy.
func (c *Chain) Order() Order { return c.order }

// ID returns the registration id. Ids increase with registration order.
func (h *Handle) ID() uint64 { return h.id }

// Deregister removes the registration. Runs already in flight keep it. Calling
// Deregister more than once has no further effect.
func (h *Handle) Deregister() {
	h.once.Do(func() {
		c := h.chain
		c.mu.Lock()
		defer c.mu.Unlock()

		next := slices.DeleteFunc(slices.Clone(*c.regs.Load()), func(r *registration) bool { return r.id == h.id })
		c.regs.Store(&next)
		c.logger.Debug("hook deregistered", "id", h.id)
	})
}

// snapshot returns the registrations in run order.
func (c *Chain) snapshot() []*registration {
	regs := *c.regs.Load()
	if c.order == LastRegisteredOutermost {
		regs = slices.Clone(regs)
		slices.Reverse(regs)
	}
	return regs
}

// run threads args through links, ending in def. shortCircuited reports whether a
// result was marked as terminating the chain; validate returns a non-empty reason
// for malformed results.
func run[A, R any](
	ctx context.Context,
	c *Chain,
	stage Stage,
	links []link[A, R],
	args A,
	def func(context.Context, A) (R, error),
	shortCircuited func(R) bool,
	validate func(R) string,
) (R, error) {
	c.logger.Debug("running hook chain", "stage", stage, "hooks", len(links))

	next := def
	for i := len(links) - 1; i >= 0; i-- {
		l := links[i]
		downstream := next
		next = func(ctx context.Context, a A) (R, error) {
			var zero R
			var continued atomic.Bool
			result, err := l.fn(ctx, a, func(ctx context.Context, a A) (R, error) {
				continued.Store(true)
				return downstream(ctx, a)
			})
			if err != nil {
				return zero, err
			}
			if !continued.Load() && !shortCircuited(result) {
				return zero, &moderr.InvalidHookContractError{
					Stage:    string(stage),
					HookID:   l.id,
					HookName: l.name,
					Reason:   "hook returned without calling next and without setting ShortCircuit",
				}
			}
			if reason := validate(result); reason != "" {
				return zero, &moderr.InvalidHookContractError{Stage: string(stage), HookID: l.id, HookName: l.name, Reason: reason}
			}
			return result, nil
		}
	}
	return next(ctx, args)
}
