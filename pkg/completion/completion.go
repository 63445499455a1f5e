// Package completion implements the promise-like value pipeline of §4.C:
// completions may be chained, execute on a shared worker pool, report
// progress, and are cooperatively cancellable. Grounded on the teacher's
// pkg/apply four-phase/checkpoint executor and pkg/operation handler
// registry (a plan-of-operations executor), generalized here from "execute
// a fixed plan of typed operations" into "chain arbitrary typed promises".
package completion

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// newRunID mints a lexicographically sortable run identifier for one
// completion, the way the teacher's pkg/plan/store.go stamps each plan
// with a ulid on creation — generalized here from "one id per plan" to
// "one id per completion", since this pipeline has many short-lived
// completions instead of one durable plan. Logging and progress-sink
// registration key on this id rather than on the completion's address.
var ulidEntropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
var ulidMu sync.Mutex

func newRunID() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}

// State is the lifecycle state of a completion (§3: pending -> running ->
// {resolved, failed, cancelled}).
type State int32

const (
	Pending State = iota
	Running
	Resolved
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ErrCancelled is returned by Result/Wait when the completion was
// cancelled before it ran.
var ErrCancelled = errors.New("completion: cancelled")

// ErrNotFinalized is returned by Result when called before the completion
// reached a terminal state.
var ErrNotFinalized = errors.New("completion: not finalized")

// node is the untyped core every Completion[T] wraps. Go generics cannot
// attach a value of one type parameter to a callback keyed by a different
// type parameter (needed for Then's T->R transition), so the chaining
// machinery operates on `any` internally; the exported Completion[T]
// wrapper restores type safety at the boundary.
type node struct {
	mu         sync.Mutex
	id         string
	pool       *Pool
	generation uint64 // pool generation captured at creation
	state      State
	value      any
	err        error
	finalized  bool
	done       chan struct{}
	waiters    []func()
	progress   *Progress
	trackDone  bool // update_progress flag (§4.C)
}

func newNode(pool *Pool) *node {
	gen := uint64(0)
	if pool != nil {
		gen = pool.generationNow()
	}
	return &node{
		id:         newRunID(),
		pool:       pool,
		generation: gen,
		state:      Pending,
		done:       make(chan struct{}),
	}
}

func (n *node) isCancelledByPool() bool {
	return n.pool != nil && n.pool.generationNow() != n.generation
}

func (n *node) setRunning() {
	n.mu.Lock()
	if !n.finalized {
		n.state = Running
	}
	n.mu.Unlock()
}

func (n *node) finalize(state State, value any, err error) {
	n.mu.Lock()
	if n.finalized {
		n.mu.Unlock()
		return
	}
	n.finalized = true
	n.state = state
	n.value = value
	n.err = err
	if n.trackDone && n.progress != nil && state == Resolved {
		n.progress.Set(1.0)
	}
	waiters := n.waiters
	n.waiters = nil
	close(n.done)
	n.mu.Unlock()

	for _, w := range waiters {
		w()
	}
}

// onFinalize registers fn to run once this node reaches a terminal state.
// If it is already finalized, fn runs immediately (synchronously).
func (n *node) onFinalize(fn func()) {
	n.mu.Lock()
	if n.finalized {
		n.mu.Unlock()
		fn()
		return
	}
	n.waiters = append(n.waiters, fn)
	n.mu.Unlock()
}

func (n *node) snapshot() (State, any, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state, n.value, n.err
}

// Completion is a typed handle onto a promise that may be pending,
// running, resolved with a T, failed with an error, or cancelled.
type Completion[T any] struct {
	n *node
}

// ID returns the completion's run identifier, suitable for log correlation
// and progress-sink registration (§4.C).
func (c *Completion[T]) ID() string {
	return c.n.id
}

// State returns the completion's current lifecycle state.
func (c *Completion[T]) State() State {
	c.n.mu.Lock()
	defer c.n.mu.Unlock()
	return c.n.state
}

// IsFinalized reports whether the completion has reached a terminal state.
func (c *Completion[T]) IsFinalized() bool {
	c.n.mu.Lock()
	defer c.n.mu.Unlock()
	return c.n.finalized
}

// Progress returns the completion's progress handle, creating one on first
// use with update-on-success tracking enabled (§4.C).
func (c *Completion[T]) Progress() *Progress {
	c.n.mu.Lock()
	defer c.n.mu.Unlock()
	if c.n.progress == nil {
		c.n.progress = NewProgress()
		c.n.trackDone = true
		if c.n.finalized && c.n.state == Resolved {
			c.n.progress.Set(1.0)
		}
	}
	return c.n.progress
}

// Result returns the resolved value, or an error if the completion failed,
// was cancelled, or has not finalized yet.
func (c *Completion[T]) Result() (T, error) {
	var zero T
	st, value, err := c.n.snapshot()
	switch st {
	case Resolved:
		v, _ := value.(T)
		return v, nil
	case Failed:
		return zero, err
	case Cancelled:
		return zero, ErrCancelled
	default:
		return zero, ErrNotFinalized
	}
}

// Wait blocks until the completion finalizes, then returns Result().
func (c *Completion[T]) Wait() (T, error) {
	<-c.n.done
	return c.Result()
}

// Trivial wraps an already-known value in an already-resolved completion
// (§4.C "trivial" construction).
func Trivial[T any](v T) *Completion[T] {
	n := &node{id: newRunID(), state: Resolved, value: v, finalized: true, done: make(chan struct{})}
	close(n.done)
	return &Completion[T]{n: n}
}

// TrivialError wraps an already-known error in an already-failed completion.
func TrivialError[T any](err error) *Completion[T] {
	n := &node{id: newRunID(), state: Failed, err: err, finalized: true, done: make(chan struct{})}
	close(n.done)
	return &Completion[T]{n: n}
}

// Async schedules a single call on the pool (§4.C "async" construction).
func Async[T any](pool *Pool, ctx context.Context, fn func(context.Context) (T, error)) *Completion[T] {
	n := newNode(pool)
	pool.schedule(func() {
		if n.isCancelledByPool() {
			n.finalize(Cancelled, nil, nil)
			return
		}
		n.setRunning()
		v, err := fn(ctx)
		if err != nil {
			n.finalize(Failed, nil, err)
			return
		}
		n.finalize(Resolved, v, nil)
	})
	return &Completion[T]{n: n}
}

// AsyncMap applies fn element-wise to items via the pool's map-async
// behavior (§4.C "async-map"/`many`), advancing progress by 1/len(items)
// per finished element.
func AsyncMap[T, R any](pool *Pool, ctx context.Context, items []T, fn func(context.Context, T) (R, error)) *Completion[[]R] {
	n := newNode(pool)
	out := &Completion[[]R]{n: n}

	if len(items) == 0 {
		n.finalize(Resolved, []R{}, nil)
		return out
	}

	results := make([]R, len(items))
	errs := make([]error, len(items))
	var remaining = len(items)
	var mu sync.Mutex
	step := 1.0 / float64(len(items))

	for i, item := range items {
		i, item := i, item
		pool.schedule(func() {
			if n.isCancelledByPool() {
				mu.Lock()
				remaining--
				done := remaining == 0
				mu.Unlock()
				if done {
					n.finalize(Cancelled, nil, nil)
				}
				return
			}
			n.setRunning()
			v, err := fn(ctx, item)

			mu.Lock()
			results[i] = v
			errs[i] = err
			remaining--
			done := remaining == 0
			mu.Unlock()

			if n.trackDone && n.progress != nil {
				n.progress.Add(step)
			}

			if done {
				for _, e := range errs {
					if e != nil {
						n.finalize(Failed, nil, e)
						return
					}
				}
				n.finalize(Resolved, results, nil)
			}
		})
	}
	return out
}

// Then chains b after a: b's callback consumes a's result and may itself
// return a completion, in which case the outer completion resolves when
// the inner one does (§4.C "chain"). a's result is observed exactly once
// (§3 invariant); a cancelled a never schedules b.
func Then[T, R any](a *Completion[T], pool *Pool, ctx context.Context, fn func(context.Context, T) (*Completion[R], error)) *Completion[R] {
	out := newNode(pool)
	result := &Completion[R]{n: out}

	a.n.onFinalize(func() {
		st, value, err := a.n.snapshot()
		switch st {
		case Cancelled:
			out.finalize(Cancelled, nil, nil)
			return
		case Failed:
			out.finalize(Failed, nil, err)
			return
		}

		if out.isCancelledByPool() {
			out.finalize(Cancelled, nil, nil)
			return
		}

		pool.schedule(func() {
			if out.isCancelledByPool() {
				out.finalize(Cancelled, nil, nil)
				return
			}
			out.setRunning()
			typedValue, _ := value.(T)
			inner, ferr := fn(ctx, typedValue)
			if ferr != nil {
				out.finalize(Failed, nil, ferr)
				return
			}
			if inner == nil {
				var zero R
				out.finalize(Resolved, zero, nil)
				return
			}
			inner.n.onFinalize(func() {
				ist, ival, ierr := inner.n.snapshot()
				out.finalize(ist, ival, ierr)
			})
		})
	})

	return result
}

// Anyification is the minimal surface the serve loop needs to poll a set
// of heterogeneous completions it owns (§4.C: "process([...]) simply
// forces finalization of already-resolved nodes").
type Anyification interface {
	IsFinalized() bool
}

// Drain forces finalization bookkeeping of every already-resolved
// completion in cs and returns how many are finalized. Because finalize()
// already runs synchronously when a scheduled job completes, Drain never
// needs to do real work itself; it exists so callers (e.g. the serve loop)
// have an explicit, idempotent poll point matching the design's process().
func Drain(cs []Anyification) int {
	n := 0
	for _, c := range cs {
		if c.IsFinalized() {
			n++
		}
	}
	return n
}
