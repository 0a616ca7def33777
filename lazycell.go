// Package lazycell provides a concurrency-safe container for a value
// that is constructed at most once, on first access. Every caller of
// Get receives a pointer to the same underlying instance, and no caller
// ever observes the value before its initializer has fully returned.
// Construction strategy and failure behavior are selectable per cell.
package lazycell

import (
	"bytes"
	"errors"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

/////////////////////////////////////////////////////////////////////
/////// POLICIES & OPTIONS
/////////////////////////////////////////////////////////////////////

// Policy selects the construction strategy for a cell. All policies
// satisfy the same contract (single construction, full visibility of
// the constructed value); they differ in when construction runs and
// what each Get costs after it.
type Policy int

const (
	// PolicyOrdered is the default: an atomic fast-path read that
	// costs nothing once the value is published, with a mutex-guarded
	// slow path coordinating the single construction. The publication
	// store and the fast-path load form a release/acquire pair, so a
	// goroutine that sees the published pointer also sees every write
	// the initializer made.
	PolicyOrdered Policy = iota

	// PolicyOnce builds on sync.Once, the runtime's one-time
	// initialization primitive. Because sync.Once never re-runs its
	// function, a cell with this policy is implicitly FailurePoison:
	// a failed initializer can never be retried.
	PolicyOnce

	// PolicyLocked acquires the cell's mutex on every Get, including
	// after the value is published. Simple to reason about, but every
	// read contends on the lock forever; prefer PolicyOrdered unless
	// you are measuring the difference on purpose.
	PolicyLocked

	// PolicyEager runs the initializer inside New, before the cell is
	// returned. There is nothing lazy about it; it exists for values
	// that are always needed and for comparison against the lazy
	// policies. If the eager attempt fails, the error surfaces on the
	// first Get according to the cell's failure mode.
	PolicyEager
)

// FailureMode controls what happens to a cell whose initializer
// returns an error.
type FailureMode int

const (
	// FailureRetry returns the cell to its empty state after a failed
	// attempt. A later Get (from any goroutine) runs the initializer
	// again. Goroutines that were waiting on the failed attempt all
	// observe that attempt's error; only a new Get call retries.
	FailureRetry FailureMode = iota

	// FailurePoison makes the first failure permanent. Every
	// subsequent Get returns the original error and the initializer
	// is never invoked again.
	FailurePoison
)

type options struct {
	policy      Policy
	failureMode FailureMode
}

// Option configures a cell at construction time.
type Option func(*options)

// WithPolicy sets the cell's construction policy. The default is
// PolicyOrdered.
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithFailureMode sets the cell's failure mode. The default is
// FailureRetry. Ignored for PolicyOnce, which is always FailurePoison.
func WithFailureMode(m FailureMode) Option {
	return func(o *options) { o.failureMode = m }
}

/////////////////////////////////////////////////////////////////////
/////// ERRORS
/////////////////////////////////////////////////////////////////////

// ErrReentrant is returned when an initializer calls Get on its own
// cell. The nested call can never succeed (the value it wants is the
// one the caller is still constructing), so it fails fast instead of
// deadlocking.
var ErrReentrant = errors.New("lazycell: initializer called Get on its own cell")

// InitError wraps the error returned by a cell's initializer. It is
// returned by the Get call that ran the failed attempt, by every Get
// that was waiting on that attempt, and — for FailurePoison cells — by
// every Get thereafter.
type InitError struct {
	Cause error
}

func (e *InitError) Error() string {
	return "lazycell: initialization failed: " + e.Cause.Error()
}

func (e *InitError) Unwrap() error { return e.Cause }

/////////////////////////////////////////////////////////////////////
/////// CELL
/////////////////////////////////////////////////////////////////////

// attempt is one in-flight run of the initializer. Goroutines that
// arrive while it is running wait on done and then read val/err, so
// everyone racing a given attempt observes that attempt's outcome.
type attempt[T any] struct {
	done chan struct{}
	gid  uint64
	val  *T
	err  error
}

// Cell holds a value of type T that is constructed at most once. The
// zero value is not usable; create cells with New or NewValue.
type Cell[T any] struct {
	// val is the published value. A non-nil pointer here means the
	// initializer completed; the atomic store that publishes it and
	// the atomic load on the fast path order the initializer's writes
	// before any reader's reads.
	val atomic.Pointer[T]

	mu      sync.Mutex
	cur     *attempt[T] // in-flight attempt, if any; guarded by mu
	failure *InitError  // terminal error once poisoned; guarded by mu

	once    sync.Once     // PolicyOnce only
	onceGID atomic.Uint64 // goroutine running the sync.Once attempt

	init        func() (T, error)
	policy      Policy
	failureMode FailureMode
}

// New returns a cell bound to the given initializer. No construction
// happens yet unless the policy is PolicyEager. The initializer must
// not call Get on the cell it is initializing.
func New[T any](init func() (T, error), opts ...Option) *Cell[T] {
	if init == nil {
		panic("lazycell.New: nil initializer")
	}
	o := options{policy: PolicyOrdered, failureMode: FailureRetry}
	for _, opt := range opts {
		opt(&o)
	}
	if o.policy == PolicyOnce {
		// sync.Once never re-runs, so retry is not on the menu.
		o.failureMode = FailurePoison
	}
	c := &Cell[T]{init: init, policy: o.policy, failureMode: o.failureMode}
	if o.policy == PolicyEager {
		_, _ = c.getSlow()
	}
	return c
}

// NewValue is New for initializers that cannot fail.
func NewValue[T any](init func() T, opts ...Option) *Cell[T] {
	if init == nil {
		panic("lazycell.NewValue: nil initializer")
	}
	return New(func() (T, error) { return init(), nil }, opts...)
}

// Get returns a pointer to the cell's value, constructing it first if
// no earlier call already has. The returned pointer is identical
// across all calls and all goroutines for the life of the cell, and
// Get returns only after construction has fully completed, regardless
// of which goroutine performed it. Treat the pointed-to value as
// read-only unless T synchronizes its own mutation.
func (c *Cell[T]) Get() (*T, error) {
	if c.policy == PolicyOnce {
		return c.getOnce()
	}
	if c.policy != PolicyLocked {
		if v := c.val.Load(); v != nil {
			return v, nil
		}
	}
	return c.getSlow()
}

// MustGet is Get for call sites that treat initialization failure as
// fatal, such as package-level holder cells. It panics if Get errors.
func (c *Cell[T]) MustGet() *T {
	v, err := c.Get()
	if err != nil {
		panic(err)
	}
	return v
}

// IsInitialized reports whether the cell currently holds a value. The
// answer can be stale the instant it returns; use it for diagnostics
// and tests, never to decide whether Get needs calling.
func (c *Cell[T]) IsInitialized() bool {
	return c.val.Load() != nil
}

// getSlow coordinates construction for the ordered, locked, and eager
// policies. Exactly one goroutine (the one that installs the attempt)
// runs the initializer; everyone else either returns the published
// value or waits on the attempt and shares its outcome.
func (c *Cell[T]) getSlow() (*T, error) {
	c.mu.Lock()
	if v := c.val.Load(); v != nil {
		c.mu.Unlock()
		return v, nil
	}
	if c.failure != nil {
		err := c.failure
		c.mu.Unlock()
		return nil, err
	}
	if a := c.cur; a != nil {
		c.mu.Unlock()
		if a.gid == goroutineID() {
			return nil, ErrReentrant
		}
		<-a.done
		if a.err != nil {
			return nil, a.err
		}
		return a.val, nil
	}

	a := &attempt[T]{done: make(chan struct{}), gid: goroutineID()}
	c.cur = a
	c.mu.Unlock()

	// The lock is not held while the initializer runs; waiters park on
	// a.done instead of the mutex so a failed attempt can report to
	// exactly the goroutines that raced it.
	v, err := c.init()

	c.mu.Lock()
	c.cur = nil
	if err != nil {
		ierr := &InitError{Cause: err}
		a.err = ierr
		if c.failureMode == FailurePoison {
			c.failure = ierr
		}
		c.mu.Unlock()
		close(a.done)
		return nil, a.err
	}
	a.val = &v
	c.val.Store(a.val)
	c.mu.Unlock()
	close(a.done)
	return a.val, nil
}

// getOnce implements PolicyOnce on top of sync.Once. Completion of
// once.Do happens-before every return from it, which gives the same
// visibility guarantee the ordered policy gets from its atomic pair.
func (c *Cell[T]) getOnce() (*T, error) {
	if v := c.val.Load(); v != nil {
		return v, nil
	}
	if c.onceGID.Load() == goroutineID() {
		return nil, ErrReentrant
	}
	c.once.Do(func() {
		c.onceGID.Store(goroutineID())
		defer c.onceGID.Store(0)
		v, err := c.init()
		if err != nil {
			c.failure = &InitError{Cause: err}
			return
		}
		c.val.Store(&v)
	})
	if v := c.val.Load(); v != nil {
		return v, nil
	}
	return nil, c.failure
}

/////////////////////////////////////////////////////////////////////
/////// GOROUTINE IDENTITY
/////////////////////////////////////////////////////////////////////

var goroutinePrefix = []byte("goroutine ")

// goroutineID parses the current goroutine's id out of the header line
// of its stack dump. The runtime offers no supported accessor, and the
// id is used strictly to recognize a goroutine re-entering a cell it
// is already initializing — never for correctness of publication.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, goroutinePrefix)
	i := bytes.IndexByte(buf, ' ')
	if i < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(buf[:i]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
