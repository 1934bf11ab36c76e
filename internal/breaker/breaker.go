// Package breaker implements a per-dependency circuit breaker: CLOSED,
// OPEN and HALF_OPEN states gated by atomic counters, so a flaky downstream
// (the transcription provider, the client's webhook endpoint) can't be
// hammered by every in-flight Job at once.
package breaker

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/transcribebridge/bridge/internal/domain"
)

type State int32

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// Config holds one breaker's tunables (§4.5).
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	// ExpectedErrors lists substrings that, when found in an error's
	// message, mean "the dependency answered, it just didn't like this
	// particular request" — these never count toward the failure count.
	ExpectedErrors []string
}

// Reporter receives circuit breaker state transition notifications;
// satisfied by *metrics.Metrics.
type Reporter interface {
	RecordBreakerTransition(dependency, state string)
}

// Breaker gates calls to a single named dependency.
type Breaker struct {
	name   string
	cfg    Config
	state  atomic.Int32
	fails  atomic.Int32
	mu     sync.Mutex
	openAt time.Time
	// probing marks that HALF_OPEN's single trial call is already in
	// flight, so concurrent callers don't all race the same probe (§4.5).
	probing  atomic.Bool
	reporter Reporter
}

func New(name string, cfg Config) *Breaker {
	return &Breaker{name: name, cfg: cfg}
}

// SetReporter wires a metrics sink for state transitions. Optional; a nil
// reporter (the zero value) is a no-op.
func (b *Breaker) SetReporter(r Reporter) *Breaker {
	b.reporter = r
	return b
}

func (b *Breaker) State() State {
	return State(b.state.Load())
}

// Allow reports whether a call may proceed, transitioning OPEN->HALF_OPEN
// once the recovery timeout has elapsed. In HALF_OPEN, only the first
// caller to arrive after the transition gets to run the trial probe;
// everyone else is refused until that probe resolves (§4.5: "a single
// probe").
func (b *Breaker) Allow() bool {
	switch b.State() {
	case Closed:
		return true
	case HalfOpen:
		return b.probing.CompareAndSwap(false, true)
	case Open:
		b.mu.Lock()
		defer b.mu.Unlock()
		if time.Since(b.openAt) >= b.cfg.RecoveryTimeout {
			b.state.Store(int32(HalfOpen))
			b.probing.Store(true)
			b.report(HalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

// Execute runs fn if the breaker allows it, recording the outcome.
// It returns domain.NewCircuitOpenError(name) without calling fn if the
// breaker is OPEN.
func (b *Breaker) Execute(fn func() error) error {
	if !b.Allow() {
		return domain.NewCircuitOpenError(b.name)
	}

	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) record(err error) {
	if err == nil {
		b.onSuccess()
		return
	}
	if b.isExpected(err) {
		// A HALF_OPEN probe that ends in an expected error has still
		// resolved, so the next caller may run the probe.
		b.probing.Store(false)
		return
	}
	b.onFailure()
}

func (b *Breaker) onSuccess() {
	switch b.State() {
	case HalfOpen:
		b.mu.Lock()
		b.state.Store(int32(Closed))
		b.fails.Store(0)
		b.mu.Unlock()
		b.probing.Store(false)
		b.report(Closed)
	case Closed:
		b.fails.Store(0)
	}
}

func (b *Breaker) onFailure() {
	if b.State() == HalfOpen {
		b.probing.Store(false)
		b.trip()
		return
	}

	n := b.fails.Add(1)
	if int(n) >= b.cfg.FailureThreshold {
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Store(int32(Open))
	b.openAt = time.Now()
	b.fails.Store(0)
	b.report(Open)
}

// report notifies the wired Reporter, if any, of a state transition.
func (b *Breaker) report(s State) {
	if b.reporter != nil {
		b.reporter.RecordBreakerTransition(b.name, s.String())
	}
}

func (b *Breaker) isExpected(err error) bool {
	msg := err.Error()
	for _, substr := range b.cfg.ExpectedErrors {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}
