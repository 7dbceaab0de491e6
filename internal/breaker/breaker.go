// Package breaker wraps outbound calls in a per-operation circuit breaker:
// a rolling error-rate window opens the circuit, an open circuit routes
// every call to the operation's fallback, and a single probe after the
// reset timeout decides whether to close again.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ErrServiceUnavailable is the base error every fallback should wrap
	// so callers can classify the failure as retry-later.
	ErrServiceUnavailable = errors.New("service temporarily unavailable")

	// ErrTimeout marks a call that exceeded the breaker's timeout. It
	// counts as a failure in the rolling window.
	ErrTimeout = errors.New("call timed out")

	// ErrNoFallback rejects breaker construction without a fallback.
	ErrNoFallback = errors.New("circuit breaker requires a fallback")
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Fallback produces the short-circuit answer while the breaker is open.
// It must return an error wrapping ErrServiceUnavailable.
type Fallback func(ctx context.Context, cause error) error

type Config struct {
	// Timeout bounds one call. A timeout counts as a failure but does not
	// cancel the downstream work already in flight.
	Timeout time.Duration
	// ErrorThresholdPercentage opens the circuit once the error rate in
	// the rolling window reaches it.
	ErrorThresholdPercentage int
	// ResetTimeout is the cooldown before a probe call is admitted.
	ResetTimeout time.Duration
	// RollingWindow is the span over which the error rate is measured.
	RollingWindow time.Duration
	// MinRequests is the minimum traffic in the window before the
	// threshold is evaluated.
	MinRequests int
}

func (c *Config) withDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.ErrorThresholdPercentage <= 0 {
		c.ErrorThresholdPercentage = 50
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.RollingWindow <= 0 {
		c.RollingWindow = 10 * time.Second
	}
	if c.MinRequests <= 0 {
		c.MinRequests = 5
	}
}

const bucketCount = 10

type bucket struct {
	start     time.Time
	successes int
	failures  int
}

var (
	stateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Current breaker state (0 closed, 1 open, 2 half-open).",
	}, []string{"operation"})
	callCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_calls_total",
		Help: "Breaker call outcomes.",
	}, []string{"operation", "outcome"})
)

// Breaker guards one named operation. Construct once at startup and keep
// for the process lifetime.
type Breaker struct {
	name     string
	cfg      Config
	fallback Fallback
	now      func() time.Time

	mu       sync.Mutex
	state    State
	buckets  [bucketCount]bucket
	openedAt time.Time
	probing  bool
}

// New validates the config and builds a breaker. The fallback is mandatory;
// there is no inert default.
func New(name string, cfg Config, fallback Fallback) (*Breaker, error) {
	if fallback == nil {
		return nil, fmt.Errorf("breaker %q: %w", name, ErrNoFallback)
	}
	cfg.withDefaults()
	b := &Breaker{name: name, cfg: cfg, fallback: fallback, now: time.Now}
	stateGauge.WithLabelValues(name).Set(float64(StateClosed))
	return b, nil
}

// MustNew is New for static wiring in composition roots.
func MustNew(name string, cfg Config, fallback Fallback) *Breaker {
	b, err := New(name, cfg, fallback)
	if err != nil {
		panic(err)
	}
	return b
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Do runs the call under the breaker. While open it invokes the fallback
// without touching the remote call; a timed-out call is abandoned (not
// cancelled downstream) and recorded as a failure.
func (b *Breaker) Do(ctx context.Context, call func(ctx context.Context) error) error {
	admitted, probe := b.admit()
	if !admitted {
		callCounter.WithLabelValues(b.name, "short_circuit").Inc()
		return b.fallback(ctx, fmt.Errorf("%s: %w", b.name, ErrServiceUnavailable))
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- call(callCtx) }()

	var err error
	select {
	case err = <-done:
	case <-callCtx.Done():
		err = fmt.Errorf("%s after %s: %w", b.name, b.cfg.Timeout, ErrTimeout)
	}

	b.record(err == nil, probe)
	switch {
	case err == nil:
		callCounter.WithLabelValues(b.name, "success").Inc()
	case errors.Is(err, ErrTimeout):
		callCounter.WithLabelValues(b.name, "timeout").Inc()
	default:
		callCounter.WithLabelValues(b.name, "failure").Inc()
	}
	return err
}

// admit decides whether the call may run; the second result marks it as the
// half-open probe.
func (b *Breaker) admit() (admitted, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true, false
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return false, false
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return true, true
	case StateHalfOpen:
		if b.probing {
			return false, false
		}
		b.probing = true
		return true, true
	}
	return false, false
}

func (b *Breaker) record(success, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probing = false
		if success {
			b.transition(StateClosed)
			b.resetWindow()
		} else {
			b.transition(StateOpen)
			b.openedAt = b.now()
		}
		return
	}

	bkt := b.currentBucket()
	if success {
		bkt.successes++
	} else {
		bkt.failures++
	}

	if b.state != StateClosed {
		return
	}
	successes, failures := b.windowTotals()
	total := successes + failures
	if total < b.cfg.MinRequests {
		return
	}
	if failures*100 >= b.cfg.ErrorThresholdPercentage*total {
		b.transition(StateOpen)
		b.openedAt = b.now()
	}
}

func (b *Breaker) transition(to State) {
	b.state = to
	stateGauge.WithLabelValues(b.name).Set(float64(to))
}

func (b *Breaker) bucketDuration() time.Duration {
	return b.cfg.RollingWindow / bucketCount
}

func (b *Breaker) currentBucket() *bucket {
	now := b.now()
	start := now.Truncate(b.bucketDuration())
	idx := int(start.UnixNano()/int64(b.bucketDuration())) % bucketCount
	if idx < 0 {
		idx += bucketCount
	}
	if !b.buckets[idx].start.Equal(start) {
		b.buckets[idx] = bucket{start: start}
	}
	return &b.buckets[idx]
}

func (b *Breaker) windowTotals() (successes, failures int) {
	cutoff := b.now().Add(-b.cfg.RollingWindow)
	for i := range b.buckets {
		if b.buckets[i].start.After(cutoff) {
			successes += b.buckets[i].successes
			failures += b.buckets[i].failures
		}
	}
	return successes, failures
}

func (b *Breaker) resetWindow() {
	b.buckets = [bucketCount]bucket{}
}
