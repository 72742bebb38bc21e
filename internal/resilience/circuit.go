// Package resilience wraps upstream calls with retry and circuit breaking.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState is the position of a Breaker.
type CircuitState int

const (
	// CircuitClosed lets calls through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the cooldown elapses.
	CircuitOpen
	// CircuitHalfOpen lets one probe through.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without calling the upstream.
var ErrCircuitOpen = eris.New("resilience: circuit open")

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	Name string
	// Threshold is the number of consecutive failures that opens the circuit.
	Threshold int
	Cooldown  time.Duration
	// Trips decides which errors count. Defaults to IsTransient so that a
	// 404 on one campaign does not take down the rest.
	Trips func(err error) bool
}

// Breaker stops hammering an upstream that keeps failing.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time

	now func() time.Time
}

// NewBreaker returns a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Trips == nil {
		cfg.Trips = IsTransient
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Execute runs fn unless the circuit is open.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := ExecuteVal(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExecuteVal is Execute for calls that produce a value.
func ExecuteVal[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.record(err)
	return val, err
}

// State reports the current state, promoting open to half-open once the
// cooldown has passed.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return CircuitHalfOpen
	}
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != CircuitOpen {
		return nil
	}
	if b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.moveTo(CircuitHalfOpen)
		return nil
	}
	return eris.Wrapf(ErrCircuitOpen, "%s", b.cfg.Name)
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !b.cfg.Trips(err) {
		b.failures = 0
		if b.state == CircuitHalfOpen {
			b.moveTo(CircuitClosed)
		}
		return
	}

	b.failures++
	if b.state == CircuitHalfOpen || b.failures >= b.cfg.Threshold {
		b.openedAt = b.now()
		b.moveTo(CircuitOpen)
	}
}

func (b *Breaker) moveTo(to CircuitState) {
	if b.state == to {
		return
	}
	zap.L().Warn("circuit state change",
		zap.String("service", b.cfg.Name),
		zap.Stringer("from", b.state),
		zap.Stringer("to", to),
		zap.Int("failures", b.failures),
	)
	b.state = to
}
