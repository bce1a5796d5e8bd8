package cache

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ErrBreakerOpen = errors.New("circuit breaker is open")

var breakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "taskify",
		Subsystem: "cache",
		Name:      "breaker_state",
		Help:      "Circuit breaker state: 0 closed, 1 open, 2 half-open",
	},
	[]string{"breaker"},
)

type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

type BreakerConfig struct {
	// Name labels log lines and the state gauge.
	Name             string        `yaml:"name"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
	Probes           int           `yaml:"probes"`
}

func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{Name: name, FailureThreshold: 5, Cooldown: 30 * time.Second, Probes: 3}
}

// CircuitBreaker guards a remote cache tier. FailureThreshold consecutive
// failures open it for Cooldown; then up to Probes calls may pass, and that
// many successes close it while one failure opens it again.
type CircuitBreaker struct {
	cfg    BreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	probing   int
	openedAt  time.Time
}

type BreakerSnapshot struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Failures  int       `json:"failures"`
	Successes int       `json:"successes"`
	OpenedAt  time.Time `json:"opened_at,omitempty"`
}

func NewCircuitBreaker(cfg BreakerConfig, logger *slog.Logger) *CircuitBreaker {
	def := DefaultBreakerConfig(cfg.Name)
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.Probes <= 0 {
		cfg.Probes = def.Probes
	}
	if logger == nil {
		logger = slog.Default()
	}

	breakerState.WithLabelValues(cfg.Name).Set(float64(StateClosed))
	return &CircuitBreaker{cfg: cfg, logger: logger, now: time.Now}
}

// Do runs fn unless the breaker is open, and records its outcome.
func (b *CircuitBreaker) Do(fn func() error) error {
	if !b.admit() {
		return ErrBreakerOpen
	}
	err := fn()
	b.record(err)
	return err
}

func (b *CircuitBreaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false
		}
		b.transition(StateHalfOpen)
	}
	if b.state == StateHalfOpen {
		if b.successes+b.probing >= b.cfg.Probes {
			return false
		}
		b.probing++
	}
	return true
}

func (b *CircuitBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen && b.probing > 0 {
		b.probing--
	}

	if err == nil {
		switch b.state {
		case StateClosed:
			b.failures = 0
		case StateHalfOpen:
			b.successes++
			if b.successes >= b.cfg.Probes {
				b.transition(StateClosed)
			}
		}
		return
	}

	b.failures++
	if b.state == StateHalfOpen || (b.state == StateClosed && b.failures >= b.cfg.FailureThreshold) {
		b.openedAt = b.now()
		b.transition(StateOpen)
	}
}

// transition must be called with mu held.
func (b *CircuitBreaker) transition(to BreakerState) {
	from := b.state
	b.state = to
	b.successes = 0
	b.probing = 0
	if to == StateClosed {
		b.failures = 0
	}
	breakerState.WithLabelValues(b.cfg.Name).Set(float64(to))
	b.logger.Info("circuit breaker state changed", "breaker", b.cfg.Name, "from", from.String(), "to", to.String())
}

func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CircuitBreaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{
		Name:      b.cfg.Name,
		State:     b.state.String(),
		Failures:  b.failures,
		Successes: b.successes,
		OpenedAt:  b.openedAt,
	}
}
