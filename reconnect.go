package surge

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ReconnectStrategy computes how long to wait before the next retry
// attempt for a given host. It is grounded on
// amps/reconnect_strategy.go's ReconnectDelayStrategy shape
// (GetConnectWaitDuration(uri)/Reset()), renamed to the host-keyed retry
// policy spec.md section 4.6 describes.
type ReconnectStrategy interface {
	NextDelay(host string) time.Duration
	Reset()
}

// FixedDelayStrategy always waits the same duration, used for the
// Suspended state's "30s between retries, indefinite until user closes"
// rule (spec.md 4.6 table).
type FixedDelayStrategy struct {
	delay time.Duration
}

// NewFixedDelayStrategy returns a FixedDelayStrategy waiting delay
// between attempts.
func NewFixedDelayStrategy(delay time.Duration) *FixedDelayStrategy {
	if delay < 0 {
		delay = 0
	}
	return &FixedDelayStrategy{delay: delay}
}

func (s *FixedDelayStrategy) NextDelay(string) time.Duration { return s.delay }
func (s *FixedDelayStrategy) Reset()                          {}

// ExponentialDelayStrategy backs the Disconnected state's "15s initial
// reconnect, escalate to Suspended after N attempts" rule with real
// exponential backoff, replacing amps/reconnect_strategy.go's hand-rolled
// math.Pow implementation with github.com/cenkalti/backoff/v4 (grounded
// on EthanHeilman-bzero's controlconnection.go use of the same library
// for an almost identical "retry connecting to a remote endpoint" loop).
type ExponentialDelayStrategy struct {
	mu        sync.Mutex
	perHost   map[string]*backoff.ExponentialBackOff
	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewExponentialDelayStrategy returns an ExponentialDelayStrategy with
// the given base and max delay (factor fixed at backoff's default 1.5,
// matching the library's idiomatic defaults rather than reinventing one;
// randomization is turned off, so delays never shrink between attempts).
func NewExponentialDelayStrategy(baseDelay, maxDelay time.Duration) *ExponentialDelayStrategy {
	if baseDelay <= 0 {
		baseDelay = 15 * time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	return &ExponentialDelayStrategy{
		perHost:   make(map[string]*backoff.ExponentialBackOff),
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
	}
}

func (s *ExponentialDelayStrategy) boForHost(host string) *backoff.ExponentialBackOff {
	if host == "" {
		host = "_default"
	}
	bo, ok := s.perHost[host]
	if !ok {
		bo = backoff.NewExponentialBackOff()
		bo.InitialInterval = s.baseDelay
		bo.MaxInterval = s.maxDelay
		bo.RandomizationFactor = 0 // no jitter: the first delay is exactly baseDelay
		bo.MaxElapsedTime = 0 // never give up on elapsed time; the manager owns attempt budgets
		bo.Reset()
		s.perHost[host] = bo
	}
	return bo
}

// NextDelay returns the next backoff interval for host.
func (s *ExponentialDelayStrategy) NextDelay(host string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.boForHost(host).NextBackOff()
	if d == backoff.Stop {
		return s.maxDelay
	}
	return d
}

// Reset clears all per-host backoff state, used when a connection
// succeeds (spec.md 4.6).
func (s *ExponentialDelayStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perHost = make(map[string]*backoff.ExponentialBackOff)
}
