// Package scheduler computes how long to wait before the next request to the
// site. It never sleeps itself; callers perform the wait.
package scheduler

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Config describes a pacing window.
type Config struct {
	Base   time.Duration // minimum delay
	Step   time.Duration // extra delay per request already made
	Cap    time.Duration // upper bound of Base plus the accumulated steps
	Jitter time.Duration // random extra in [0, Jitter)
}

var (
	// StealthPacing is used in front of every stealth request.
	StealthPacing = Config{
		Base:   2 * time.Second,
		Step:   500 * time.Millisecond,
		Cap:    8 * time.Second,
		Jitter: 2 * time.Second,
	}

	// PagePacing is the coarser window used between episodes of a batch.
	PagePacing = Config{
		Base:   3 * time.Second,
		Step:   time.Second,
		Cap:    18 * time.Second,
		Jitter: 5 * time.Second,
	}
)

const (
	backoffBase = 5 * time.Second
	backoffMax  = 30 * time.Second
)

// Rand is the random source used for jitter.
type Rand interface {
	Int64N(n int64) int64
}

type globalRand struct{}

func (globalRand) Int64N(n int64) int64 { return rand.Int64N(n) }

// State is the process-wide pacing state. Reads and writes are individually
// synchronized, but a caller's read-wait-record sequence is not atomic: two
// concurrent flows may both observe the same LastRequestAt and under-throttle
// each other.
type State struct {
	mu            sync.Mutex
	requestCount  int
	lastRequestAt time.Time
}

// Record notes that a request has actually been issued at now.
func (s *State) Record(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestCount++
	s.lastRequestAt = now
}

// Snapshot returns the request count and the time of the last request.
func (s *State) Snapshot() (int, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestCount, s.lastRequestAt
}

// RequestCount returns the number of requests recorded so far.
func (s *State) RequestCount() int {
	count, _ := s.Snapshot()
	return count
}

// Scheduler applies a Config to a State.
type Scheduler struct {
	cfg Config
	rng Rand
}

// New creates a scheduler. A nil rng uses the global math/rand/v2 source.
func New(cfg Config, rng Rand) *Scheduler {
	if rng == nil {
		rng = globalRand{}
	}
	return &Scheduler{cfg: cfg, rng: rng}
}

// Config returns the pacing window of the scheduler.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// NextDelay returns Base + min(count*Step, Cap-Base) + jitter.
func (s *Scheduler) NextDelay(state *State) time.Duration {
	count := state.RequestCount()

	span := s.cfg.Cap - s.cfg.Base
	if span < 0 {
		span = 0
	}
	extra := time.Duration(count) * s.cfg.Step
	if extra > span || extra < 0 {
		extra = span
	}

	var jitter time.Duration
	if s.cfg.Jitter > 0 {
		jitter = time.Duration(s.rng.Int64N(int64(s.cfg.Jitter)))
	}
	return s.cfg.Base + extra + jitter
}

// Remaining returns how much longer the caller must wait at now before the
// next request is allowed: max(0, NextDelay - time since last request).
func (s *Scheduler) Remaining(state *State, now time.Time) time.Duration {
	delay := s.NextDelay(state)
	_, last := state.Snapshot()
	if last.IsZero() {
		return 0
	}
	wait := delay - now.Sub(last)
	if wait < 0 {
		return 0
	}
	return wait
}

// BackoffDelay is the wait after an HTTP 429:
// min(30s, 5s * 2^min(count/10, 3)).
func (s *Scheduler) BackoffDelay(state *State) time.Duration {
	exp := math.Min(float64(state.RequestCount())/10, 3)
	delay := time.Duration(float64(backoffBase) * math.Pow(2, exp))
	if delay > backoffMax {
		return backoffMax
	}
	return delay
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
