package reconnect

import (
	"context"
	"sync"
	"time"
)

// DefaultAttemptTimeout bounds a single reopen attempt.
const DefaultAttemptTimeout = 10 * time.Second

// State is the supervisor's view of the link.
type State uint8

const (
	// StateLinked means the device is open and believed healthy.
	StateLinked State = iota

	// StateReopening means the link was lost and reopen attempts are running.
	StateReopening

	// StateFailed means MaxAttempts reopens failed in a row.
	StateFailed

	// StateClosed means Close was called.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateLinked:
		return "LINKED"
	case StateReopening:
		return "REOPENING"
	case StateFailed:
		return "FAILED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// OpenFunc opens a fresh device and installs it. It returns nil once the
// new device has passed its handshake.
type OpenFunc func(ctx context.Context) error

// Config configures a Supervisor.
type Config struct {
	Backoff BackoffConfig

	// AttemptTimeout bounds each call to the OpenFunc.
	AttemptTimeout time.Duration

	// MaxAttempts is the number of consecutive failures after which the
	// supervisor gives up. Zero retries forever.
	MaxAttempts int
}

// DefaultConfig retries forever with the default backoff.
func DefaultConfig() Config {
	return Config{
		Backoff:        DefaultBackoffConfig(),
		AttemptTimeout: DefaultAttemptTimeout,
	}
}

// Supervisor reopens a device after its link is reported lost. The caller
// performs the first open itself; the supervisor starts out linked.
type Supervisor struct {
	mu      sync.RWMutex
	state   State
	open    OpenFunc
	cfg     Config
	backoff *Backoff

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	start   sync.Once
	trigger chan struct{}

	onStateChange   func(from, to State)
	onReopened      func(attempts int)
	onAttemptFailed func(attempt int, err error)
	onGiveUp        func(err error)
}

// New creates a supervisor around open. Call Start to begin serving
// NotifyLost.
func New(open OpenFunc, cfg Config) *Supervisor {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		state:   StateLinked,
		open:    open,
		cfg:     cfg,
		backoff: NewBackoff(cfg.Backoff),
		ctx:     ctx,
		cancel:  cancel,
		trigger: make(chan struct{}, 1),
	}
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Attempts returns the number of reopen attempts since the last success.
func (s *Supervisor) Attempts() int {
	return s.backoff.Attempts()
}

// Start launches the reopen goroutine. Later calls do nothing.
func (s *Supervisor) Start() {
	s.start.Do(func() {
		s.wg.Add(1)
		go s.loop()
	})
}

// NotifyLost reports that the link is gone. It is ignored unless the
// supervisor is linked or has given up, so repeated reports while a reopen
// is running are harmless.
func (s *Supervisor) NotifyLost() {
	s.mu.Lock()
	from := s.state
	if from != StateLinked && from != StateFailed {
		s.mu.Unlock()
		return
	}
	s.state = StateReopening
	fn := s.onStateChange
	s.mu.Unlock()

	if fn != nil {
		fn(from, StateReopening)
	}
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Close stops the supervisor and waits for an in-flight attempt.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	from := s.state
	s.state = StateClosed
	fn := s.onStateChange
	s.mu.Unlock()

	if fn != nil {
		fn(from, StateClosed)
	}
	s.cancel()
	s.wg.Wait()
}

// OnStateChange sets a callback for state transitions.
func (s *Supervisor) OnStateChange(fn func(from, to State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStateChange = fn
}

// OnReopened sets a callback for a successful reopen. attempts counts the
// tries it took, including the successful one.
func (s *Supervisor) OnReopened(fn func(attempts int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReopened = fn
}

// OnAttemptFailed sets a callback for each failed reopen.
func (s *Supervisor) OnAttemptFailed(fn func(attempt int, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAttemptFailed = fn
}

// OnGiveUp sets a callback for when MaxAttempts is exhausted.
func (s *Supervisor) OnGiveUp(fn func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onGiveUp = fn
}

func (s *Supervisor) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.trigger:
			s.reopen()
		}
	}
}

func (s *Supervisor) reopen() {
	for {
		if s.State() != StateReopening {
			return
		}

		delay := s.backoff.Next()
		attempt := s.backoff.Attempts()
		timer := time.NewTimer(delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.AttemptTimeout)
		err := s.open(ctx)
		cancel()

		if err == nil {
			if !s.transition(StateReopening, StateLinked) {
				return
			}
			s.backoff.Reset()
			if fn := s.callbacks().onReopened; fn != nil {
				fn(attempt)
			}
			return
		}
		if s.ctx.Err() != nil {
			return
		}

		if fn := s.callbacks().onAttemptFailed; fn != nil {
			fn(attempt, err)
		}
		if s.cfg.MaxAttempts > 0 && attempt >= s.cfg.MaxAttempts {
			s.backoff.Reset()
			if s.transition(StateReopening, StateFailed) {
				if fn := s.callbacks().onGiveUp; fn != nil {
					fn(err)
				}
			}
			return
		}
	}
}

// transition moves from one state to another and reports whether the
// supervisor was still in from.
func (s *Supervisor) transition(from, to State) bool {
	s.mu.Lock()
	if s.state != from {
		s.mu.Unlock()
		return false
	}
	s.state = to
	fn := s.onStateChange
	s.mu.Unlock()

	if fn != nil {
		fn(from, to)
	}
	return true
}

type callbackSet struct {
	onReopened      func(int)
	onAttemptFailed func(int, error)
	onGiveUp        func(error)
}

func (s *Supervisor) callbacks() callbackSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return callbackSet{
		onReopened:      s.onReopened,
		onAttemptFailed: s.onAttemptFailed,
		onGiveUp:        s.onGiveUp,
	}
}
