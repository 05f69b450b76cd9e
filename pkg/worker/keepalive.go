package worker

import (
	"context"
	"sync"
	"time"
)

// Keepalive defaults.
const (
	// DefaultKeepaliveInterval is the default interval between polls.
	DefaultKeepaliveInterval = 5 * time.Second

	// DefaultMaxMissed is the default number of consecutive failed polls
	// before the link is considered lost.
	DefaultMaxMissed = 3
)

// KeepaliveConfig configures liveness polling.
type KeepaliveConfig struct {
	// Interval between polls. Each poll must also finish within it.
	Interval time.Duration

	// MaxMissed is the number of consecutive failures that mark the link lost.
	MaxMissed int
}

// DefaultKeepaliveConfig returns the default keepalive configuration.
func DefaultKeepaliveConfig() KeepaliveConfig {
	return KeepaliveConfig{
		Interval:  DefaultKeepaliveInterval,
		MaxMissed: DefaultMaxMissed,
	}
}

// DetectionDelay is the longest time a dead link goes unnoticed.
func (c KeepaliveConfig) DetectionDelay() time.Duration {
	return c.Interval * time.Duration(c.MaxMissed)
}

// KeepaliveStats is a snapshot of keepalive state.
type KeepaliveStats struct {
	LastProbe   time.Time
	LastSuccess time.Time
	LastError   error
	Missed      int
	Probes      uint64
	Lost        bool
}

// Keepalive probes the link every interval. After MaxMissed consecutive
// failures it calls onLost once; a later successful probe re-arms it.
type Keepalive struct {
	config KeepaliveConfig
	probe  func(ctx context.Context) error
	onLost func(err error)

	mu      sync.Mutex
	stats   KeepaliveStats
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewKeepalive creates a keepalive around probe. onLost may be nil.
func NewKeepalive(config KeepaliveConfig, probe func(ctx context.Context) error, onLost func(err error)) *Keepalive {
	if config.Interval <= 0 {
		config.Interval = DefaultKeepaliveInterval
	}
	if config.MaxMissed <= 0 {
		config.MaxMissed = DefaultMaxMissed
	}
	return &Keepalive{
		config: config,
		probe:  probe,
		onLost: onLost,
	}
}

// Keepalive returns a keepalive that polls the device through w.
func (w *Worker) Keepalive(config KeepaliveConfig, onLost func(err error)) *Keepalive {
	return NewKeepalive(config, func(ctx context.Context) error {
		_, err := w.Poll(ctx)
		return err
	}, onLost)
}

// Start begins polling. It returns at once; polling stops on Stop or when
// ctx ends.
func (ka *Keepalive) Start(ctx context.Context) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if ka.running {
		return
	}
	ka.running = true
	ka.stopCh = make(chan struct{})
	ka.doneCh = make(chan struct{})
	go ka.loop(ctx, ka.stopCh, ka.doneCh)
}

// Stop stops polling and waits for an in-flight probe.
func (ka *Keepalive) Stop() {
	ka.mu.Lock()
	if !ka.running {
		ka.mu.Unlock()
		return
	}
	ka.running = false
	close(ka.stopCh)
	done := ka.doneCh
	ka.mu.Unlock()
	<-done
}

// IsRunning returns true if polling is active.
func (ka *Keepalive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running
}

// Stats returns current keepalive statistics.
func (ka *Keepalive) Stats() KeepaliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.stats
}

// Healthy reports whether the link is not considered lost.
func (ka *Keepalive) Healthy() bool {
	return !ka.Stats().Lost
}

func (ka *Keepalive) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(ka.config.Interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-ctx.Done():
			ka.markStopped()
			return
		case <-ticker.C:
			ka.handleTick(ctx)
		}
	}
}

func (ka *Keepalive) markStopped() {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	ka.running = false
}

func (ka *Keepalive) handleTick(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, ka.config.Interval)
	err := ka.probe(probeCtx)
	cancel()
	if err != nil && ctx.Err() != nil {
		// Stopping; not a missed probe.
		return
	}

	ka.mu.Lock()
	now := time.Now()
	ka.stats.LastProbe = now
	ka.stats.Probes++
	ka.stats.LastError = err
	if err == nil {
		ka.stats.LastSuccess = now
		ka.stats.Missed = 0
		ka.stats.Lost = false
		ka.mu.Unlock()
		return
	}

	ka.stats.Missed++
	fire := ka.stats.Missed >= ka.config.MaxMissed && !ka.stats.Lost
	if fire {
		ka.stats.Lost = true
	}
	ka.mu.Unlock()

	if fire && ka.onLost != nil {
		ka.onLost(err)
	}
}
