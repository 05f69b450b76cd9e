package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeepaliveConfig(t *testing.T) {
	config := DefaultKeepaliveConfig()

	if config.Interval != DefaultKeepaliveInterval {
		t.Errorf("Interval = %v, want %v", config.Interval, DefaultKeepaliveInterval)
	}
	if config.MaxMissed != DefaultMaxMissed {
		t.Errorf("MaxMissed = %d, want %d", config.MaxMissed, DefaultMaxMissed)
	}
	if got := config.DetectionDelay(); got != 15*time.Second {
		t.Errorf("DetectionDelay = %v, want 15s", got)
	}

	ka := NewKeepalive(KeepaliveConfig{}, func(context.Context) error { return nil }, nil)
	if ka.config != config {
		t.Errorf("zero config not defaulted: %+v", ka.config)
	}
}

func TestKeepaliveHealthy(t *testing.T) {
	var probes atomic.Int32
	ka := NewKeepalive(KeepaliveConfig{Interval: 10 * time.Millisecond, MaxMissed: 2},
		func(context.Context) error {
			probes.Add(1)
			return nil
		},
		func(error) { t.Error("onLost called for a healthy link") },
	)

	ka.Start(context.Background())
	assert.True(t, ka.IsRunning())
	time.Sleep(55 * time.Millisecond)
	ka.Stop()

	assert.False(t, ka.IsRunning())
	assert.GreaterOrEqual(t, probes.Load(), int32(3))
	stats := ka.Stats()
	assert.True(t, ka.Healthy())
	assert.Zero(t, stats.Missed)
	assert.False(t, stats.LastSuccess.IsZero())
}

func TestKeepaliveLost(t *testing.T) {
	probeErr := errors.New("no reply")
	var failing atomic.Bool
	failing.Store(true)

	lost := make(chan error, 4)
	ka := NewKeepalive(KeepaliveConfig{Interval: 10 * time.Millisecond, MaxMissed: 3},
		func(context.Context) error {
			if failing.Load() {
				return probeErr
			}
			return nil
		},
		func(err error) { lost <- err },
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ka.Start(ctx)

	select {
	case err := <-lost:
		assert.ErrorIs(t, err, probeErr)
	case <-time.After(time.Second):
		t.Fatal("onLost not called")
	}

	// onLost fires once per outage.
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, lost)
	assert.False(t, ka.Healthy())
	assert.GreaterOrEqual(t, ka.Stats().Missed, 3)

	failing.Store(false)
	require.Eventually(t, ka.Healthy, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return !ka.IsRunning() }, time.Second, 5*time.Millisecond)
}

func TestWorkerKeepalive(t *testing.T) {
	w, s := newTestWorker(t, DefaultConfig())
	s.SetMute(true)

	lost := make(chan struct{})
	ka := w.Keepalive(KeepaliveConfig{Interval: 10 * time.Millisecond, MaxMissed: 2}, func(error) { close(lost) })
	ka.Start(context.Background())
	defer ka.Stop()

	select {
	case <-lost:
	case <-time.After(time.Second):
		t.Fatal("muted firmware not detected")
	}
}
