package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapiduino/rapiduino-go/pkg/board"
	"github.com/rapiduino/rapiduino-go/pkg/device"
	"github.com/rapiduino/rapiduino-go/pkg/pin"
	"github.com/rapiduino/rapiduino-go/pkg/transport/transporttest"
	"github.com/rapiduino/rapiduino-go/pkg/version"
)

func newTestWorker(t *testing.T, cfg Config) (*Worker, *transporttest.Sketch) {
	t.Helper()
	b, err := board.Lookup("uno")
	require.NoError(t, err)
	s := transporttest.NewSketch()
	d, err := device.New(s, b.Pins())
	require.NoError(t, err)

	w := New(d, cfg)
	t.Cleanup(w.Close)
	return w, s
}

func TestWorkerHelpers(t *testing.T) {
	w, s := newTestWorker(t, DefaultConfig())
	ctx := context.Background()
	s.SetAnalog(16, 300)

	v, err := w.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	echo, err := w.Parrot(ctx, 17)
	require.NoError(t, err)
	assert.Equal(t, 17, echo)

	fw, err := w.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, version.Firmware{Major: 1}, fw)

	token := device.NewToken()
	require.NoError(t, w.Register(ctx, token, pin.Requirement{ID: 6, PWM: true}, pin.Requirement{ID: 7}))

	require.NoError(t, w.PinMode(ctx, 7, pin.ModeOutput, token))
	require.NoError(t, w.DigitalWrite(ctx, 7, pin.High, token))
	state, err := w.DigitalRead(ctx, 7, token)
	require.NoError(t, err)
	assert.Equal(t, pin.High, state)

	require.NoError(t, w.AnalogWrite(ctx, 6, 77, token))
	assert.Equal(t, 77, s.PWM(6))

	a, err := w.AnalogRead(ctx, 16, nil)
	require.NoError(t, err)
	assert.Equal(t, 300, a)

	assert.ErrorIs(t, w.DigitalWrite(ctx, 7, pin.Low, nil), device.ErrProtectedPin)

	ids, err := w.Deregister(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, []int{6, 7}, ids)
}

func TestWorkerSerialisesCalls(t *testing.T) {
	w, _ := newTestWorker(t, DefaultConfig())

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := w.Do(context.Background(), func(d *device.Device) error {
				n := active.Add(1)
				for {
					m := maxActive.Load()
					if n <= m || maxActive.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				active.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
}

func TestWorkerContextCancelled(t *testing.T) {
	w, _ := newTestWorker(t, DefaultConfig())

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = w.Do(context.Background(), func(*device.Device) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	var ran atomic.Bool
	err := w.Do(ctx, func(*device.Device) error {
		ran.Store(true)
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	// The abandoned call is skipped once the worker reaches it.
	require.NoError(t, w.Do(context.Background(), func(*device.Device) error { return nil }))
	assert.False(t, ran.Load())
}

func TestWorkerClose(t *testing.T) {
	w, s := newTestWorker(t, DefaultConfig())
	w.Close()
	w.Close()

	_, err := w.Poll(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.False(t, s.Closed(), "the worker does not own the device")
}

func TestWorkerRateLimit(t *testing.T) {
	w, _ := newTestWorker(t, Config{Rate: 50, Burst: 1, QueueSize: 4})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 4; i++ {
		_, err := w.Poll(ctx)
		require.NoError(t, err)
	}
	// Three waits of 20ms after the initial token.
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestWorkerPropagatesErrors(t *testing.T) {
	w, _ := newTestWorker(t, DefaultConfig())
	boom := errors.New("boom")

	err := w.Do(context.Background(), func(*device.Device) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestWorkerReplace(t *testing.T) {
	w, old := newTestWorker(t, DefaultConfig())
	ctx := context.Background()
	token := device.NewToken()
	require.NoError(t, w.Register(ctx, token, pin.Requirement{ID: 7}))

	b, err := board.Lookup("uno")
	require.NoError(t, err)
	s := transporttest.NewSketch()
	s.SetVersion(1, 2, 0)
	next, err := device.New(s, b.Pins())
	require.NoError(t, err)

	prev, err := w.Replace(ctx, next)
	require.NoError(t, err)
	require.NoError(t, prev.Close())
	assert.True(t, old.Closed())
	assert.Same(t, next, w.Device())

	fw, err := w.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, version.Firmware{Major: 1, Minor: 2}, fw)

	// Ownership lives on the device and does not survive the swap.
	require.NoError(t, w.DigitalWrite(ctx, 7, pin.High, nil))
}

func TestWorkerReplaceAfterClose(t *testing.T) {
	w, _ := newTestWorker(t, DefaultConfig())
	cur := w.Device()
	w.Close()

	prev, err := w.Replace(context.Background(), nil)
	assert.ErrorIs(t, err, ErrStopped)
	assert.Nil(t, prev)
	assert.Same(t, cur, w.Device())
}

func TestWorkerCloseDevice(t *testing.T) {
	w, s := newTestWorker(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, w.CloseDevice(ctx))
	assert.True(t, s.Closed())
	require.NoError(t, w.CloseDevice(ctx), "closing twice is a no-op")

	_, err := w.Poll(ctx)
	assert.ErrorIs(t, err, device.ErrClosed)
}

func TestWorkerLateRequestAfterClose(t *testing.T) {
	w, _ := newTestWorker(t, DefaultConfig())
	w.Close()

	// A request queued after the final drain has no one to answer it.
	req := request{
		ctx:    context.Background(),
		fn:     func(*device.Device) error { return nil },
		result: make(chan error, 1),
	}
	w.reqs <- req

	errCh := make(chan error, 1)
	go func() { errCh <- w.wait(context.Background(), req) }()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(time.Second):
		t.Fatal("wait blocked after the worker stopped")
	}
}
