// Package worker serialises Device calls through a single goroutine for
// callers that live in concurrent or context-driven code, such as the HTTP
// bridge, and watches link liveness with a poll keepalive.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/rapiduino/rapiduino-go/pkg/device"
	"github.com/rapiduino/rapiduino-go/pkg/pin"
	"github.com/rapiduino/rapiduino-go/pkg/version"
)

// ErrStopped is returned by Do after Close.
var ErrStopped = errors.New("worker stopped")

// Config configures a Worker.
type Config struct {
	// Rate limits exchanges per second. Zero disables pacing.
	Rate float64

	// Burst is the limiter bucket size. Defaults to 1 when Rate is set.
	Burst int

	// QueueSize is the number of calls that may wait for the worker.
	QueueSize int
}

// DefaultConfig returns an unpaced worker with a small queue.
func DefaultConfig() Config {
	return Config{QueueSize: 16}
}

type request struct {
	ctx    context.Context
	fn     func(*device.Device) error
	result chan error
}

// Worker runs every call on one goroutine, in submission order.
type Worker struct {
	dev     atomic.Pointer[device.Device]
	limiter *rate.Limiter

	reqs    chan request
	done    chan struct{}
	stopped chan struct{} // closed once loop has returned
	wg      sync.WaitGroup
	once    sync.Once
}

// New starts a worker for dev. The worker does not own dev: Close stops the
// goroutine and leaves the device open.
func New(dev *device.Device, cfg Config) *Worker {
	w := &Worker{
		reqs:    make(chan request, cfg.QueueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	w.dev.Store(dev)
	if cfg.Rate > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}

	w.wg.Add(1)
	go w.loop()
	return w
}

// Device returns the wrapped device. Its registry and pin table accessors
// are safe to call directly.
func (w *Worker) Device() *device.Device {
	return w.dev.Load()
}

// Replace swaps in dev between two calls and returns the previous device,
// which the caller closes. Calls queued behind the swap run on dev.
func (w *Worker) Replace(ctx context.Context, dev *device.Device) (*device.Device, error) {
	var old *device.Device
	err := w.Do(ctx, func(cur *device.Device) error {
		old = cur
		w.dev.Store(dev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return old, nil
}

// CloseDevice closes the current device between two calls and keeps it in
// place, so later calls fail with device.ErrClosed until Replace. Use it to
// release the serial port before opening it again.
func (w *Worker) CloseDevice(ctx context.Context) error {
	return w.Do(ctx, func(cur *device.Device) error {
		return cur.Close()
	})
}

// Close stops the worker and waits for the in-flight call to finish.
// Queued calls fail with ErrStopped.
func (w *Worker) Close() {
	w.once.Do(func() { close(w.done) })
	w.wg.Wait()
}

func (w *Worker) loop() {
	defer w.wg.Done()
	defer close(w.stopped)
	for {
		select {
		case <-w.done:
			w.drain()
			return
		case req := <-w.reqs:
			req.result <- w.run(req)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case req := <-w.reqs:
			req.result <- ErrStopped
		default:
			return
		}
	}
}

func (w *Worker) run(req request) error {
	if err := req.ctx.Err(); err != nil {
		return err
	}
	if w.limiter != nil {
		if err := w.limiter.Wait(req.ctx); err != nil {
			return err
		}
	}
	return req.fn(w.dev.Load())
}

// Do runs fn on the worker goroutine and returns its error. If ctx ends
// first Do returns ctx.Err(); a call already running is never interrupted,
// and a queued one is skipped.
func (w *Worker) Do(ctx context.Context, fn func(*device.Device) error) error {
	req := request{ctx: ctx, fn: fn, result: make(chan error, 1)}

	select {
	case <-w.done:
		return ErrStopped
	default:
	}

	select {
	case w.reqs <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrStopped
	}
	return w.wait(ctx, req)
}

// wait blocks until req has a result. A request that slipped into the queue
// after the final drain never gets one.
func (w *Worker) wait(ctx context.Context, req request) error {
	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-w.stopped:
		select {
		case err := <-req.result:
			return err
		default:
			return ErrStopped
		}
	}
}

// ---------------------------------------------------------------------------
// Typed helpers
//
// Results are only read after a nil error: a call abandoned through its
// context may still be writing them.
// ---------------------------------------------------------------------------

// Poll runs Device.Poll on the worker.
func (w *Worker) Poll(ctx context.Context) (int, error) {
	var v int
	err := w.Do(ctx, func(d *device.Device) (err error) {
		v, err = d.Poll()
		return err
	})
	if err != nil {
		return 0, err
	}
	return v, nil
}

// Parrot runs Device.Parrot on the worker.
func (w *Worker) Parrot(ctx context.Context, value int) (int, error) {
	var v int
	err := w.Do(ctx, func(d *device.Device) (err error) {
		v, err = d.Parrot(value)
		return err
	})
	if err != nil {
		return 0, err
	}
	return v, nil
}

// Version runs Device.Version on the worker.
func (w *Worker) Version(ctx context.Context) (version.Firmware, error) {
	var v version.Firmware
	err := w.Do(ctx, func(d *device.Device) (err error) {
		v, err = d.Version()
		return err
	})
	if err != nil {
		return version.Firmware{}, err
	}
	return v, nil
}

// PinMode runs Device.PinMode on the worker.
func (w *Worker) PinMode(ctx context.Context, id int, mode pin.Mode, access device.Access) error {
	return w.Do(ctx, func(d *device.Device) error {
		return d.PinMode(id, mode, access)
	})
}

// DigitalRead runs Device.DigitalRead on the worker.
func (w *Worker) DigitalRead(ctx context.Context, id int, access device.Access) (pin.State, error) {
	var s pin.State
	err := w.Do(ctx, func(d *device.Device) (err error) {
		s, err = d.DigitalRead(id, access)
		return err
	})
	if err != nil {
		return pin.Low, err
	}
	return s, nil
}

// DigitalWrite runs Device.DigitalWrite on the worker.
func (w *Worker) DigitalWrite(ctx context.Context, id int, state pin.State, access device.Access) error {
	return w.Do(ctx, func(d *device.Device) error {
		return d.DigitalWrite(id, state, access)
	})
}

// AnalogRead runs Device.AnalogRead on the worker.
func (w *Worker) AnalogRead(ctx context.Context, id int, access device.Access) (int, error) {
	var v int
	err := w.Do(ctx, func(d *device.Device) (err error) {
		v, err = d.AnalogRead(id, access)
		return err
	})
	if err != nil {
		return 0, err
	}
	return v, nil
}

// AnalogWrite runs Device.AnalogWrite on the worker.
func (w *Worker) AnalogWrite(ctx context.Context, id, value int, access device.Access) error {
	return w.Do(ctx, func(d *device.Device) error {
		return d.AnalogWrite(id, value, access)
	})
}

// Register runs Device.Register on the worker.
func (w *Worker) Register(ctx context.Context, token device.Token, reqs ...pin.Requirement) error {
	return w.Do(ctx, func(d *device.Device) error {
		return d.Register(token, reqs...)
	})
}

// Deregister runs Device.Deregister on the worker.
func (w *Worker) Deregister(ctx context.Context, token device.Token) ([]int, error) {
	var ids []int
	err := w.Do(ctx, func(d *device.Device) error {
		ids = d.Deregister(token)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
