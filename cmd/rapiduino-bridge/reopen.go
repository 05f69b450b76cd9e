package main

import (
	"context"
	"fmt"

	"github.com/rapiduino/rapiduino-go/pkg/device"
	"github.com/rapiduino/rapiduino-go/pkg/worker"
)

// openDeviceFunc opens a fresh device on the configured port.
type openDeviceFunc func(ctx context.Context) (*device.Device, error)

// reopen releases the lost device's port, opens a new device and swaps it
// into w. Serial ports are opened for exclusive use, so the old handle must
// be closed before the address is opened again. On failure w keeps the
// closed device and its calls fail with device.ErrClosed.
func reopen(ctx context.Context, w *worker.Worker, open openDeviceFunc) (*device.Device, error) {
	if err := w.CloseDevice(ctx); err != nil {
		return nil, fmt.Errorf("release lost device: %w", err)
	}

	next, err := open(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := w.Replace(ctx, next); err != nil {
		_ = next.Close()
		return nil, err
	}
	return next, nil
}
