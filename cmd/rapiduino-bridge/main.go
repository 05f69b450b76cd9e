// Command rapiduino-bridge serves a rapiduino board over HTTP.
//
// It opens the serial port, checks the firmware version, polls the link
// and reopens the board when the link is lost. Over HTTP it exposes pin
// I/O, component registration, health and Prometheus metrics.
// Configuration comes from rapiduino.yaml and RAPIDUINO_* environment
// variables.
//
// Usage:
//
//	rapiduino-bridge [-config path]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rapiduino/rapiduino-go/internal/config"
	"github.com/rapiduino/rapiduino-go/internal/httpapi"
	"github.com/rapiduino/rapiduino-go/internal/logging"
	"github.com/rapiduino/rapiduino-go/pkg/board"
	"github.com/rapiduino/rapiduino-go/pkg/device"
	"github.com/rapiduino/rapiduino-go/pkg/metrics"
	"github.com/rapiduino/rapiduino-go/pkg/reconnect"
	"github.com/rapiduino/rapiduino-go/pkg/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFile := flag.String("config", "", "Configuration file path")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "rapiduino-bridge: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	// 1) config
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	b, err := board.Lookup(cfg.Board)
	if err != nil {
		return err
	}

	// 2) logging
	log, logCloser := logging.New(cfg.Logging)
	defer logCloser.Close()

	protoLog, protoCloser, err := logging.ProtocolLogger(cfg.Logging, log)
	if err != nil {
		return err
	}
	defer protoCloser.Close()

	// 3) metrics
	reg := metrics.NewRegistry()
	opts := []device.Option{
		device.WithLogger(protoLog),
		device.WithMinVersion(cfg.MinVersion()),
	}
	var devMetrics *metrics.DeviceMetrics
	if cfg.Metrics.Enable {
		devMetrics = metrics.NewDeviceMetrics(reg)
		opts = append(opts, device.WithMetrics(devMetrics))
	}

	// 4) device and worker
	log.Info("opening device", "port", cfg.Serial.Port, "board", b.Name, "baud", cfg.Serial.Baud)
	dev, err := device.Open(cfg.Transport(), b.Name, opts...)
	if err != nil {
		return err
	}
	logReady(log, dev)

	w := worker.New(dev, cfg.WorkerConfig())
	defer func() {
		w.Close()
		if err := w.Device().Close(); err != nil {
			log.Warn("device close", "error", err)
		}
	}()

	// 5) keepalive and reopen
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	var sup *reconnect.Supervisor
	if cfg.Reconnect.Enable {
		open := func(context.Context) (*device.Device, error) {
			return device.Open(cfg.Transport(), b.Name, opts...)
		}
		sup = reconnect.New(func(ctx context.Context) error {
			next, err := reopen(ctx, w, open)
			if err != nil {
				return err
			}
			logReady(log, next)
			return nil
		}, cfg.ReconnectConfig())
		sup.OnStateChange(func(from, to reconnect.State) {
			log.Info("link state", "from", from.String(), "to", to.String())
		})
		sup.OnAttemptFailed(func(attempt int, err error) {
			log.Warn("reopen failed", "attempt", attempt, "error", err)
		})
		sup.OnReopened(func(attempts int) {
			log.Warn("device reopened; component registrations were reset", "attempts", attempts)
			if devMetrics != nil {
				devMetrics.Reconnects.Inc()
			}
		})
		sup.OnGiveUp(func(err error) {
			select {
			case errCh <- fmt.Errorf("device lost: %w", err):
			default:
			}
		})
		sup.Start()
		defer sup.Close()
	}

	kaCfg := cfg.KeepaliveConfig()
	ka := w.Keepalive(kaCfg, func(err error) {
		log.Error("device link lost", "error", err, "after", kaCfg.DetectionDelay())
		if devMetrics != nil {
			devMetrics.LinkLost.Inc()
		}
		if sup != nil {
			sup.NotifyLost()
		}
	})
	ka.Start(ctx)
	defer ka.Stop()

	// 6) HTTP
	apiOpts := httpapi.Options{
		Ready:  ka.Healthy,
		Board:  b,
		Logger: log,
	}
	if cfg.Metrics.Enable {
		metrics.RegisterLinkUp(reg, ka.Healthy)
		apiOpts.MetricsPath = cfg.Metrics.Path
		apiOpts.Metrics = metrics.Handler(reg)
	}
	srv := httpapi.New(cfg.HTTP, w, apiOpts)

	go func() {
		log.Info("http listening", "addr", cfg.HTTP.Addr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 7) wait for a signal or a server failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		log.Error("bridge failed", "error", err)
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	return nil
}

func logReady(log *slog.Logger, dev *device.Device) {
	log.Info("device ready",
		"firmware", dev.Firmware().String(),
		"minVersion", dev.MinVersion().String(),
		"connection", dev.ConnectionID())
}
