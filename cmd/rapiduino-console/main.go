// Command rapiduino-console is an interactive shell for a board running the
// rapiduino firmware.
//
// Usage:
//
//	rapiduino-console [flags]
//
// Flags:
//
//	-config string      Configuration file path
//	-port string        Serial port (overrides serial.port)
//	-board string       Board model: uno, nano, mega2560 (overrides board)
//	-baud int           Baud rate (overrides serial.baud)
//	-log-level string   Log level: debug, info, warn, error
//	-protocol-log path  Capture protocol events to a .rlog file
//
// Examples:
//
//	# Open an Uno on the first USB serial adapter
//	rapiduino-console -port /dev/ttyUSB0
//
//	# Use a config file and record the session
//	rapiduino-console -config rapiduino.yaml -protocol-log session.rlog
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rapiduino/rapiduino-go/cmd/rapiduino-console/interactive"
	"github.com/rapiduino/rapiduino-go/internal/config"
	"github.com/rapiduino/rapiduino-go/internal/logging"
	"github.com/rapiduino/rapiduino-go/pkg/board"
	"github.com/rapiduino/rapiduino-go/pkg/device"
	"github.com/rapiduino/rapiduino-go/pkg/worker"
)

var (
	configFile  string
	portFlag    string
	boardFlag   string
	baudFlag    int
	logLevel    string
	protocolLog string
)

func init() {
	flag.StringVar(&configFile, "config", "", "Configuration file path")
	flag.StringVar(&portFlag, "port", "", "Serial port (overrides serial.port)")
	flag.StringVar(&boardFlag, "board", "", "Board model (overrides board)")
	flag.IntVar(&baudFlag, "baud", 0, "Baud rate (overrides serial.baud)")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&protocolLog, "protocol-log", "", "Capture protocol events to this file")
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	b, err := board.Lookup(cfg.Board)
	if err != nil {
		return err
	}

	opLog, opCloser := logging.New(cfg.Logging)
	defer opCloser.Close()

	protoLog, protoCloser, err := logging.ProtocolLogger(cfg.Logging, opLog)
	if err != nil {
		return err
	}
	defer protoCloser.Close()

	opLog.Info("opening device", "port", cfg.Serial.Port, "board", b.Name, "baud", cfg.Serial.Baud)
	dev, err := device.Open(cfg.Transport(), b.Name,
		device.WithLogger(protoLog),
		device.WithMinVersion(cfg.MinVersion()),
	)
	if err != nil {
		return err
	}
	defer dev.Close()
	opLog.Info("device ready", "firmware", dev.Firmware().String(), "connection", dev.ConnectionID())

	w := worker.New(dev, cfg.WorkerConfig())
	defer w.Close()

	console, err := interactive.NewReadline(w, b)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	console.Run(ctx, cancel)
	return nil
}

func applyFlags(cfg *config.Config) {
	if portFlag != "" {
		cfg.Serial.Port = portFlag
	}
	if boardFlag != "" {
		cfg.Board = boardFlag
	}
	if baudFlag > 0 {
		cfg.Serial.Baud = baudFlag
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if protocolLog != "" {
		cfg.Logging.ProtocolLog.Filename = protocolLog
	}
}
