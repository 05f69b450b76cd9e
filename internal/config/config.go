// Package config loads the configuration shared by the rapiduino binaries.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rapiduino/rapiduino-go/pkg/board"
	"github.com/rapiduino/rapiduino-go/pkg/reconnect"
	"github.com/rapiduino/rapiduino-go/pkg/transport"
	"github.com/rapiduino/rapiduino-go/pkg/version"
	"github.com/rapiduino/rapiduino-go/pkg/worker"
)

// EnvPrefix prefixes environment overrides, e.g. RAPIDUINO_SERIAL_PORT.
const EnvPrefix = "RAPIDUINO"

// SerialConfig describes the serial link.
type SerialConfig struct {
	Port        string        `mapstructure:"port"`
	Baud        int           `mapstructure:"baud"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SettleDelay time.Duration `mapstructure:"settleDelay"`
}

// FirmwareConfig constrains the accepted firmware.
type FirmwareConfig struct {
	MinVersion string `mapstructure:"minVersion"`
}

// KeepaliveConfig configures liveness polling.
type KeepaliveConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	MaxMissed int           `mapstructure:"maxMissed"`
}

// ReconnectConfig configures how the bridge reopens a lost device.
type ReconnectConfig struct {
	Enable         bool          `mapstructure:"enable"`
	InitialBackoff time.Duration `mapstructure:"initialBackoff"`
	MaxBackoff     time.Duration `mapstructure:"maxBackoff"`
	AttemptTimeout time.Duration `mapstructure:"attemptTimeout"`
	MaxAttempts    int           `mapstructure:"maxAttempts"`
}

// WorkerConfig configures command pacing.
type WorkerConfig struct {
	Rate      float64 `mapstructure:"rate"`
	Burst     int     `mapstructure:"burst"`
	QueueSize int     `mapstructure:"queueSize"`
}

// LumberjackConfig configures a rotated log file. An empty Filename
// disables the file.
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig configures operational and protocol logging.
type LoggingConfig struct {
	Level       string           `mapstructure:"level"`
	Format      string           `mapstructure:"format"`
	File        LumberjackConfig `mapstructure:"file"`
	ProtocolLog LumberjackConfig `mapstructure:"protocolLog"`
}

// HTTPConfig configures the bridge's HTTP server.
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// Config is the top-level configuration.
type Config struct {
	Serial    SerialConfig    `mapstructure:"serial"`
	Board     string          `mapstructure:"board"`
	Firmware  FirmwareConfig  `mapstructure:"firmware"`
	Keepalive KeepaliveConfig `mapstructure:"keepalive"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// Load reads configuration from a YAML, TOML or JSON file and the
// environment. If path is empty, RAPIDUINO_CONFIG is consulted, then
// rapiduino.yaml in the working directory and ./configs. A missing default
// file is not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("rapiduino")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud", transport.DefaultBaudRate)
	v.SetDefault("serial.timeout", transport.DefaultTimeout.String())
	v.SetDefault("serial.settleDelay", transport.DefaultSettleDelay.String())

	v.SetDefault("board", "uno")
	v.SetDefault("firmware.minVersion", version.DefaultMin.String())

	v.SetDefault("keepalive.interval", worker.DefaultKeepaliveInterval.String())
	v.SetDefault("keepalive.maxMissed", worker.DefaultMaxMissed)

	v.SetDefault("reconnect.enable", true)
	v.SetDefault("reconnect.initialBackoff", reconnect.DefaultInitialBackoff.String())
	v.SetDefault("reconnect.maxBackoff", reconnect.DefaultMaxBackoff.String())
	v.SetDefault("reconnect.attemptTimeout", reconnect.DefaultAttemptTimeout.String())
	v.SetDefault("reconnect.maxAttempts", 0)

	v.SetDefault("worker.rate", 0)
	v.SetDefault("worker.burst", 1)
	v.SetDefault("worker.queueSize", worker.DefaultConfig().QueueSize)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 50)
	v.SetDefault("logging.file.maxBackups", 5)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)
	v.SetDefault("logging.protocolLog.filename", "")
	v.SetDefault("logging.protocolLog.maxSize", 100)
	v.SetDefault("logging.protocolLog.maxBackups", 10)
	v.SetDefault("logging.protocolLog.maxAge", 14)
	v.SetDefault("logging.protocolLog.compress", false)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if _, err := board.Lookup(c.Board); err != nil {
		return fmt.Errorf("config board: %w", err)
	}
	if _, err := version.Parse(c.Firmware.MinVersion); err != nil {
		return fmt.Errorf("config firmware.minVersion: %w", err)
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("config serial.baud: must be positive, got %d", c.Serial.Baud)
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("config reconnect.maxAttempts: must not be negative, got %d", c.Reconnect.MaxAttempts)
	}
	if c.Worker.Rate < 0 {
		return fmt.Errorf("config worker.rate: must not be negative, got %v", c.Worker.Rate)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config logging.format: want text or json, got %q", c.Logging.Format)
	}
	return nil
}

// Transport returns the serial settings for transport.Open.
func (c *Config) Transport() transport.Config {
	return transport.Config{
		Address:     c.Serial.Port,
		BaudRate:    c.Serial.Baud,
		Timeout:     c.Serial.Timeout,
		SettleDelay: c.Serial.SettleDelay,
	}
}

// MinVersion returns the parsed minimum firmware version.
func (c *Config) MinVersion() version.Firmware {
	v, err := version.Parse(c.Firmware.MinVersion)
	if err != nil {
		return version.DefaultMin
	}
	return v
}

// WorkerConfig returns the worker settings.
func (c *Config) WorkerConfig() worker.Config {
	return worker.Config{
		Rate:      c.Worker.Rate,
		Burst:     c.Worker.Burst,
		QueueSize: c.Worker.QueueSize,
	}
}

// KeepaliveConfig returns the keepalive settings.
func (c *Config) KeepaliveConfig() worker.KeepaliveConfig {
	return worker.KeepaliveConfig{
		Interval:  c.Keepalive.Interval,
		MaxMissed: c.Keepalive.MaxMissed,
	}
}

// ReconnectConfig returns the reopen supervisor settings.
func (c *Config) ReconnectConfig() reconnect.Config {
	cfg := reconnect.DefaultConfig()
	cfg.Backoff.Initial = c.Reconnect.InitialBackoff
	cfg.Backoff.Max = c.Reconnect.MaxBackoff
	cfg.AttemptTimeout = c.Reconnect.AttemptTimeout
	cfg.MaxAttempts = c.Reconnect.MaxAttempts
	return cfg
}
