package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"KoordeDHT/internal/logger"
)

// FileLoggerConfig tunes the lumberjack-backed file sink, used only when
// Logger.Mode == "file".
type FileLoggerConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxSize"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"`
	Compress   bool   `yaml:"compress"`
}

// LoggerConfig configures the zap-backed structured logger.
type LoggerConfig struct {
	Active   bool             `yaml:"active"`
	Level    string           `yaml:"level"`
	Encoding string           `yaml:"encoding"` // "console" or "json"
	Mode     string           `yaml:"mode"`     // "stdout" or "file"
	File     FileLoggerConfig `yaml:"file"`
}

// TracingConfig configures the optional OpenTelemetry exporter.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "otlpgrpc"
	Endpoint string `yaml:"endpoint"` // collector endpoint, used by "otlpgrpc"
}

// DHTConfig tunes ambient ring parameters. None of these values carry
// identity or membership: host, port, and the initial membership list are
// exclusively positional CLI arguments (see cmd/node).
type DHTConfig struct {
	IDBits                      int           `yaml:"idBits"`
	StabilizationInterval       time.Duration `yaml:"stabilizationInterval"`
	LoopPreventionClearInterval time.Duration `yaml:"loopPreventionClearInterval"`
	RPCTimeout                  time.Duration `yaml:"rpcTimeout"`
}

// Config is the top-level, entirely optional ambient tuning configuration.
// A node runs correctly with every field left at its default.
type Config struct {
	Logger  LoggerConfig  `yaml:"logger"`
	Tracing TracingConfig `yaml:"tracing"`
	DHT     DHTConfig     `yaml:"dht"`
}

// Default returns the configuration used when no -config flag is given.
func Default() *Config {
	return &Config{
		Logger: LoggerConfig{
			Active:   true,
			Level:    "info",
			Encoding: "console",
			Mode:     "stdout",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Exporter: "stdout",
		},
		DHT: DHTConfig{
			IDBits:                      160,
			StabilizationInterval:       1 * time.Second,
			LoopPreventionClearInterval: 30 * time.Second,
			RPCTimeout:                  2 * time.Second,
		},
	}
}

// Load reads an optional YAML tuning file from path, merging it onto the
// defaults. A missing file is not an error: it simply yields Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the structural bounds of ambient parameters.
func (c *Config) Validate() error {
	if c.DHT.IDBits <= 0 || c.DHT.IDBits > 256 {
		return fmt.Errorf("dht.idBits out of range: %d", c.DHT.IDBits)
	}
	if c.DHT.StabilizationInterval <= 0 {
		return fmt.Errorf("dht.stabilizationInterval must be positive")
	}
	if c.DHT.RPCTimeout <= 0 {
		return fmt.Errorf("dht.rpcTimeout must be positive")
	}
	if c.Logger.Mode == "file" && c.Logger.File.Path == "" {
		return fmt.Errorf("logger.file.path required when logger.mode is \"file\"")
	}
	return nil
}

// Log emits the effective configuration at DEBUG level, mirroring the
// teacher's practice of always logging what was actually loaded.
func (c *Config) Log(lgr logger.Logger) {
	lgr.Debug("effective configuration",
		logger.F("logger.level", c.Logger.Level),
		logger.F("logger.encoding", c.Logger.Encoding),
		logger.F("logger.mode", c.Logger.Mode),
		logger.F("tracing.enabled", c.Tracing.Enabled),
		logger.F("tracing.exporter", c.Tracing.Exporter),
		logger.F("dht.idBits", c.DHT.IDBits),
		logger.F("dht.stabilizationInterval", c.DHT.StabilizationInterval.String()),
		logger.F("dht.loopPreventionClearInterval", c.DHT.LoopPreventionClearInterval.String()),
		logger.F("dht.rpcTimeout", c.DHT.RPCTimeout.String()),
	)
}
