// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/gridbus/agent"
	"github.com/bureau-foundation/gridbus/transport"
)

// EnvironmentVariable names the config file when no --config flag is
// given.
const EnvironmentVariable = "GRIDBUS_CONFIG"

// envPrefix prefixes every environment override.
const envPrefix = "GRIDBUS"

// Config is the complete gridbus configuration.
type Config struct {
	Exchange ExchangeConfig `yaml:"exchange" json:"exchange"`
	Agent    AgentConfig    `yaml:"agent" json:"agent"`
	Kafka    KafkaConfig    `yaml:"kafka" json:"kafka"`
	Log      LogConfig      `yaml:"log" json:"log"`
}

// ExchangeConfig locates the exchange. The exchange binds these
// addresses; agents and tools connect to them.
type ExchangeConfig struct {
	// PublishAddress is where pushers send units.
	PublishAddress string `yaml:"publish_address" json:"publish_address" split_words:"true"`

	// SubscribeAddress is where subscribers receive units.
	SubscribeAddress string `yaml:"subscribe_address" json:"subscribe_address" split_words:"true"`

	// QueueLength bounds each subscriber's send queue on the exchange.
	QueueLength int `yaml:"queue_length" json:"queue_length" split_words:"true"`

	// Compression applies to units the exchange generates.
	Compression transport.Compression `yaml:"compression" json:"compression"`
}

// AgentConfig holds the settings shared by every agent process.
type AgentConfig struct {
	Name              string                `yaml:"name" json:"name"`
	LoopInterval      Duration              `yaml:"loop_interval" json:"loop_interval" split_words:"true"`
	ReconnectInterval Duration              `yaml:"reconnect_interval" json:"reconnect_interval" split_words:"true"`
	ErrorPolicy       agent.ErrorPolicy     `yaml:"error_policy" json:"error_policy" split_words:"true"`
	Compression       transport.Compression `yaml:"compression" json:"compression"`
}

// KafkaConfig configures gridbus-kafka-bridge.
type KafkaConfig struct {
	// Brokers lists bootstrap brokers as host:port.
	Brokers []string `yaml:"brokers" json:"brokers"`

	// OutboundTopic receives bus messages whose topic starts with one
	// of Prefixes.
	OutboundTopic string   `yaml:"outbound_topic" json:"outbound_topic" split_words:"true"`
	Prefixes      []string `yaml:"prefixes" json:"prefixes"`

	// InboundTopic is read with GroupID and each record is published
	// on the bus under BusPrefix. Empty disables the inbound direction.
	InboundTopic string `yaml:"inbound_topic" json:"inbound_topic" split_words:"true"`
	GroupID      string `yaml:"group_id" json:"group_id" split_words:"true"`
	BusPrefix    string `yaml:"bus_prefix" json:"bus_prefix" split_words:"true"`

	// StatsInterval is how often forwarding counters are logged.
	StatsInterval Duration `yaml:"stats_interval" json:"stats_interval" split_words:"true"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" json:"level"`
	// Format is json or text.
	Format string `yaml:"format" json:"format"`
}

// Default returns the configuration used before any file or
// environment is applied.
func Default() *Config {
	return &Config{
		Exchange: ExchangeConfig{
			PublishAddress:   "ipc://${XDG_RUNTIME_DIR:-/tmp}/gridbus/publish.sock",
			SubscribeAddress: "ipc://${XDG_RUNTIME_DIR:-/tmp}/gridbus/subscribe.sock",
			QueueLength:      1024,
		},
		Agent: AgentConfig{
			LoopInterval:      Duration(60 * time.Second),
			ReconnectInterval: Duration(time.Second),
			ErrorPolicy:       agent.Propagate,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			OutboundTopic: "gridbus",
			GroupID:       "gridbus-bridge",
			BusPrefix:     "kafka/",
			StatsInterval: Duration(time.Minute),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from the defaults, the file at path
// (or GRIDBUS_CONFIG when path is empty), and the environment.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvironmentVariable)
	}
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnvironment(); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads the defaults and the file at path, ignoring the
// environment.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile merges a file into c, choosing the decoder by extension.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	switch extension := strings.ToLower(filepath.Ext(path)); extension {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config %s: unsupported extension %q (want .yaml, .yml, .json or .jsonc)", path, extension)
	}
	return nil
}

// applyEnvironment overrides fields from GRIDBUS_<SECTION>_<FIELD>
// variables. Unset variables leave fields alone.
func (c *Config) applyEnvironment() error {
	sections := []struct {
		name   string
		target any
	}{
		{"EXCHANGE", &c.Exchange},
		{"AGENT", &c.Agent},
		{"KAFKA", &c.Kafka},
		{"LOG", &c.Log},
	}
	for _, section := range sections {
		if err := envconfig.Process(envPrefix+"_"+section.name, section.target); err != nil {
			return fmt.Errorf("environment overrides: %w", err)
		}
	}
	return nil
}

func (c *Config) expandVariables() {
	c.Exchange.PublishAddress = expandVars(c.Exchange.PublishAddress)
	c.Exchange.SubscribeAddress = expandVars(c.Exchange.SubscribeAddress)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}. An unset or empty
// variable takes the default.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors, reporting all of them.
func (c *Config) Validate() error {
	var errs []error
	if _, err := transport.ParseAddress(c.Exchange.PublishAddress); err != nil {
		errs = append(errs, fmt.Errorf("exchange.publish_address: %w", err))
	}
	if _, err := transport.ParseAddress(c.Exchange.SubscribeAddress); err != nil {
		errs = append(errs, fmt.Errorf("exchange.subscribe_address: %w", err))
	}
	if c.Exchange.PublishAddress == c.Exchange.SubscribeAddress {
		errs = append(errs, errors.New("exchange.publish_address and exchange.subscribe_address must differ"))
	}
	if c.Exchange.QueueLength <= 0 {
		errs = append(errs, fmt.Errorf("exchange.queue_length must be positive, got %d", c.Exchange.QueueLength))
	}
	if c.Agent.LoopInterval <= 0 {
		errs = append(errs, errors.New("agent.loop_interval must be positive"))
	}
	if c.Agent.ReconnectInterval <= 0 {
		errs = append(errs, errors.New("agent.reconnect_interval must be positive"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// PublishAddress returns the parsed exchange publish endpoint. Call it
// only on a validated Config.
func (c *Config) PublishAddress() transport.Address {
	return transport.MustParseAddress(c.Exchange.PublishAddress)
}

// SubscribeAddress returns the parsed exchange subscribe endpoint.
func (c *Config) SubscribeAddress() transport.Address {
	return transport.MustParseAddress(c.Exchange.SubscribeAddress)
}

// AgentConfig returns an agent.Config populated from the Agent and
// Exchange sections. Callers add their own Subscriptions and Periodics.
func (c *Config) AgentConfig(logger *slog.Logger) agent.Config {
	return agent.Config{
		Name:              c.Agent.Name,
		SubscribeAddress:  c.SubscribeAddress(),
		PublishAddress:    c.PublishAddress(),
		Compression:       c.Agent.Compression,
		Logger:            logger,
		LoopInterval:      time.Duration(c.Agent.LoopInterval),
		ReconnectInterval: time.Duration(c.Agent.ReconnectInterval),
		ErrorPolicy:       c.Agent.ErrorPolicy,
	}
}

// NewLogger returns a logger writing to w in the configured format and
// level, and installs it as the slog default.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if c.Log.Format == "text" {
		handler = slog.NewTextHandler(w, options)
	} else {
		handler = slog.NewJSONHandler(w, options)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("unknown level %q", name)
	}
	return level, nil
}
