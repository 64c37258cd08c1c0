package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/anicoll/homie-integration/internal/pkg/topicid"
)

const (
	DefaultBaseTopic               = "homie"
	DefaultBrokerURL               = "tcp://127.0.0.1:1883"
	DefaultStatsInterval           = 10 * time.Second
	DefaultDisconnectRetryInterval = 2 * time.Second
	DefaultConnectTimeout          = 5 * time.Second
	DefaultSampleInterval          = 30 * time.Second

	// MinStatsInterval is the resolution of $stats/interval, which is
	// published in whole seconds.
	MinStatsInterval = time.Second
)

// hostname is swapped out in tests.
var hostname = os.Hostname

type Config struct {
	Device         DeviceConfig  `yaml:"device" envPrefix:"HOMIE_"`
	Broker         BrokerConfig  `yaml:"broker" envPrefix:"MQTT_"`
	LogLevel       string        `yaml:"log_level" env:"LOG_LEVEL"`
	MetricsAddr    string        `yaml:"metrics_addr" env:"METRICS_ADDR"`
	SampleInterval time.Duration `yaml:"sample_interval" env:"SAMPLE_INTERVAL"`
}

type DeviceConfig struct {
	ID                      topicid.ID    `yaml:"id" env:"DEVICE_ID"`
	BaseTopic               topicid.ID    `yaml:"base_topic" env:"BASE_TOPIC"`
	Name                    string        `yaml:"name" env:"DEVICE_NAME"`
	FirmwareName            string        `yaml:"firmware_name" env:"FIRMWARE_NAME"`
	FirmwareVersion         string        `yaml:"firmware_version" env:"FIRMWARE_VERSION"`
	StatsInterval           time.Duration `yaml:"stats_interval" env:"STATS_INTERVAL"`
	DisconnectRetryInterval time.Duration `yaml:"disconnect_retry_interval" env:"DISCONNECT_RETRY_INTERVAL"`
}

type BrokerConfig struct {
	URL            string        `yaml:"url" env:"URL"`
	Username       string        `yaml:"username" env:"USER"`
	Password       string        `yaml:"password" env:"PASS"`
	MaxInflight    int           `yaml:"max_inflight" env:"MAX_INFLIGHT"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
}

// HasCredentials reports whether a username was configured.
func (b BrokerConfig) HasCredentials() bool {
	return b.Username != ""
}

// SetDeviceID validates and assigns the device id.
func (d *DeviceConfig) SetDeviceID(id string) error {
	parsed, err := topicid.Parse(id)
	if err != nil {
		return fmt.Errorf("device id: %w", err)
	}
	d.ID = parsed
	return nil
}

// deriveID fills an unset ID from the display name, falling back to the host
// name. ID stays empty if neither yields a usable topic id.
func (d *DeviceConfig) deriveID() {
	if d.ID != "" {
		return
	}
	if id := topicid.FromName(d.Name); id != "" {
		d.ID = id
		return
	}
	if host, err := hostname(); err == nil {
		d.ID = topicid.FromName(host)
	}
}

// SetBaseTopic validates and assigns the base topic.
func (d *DeviceConfig) SetBaseTopic(base string) error {
	parsed, err := topicid.Parse(base)
	if err != nil {
		return fmt.Errorf("base topic: %w", err)
	}
	d.BaseTopic = parsed
	return nil
}

func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			BaseTopic:               DefaultBaseTopic,
			StatsInterval:           DefaultStatsInterval,
			DisconnectRetryInterval: DefaultDisconnectRetryInterval,
		},
		Broker: BrokerConfig{
			URL:            DefaultBrokerURL,
			ConnectTimeout: DefaultConnectTimeout,
		},
		LogLevel:       "INFO",
		SampleInterval: DefaultSampleInterval,
	}
}

// Load builds a Config from defaults, then the yaml file at path (skipped when
// path is empty), then environment variables, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	cfg.Device.deriveID()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []string

	if !topicid.IsValid(c.Device.ID.String()) {
		errs = append(errs, fmt.Sprintf("device.id %q is not a valid topic id", c.Device.ID))
	}
	if !topicid.IsValid(c.Device.BaseTopic.String()) {
		errs = append(errs, fmt.Sprintf("device.base_topic %q is not a valid topic id", c.Device.BaseTopic))
	}
	if c.Device.StatsInterval < MinStatsInterval {
		errs = append(errs, fmt.Sprintf("device.stats_interval must be at least %s", MinStatsInterval))
	}
	if c.Device.DisconnectRetryInterval <= 0 {
		errs = append(errs, "device.disconnect_retry_interval must be positive")
	}
	if c.Broker.URL == "" {
		errs = append(errs, "broker.url is required")
	}
	if c.Broker.MaxInflight < 0 {
		errs = append(errs, "broker.max_inflight cannot be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

var ErrInvalidConfig = errors.New("configuration errors")
