package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// configs beyond this size are rejected before parsing
const maxConfigSize = 1 << 20

// fileConfig mirrors Config for YAML decoding. Durations are written as
// strings ("100ms", "5s") and converted with time.ParseDuration.
type fileConfig struct {
	PubSubSystem string `yaml:"pubsub_system"`

	KafkaBrokers       []string `yaml:"kafka_brokers"`
	KafkaConsumerGroup string   `yaml:"kafka_consumer_group"`

	RabbitMQURL string `yaml:"rabbitmq_url"`
	NATSURL     string `yaml:"nats_url"`

	AWSRegion          string `yaml:"aws_region"`
	AWSAccountID       string `yaml:"aws_account_id"`
	AWSAccessKeyID     string `yaml:"aws_access_key_id"`
	AWSSecretAccessKey string `yaml:"aws_secret_access_key"`
	AWSEndpoint        string `yaml:"aws_endpoint"`

	InputTopic  string `yaml:"input_topic"`
	ResultTopic string `yaml:"result_topic"`

	SendInterval string `yaml:"send_interval"`
	MatchTimeout string `yaml:"match_timeout"`
	ReapInterval string `yaml:"reap_interval"`

	TotalItems        int `yaml:"total_items"`
	PublishMaxRetries int `yaml:"publish_max_retries"`

	LatencyLogFile string `yaml:"latency_log_file"`

	MetricsEnabled bool `yaml:"metrics_enabled"`
	MetricsPort    int  `yaml:"metrics_port"`
}

// Load reads a YAML config file and validates the result.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes > %d", info.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	cfg, err := fc.toConfig()
	if err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

func (fc fileConfig) toConfig() (*Config, error) {
	cfg := &Config{
		PubSubSystem:       fc.PubSubSystem,
		KafkaBrokers:       fc.KafkaBrokers,
		KafkaConsumerGroup: fc.KafkaConsumerGroup,
		RabbitMQURL:        fc.RabbitMQURL,
		NATSURL:            fc.NATSURL,
		AWSRegion:          fc.AWSRegion,
		AWSAccountID:       fc.AWSAccountID,
		AWSAccessKeyID:     fc.AWSAccessKeyID,
		AWSSecretAccessKey: fc.AWSSecretAccessKey,
		AWSEndpoint:        fc.AWSEndpoint,
		InputTopic:         fc.InputTopic,
		ResultTopic:        fc.ResultTopic,
		TotalItems:         fc.TotalItems,
		PublishMaxRetries:  fc.PublishMaxRetries,
		LatencyLogFile:     fc.LatencyLogFile,
		MetricsEnabled:     fc.MetricsEnabled,
		MetricsPort:        fc.MetricsPort,
	}

	var err error
	if cfg.SendInterval, err = parseDuration("send_interval", fc.SendInterval); err != nil {
		return nil, err
	}
	if cfg.MatchTimeout, err = parseDuration("match_timeout", fc.MatchTimeout); err != nil {
		return nil, err
	}
	if cfg.ReapInterval, err = parseDuration("reap_interval", fc.ReapInterval); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
