package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override read by Load.
const EnvPrefix = "FLOWGATE_"

// Load reads a YAML config file, applies FLOWGATE_* environment overrides and
// fills defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	strs := map[string]*string{
		"PUBSUB_SYSTEM":         &cfg.PubSubSystem,
		"KAFKA_CLIENT_ID":       &cfg.KafkaClientID,
		"KAFKA_CONSUMER_GROUP":  &cfg.KafkaConsumerGroup,
		"RABBITMQ_URL":          &cfg.RabbitMQURL,
		"NATS_URL":              &cfg.NATSURL,
		"HTTP_SERVER_ADDRESS":   &cfg.HTTPServerAddress,
		"HTTP_PUBLISHER_URL":    &cfg.HTTPPublisherURL,
		"AWS_REGION":            &cfg.AWSRegion,
		"AWS_ACCOUNT_ID":        &cfg.AWSAccountID,
		"AWS_ACCESS_KEY_ID":     &cfg.AWSAccessKeyID,
		"AWS_SECRET_ACCESS_KEY": &cfg.AWSSecretAccessKey,
		"AWS_ENDPOINT":          &cfg.AWSEndpoint,
		"LISTEN_ADDRESS":        &cfg.ListenAddress,
		"REQUEST_TOPIC":         &cfg.RequestTopic,
		"REPLY_TOPIC":           &cfg.ReplyTopic,
		"ROUTES_FILE":           &cfg.RoutesFile,
		"SCHEMA_DIR":            &cfg.SchemaDir,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	if v, ok := lookup(EnvPrefix + "KAFKA_BROKERS"); ok {
		cfg.KafkaBrokers = splitList(v)
	}

	durations := map[string]*time.Duration{
		"BRIDGE_TIMEOUT":   &cfg.BridgeTimeout,
		"HTTP_TIMEOUT":     &cfg.HTTPTimeout,
		"SHUTDOWN_TIMEOUT": &cfg.ShutdownTimeout,
	}
	for key, dst := range durations {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
	}

	ints := map[string]*int{
		"HTTP_POOL_SIZE": &cfg.HTTPPoolSize,
		"HTTP_MAX_HOSTS": &cfg.HTTPMaxHosts,
	}
	for key, dst := range ints {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}

	bools := map[string]*bool{
		"WATCH_ROUTES":    &cfg.WatchRoutes,
		"METRICS_ENABLED": &cfg.MetricsEnabled,
	}
	for key, dst := range bools {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = b
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
