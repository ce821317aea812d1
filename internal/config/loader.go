package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("broker.type", "kafka")
	viper.SetDefault("broker.kafka.events_topic", "customer-events")

	viper.SetDefault("outbox.poll_interval", "1000ms")
	viper.SetDefault("outbox.batch_size", 50)

	viper.SetDefault("dependency.timeout", "800ms")
	viper.SetDefault("dependency.max_attempts", 3)
	viper.SetDefault("dependency.backoff", "100ms")
	viper.SetDefault("dependency.bulkhead.max_concurrent", 10)
	viper.SetDefault("dependency.circuit_breaker.max_requests", 3)
	viper.SetDefault("dependency.circuit_breaker.interval", "60s")
	viper.SetDefault("dependency.circuit_breaker.timeout", "10s")
	viper.SetDefault("dependency.circuit_breaker.failure_ratio", 0.5)
	viper.SetDefault("dependency.circuit_breaker.min_requests", 5)

	viper.SetDefault("api.stub_enabled", true)
	viper.SetDefault("logging.level", "info")
}

func bindEnvVariables() {
	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	viper.BindEnv("broker.kafka.events_topic", "BROKER_KAFKA_EVENTS_TOPIC")
	viper.BindEnv("broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout_seconds", "SERVER_READ_TIMEOUT_SECONDS")
	viper.BindEnv("server.write_timeout_seconds", "SERVER_WRITE_TIMEOUT_SECONDS")

	viper.BindEnv("outbox.poll_interval", "OUTBOX_POLL_INTERVAL")
	viper.BindEnv("outbox.batch_size", "OUTBOX_BATCH_SIZE")

	viper.BindEnv("dependency.base_url", "DEPENDENCY_BASE_URL")
	viper.BindEnv("dependency.timeout", "DEPENDENCY_TIMEOUT")
	viper.BindEnv("dependency.max_attempts", "DEPENDENCY_MAX_ATTEMPTS")
	viper.BindEnv("dependency.backoff", "DEPENDENCY_BACKOFF")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	if otlpEndpoint := viper.GetString("TRACING_OTLP_ENDPOINT"); otlpEndpoint != "" {
		cfg.Tracing.OTLP.Endpoint = otlpEndpoint
	}

	return nil
}
