package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
	NATS struct {
		URL    string             `mapstructure:"url"`
		Events ConsumerNatsConfig `mapstructure:"events"`
	} `mapstructure:"nats"`
	Database struct {
		PostgresDSN         string `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool   `mapstructure:"postgresAutoMigrate"`
	} `mapstructure:"database"`
	Org struct {
		Default string `mapstructure:"default"`
		ID      string `mapstructure:"id"`
	} `mapstructure:"org"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
	WorkerPools struct {
		Media MediaWorkerPoolConfig `mapstructure:"media"`
	} `mapstructure:"workerPools"`
}

// GatewayConfig holds settings for the external messaging gateway used during syncs.
type GatewayConfig struct {
	RequestSubjectPrefix string        `mapstructure:"requestSubjectPrefix"` // NATS request subject prefix for history fetches
	PageSize             int           `mapstructure:"pageSize"`             // Messages per history page
	RequestTimeout       time.Duration `mapstructure:"requestTimeout"`       // Per-request timeout
	RetryInitialInterval time.Duration `mapstructure:"retryInitialInterval"` // Backoff start for transient fetch failures
	RetryMaxInterval     time.Duration `mapstructure:"retryMaxInterval"`     // Backoff cap
	RetryMaxAttempts     int           `mapstructure:"retryMaxAttempts"`     // Attempt ceiling before a sync run fails
}

// SyncConfig holds settings for the sync orchestrator.
type SyncConfig struct {
	GapFillSchedule string `mapstructure:"gapFillSchedule"` // Cron expression for periodic gap-fill; empty disables
}

// MediaWorkerPoolConfig holds configuration for the media descriptor worker pool
type MediaWorkerPoolConfig struct {
	PoolSize   int           `mapstructure:"poolSize"`   // Number of workers
	QueueSize  int           `mapstructure:"queueSize"`  // Task queue buffer size
	MaxBlock   time.Duration `mapstructure:"maxBlock"`   // Max time to block when submitting if queue full
	ExpiryTime time.Duration `mapstructure:"expiryTime"` // Idle worker expiry time
}

// ConsumerNatsConfig holds configuration specific to a NATS consumer
type ConsumerNatsConfig struct {
	MaxAge       int64         `mapstructure:"maxAge"` // max age of messages in days
	Stream       string        `mapstructure:"stream"`
	Consumer     string        `mapstructure:"consumer"` // durable name
	QueueGroup   string        `mapstructure:"group"`
	SubjectList  []string      `mapstructure:"subjectList"`
	MaxDeliver   int           `mapstructure:"maxDeliver"`   // Max delivery attempts before the event is terminated
	NakBaseDelay time.Duration `mapstructure:"nakBaseDelay"` // Base delay for exponential backoff NAK
	NakMaxDelay  time.Duration `mapstructure:"nakMaxDelay"`  // Maximum delay for exponential backoff NAK
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)

	// NATS consumer defaults
	v.SetDefault("nats.events.stream", "wa_events")
	v.SetDefault("nats.events.consumer", "wa_archive_")
	v.SetDefault("nats.events.group", "wa_archive_group_")
	v.SetDefault("nats.events.subjectList", []string{
		"v1.messages.received", "v1.messages.ack", "v1.contacts.update", "v1.connection.update",
	})
	v.SetDefault("nats.events.maxAge", int64(30))
	v.SetDefault("nats.events.maxDeliver", 5)
	v.SetDefault("nats.events.nakBaseDelay", time.Second)
	v.SetDefault("nats.events.nakMaxDelay", 30*time.Second)

	// Gateway defaults
	v.SetDefault("gateway.requestSubjectPrefix", "v1.history.request")
	v.SetDefault("gateway.pageSize", 100)
	v.SetDefault("gateway.requestTimeout", 30*time.Second)
	v.SetDefault("gateway.retryInitialInterval", time.Second)
	v.SetDefault("gateway.retryMaxInterval", 30*time.Second)
	v.SetDefault("gateway.retryMaxAttempts", 5)

	// Sync defaults; empty schedule means cron-driven gap-fill is off
	v.SetDefault("sync.gapFillSchedule", "")

	// WorkerPools defaults
	v.SetDefault("workerPools.media.poolSize", 10)
	v.SetDefault("workerPools.media.queueSize", 10000)
	v.SetDefault("workerPools.media.maxBlock", time.Second)
	v.SetDefault("workerPools.media.expiryTime", time.Minute)

	// Config file settings
	v.SetConfigName("default")
	v.SetConfigType("yaml")

	// Add lookup paths
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.wa-archive-engine")
	v.AddConfigPath("/etc/wa-archive-engine")

	// Try to read from config file
	if err := v.ReadInConfig(); err != nil {
		// It's ok if config file is not found, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map environment variables to config fields
	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		v.Set("nats.url", url)
	}
	if org := os.Getenv("ORG_ID"); org != "" {
		v.Set("org.id", org)
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &config, nil
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		// Get the field tag value (mapstructure)
		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		// Build the env var path
		path := append(parts, tag)
		key := strings.Join(path, ".")

		// If it's a struct, recursively bind its fields
		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		// Bind the env var
		_ = v.BindEnv(key)
	}
}
