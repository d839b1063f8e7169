package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port               string
	LogLevel           string
	StoreDriver        string
	DBConnectionString string
	AMQPURL            string
	AMQPExchange       string
	AMQPRoutingKey     string
	Reader             *ReaderConfig
	Sync               *SyncConfig
}

// fileConfig is the optional YAML overlay for tuning values
type fileConfig struct {
	Reader *ReaderConfig `yaml:"reader"`
	Sync   *SyncConfig   `yaml:"sync"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	reader := DefaultReaderConfig()
	sync := DefaultSyncConfig()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := loadFile(path, reader, sync); err != nil {
			return nil, err
		}
	}

	reader.BaseURL = getEnv("READER_BASE_URL", reader.BaseURL)
	reader.AppID = getEnv("READER_APP_ID", reader.AppID)
	reader.AppKey = getEnv("READER_APP_KEY", reader.AppKey)
	reader.AccessToken = getEnv("READER_ACCESS_TOKEN", reader.AccessToken)
	reader.RefreshToken = getEnv("READER_REFRESH_TOKEN", reader.RefreshToken)
	reader.ClientID = getEnv("READER_CLIENT_ID", reader.ClientID)
	reader.ClientSecret = getEnv("READER_CLIENT_SECRET", reader.ClientSecret)
	reader.TokenURL = getEnv("READER_TOKEN_URL", reader.TokenURL)
	reader.Quota.Policy = getEnv("READER_QUOTA_POLICY", reader.Quota.Policy)

	var err error
	if reader.RequestsPerSecond, err = getFloat("READER_REQUESTS_PER_SECOND", reader.RequestsPerSecond); err != nil {
		return nil, err
	}
	if reader.Quota.Zone1Limit, err = getInt64("READER_ZONE1_LIMIT", reader.Quota.Zone1Limit); err != nil {
		return nil, err
	}
	if reader.Quota.Zone2Limit, err = getInt64("READER_ZONE2_LIMIT", reader.Quota.Zone2Limit); err != nil {
		return nil, err
	}

	if sync.Interval, err = getMinutes("SYNC_INTERVAL_MINUTES", sync.Interval); err != nil {
		return nil, err
	}
	if sync.RunTimeout, err = getMinutes("SYNC_RUN_TIMEOUT_MINUTES", sync.RunTimeout); err != nil {
		return nil, err
	}

	if sync.RetentionDays, err = getInt("RETENTION_DAYS", sync.RetentionDays); err != nil {
		return nil, err
	}
	if sync.EventBuffer, err = getInt("EVENT_BUFFER", sync.EventBuffer); err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		StoreDriver:        getEnv("STORE_DRIVER", "postgres"),
		DBConnectionString: getEnv("DB_CONNECTION_STRING", ""),
		AMQPURL:            getEnv("AMQP_URL", ""),
		AMQPExchange:       getEnv("AMQP_EXCHANGE", "feed_sync"),
		AMQPRoutingKey:     getEnv("AMQP_ROUTING_KEY", "events"),
		Reader:             reader,
		Sync:               sync,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the minimum required configuration
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.DBConnectionString == "" {
			return fmt.Errorf("DB_CONNECTION_STRING must be set when STORE_DRIVER=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.Reader.AccessToken == "" && c.Reader.RefreshToken == "" {
		return fmt.Errorf("READER_ACCESS_TOKEN or READER_REFRESH_TOKEN must be set")
	}
	if c.Reader.Quota.Policy != "header" && c.Reader.Quota.Policy != "max" {
		return fmt.Errorf("READER_QUOTA_POLICY must be \"header\" or \"max\", got %q", c.Reader.Quota.Policy)
	}
	if c.Sync.PageSize <= 0 {
		return fmt.Errorf("sync page size must be positive")
	}
	return nil
}

func loadFile(path string, reader *ReaderConfig, sync *SyncConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	fc := fileConfig{Reader: reader, Sync: sync}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

// getMinutes reads a whole number of minutes, keeping defaultValue when unset
func getMinutes(key string, defaultValue time.Duration) (time.Duration, error) {
	if os.Getenv(key) == "" {
		return defaultValue, nil
	}
	n, err := getInt(key, 0)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Minute, nil
}
