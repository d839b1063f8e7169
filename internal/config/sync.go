package config

import "time"

// SyncConfig holds synchronization configuration
type SyncConfig struct {
	Interval        time.Duration `yaml:"interval"`
	RunTimeout      time.Duration `yaml:"run_timeout"`
	PageSize        int           `yaml:"page_size"`
	MaxPagesPerFeed int           `yaml:"max_pages_per_feed"`
	MaxItemsPerFeed int           `yaml:"max_items_per_feed"`
	Incremental     bool          `yaml:"incremental"`
	YieldDelay      time.Duration `yaml:"yield_delay"`
	RetentionDays   int           `yaml:"retention_days"`
	EventBuffer     int           `yaml:"event_buffer"`
	BatchConfig     BatchConfig   `yaml:"batch"`
	Edits           EditConfig    `yaml:"edits"`
}

// BatchConfig holds batch processing configuration
type BatchConfig struct {
	Size       int           `yaml:"size"`
	Workers    int           `yaml:"workers"`
	MaxRetries int           `yaml:"max_retries"`
	BatchDelay time.Duration `yaml:"batch_delay"`
}

// EditConfig holds edit propagation configuration
type EditConfig struct {
	FlushInterval  time.Duration `yaml:"flush_interval"`
	FlushTimeout   time.Duration `yaml:"flush_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	FlushLimit     int           `yaml:"flush_limit"`
}

// DefaultSyncConfig returns the default sync configuration
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		Interval:        time.Hour,
		RunTimeout:      30 * time.Minute,
		PageSize:        100,
		MaxPagesPerFeed: 10,
		MaxItemsPerFeed: 1000,
		Incremental:     true,
		YieldDelay:      50 * time.Millisecond,
		EventBuffer:     256,
		BatchConfig: BatchConfig{
			Size:       100,
			Workers:    1,
			MaxRetries: 0,
			BatchDelay: 0,
		},
		Edits: EditConfig{
			FlushInterval:  time.Minute,
			FlushTimeout:   30 * time.Second,
			MaxAttempts:    5,
			InitialBackoff: 30 * time.Second,
			MaxBackoff:     time.Hour,
			FlushLimit:     1000,
		},
	}
}
