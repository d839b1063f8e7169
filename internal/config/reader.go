package config

import "time"

// ReaderConfig holds remote content API configuration
type ReaderConfig struct {
	BaseURL string `yaml:"base_url"`
	AppID   string `yaml:"app_id"`
	AppKey  string `yaml:"app_key"`

	// Static bearer token, used when no refresh credentials are configured.
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenURL     string `yaml:"token_url"`

	Timeout           time.Duration   `yaml:"timeout"`
	RequestsPerSecond float64         `yaml:"requests_per_second"`
	RateLimit         RateLimitConfig `yaml:"rate_limit"`
	Quota             QuotaConfig     `yaml:"quota"`
}

// RateLimitConfig holds retry configuration for individual remote calls
type RateLimitConfig struct {
	MaxRetries      int           `yaml:"max_retries"`
	InitialBackoff  time.Duration `yaml:"initial_backoff"`
	MaxBackoff      time.Duration `yaml:"max_backoff"`
	RetryMultiplier float64       `yaml:"retry_multiplier"`
}

// QuotaConfig holds the daily quota tracking configuration
type QuotaConfig struct {
	Service    string `yaml:"service"`
	Zone1Limit int64  `yaml:"zone1_limit"`
	Zone2Limit int64  `yaml:"zone2_limit"`
	// Policy selects how "used" is computed: "header" (remote value wins) or "max".
	Policy        string        `yaml:"policy"`
	CautionDelay  time.Duration `yaml:"caution_delay"`
	ThrottleDelay time.Duration `yaml:"throttle_delay"`
	// MaxWait bounds how long a caller blocks on an exhausted zone before failing.
	MaxWait time.Duration `yaml:"max_wait"`
}

// DefaultReaderConfig returns the default remote API configuration
func DefaultReaderConfig() *ReaderConfig {
	return &ReaderConfig{
		BaseURL:           "https://www.inoreader.com",
		TokenURL:          "https://www.inoreader.com/oauth2/token",
		Timeout:           60 * time.Second,
		RequestsPerSecond: 2,
		RateLimit: RateLimitConfig{
			MaxRetries:      3,
			InitialBackoff:  time.Second,
			MaxBackoff:      time.Minute,
			RetryMultiplier: 2.0,
		},
		Quota: QuotaConfig{
			Service:       "inoreader",
			Zone1Limit:    100,
			Zone2Limit:    100,
			Policy:        "header",
			CautionDelay:  500 * time.Millisecond,
			ThrottleDelay: 30 * time.Second,
			MaxWait:       2 * time.Minute,
		},
	}
}
