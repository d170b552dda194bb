package config

import "time"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Fireflies FirefliesConfig `mapstructure:"fireflies"`
	DealCloud DealCloudConfig `mapstructure:"dealcloud"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	ListenAddress string `mapstructure:"listen_address"`
	APIKey        string `mapstructure:"api_key"` // optional guard for mutating endpoints
}

type FirefliesConfig struct {
	APIURL  string `mapstructure:"api_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // seconds
}

type DealCloudConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Timeout      int    `mapstructure:"timeout"` // seconds

	// Entry type identifiers for the tenant's schema.
	InteractionEntryTypeID int `mapstructure:"interaction_entry_type_id"`
	ContactEntryTypeID     int `mapstructure:"contact_entry_type_id"`
	DealEntryTypeID        int `mapstructure:"deal_entry_type_id"`
	InteractionTypeID      int `mapstructure:"interaction_type_id"`
}

type SyncConfig struct {
	// InternalDomains separates internal participants from external ones.
	// Comma-separated in the env var, case-insensitive.
	InternalDomains []string `mapstructure:"internal_domains"`

	// ProjectStopWords are title prefixes that are never project names,
	// on top of the built-in generic stoplist.
	ProjectStopWords []string `mapstructure:"project_stop_words"`

	TranscriptLimit  int     `mapstructure:"transcript_limit"`
	TranscriptCap    int     `mapstructure:"transcript_cap"`
	RateLimitDelay   float64 `mapstructure:"rate_limit_delay"` // seconds
	MaxRetries       int     `mapstructure:"max_retries"`
	RetryDelay       float64 `mapstructure:"retry_delay"`      // seconds, backoff base
	CronIntervalMins int     `mapstructure:"cron_interval_minutes"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"` // empty disables the processed-ID store
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"` // set key holding processed transcript IDs
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// FirefliesTimeout returns the Fireflies HTTP timeout as a duration.
func (c *Config) FirefliesTimeout() time.Duration {
	return time.Duration(c.Fireflies.Timeout) * time.Second
}

// DealCloudTimeout returns the DealCloud HTTP timeout as a duration.
func (c *Config) DealCloudTimeout() time.Duration {
	return time.Duration(c.DealCloud.Timeout) * time.Second
}

// RateLimitDelay returns the proactive inter-call delay for DealCloud.
func (c *Config) RateLimitDelay() time.Duration {
	return time.Duration(c.Sync.RateLimitDelay * float64(time.Second))
}

// RetryDelay returns the backoff base for transient transport retries.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Sync.RetryDelay * float64(time.Second))
}

// CronInterval returns the scheduler interval; zero disables the scheduler.
func (c *Config) CronInterval() time.Duration {
	return time.Duration(c.Sync.CronIntervalMins) * time.Minute
}
