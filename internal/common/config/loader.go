package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	// Enable ENV override like DEALCLOUD_CLIENT_ID
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideFromEnv(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideFromEnv(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up directories looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// overrideFromEnv fills credentials and list-valued options directly from the
// environment when the config file leaves them empty.
func overrideFromEnv(cfg *Config) {
	setIfEmpty(&cfg.Fireflies.APIKey, "FIREFLIES_API_KEY")
	setIfEmpty(&cfg.Fireflies.APIURL, "FIREFLIES_API_URL")
	setIfEmpty(&cfg.DealCloud.ClientID, "DEALCLOUD_CLIENT_ID")
	setIfEmpty(&cfg.DealCloud.ClientSecret, "DEALCLOUD_CLIENT_SECRET")
	setIfEmpty(&cfg.DealCloud.BaseURL, "DEALCLOUD_BASE_URL")
	setIfEmpty(&cfg.Server.APIKey, "API_KEY")
	setIfEmpty(&cfg.Redis.Address, "REDIS_ADDRESS")

	if len(cfg.Sync.InternalDomains) == 0 {
		if val := os.Getenv("INTERNAL_DOMAINS"); val != "" {
			cfg.Sync.InternalDomains = splitCSV(val)
		}
	}
	if len(cfg.Sync.ProjectStopWords) == 0 {
		if val := os.Getenv("PROJECT_STOP_WORDS"); val != "" {
			cfg.Sync.ProjectStopWords = splitCSV(val)
		}
	}
}

func setIfEmpty(dst *string, envVar string) {
	if *dst == "" {
		if val := os.Getenv(envVar); val != "" {
			*dst = val
		}
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, strings.ToLower(trimmed))
		}
	}
	return out
}

// applyDefaults sets default values for optional configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "fireflies-dealcloud-sync"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "production"
	}

	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = ":8080"
	}

	if cfg.Fireflies.APIURL == "" {
		cfg.Fireflies.APIURL = "https://api.fireflies.ai/graphql"
	}
	if cfg.Fireflies.Timeout == 0 {
		cfg.Fireflies.Timeout = 30
	}

	if cfg.DealCloud.Timeout == 0 {
		cfg.DealCloud.Timeout = 30
	}
	if cfg.DealCloud.InteractionEntryTypeID == 0 {
		cfg.DealCloud.InteractionEntryTypeID = 20843
	}
	if cfg.DealCloud.ContactEntryTypeID == 0 {
		cfg.DealCloud.ContactEntryTypeID = 20841
	}
	if cfg.DealCloud.DealEntryTypeID == 0 {
		cfg.DealCloud.DealEntryTypeID = 20866
	}
	if cfg.DealCloud.InteractionTypeID == 0 {
		cfg.DealCloud.InteractionTypeID = 1419522
	}

	if len(cfg.Sync.InternalDomains) == 0 {
		cfg.Sync.InternalDomains = []string{"valescoind.com", "gmail.com", "outlook.com", "yahoo.com"}
	}
	for i, d := range cfg.Sync.InternalDomains {
		cfg.Sync.InternalDomains[i] = strings.ToLower(strings.TrimSpace(d))
	}
	if len(cfg.Sync.ProjectStopWords) == 0 {
		cfg.Sync.ProjectStopWords = []string{"valesco", "team"}
	}
	for i, w := range cfg.Sync.ProjectStopWords {
		cfg.Sync.ProjectStopWords[i] = strings.ToLower(strings.TrimSpace(w))
	}

	if cfg.Sync.TranscriptLimit == 0 {
		cfg.Sync.TranscriptLimit = 10
	}
	if cfg.Sync.TranscriptCap == 0 {
		cfg.Sync.TranscriptCap = 500
	}
	if cfg.Sync.RateLimitDelay == 0 {
		cfg.Sync.RateLimitDelay = 0.3
	}
	if cfg.Sync.MaxRetries == 0 {
		cfg.Sync.MaxRetries = 3
	}
	if cfg.Sync.RetryDelay == 0 {
		cfg.Sync.RetryDelay = 2.0
	}
	if cfg.Sync.CronIntervalMins == 0 {
		cfg.Sync.CronIntervalMins = 360
	}

	if cfg.Redis.Key == "" {
		cfg.Redis.Key = "sync:processed-transcripts"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// validateConfig validates critical configuration fields.
func validateConfig(cfg *Config) error {
	if cfg.Fireflies.APIKey == "" {
		return fmt.Errorf("fireflies.api_key is required")
	}
	if cfg.DealCloud.BaseURL == "" {
		return fmt.Errorf("dealcloud.base_url is required")
	}
	if cfg.DealCloud.ClientID == "" {
		return fmt.Errorf("dealcloud.client_id is required")
	}
	if cfg.DealCloud.ClientSecret == "" {
		return fmt.Errorf("dealcloud.client_secret is required")
	}
	return nil
}
