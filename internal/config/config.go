package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Directory   DirectoryConfig           `json:"directory"`
	CRM         CRMConfig                 `json:"crm"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	// Provider key into Providers used for the matching completion call.
	CompletionProvider string `json:"completion_provider"`
	// Sweep cadence in seconds; defaults to 60.
	SweepIntervalSeconds int `json:"sweep_interval_seconds"`
	// Minutes of silence before a chat is considered abandoned; defaults to 5.
	InactivityMinutes int `json:"inactivity_minutes"`
	// Directory snapshot validity window in minutes; defaults to 5.
	DirectoryCacheMinutes int `json:"directory_cache_minutes"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type DirectoryConfig struct {
	SourceURL string `json:"source_url"`
}

type CRMConfig struct {
	// WebhookURL may be empty; the exporter reports the gap when it first
	// tries to deliver, not at startup.
	WebhookURL string `json:"webhook_url"`
}

// Load reads configuration from the provided path (defaults to config.json).
// Secrets and endpoints can be overridden through environment variables so
// deployments don't have to bake them into the file.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyEnv()

	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("at least one database must be configured")
	}
	if cfg.Directory.SourceURL == "" {
		return nil, fmt.Errorf("directory source_url must be configured")
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DIRCHAT_DIRECTORY_URL"); v != "" {
		c.Directory.SourceURL = v
	}
	if v := os.Getenv("DIRCHAT_CRM_WEBHOOK"); v != "" {
		c.CRM.WebhookURL = v
	}
	if v := os.Getenv("DIRCHAT_COMPLETION_KEY"); v != "" {
		provider := c.BasicConfig.CompletionProvider
		if provider == "" {
			provider = "openai"
		}
		if c.Providers == nil {
			c.Providers = make(map[string]ProviderConfig)
		}
		pc := c.Providers[provider]
		pc.APIKey = v
		c.Providers[provider] = pc
	}
}
