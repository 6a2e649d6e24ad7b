package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	Server    ServerConfig              `json:"server"`
	Providers map[string]ProviderConfig `json:"providers"`
	Search    SearchConfig              `json:"search"`
	Redis     RedisConfig               `json:"redis"`
	Limits    LimitsConfig              `json:"limits"`
	Cleanup   CleanupConfig             `json:"cleanup"`
}

type ServerConfig struct {
	Address        string   `json:"address"`
	StaticDir      string   `json:"static_dir"`
	AllowedOrigins []string `json:"allowed_origins"`
	Provider       string   `json:"provider"`
}

type ProviderConfig struct {
	BaseURL    string `json:"base_url"`
	Model      string `json:"model"`
	APIKey     string `json:"api_key"`
	APIVersion string `json:"api_version"`
	ByAzure    bool   `json:"by_azure"`
}

type SearchConfig struct {
	Endpoint   string `json:"endpoint"`
	Key        string `json:"key"`
	Index      string `json:"index"`
	APIVersion string `json:"api_version"`
	TopK       int    `json:"top_k"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type LimitsConfig struct {
	MaxUploadBytes     int64 `json:"max_upload_bytes"`
	SessionQuotaBytes  int64 `json:"session_quota_bytes"`
	HistoryWindow      int   `json:"history_window"`
	MaxTurns           int   `json:"max_turns"`
	ContextTokenBudget int   `json:"context_token_budget"`
	MaxSessions        int   `json:"max_sessions"`
	SearchSnippets     int   `json:"search_snippets"`
	ChatPerMinute      int   `json:"chat_per_minute"`
	ResetPerMinute     int   `json:"reset_per_minute"`
	GlobalPerMinute    int   `json:"global_per_minute"`
}

type CleanupConfig struct {
	SweepIntervalMinutes int `json:"sweep_interval_minutes"`
	SessionMaxAgeMinutes int `json:"session_max_age_minutes"`
	FileMaxAgeMinutes    int `json:"file_max_age_minutes"`
}

// Default returns a configuration that works without a config file as long as
// provider and search credentials arrive via environment variables.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Address:        ":3000",
			StaticDir:      "./public",
			AllowedOrigins: []string{"*"},
			Provider:       "openai",
		},
		Providers: map[string]ProviderConfig{},
		Search: SearchConfig{
			APIVersion: "2024-07-01",
			TopK:       15,
		},
		Limits: LimitsConfig{
			MaxUploadBytes:     10 << 20,
			SessionQuotaBytes:  50 << 20,
			HistoryWindow:      4,
			MaxTurns:           20,
			ContextTokenBudget: 2000,
			MaxSessions:        100,
			SearchSnippets:     3,
			ChatPerMinute:      30,
			ResetPerMinute:     10,
			GlobalPerMinute:    10,
		},
		Cleanup: CleanupConfig{
			SweepIntervalMinutes: 30,
			SessionMaxAgeMinutes: 120,
			FileMaxAgeMinutes:    120,
		},
	}
	cfg.applyEnv()
	return cfg
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing default config file is not an error: defaults plus environment
// variables are enough to run.
func Load(path string) (*Config, error) {
	defaulted := path == ""
	if defaulted {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) && defaulted {
			return Default(), nil
		}
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	cfg := Default()
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.fillDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.Server.Address == "" {
		c.Server.Address = d.Server.Address
	}
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = d.Server.StaticDir
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = d.Server.AllowedOrigins
	}
	if c.Server.Provider == "" {
		c.Server.Provider = d.Server.Provider
	}
	if c.Search.APIVersion == "" {
		c.Search.APIVersion = d.Search.APIVersion
	}
	if c.Search.TopK <= 0 {
		c.Search.TopK = d.Search.TopK
	}
	if c.Limits.MaxUploadBytes <= 0 {
		c.Limits.MaxUploadBytes = d.Limits.MaxUploadBytes
	}
	if c.Limits.SessionQuotaBytes <= 0 {
		c.Limits.SessionQuotaBytes = d.Limits.SessionQuotaBytes
	}
	if c.Limits.HistoryWindow <= 0 {
		c.Limits.HistoryWindow = d.Limits.HistoryWindow
	}
	if c.Limits.MaxTurns <= 0 {
		c.Limits.MaxTurns = d.Limits.MaxTurns
	}
	if c.Limits.ContextTokenBudget <= 0 {
		c.Limits.ContextTokenBudget = d.Limits.ContextTokenBudget
	}
	if c.Limits.MaxSessions <= 0 {
		c.Limits.MaxSessions = d.Limits.MaxSessions
	}
	if c.Limits.SearchSnippets <= 0 {
		c.Limits.SearchSnippets = d.Limits.SearchSnippets
	}
	if c.Limits.ChatPerMinute <= 0 {
		c.Limits.ChatPerMinute = d.Limits.ChatPerMinute
	}
	if c.Limits.ResetPerMinute <= 0 {
		c.Limits.ResetPerMinute = d.Limits.ResetPerMinute
	}
	if c.Limits.GlobalPerMinute <= 0 {
		c.Limits.GlobalPerMinute = d.Limits.GlobalPerMinute
	}
	if c.Cleanup.SweepIntervalMinutes <= 0 {
		c.Cleanup.SweepIntervalMinutes = d.Cleanup.SweepIntervalMinutes
	}
	if c.Cleanup.SessionMaxAgeMinutes <= 0 {
		c.Cleanup.SessionMaxAgeMinutes = d.Cleanup.SessionMaxAgeMinutes
	}
	if c.Cleanup.FileMaxAgeMinutes <= 0 {
		c.Cleanup.FileMaxAgeMinutes = d.Cleanup.FileMaxAgeMinutes
	}
}

// applyEnv lets credentials come from the environment so the config file can
// stay free of secrets.
func (c *Config) applyEnv() {
	if v := os.Getenv("AZURE_SEARCH_ENDPOINT"); v != "" {
		c.Search.Endpoint = v
	}
	if v := os.Getenv("AZURE_SEARCH_KEY"); v != "" {
		c.Search.Key = v
	}
	if v := os.Getenv("AZURE_SEARCH_INDEX"); v != "" {
		c.Search.Index = v
	}
	if v := os.Getenv("HRCHAT_PROVIDER"); v != "" {
		c.Server.Provider = v
	}
	if v := os.Getenv("HRCHAT_API_KEY"); v != "" {
		if c.Providers == nil {
			c.Providers = map[string]ProviderConfig{}
		}
		prov := c.Providers[c.Server.Provider]
		prov.APIKey = v
		c.Providers[c.Server.Provider] = prov
	}
}
