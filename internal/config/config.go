// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Chain describes BSC connectivity and swap-pipeline tuning.
type Chain struct {
	RPCURL            string `yaml:"rpc_url"`
	ChainID           int64  `yaml:"chain_id"`
	QuoteTTLSecs      int    `yaml:"quote_ttl_secs"`
	DeadlineMins      int    `yaml:"deadline_mins"`
	PollIntervalSecs  int    `yaml:"poll_interval_secs"`
	RetryIntervalSecs int    `yaml:"retry_interval_secs"`
	MaxPollAttempts   int    `yaml:"max_poll_attempts"`
}

// Oracle configures the pool sampler and the external price feed.
type Oracle struct {
	FeedBaseURL      string `yaml:"feed_base_url"`
	SampleIntervalMs int    `yaml:"sample_interval_ms"`
	DefaultBNBPrice  string `yaml:"default_bnb_price"`
}

// Store locates the bolt database file.
type Store struct {
	Path string `yaml:"path"`
}

// Admin holds analytics/settings surface knobs; the JWT secret itself comes from env.
type Admin struct {
	JWTSecretEnv string `yaml:"jwt_secret_env"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App    App    `yaml:"app"`
	Chain  Chain  `yaml:"chain"`
	Oracle Oracle `yaml:"oracle"`
	Store  Store  `yaml:"store"`
	Admin  Admin  `yaml:"admin"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.applyDefaults()
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Chain.RPCURL == "" {
		c.Chain.RPCURL = "https://bsc-dataseed.binance.org/"
	}
	if c.Chain.ChainID == 0 {
		c.Chain.ChainID = 56
	}
	if c.Chain.QuoteTTLSecs <= 0 {
		c.Chain.QuoteTTLSecs = 30
	}
	if c.Chain.DeadlineMins <= 0 {
		c.Chain.DeadlineMins = 20
	}
	if c.Chain.PollIntervalSecs <= 0 {
		c.Chain.PollIntervalSecs = 5
	}
	if c.Chain.RetryIntervalSecs <= 0 {
		c.Chain.RetryIntervalSecs = 10
	}
	if c.Chain.MaxPollAttempts <= 0 {
		c.Chain.MaxPollAttempts = 120
	}
	if c.Oracle.SampleIntervalMs <= 0 {
		c.Oracle.SampleIntervalMs = 30000
	}
	if c.Oracle.DefaultBNBPrice == "" {
		c.Oracle.DefaultBNBPrice = "635.42"
	}
	if c.Admin.JWTSecretEnv == "" {
		c.Admin.JWTSecretEnv = "SWAPWALLET_ADMIN_SECRET"
	}
}
