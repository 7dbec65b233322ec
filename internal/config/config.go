package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort     = 2408
	defaultEnv      = "development"
	defaultDSN      = "root:password@tcp(127.0.0.1:3306)/casevine?charset=utf8mb4&parseTime=True&loc=Local"
	defaultRedisURL = "redis://localhost:6379/0"
	defaultTopK     = 8
)

// Load reads and validates the YAML config file. Secrets may be supplied via
// environment variables instead of the file.
func Load(path string) (*AppConfig, error) {
	cfg := AppConfig{
		Port:     defaultPort,
		Env:      defaultEnv,
		DSN:      defaultDSN,
		RedisURL: defaultRedisURL,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if cfg.Vault.TopK <= 0 {
		cfg.Vault.TopK = defaultTopK
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return nil, fmt.Errorf("redis_url is required")
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("CASEVINE_DSN"); v != "" {
		cfg.DSN = v
	}
	if v := os.Getenv("CASEVINE_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("CASEVINE_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("CASEVINE_VAULT_ENDPOINT"); v != "" {
		cfg.Vault.Endpoint = v
	}
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "development") || c.Env == ""
}

// EnabledProvider returns the provider for an assignment, or the first enabled
// provider when the assignment is nil or unknown. Returns nil when none is enabled.
func (c *AIConfig) EnabledProvider(assignment *AIModelAssignment) *AIProvider {
	var providerID, overrideModel string
	if assignment != nil {
		providerID = strings.TrimSpace(assignment.ProviderID)
		overrideModel = strings.TrimSpace(assignment.Model)
	}

	pick := func(p AIProvider) *AIProvider {
		selected := p
		if overrideModel != "" {
			selected.DefaultModel = overrideModel
		}
		return &selected
	}

	if providerID != "" {
		for _, p := range c.Providers {
			if p.Enabled && strings.TrimSpace(p.ID) == providerID {
				return pick(p)
			}
		}
	}
	for _, p := range c.Providers {
		if p.Enabled {
			return pick(p)
		}
	}
	return nil
}
