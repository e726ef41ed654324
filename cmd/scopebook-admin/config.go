// ABOUTME: Configuration loading for the scopebook admin CLI
// ABOUTME: Loads TOML config from XDG path with environment variable expansion

package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server ServerConfig `toml:"server"`
	Owner  OwnerConfig  `toml:"owner"`
}

type ServerConfig struct {
	URL string `toml:"url"`
}

type OwnerConfig struct {
	ID string `toml:"id"`
}

// configPath returns the admin CLI config path.
// Priority: SCOPEBOOK_ADMIN_CONFIG > XDG_CONFIG_HOME/scopebook/admin.toml > ~/.config/scopebook/admin.toml
func configPath() string {
	if envPath := os.Getenv("SCOPEBOOK_ADMIN_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "admin.toml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "scopebook", "admin.toml")
}

// loadConfig reads the TOML config, then applies environment overrides.
// A missing file is not an error: env vars alone can configure the CLI.
func loadConfig() (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(configPath())
	if err == nil {
		expanded := expandEnvVars(string(data))
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if v := os.Getenv("SCOPEBOOK_SERVER_URL"); v != "" {
		cfg.Server.URL = v
	}
	if v := os.Getenv("SCOPEBOOK_OWNER"); v != "" {
		cfg.Owner.ID = v
	}

	if cfg.Server.URL == "" {
		cfg.Server.URL = "http://localhost:8080"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// Validate checks that required config fields are present and valid.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("server.url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.url must use http or https scheme")
	}
	if c.Owner.ID == "" {
		return fmt.Errorf("owner.id is required (set SCOPEBOOK_OWNER or owner.id in %s)", configPath())
	}
	return nil
}
