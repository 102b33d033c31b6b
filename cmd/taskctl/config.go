package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	envServer      = "TASKWEB_SERVER"
	envSessionFile = "TASKWEB_SESSION_FILE"

	defaultServer = "http://localhost:8080"
)

// clientConfig is read from config.yaml, then overridden by the environment
// and finally by command-line flags.
type clientConfig struct {
	Server      string `yaml:"server"`
	SessionFile string `yaml:"session_file"`
	LogLevel    string `yaml:"log_level"`
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskweb"
	}
	return filepath.Join(home, ".config", "taskweb")
}

func defaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func defaultClientConfig() clientConfig {
	return clientConfig{
		Server:      defaultServer,
		SessionFile: filepath.Join(configDir(), "session.json"),
		LogLevel:    "warn",
	}
}

// loadClientConfig reads path if it exists and applies environment overrides.
// A missing file is not an error.
func loadClientConfig(path string, getenv func(string) string) (clientConfig, error) {
	cfg := defaultClientConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	default:
		var fromFile clientConfig
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
		cfg.merge(fromFile)
	}

	cfg.merge(clientConfig{
		Server:      getenv(envServer),
		SessionFile: getenv(envSessionFile),
	})
	return cfg, nil
}

// merge copies the non-empty fields of other into c.
func (c *clientConfig) merge(other clientConfig) {
	if other.Server != "" {
		c.Server = other.Server
	}
	if other.SessionFile != "" {
		c.SessionFile = other.SessionFile
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}
