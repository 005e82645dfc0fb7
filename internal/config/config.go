package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Throttle  ThrottleConfig  `yaml:"throttle"`
	Run       RunConfig       `yaml:"run"`
}

type ServerConfig struct {
	URL      string `yaml:"url"`       // http(s) base URL of the panel
	WSPath   string `yaml:"ws_path"`   // WebSocket endpoint path
	TokenEnv string `yaml:"token_env"` // env var holding the bearer token
}

type ReconnectConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	CapDelay    time.Duration `yaml:"cap_delay"`
}

type ThrottleConfig struct {
	ServerListWindow time.Duration `yaml:"server_list_window"`
}

type RunConfig struct {
	WorkingDirectory string `yaml:"working_directory"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL:      "http://127.0.0.1:8080",
			WSPath:   "/ws/batch",
			TokenEnv: "NODENEXUS_TOKEN",
		},
		Reconnect: ReconnectConfig{
			MaxAttempts: 5,
			BaseDelay:   time.Second,
			CapDelay:    30 * time.Second,
		},
		Throttle: ThrottleConfig{
			ServerListWindow: 2 * time.Second,
		},
		Run: RunConfig{
			WorkingDirectory: ".",
		},
	}
}

// Default returns the built-in configuration, used when no config file is
// given on the command line.
func Default() *Config {
	return defaultConfig()
}

// Load reads a yaml config file over the built-in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
