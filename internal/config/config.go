package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration, loaded from YAML with
// environment variable overrides for deployment secrets.
type Config struct {
	Server struct {
		HTTPPort int `yaml:"http_port"`
		GRPCPort int `yaml:"grpc_port"`
	} `yaml:"server"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Gemini struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"gemini"`
	Engine struct {
		// Per-kind execution timeouts; zero means the built-in default.
		ToolCallTimeout        time.Duration `yaml:"tool_call_timeout"`
		AITransformTimeout     time.Duration `yaml:"ai_transform_timeout"`
		AutonomousAgentTimeout time.Duration `yaml:"autonomous_agent_timeout"`
	} `yaml:"engine"`
	Stream struct {
		KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	} `yaml:"stream"`
}

// HTTPPort returns the configured HTTP port, defaulting to 8000.
func (c *Config) HTTPPort() int {
	if c.Server.HTTPPort == 0 {
		return 8000
	}
	return c.Server.HTTPPort
}

// GRPCPort returns the configured gRPC port, defaulting to 50051.
func (c *Config) GRPCPort() int {
	if c.Server.GRPCPort == 0 {
		return 50051
	}
	return c.Server.GRPCPort
}

// KeepaliveInterval returns the stream keepalive period, defaulting to 15s.
func (c *Config) KeepaliveInterval() time.Duration {
	if c.Stream.KeepaliveInterval <= 0 {
		return 15 * time.Second
	}
	return c.Stream.KeepaliveInterval
}

// Load reads the config file at path and applies environment overrides.
// A missing file is not an error; the zero config plus environment is a
// valid development setup.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if p, err := parsePort(v); err == nil {
			c.Server.HTTPPort = p
		}
	}
	if v := os.Getenv("GRPC_PORT"); v != "" {
		if p, err := parsePort(v); err == nil {
			c.Server.GRPCPort = p
		}
	}
}

func parsePort(s string) (int, error) {
	var p int
	if _, err := fmt.Sscanf(s, "%d", &p); err != nil {
		return 0, err
	}
	if p < 1 || p > 65535 {
		return 0, fmt.Errorf("port out of range: %d", p)
	}
	return p, nil
}
