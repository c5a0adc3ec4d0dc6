// Package config loads Agent Hub's configuration from flags, environment
// variables and an optional config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every configuration section the hub needs.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Data    DataConfig    `mapstructure:"data"`
	Docker  DockerConfig  `mapstructure:"docker"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Logging LoggingConfig `mapstructure:"logging"`
	NATS    NATSConfig    `mapstructure:"nats"`
}

// ServerConfig holds HTTP server bind options.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DataConfig describes where the hub keeps its state on disk.
type DataConfig struct {
	Dir              string `mapstructure:"dir"`
	ConfigFile       string `mapstructure:"configFile"`
	CleanStart       bool   `mapstructure:"cleanStart"`
	NoFrontendBuild  bool   `mapstructure:"noFrontendBuild"`
}

// DockerConfig holds the options for the image-inspector dependency.
type DockerConfig struct {
	Host       string `mapstructure:"host"`
	APIVersion string `mapstructure:"apiVersion"`
}

// AgentConfig describes how to invoke the external agent_cli collaborator.
type AgentConfig struct {
	CLIPath        string   `mapstructure:"cliPath"`
	DefaultCols    int      `mapstructure:"defaultCols"`
	DefaultRows    int      `mapstructure:"defaultRows"`
	AllowedTypes   []string `mapstructure:"allowedTypes"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// NATSConfig is optional; an empty URL keeps the hub on the in-memory bus.
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// Load reads configuration from defaults, an optional config.yaml, and
// AGENTHUB_-prefixed environment variables, in that order of precedence.
func Load(dataDir, configFile, host string, port int, logLevel string, cleanStart, noFrontendBuild bool) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGENTHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if dataDir != "" {
		v.Set("data.dir", dataDir)
	}
	if host != "" {
		v.Set("server.host", host)
	}
	if port != 0 {
		v.Set("server.port", port)
	}
	if logLevel != "" {
		v.Set("logging.level", logLevel)
	}
	if cleanStart {
		v.Set("data.cleanStart", true)
	}
	if noFrontendBuild {
		v.Set("data.noFrontendBuild", true)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Data.Dir == "" {
		home, _ := os.UserHomeDir()
		cfg.Data.Dir = filepath.Join(home, ".agent-hub")
	}
	if cfg.Data.ConfigFile == "" {
		cfg.Data.ConfigFile = configFile
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8765)

	v.SetDefault("data.dir", "")
	v.SetDefault("data.cleanStart", false)
	v.SetDefault("data.noFrontendBuild", false)

	v.SetDefault("docker.host", defaultDockerHost())
	v.SetDefault("docker.apiVersion", "1.41")

	v.SetDefault("agent.cliPath", "agent_cli")
	v.SetDefault("agent.defaultCols", 160)
	v.SetDefault("agent.defaultRows", 48)
	v.SetDefault("agent.allowedTypes", []string{"codex", "claude", "gemini", "none"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("nats.url", "")
}

func defaultDockerHost() string {
	if h := os.Getenv("DOCKER_HOST"); h != "" {
		return h
	}
	return "unix:///var/run/docker.sock"
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if cfg.Data.Dir == "" {
		return fmt.Errorf("data.dir must be set")
	}
	if len(cfg.Agent.AllowedTypes) == 0 {
		return fmt.Errorf("agent.allowedTypes must not be empty")
	}
	return nil
}
