package config

import (
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/eburon/callerpro/pkg/callcenter/audio"
	"github.com/eburon/callerpro/pkg/callcenter/backend"
	"github.com/eburon/callerpro/pkg/callcenter/call"
)

// Config represents the callerpro configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Audio   AudioConfig   `yaml:"audio"`
	Hosted  HostedConfig  `yaml:"hosted"`
	Local   LocalConfig   `yaml:"local"`
	Call    CallConfig    `yaml:"call"`
	CRM     CRMConfig     `yaml:"crm"`
	Catalog CatalogConfig `yaml:"catalog"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// AudioConfig holds call audio configuration
type AudioConfig struct {
	// Device is "ffplay" or "silent".
	Device         string       `yaml:"device"`
	FFPlayPath     string       `yaml:"ffplay_path,omitempty"`
	CacheDir       string       `yaml:"cache_dir,omitempty"`
	Preload        *bool        `yaml:"preload,omitempty"`
	ProgressVolume float64      `yaml:"progress_volume"`
	AmbientVolume  float64      `yaml:"ambient_volume"`
	SampleRate     int          `yaml:"sample_rate"`
	Assets         audio.Assets `yaml:"assets"`
}

// PreloadEnabled reports whether assets are fetched at startup.
func (a AudioConfig) PreloadEnabled() bool {
	return a.Preload == nil || *a.Preload
}

// HostedConfig holds the hosted multimodal backend configuration
type HostedConfig struct {
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
}

// LocalConfig holds the defaults for agents on a self-hosted model
type LocalConfig struct {
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key,omitempty"`
	APIKeyEnv  string `yaml:"api_key_env,omitempty"`
	MaxRetries int    `yaml:"max_retries"`
}

// CallConfig holds call session timing
type CallConfig struct {
	OpenTimeout  time.Duration `yaml:"open_timeout"`
	BusyDuration time.Duration `yaml:"busy_duration"`
}

// CRMConfig selects the CRM collaborator
type CRMConfig struct {
	// Driver is "sqlite", "postgres" or "http".
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
	Token    string `yaml:"token,omitempty"`
	TokenEnv string `yaml:"token_env,omitempty"`
	Seed     *bool  `yaml:"seed,omitempty"`
}

// SeedEnabled reports whether demo listings are inserted at startup.
func (c CRMConfig) SeedEnabled() bool {
	return c.Seed == nil || *c.Seed
}

// CatalogConfig points at an agent catalog file
type CatalogConfig struct {
	Path string `yaml:"path,omitempty"`
}

// LoadConfig loads configuration from a YAML file. An empty path yields the
// defaults.
func LoadConfig(filePath string) (*Config, error) {
	var config Config
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := config.SetDefaults(); err != nil {
		return nil, err
	}
	config.ResolveEnv()

	return &config, nil
}

// ResolveEnv fills secrets from the environment variables they name.
func (c *Config) ResolveEnv() {
	if c.Hosted.APIKeyEnv != "" && c.Hosted.APIKey == "" {
		c.Hosted.APIKey = os.Getenv(c.Hosted.APIKeyEnv)
	}
	if c.Local.APIKeyEnv != "" && c.Local.APIKey == "" {
		c.Local.APIKey = os.Getenv(c.Local.APIKeyEnv)
	}
	if c.CRM.TokenEnv != "" && c.CRM.Token == "" {
		c.CRM.Token = os.Getenv(c.CRM.TokenEnv)
	}
}

// SetDefaults fills every unset field from DefaultConfig.
func (c *Config) SetDefaults() error {
	if err := mergo.Merge(c, DefaultConfig()); err != nil {
		return fmt.Errorf("failed to apply config defaults: %w", err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}

	switch c.Audio.Device {
	case "ffplay", "silent":
	default:
		return fmt.Errorf("audio.device must be ffplay or silent, got %q", c.Audio.Device)
	}
	if c.Audio.ProgressVolume <= 0 || c.Audio.ProgressVolume > 1 {
		return fmt.Errorf("audio.progress_volume must be in (0, 1]")
	}
	if c.Audio.AmbientVolume <= 0 || c.Audio.AmbientVolume > 1 {
		return fmt.Errorf("audio.ambient_volume must be in (0, 1]")
	}

	if c.Local.BaseURL == "" || c.Local.Model == "" {
		return fmt.Errorf("local.base_url and local.model are required")
	}

	switch c.CRM.Driver {
	case "sqlite", "postgres":
	case "http":
		if c.CRM.BaseURL == "" {
			return fmt.Errorf("crm.base_url is required for the http driver")
		}
	default:
		return fmt.Errorf("crm.driver must be sqlite, postgres or http, got %q", c.CRM.Driver)
	}
	if c.CRM.Driver == "postgres" && c.CRM.DSN == "" {
		return fmt.Errorf("crm.dsn is required for the postgres driver")
	}

	if c.Call.OpenTimeout <= 0 || c.Call.BusyDuration <= 0 {
		return fmt.Errorf("call.open_timeout and call.busy_duration must be positive")
	}

	return nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Audio: AudioConfig{
			Device:         "ffplay",
			FFPlayPath:     "ffplay",
			ProgressVolume: audio.DefaultProgressVolume,
			AmbientVolume:  audio.DefaultAmbientVolume,
			SampleRate:     24000,
			Assets:         audio.DefaultAssets(),
		},
		Hosted: HostedConfig{
			Model:     backend.DefaultHostedModel,
			APIKeyEnv: "GEMINI_API_KEY",
		},
		Local: LocalConfig{
			BaseURL:    "http://localhost:11434",
			Model:      "gemma",
			MaxRetries: 2,
		},
		Call: CallConfig{
			OpenTimeout:  backend.DefaultOpenTimeout,
			BusyDuration: call.DefaultBusyDuration,
		},
		CRM: CRMConfig{
			Driver:   "sqlite",
			DSN:      "file:callerpro.db?cache=shared",
			TokenEnv: "CALLERPRO_CRM_TOKEN",
		},
	}
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, filePath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
