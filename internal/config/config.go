// Package config handles configuration loading and management for checkface.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/checkface/internal/latent"
)

// Config holds all configuration for checkface.
type Config struct {
	Data      DataConfig      `mapstructure:"data"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Store     StoreConfig     `mapstructure:"store"`
	Encoder   EncoderConfig   `mapstructure:"encoder"`
	Server    ServerConfig    `mapstructure:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
	Images    ImagesConfig    `mapstructure:"images"`
}

// DataConfig locates the artifact tree.
type DataConfig struct {
	// Root is the directory holding outputImages, outputMorphs and assets.
	Root string `mapstructure:"root"`
}

// GeneratorConfig holds model and batching settings.
type GeneratorConfig struct {
	// Backend selects the model: "procedural" or "remote".
	Backend string `mapstructure:"backend"`
	// RemoteURL is the base URL of the model sidecar for the remote backend.
	RemoteURL string `mapstructure:"remote_url"`
	// BatchSize is the maximum number of jobs per inference call.
	BatchSize int `mapstructure:"batch_size"`
	// Timeout bounds the wait for each generated image.
	Timeout time.Duration `mapstructure:"timeout"`
	// TruncationPsi pulls low layers toward the average latent.
	TruncationPsi float64 `mapstructure:"truncation_psi"`
	// TruncationCutoff is the first layer left untouched by truncation.
	TruncationCutoff int `mapstructure:"truncation_cutoff"`
	// ImageSize is the native output size of the procedural backend.
	ImageSize int `mapstructure:"image_size"`
}

// StoreConfig holds record store settings.
type StoreConfig struct {
	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
	Driver string `mapstructure:"driver"`
	// Path is the database file; empty means checkface.db under the data root.
	Path string `mapstructure:"path"`
}

// EncoderConfig holds the image encoder service settings.
type EncoderConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// MetricsConfig holds the metrics listener settings. An empty Addr serves
// /metrics on the main listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// FFmpegConfig locates the ffmpeg binary.
type FFmpegConfig struct {
	Path string `mapstructure:"path"`
}

// ImagesConfig holds defaults for image requests.
type ImagesConfig struct {
	DefaultDim int `mapstructure:"default_dim"`
}

const (
	BackendProcedural = "procedural"
	BackendRemote     = "remote"
)

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (CHECKFACE_*, plus GENERATOR_BATCH_SIZE, API_PORT, METRICS_PORT)
// 2. Project config (.checkface.yaml in current directory or parent)
// 3. User config (~/.config/checkface/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)
	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path, with environment
// overrides applied on top.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	bindEnv(v)
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	applyLegacyPorts(cfg)
	cfg.Data.Root = expandEnv(cfg.Data.Root)
	cfg.Store.Path = expandEnv(cfg.Store.Path)
	return cfg, nil
}

// bindEnv maps CHECKFACE_<SECTION>_<KEY> onto every key, plus the legacy
// batch size variable.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("CHECKFACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("generator.batch_size", "CHECKFACE_GENERATOR_BATCH_SIZE", "GENERATOR_BATCH_SIZE")
}

// applyLegacyPorts honours API_PORT and METRICS_PORT when the address keys are
// not set through the environment.
func applyLegacyPorts(cfg *Config) {
	if port := os.Getenv("API_PORT"); port != "" && os.Getenv("CHECKFACE_SERVER_ADDR") == "" {
		cfg.Server.Addr = ":" + port
	}
	if port := os.Getenv("METRICS_PORT"); port != "" && os.Getenv("CHECKFACE_METRICS_ADDR") == "" {
		cfg.Metrics.Addr = ":" + port
	}
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return SaveTo(filepath.Join(userConfigDir, "config.yaml"), cfg)
}

// SaveTo writes the configuration to path.
func SaveTo(path string, cfg *Config) error {
	v := viper.New()
	v.SetConfigFile(path)

	for _, key := range Keys() {
		value, _ := Get(cfg, key)
		v.Set(key, value)
	}

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("data.root", d.Data.Root)

	v.SetDefault("generator.backend", d.Generator.Backend)
	v.SetDefault("generator.remote_url", d.Generator.RemoteURL)
	v.SetDefault("generator.batch_size", d.Generator.BatchSize)
	v.SetDefault("generator.timeout", d.Generator.Timeout.String())
	v.SetDefault("generator.truncation_psi", d.Generator.TruncationPsi)
	v.SetDefault("generator.truncation_cutoff", d.Generator.TruncationCutoff)
	v.SetDefault("generator.image_size", d.Generator.ImageSize)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.path", d.Store.Path)

	v.SetDefault("encoder.url", d.Encoder.URL)
	v.SetDefault("encoder.timeout", d.Encoder.Timeout.String())

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("ffmpeg.path", d.FFmpeg.Path)
	v.SetDefault("images.default_dim", d.Images.DefaultDim)
}

// getUserConfigDir returns the XDG config directory for checkface.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "checkface")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "checkface")
	}
	return filepath.Join(home, ".config", "checkface")
}

// findProjectConfig searches for .checkface.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".checkface.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	t := latent.DefaultTruncation()
	return &Config{
		Data: DataConfig{
			Root: "checkfacedata",
		},
		Generator: GeneratorConfig{
			Backend:          BackendProcedural,
			BatchSize:        10,
			Timeout:          30 * time.Second,
			TruncationPsi:    t.Psi,
			TruncationCutoff: t.Cutoff,
			ImageSize:        256,
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Encoder: EncoderConfig{
			Timeout: 2 * time.Minute,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Metrics: MetricsConfig{
			Addr: ":8000",
		},
		FFmpeg: FFmpegConfig{
			Path: "ffmpeg",
		},
		Images: ImagesConfig{
			DefaultDim: 300,
		},
	}
}

// StorePath returns the database file, defaulting to checkface.db under the
// data root.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(c.Data.Root, "checkface.db")
}

// Truncation returns the truncation setting for the latent context.
func (c *Config) Truncation() latent.Truncation {
	return latent.Truncation{Psi: c.Generator.TruncationPsi, Cutoff: c.Generator.TruncationCutoff}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	var errs []error
	switch c.Generator.Backend {
	case BackendProcedural:
	case BackendRemote:
		if c.Generator.RemoteURL == "" {
			errs = append(errs, errors.New("generator.remote_url is required for the remote backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("generator.backend %q must be %q or %q", c.Generator.Backend, BackendProcedural, BackendRemote))
	}
	if c.Generator.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("generator.batch_size must be at least 1, got %d", c.Generator.BatchSize))
	}
	if c.Generator.Timeout <= 0 {
		errs = append(errs, errors.New("generator.timeout must be positive"))
	}
	if c.Generator.TruncationCutoff < 0 || c.Generator.TruncationCutoff > latent.Layers {
		errs = append(errs, fmt.Errorf("generator.truncation_cutoff must be in [0, %d]", latent.Layers))
	}
	if c.Store.Driver != "sqlite" && c.Store.Driver != "sqlite3" {
		errs = append(errs, fmt.Errorf("store.driver %q must be sqlite or sqlite3", c.Store.Driver))
	}
	if c.Images.DefaultDim < 10 || c.Images.DefaultDim > 1024 {
		errs = append(errs, fmt.Errorf("images.default_dim must be in [10, 1024], got %d", c.Images.DefaultDim))
	}
	if c.Data.Root == "" {
		errs = append(errs, errors.New("data.root is required"))
	}
	return errors.Join(errs...)
}
