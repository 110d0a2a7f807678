package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Keys returns every dotted configuration key in display order.
func Keys() []string {
	return []string{
		"data.root",
		"generator.backend",
		"generator.remote_url",
		"generator.batch_size",
		"generator.timeout",
		"generator.truncation_psi",
		"generator.truncation_cutoff",
		"generator.image_size",
		"store.driver",
		"store.path",
		"encoder.url",
		"encoder.timeout",
		"server.addr",
		"metrics.addr",
		"ffmpeg.path",
		"images.default_dim",
	}
}

// Get retrieves a configuration value by dot-notation key.
func Get(cfg *Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "data.root":
		return cfg.Data.Root, nil
	case "generator.backend":
		return cfg.Generator.Backend, nil
	case "generator.remote_url":
		return cfg.Generator.RemoteURL, nil
	case "generator.batch_size":
		return strconv.Itoa(cfg.Generator.BatchSize), nil
	case "generator.timeout":
		return cfg.Generator.Timeout.String(), nil
	case "generator.truncation_psi":
		return strconv.FormatFloat(cfg.Generator.TruncationPsi, 'f', -1, 64), nil
	case "generator.truncation_cutoff":
		return strconv.Itoa(cfg.Generator.TruncationCutoff), nil
	case "generator.image_size":
		return strconv.Itoa(cfg.Generator.ImageSize), nil
	case "store.driver":
		return cfg.Store.Driver, nil
	case "store.path":
		return cfg.Store.Path, nil
	case "encoder.url":
		return cfg.Encoder.URL, nil
	case "encoder.timeout":
		return cfg.Encoder.Timeout.String(), nil
	case "server.addr":
		return cfg.Server.Addr, nil
	case "metrics.addr":
		return cfg.Metrics.Addr, nil
	case "ffmpeg.path":
		return cfg.FFmpeg.Path, nil
	case "images.default_dim":
		return strconv.Itoa(cfg.Images.DefaultDim), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// Set sets a configuration value by dot-notation key.
func Set(cfg *Config, key, value string) error {
	switch strings.ToLower(key) {
	case "data.root":
		cfg.Data.Root = value
	case "generator.backend":
		cfg.Generator.Backend = value
	case "generator.remote_url":
		cfg.Generator.RemoteURL = value
	case "generator.batch_size":
		return setInt(&cfg.Generator.BatchSize, key, value)
	case "generator.timeout":
		return setDuration(&cfg.Generator.Timeout, key, value)
	case "generator.truncation_psi":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		cfg.Generator.TruncationPsi = f
	case "generator.truncation_cutoff":
		return setInt(&cfg.Generator.TruncationCutoff, key, value)
	case "generator.image_size":
		return setInt(&cfg.Generator.ImageSize, key, value)
	case "store.driver":
		cfg.Store.Driver = value
	case "store.path":
		cfg.Store.Path = value
	case "encoder.url":
		cfg.Encoder.URL = value
	case "encoder.timeout":
		return setDuration(&cfg.Encoder.Timeout, key, value)
	case "server.addr":
		cfg.Server.Addr = value
	case "metrics.addr":
		cfg.Metrics.Addr = value
	case "ffmpeg.path":
		cfg.FFmpeg.Path = value
	case "images.default_dim":
		return setInt(&cfg.Images.DefaultDim, key, value)
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	*dst = d
	return nil
}
