package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "POSBRIDGE_"

// LookupFunc reads an environment variable.
type LookupFunc func(key string) (string, bool)

// Load reads, overrides from the environment, and validates the file at path.
// Secret references are left in place; see ResolveSecrets.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over Default, applies environment overrides and validates.
func Parse(data []byte, lookup LookupFunc) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if lookup != nil {
		if err := applyEnv(cfg, lookup); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides scalar settings from POSBRIDGE_* variables.
func applyEnv(cfg *Config, lookup LookupFunc) error {
	strs := map[string]*string{
		"BACKOFFICE_BASE_URL":        &cfg.Backoffice.BaseURL,
		"BACKOFFICE_DEFAULT_ACCOUNT": &cfg.Backoffice.DefaultAccount,
		"POS_BASE_URL":               &cfg.POS.BaseURL,
		"DIRECTORY_URL":              &cfg.Directory.URL,
		"DIRECTORY_TOKEN":            &cfg.Directory.Token,
		"ERP_BASE_URL":               &cfg.ERP.BaseURL,
		"ERP_TOKEN":                  &cfg.ERP.Token,
		"STORE_PATH":                 &cfg.Store.Path,
		"EXPORT_DIR":                 &cfg.Export.Dir,
		"EXPORT_S3_BUCKET":           &cfg.Export.S3.Bucket,
		"EXPORT_S3_PREFIX":           &cfg.Export.S3.Prefix,
		"AWS_REGION":                 &cfg.AWSRegion,
	}
	if cfg.Telemetry != nil {
		strs["LOG_LEVEL"] = &cfg.Telemetry.Logging.Level
		strs["METRICS_ADDRESS"] = &cfg.Telemetry.Metrics.ListenAddress
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"BACKOFFICE_SESSION_TTL": &cfg.Backoffice.SessionTTL,
		"SYNC_INTERVAL":          &cfg.Sync.Interval,
	}
	for key, dst := range durations {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
	}

	ints := map[string]*int{
		"SYNC_DAILY_HOUR":   &cfg.Sync.DailyHour,
		"SYNC_MAX_PARALLEL": &cfg.Sync.MaxParallel,
	}
	for key, dst := range ints {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}
	return nil
}
