package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PROMPTWATCH_"

// ApplyEnv applies PROMPTWATCH_* overrides to cfg. Values come from the
// process environment, then from envFile when it exists. The file is read
// afresh on every call and never copied into the environment, so an edited
// file takes effect on the next call while real variables still win.
func ApplyEnv(cfg *Config, envFile string) error {
	fileVals := map[string]string{}
	if envFile != "" {
		vals, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}
		if vals != nil {
			fileVals = vals
		}
	}
	lookup := func(name string) (string, bool) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			return v, true
		}
		v := fileVals[EnvPrefix+name]
		return v, v != ""
	}

	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		v, ok := lookup(name)
		if !ok {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = n
	}
	dur := func(name string, dst *Duration) {
		v, ok := lookup(name)
		if !ok {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		dst.Duration = d
	}
	list := func(name string, dst *[]string) {
		v, ok := lookup(name)
		if !ok {
			return
		}
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*dst = out
	}

	dur("SCAN_INTERVAL", &cfg.ScanInterval)
	dur("CAPTURE_TIMEOUT", &cfg.CaptureTimeout)
	dur("DEDUP_RETENTION", &cfg.DedupRetention)
	str("CAPTURE_METHOD", &cfg.CaptureMethod)
	num("BUFFER_SIZE", &cfg.BufferSize)
	num("DEDUP_CACHE_SIZE", &cfg.DedupCacheSize)
	num("HISTORY_SIZE", &cfg.HistorySize)
	str("PROJECT_NAME", &cfg.ProjectName)
	str("PROJECT_GOAL", &cfg.ProjectGoal)
	list("LABELS", &cfg.Labels)
	str("TRANSPORT", &cfg.Transport)
	str("HELPER_IMAGE", &cfg.HelperImage)
	str("STORAGE", &cfg.Storage)
	str("DATABASE_PATH", &cfg.DatabasePath)
	str("MONGO_URI", &cfg.MongoURI)
	str("MONGO_DATABASE", &cfg.MongoDatabase)
	str("METRICS_ADDR", &cfg.MetricsAddr)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	return errors.Join(errs...)
}

// Validate checks the enumerated settings.
func (c Config) Validate() error {
	var errs []error
	oneOf := func(field, v string, allowed ...string) {
		for _, a := range allowed {
			if v == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(allowed, ", "), v))
	}
	oneOf("capture_method", c.CaptureMethod, "auto", "direct", "script")
	oneOf("transport", c.Transport, "docker", "local")
	oneOf("storage", c.Storage, "sqlite", "mongo", "memory")
	oneOf("log_format", c.LogFormat, "text", "json")
	if c.Storage == "mongo" && c.MongoURI == "" {
		errs = append(errs, errors.New("mongo_uri is required when storage is mongo"))
	}
	if c.ScanInterval.Duration <= 0 {
		errs = append(errs, errors.New("scan_interval must be positive"))
	}
	return errors.Join(errs...)
}
