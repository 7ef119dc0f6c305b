package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// ProjectFile is the per-project config file name.
const ProjectFile = ".promptwatchconfig"

// Config holds all configurable promptwatch settings.
type Config struct {
	ScanInterval   Duration `json:"scan_interval"`
	CaptureTimeout Duration `json:"capture_timeout"`
	CaptureMethod  string   `json:"capture_method"` // "auto" | "direct" | "script"
	BufferSize     int      `json:"buffer_size"`    // bytes kept per session
	DedupCacheSize int      `json:"dedup_cache_size"`
	DedupRetention Duration `json:"dedup_retention"`
	HistorySize    int      `json:"history_size"`
	AllowList      []string `json:"allow_list"`

	HumanPattern       string `json:"human_pattern"`
	AssistantPattern   string `json:"assistant_pattern"`
	ShellPromptPattern string `json:"shell_prompt_pattern"`
	FlushOpen          *bool  `json:"flush_open"`

	ProjectName string   `json:"project_name"`
	ProjectGoal string   `json:"project_goal"`
	Labels      []string `json:"labels"`

	Transport     string `json:"transport"` // "docker" | "local"
	HelperImage   string `json:"helper_image"`
	Storage       string `json:"storage"` // "sqlite" | "mongo" | "memory"
	DatabasePath  string `json:"database_path"`
	MongoURI      string `json:"mongo_uri"`
	MongoDatabase string `json:"mongo_database"`
	MetricsAddr   string `json:"metrics_addr"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"` // "text" | "json"
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	flush := true
	return Config{
		ScanInterval:   Duration{5 * time.Second},
		CaptureTimeout: Duration{time.Second},
		CaptureMethod:  "auto",
		BufferSize:     256 * 1024,
		DedupCacheSize: 100,
		DedupRetention: Duration{24 * time.Hour},
		HistorySize:    50,
		AllowList:      []string{},
		FlushOpen:      &flush,
		Labels:         []string{},
		Transport:      "docker",
		HelperImage:    "alpine:3.20",
		Storage:        "sqlite",
		MongoDatabase:  "promptwatch",
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// GlobalPath returns ~/.config/promptwatch/config.json.
func GlobalPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "promptwatch", "config.json"), nil
}

// LoadGlobal reads ~/.config/promptwatch/config.json.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	path, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return loadFile(path, true)
}

// LoadProject reads .promptwatchconfig in dir.
// Returns nil (no error) if the file is absent.
func LoadProject(dir string) (*Config, error) {
	return loadFile(filepath.Join(dir, ProjectFile), false)
}

// loadFile reads and parses a JSON config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	overlay(&result, global)
	overlay(&result, project)
	return result
}

// overlay copies every set field of src onto dst.
func overlay(dst, src *Config) {
	if src == nil {
		return
	}
	setDuration(&dst.ScanInterval, src.ScanInterval)
	setDuration(&dst.CaptureTimeout, src.CaptureTimeout)
	setDuration(&dst.DedupRetention, src.DedupRetention)
	setString(&dst.CaptureMethod, src.CaptureMethod)
	setInt(&dst.BufferSize, src.BufferSize)
	setInt(&dst.DedupCacheSize, src.DedupCacheSize)
	setInt(&dst.HistorySize, src.HistorySize)
	if len(src.AllowList) > 0 {
		dst.AllowList = src.AllowList
	}
	setString(&dst.HumanPattern, src.HumanPattern)
	setString(&dst.AssistantPattern, src.AssistantPattern)
	setString(&dst.ShellPromptPattern, src.ShellPromptPattern)
	if src.FlushOpen != nil {
		v := *src.FlushOpen
		dst.FlushOpen = &v
	}
	setString(&dst.ProjectName, src.ProjectName)
	setString(&dst.ProjectGoal, src.ProjectGoal)
	if len(src.Labels) > 0 {
		dst.Labels = src.Labels
	}
	setString(&dst.Transport, src.Transport)
	setString(&dst.HelperImage, src.HelperImage)
	setString(&dst.Storage, src.Storage)
	setString(&dst.DatabasePath, src.DatabasePath)
	setString(&dst.MongoURI, src.MongoURI)
	setString(&dst.MongoDatabase, src.MongoDatabase)
	setString(&dst.MetricsAddr, src.MetricsAddr)
	setString(&dst.LogLevel, src.LogLevel)
	setString(&dst.LogFormat, src.LogFormat)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *Duration, v Duration) {
	if v.Duration != 0 {
		*dst = v
	}
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
