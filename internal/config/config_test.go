package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// Config merge precedence: project over global over defaults.
func TestConfigMergePrecedence(t *testing.T) {
	// Generator for a non-empty string field value.
	nonEmptyString := rapid.StringMatching(`[a-zA-Z0-9/_.-]{1,20}`)

	configGen := rapid.Custom(func(t *rapid.T) *Config {
		// Each field is independently either empty or a non-empty value.
		cfg := &Config{}
		if rapid.Bool().Draw(t, "hasProjectName") {
			cfg.ProjectName = nonEmptyString.Draw(t, "projectName")
		}
		if rapid.Bool().Draw(t, "hasStorage") {
			cfg.Storage = nonEmptyString.Draw(t, "storage")
		}
		if rapid.Bool().Draw(t, "hasHelperImage") {
			cfg.HelperImage = nonEmptyString.Draw(t, "helperImage")
		}
		if rapid.Bool().Draw(t, "hasScanInterval") {
			cfg.ScanInterval = Duration{time.Duration(rapid.IntRange(1, 600).Draw(t, "scanInterval")) * time.Second}
		}
		return cfg
	})

	rapid.Check(t, func(t *rapid.T) {
		global := configGen.Draw(t, "global")
		project := configGen.Draw(t, "project")

		merged := Merge(global, project)
		defaults := Defaults()

		checkStringField(t, "ProjectName",
			global.ProjectName, project.ProjectName, defaults.ProjectName,
			merged.ProjectName)
		checkStringField(t, "Storage",
			global.Storage, project.Storage, defaults.Storage,
			merged.Storage)
		checkStringField(t, "HelperImage",
			global.HelperImage, project.HelperImage, defaults.HelperImage,
			merged.HelperImage)
		checkStringField(t, "ScanInterval",
			durString(global.ScanInterval), durString(project.ScanInterval), durString(defaults.ScanInterval),
			durString(merged.ScanInterval))
	})
}

func durString(d Duration) string {
	if d.Duration == 0 {
		return ""
	}
	return d.String()
}

// checkStringField asserts the merge precedence rule for a single string field:
//   - project non-empty  → merged == project
//   - project empty, global non-empty → merged == global
//   - both empty → merged == defaultVal
func checkStringField(t *rapid.T, name, globalVal, projectVal, defaultVal, mergedVal string) {
	t.Helper()
	switch {
	case projectVal != "":
		if mergedVal != projectVal {
			t.Fatalf("%s: both set, expected project value %q, got %q", name, projectVal, mergedVal)
		}
	case globalVal != "":
		if mergedVal != globalVal {
			t.Fatalf("%s: only global set, expected global value %q, got %q", name, globalVal, mergedVal)
		}
	default:
		if mergedVal != defaultVal {
			t.Fatalf("%s: neither set, expected default %q, got %q", name, defaultVal, mergedVal)
		}
	}
}

func TestMergeFlushOpen(t *testing.T) {
	off := false
	merged := Merge(nil, &Config{FlushOpen: &off})
	if merged.FlushOpen == nil || *merged.FlushOpen {
		t.Errorf("FlushOpen = %v, want false", merged.FlushOpen)
	}
	if d := Merge(nil, nil); d.FlushOpen == nil || !*d.FlushOpen {
		t.Error("FlushOpen should default to true")
	}
}

func TestDefaultsValues(t *testing.T) {
	d := Defaults()
	if d.ScanInterval.Duration != 5*time.Second {
		t.Errorf("ScanInterval: want 5s, got %s", d.ScanInterval)
	}
	if d.Storage != "sqlite" || d.Transport != "docker" || d.CaptureMethod != "auto" {
		t.Errorf("Defaults = %+v", d)
	}
	if d.AllowList == nil || len(d.AllowList) != 0 {
		t.Errorf("AllowList: want empty slice, got %v", d.AllowList)
	}
	if err := d.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadGlobalMissingFileReturnsDefaults(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)

	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config, got nil")
	}
	if cfg.Storage != Defaults().Storage {
		t.Errorf("Storage: want %q, got %q", Defaults().Storage, cfg.Storage)
	}
}

func TestLoadProjectMissingFileReturnsNil(t *testing.T) {
	cfg, err := LoadProject(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Errorf("expected nil config, got %+v", cfg)
	}
}

func TestLoadProjectReadsDurations(t *testing.T) {
	dir := t.TempDir()
	body := `{"scan_interval": "2s", "capture_timeout": 0.5, "project_name": "demo"}`
	if err := os.WriteFile(filepath.Join(dir, ProjectFile), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadProject(dir)
	if err != nil {
		t.Fatalf("LoadProject: %v", err)
	}
	if cfg.ScanInterval.Duration != 2*time.Second || cfg.CaptureTimeout.Duration != 500*time.Millisecond || cfg.ProjectName != "demo" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadGlobalParseError(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)

	// Write an invalid JSON file where LoadGlobal expects it.
	cfgDir := filepath.Join(tmp, ".config", "promptwatch")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte("{invalid json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadGlobal()
	if err == nil {
		t.Fatal("expected an error for invalid JSON, got nil")
	}
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("expected *ParseError, got %T: %v", err, err)
	}
}

func TestDurationJSON(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte(`"1m30s"`), &d); err != nil || d.Duration != 90*time.Second {
		t.Errorf("string form = %v, %v", d, err)
	}
	if err := json.Unmarshal([]byte(`3`), &d); err != nil || d.Duration != 3*time.Second {
		t.Errorf("number form = %v, %v", d, err)
	}
	if err := json.Unmarshal([]byte(`"soon"`), &d); err == nil {
		t.Error("expected error for bad duration")
	}
	out, err := json.Marshal(Duration{5 * time.Second})
	if err != nil || string(out) != `"5s"` {
		t.Errorf("Marshal = %s, %v", out, err)
	}
}

func TestApplyEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	body := "PROMPTWATCH_PROJECT_NAME=from-file\nPROMPTWATCH_STORAGE=memory\n"
	if err := os.WriteFile(envFile, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PROMPTWATCH_STORAGE", "mongo")
	t.Setenv("PROMPTWATCH_SCAN_INTERVAL", "750ms")
	t.Setenv("PROMPTWATCH_LABELS", "a, b,,c")

	cfg := Defaults()
	if err := ApplyEnv(&cfg, envFile); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.ProjectName != "from-file" {
		t.Errorf("ProjectName = %q, want value from .env", cfg.ProjectName)
	}
	if cfg.Storage != "mongo" {
		t.Errorf("Storage = %q, environment should win over .env", cfg.Storage)
	}
	if cfg.ScanInterval.Duration != 750*time.Millisecond {
		t.Errorf("ScanInterval = %s", cfg.ScanInterval)
	}
	if len(cfg.Labels) != 3 || cfg.Labels[2] != "c" {
		t.Errorf("Labels = %v", cfg.Labels)
	}
}

func TestApplyEnvRereadsEditedFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	write := func(body string) {
		t.Helper()
		if err := os.WriteFile(envFile, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	write("PROMPTWATCH_PROJECT_NAME=first\nPROMPTWATCH_HISTORY_SIZE=7\n")
	cfg := Defaults()
	if err := ApplyEnv(&cfg, envFile); err != nil {
		t.Fatalf("first ApplyEnv: %v", err)
	}
	if cfg.ProjectName != "first" || cfg.HistorySize != 7 {
		t.Fatalf("after first load: ProjectName=%q HistorySize=%d", cfg.ProjectName, cfg.HistorySize)
	}
	if _, ok := os.LookupEnv("PROMPTWATCH_PROJECT_NAME"); ok {
		t.Error(".env values leaked into the process environment")
	}

	write("PROMPTWATCH_PROJECT_NAME=second\n")
	cfg = Defaults()
	if err := ApplyEnv(&cfg, envFile); err != nil {
		t.Fatalf("second ApplyEnv: %v", err)
	}
	if cfg.ProjectName != "second" {
		t.Errorf("ProjectName after editing .env = %q, want second", cfg.ProjectName)
	}
	if cfg.HistorySize != Defaults().HistorySize {
		t.Errorf("HistorySize = %d, removed key should fall back to the default", cfg.HistorySize)
	}
}

func TestApplyEnvErrors(t *testing.T) {
	t.Setenv("PROMPTWATCH_BUFFER_SIZE", "lots")
	cfg := Defaults()
	if err := ApplyEnv(&cfg, filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("expected error for non-numeric buffer size")
	}
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Storage = "mongo"
	cfg.CaptureMethod = "telepathy"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"capture_method", "mongo_uri"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}
