package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, k := range []string{
		EnvConfigFile, EnvPort, EnvLogLevel, EnvLogFormat, EnvBackendURL,
		EnvMediaPrefix, EnvBackendTimeout, EnvMaxUploadBytes, EnvHeadless,
	} {
		t.Setenv(k, "")
	}
	t.Setenv(EnvDataDir, dir)
	return dir
}

func TestNew_Defaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.BackendURL() != DefaultBackendURL {
		t.Errorf("BackendURL() = %q", cfg.BackendURL())
	}
	if cfg.BackendTimeout() != DefaultBackendTimeout {
		t.Errorf("BackendTimeout() = %v", cfg.BackendTimeout())
	}
	if cfg.DBPath() != filepath.Join(dir, DBFilename) {
		t.Errorf("DBPath() = %q", cfg.DBPath())
	}
	if cfg.MediaPrefix() != "" || cfg.Headless() || cfg.SourceFile() != "" {
		t.Errorf("unexpected non-default values: %+v", cfg)
	}
}

func TestNew_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv(EnvPort, "9000")
	t.Setenv(EnvBackendURL, "http://analysis.local:8000/")
	t.Setenv(EnvBackendTimeout, "90s")
	t.Setenv(EnvHeadless, "true")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9000 {
		t.Errorf("Port() = %d, want 9000", cfg.Port())
	}
	if cfg.BackendURL() != "http://analysis.local:8000" {
		t.Errorf("BackendURL() = %q", cfg.BackendURL())
	}
	if cfg.BackendTimeout() != 90*time.Second {
		t.Errorf("BackendTimeout() = %v", cfg.BackendTimeout())
	}
	if !cfg.Headless() {
		t.Error("Headless() = false, want true")
	}
}

func TestNew_InvalidPort(t *testing.T) {
	isolate(t)
	for _, p := range []string{"abc", "0", "70000"} {
		t.Setenv(EnvPort, p)
		if _, err := New(); err == nil {
			t.Errorf("New() with %s=%q should fail", EnvPort, p)
		}
	}
}

func TestNew_YAMLFile(t *testing.T) {
	dir := isolate(t)
	yamlContent := `
server:
  port: 8123
log:
  level: debug
  format: console
backend:
  url: http://gpu-box:8000
  media_prefix: http://gpu-box:8000/static
  timeout: 10m
uploads:
  max_bytes: 1048576
  max_age: 2h
`
	if err := os.WriteFile(filepath.Join(dir, ConfigFilename), []byte(yamlContent), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 8123 || cfg.LogLevel() != "debug" || cfg.LogFormat() != "console" {
		t.Errorf("server/log = %d %s %s", cfg.Port(), cfg.LogLevel(), cfg.LogFormat())
	}
	if cfg.BackendURL() != "http://gpu-box:8000" || cfg.MediaPrefix() != "http://gpu-box:8000/static" {
		t.Errorf("backend = %s %s", cfg.BackendURL(), cfg.MediaPrefix())
	}
	if cfg.BackendTimeout() != 10*time.Minute {
		t.Errorf("BackendTimeout() = %v", cfg.BackendTimeout())
	}
	if cfg.MaxUploadBytes() != 1048576 || cfg.UploadMaxAge() != 2*time.Hour {
		t.Errorf("uploads = %d %v", cfg.MaxUploadBytes(), cfg.UploadMaxAge())
	}
	if cfg.SourceFile() == "" {
		t.Error("SourceFile() should name the loaded file")
	}
}

func TestNew_EnvBeatsYAML(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("backend:\n  url: http://from-yaml:8000\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigFile, path)
	t.Setenv(EnvBackendURL, "http://from-env:8000")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BackendURL() != "http://from-env:8000" {
		t.Errorf("BackendURL() = %q, want env value", cfg.BackendURL())
	}
}

func TestNew_ExplicitFileMissing(t *testing.T) {
	isolate(t)
	t.Setenv(EnvConfigFile, "/nonexistent/linecall.yaml")

	if _, err := New(); err == nil {
		t.Fatal("New() should fail when the named config file is missing")
	}
}

func TestNew_BadYAML(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, ConfigFilename), []byte("backend: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(); err == nil {
		t.Fatal("New() should fail on malformed YAML")
	}
}
