package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
service = "anomaly-svc"
version = "1.2.3"

[detector]
name = "latency"
trees = 50
max_depth = 8
seed = 7
threshold = 2.5

[log]
level = "debug"

[metrics]
enabled = true
port = "9191"
`)

	var conf Config
	if err := Load(path, &conf); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if conf.Service != "anomaly-svc" {
		t.Errorf("Service = %q, want anomaly-svc", conf.Service)
	}
	if conf.Detector.Trees != 50 || conf.Detector.MaxDepth != 8 {
		t.Errorf("Detector = %+v, want trees=50 max_depth=8", conf.Detector)
	}
	if conf.Detector.Seed != 7 || conf.Detector.Threshold != 2.5 {
		t.Errorf("Detector = %+v, want seed=7 threshold=2.5", conf.Detector)
	}
	if conf.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", conf.Log.Level)
	}
	if !conf.Metrics.Enabled || conf.Metrics.Port != "9191" {
		t.Errorf("Metrics = %+v, want enabled on port 9191", conf.Metrics)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[detector]
threshold = 1.0
`)

	var conf Config
	if err := Load(path, &conf); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if conf.Service != "iforest" {
		t.Errorf("Service default = %q, want iforest", conf.Service)
	}
	if conf.Detector.Trees != 100 || conf.Detector.MaxDepth != 10 {
		t.Errorf("Detector defaults = %+v, want trees=100 max_depth=10", conf.Detector)
	}
	if conf.Log.Level != "info" {
		t.Errorf("Log.Level default = %q, want info", conf.Log.Level)
	}
}

func TestLoadValidationFailure(t *testing.T) {
	path := writeConfig(t, `
[detector]
trees = 0
`)

	var conf Config
	if err := Load(path, &conf); err == nil {
		t.Fatal("expected validation error for trees = 0")
	}
}

func TestLoadInvalidLogLevel(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "verbose"
`)

	var conf Config
	if err := Load(path, &conf); err == nil {
		t.Fatal("expected validation error for unknown log level")
	}
}

func TestDefault(t *testing.T) {
	conf := Default()
	if conf.Detector.Trees != 100 || conf.Detector.MaxDepth != 10 {
		t.Errorf("Default() detector = %+v, want trees=100 max_depth=10", conf.Detector)
	}
	if conf.Service != "iforest" {
		t.Errorf("Default() service = %q, want iforest", conf.Service)
	}
}
