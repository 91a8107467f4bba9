package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if !cfg.Logging.ToStdout {
		t.Fatal("expected stdout logging by default")
	}
	if cfg.Logging.Level != "INFO" {
		t.Fatalf("expected default level INFO; got %s", cfg.Logging.Level)
	}
	if cfg.Device.Type != "all" {
		t.Fatalf("expected default device type all; got %s", cfg.Device.Type)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
logging:
  to_stdout: false
  level: DEBUG
  file: /tmp/lidar.log
device:
  type: gpu
  match: NVIDIA
kernels:
  dir: /opt/lidar/kernels
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.ToStdout {
		t.Fatal("expected stdout logging to be disabled")
	}
	if cfg.Logging.Level != "DEBUG" || cfg.Logging.File != "/tmp/lidar.log" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
	if cfg.Device.Type != "gpu" || cfg.Device.Match != "NVIDIA" {
		t.Fatalf("unexpected device config: %+v", cfg.Device)
	}
	if cfg.Kernels.Dir != "/opt/lidar/kernels" {
		t.Fatalf("unexpected kernel dir: %s", cfg.Kernels.Dir)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LIDAR_KERNEL_DIR", "/env/kernels")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected an explicit missing file to fail")
	}

	cfg, err = Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Kernels.Dir != "/env/kernels" {
		t.Fatalf("expected env override; got %s", cfg.Kernels.Dir)
	}
}
