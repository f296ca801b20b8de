package cmn

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	c := Default()
	if c.Auth.Mode != AuthDisabled {
		t.Errorf("default auth mode = %s, want disabled", c.Auth.Mode)
	}
	if c.Storage.Root == "" || c.Compute.DockerHost == "" {
		t.Error("defaults missing storage root or docker host")
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.MaxPerWin <= 0 {
		t.Error("rate limit defaults not set")
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("STORAGE_ROOT", "/tmp/emustore")
	t.Setenv("SIGNED_URL_SECRET", "shh")
	t.Setenv("LIFECYCLE_INTERVAL_MINUTES", "3")
	t.Setenv("AUTH_MODE", "required")
	t.Setenv("RATE_LIMITING_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DOCKER_HOST", "tcp://10.0.0.9:2375")

	c, err := LoadFromEnv(Default())
	if err != nil {
		t.Fatal(err)
	}
	if c.Storage.Root != "/tmp/emustore" {
		t.Errorf("storage root = %s", c.Storage.Root)
	}
	if c.Storage.SignedURLSecret != "shh" {
		t.Errorf("secret not loaded")
	}
	if c.Storage.LifecycleInterval != 3*time.Minute {
		t.Errorf("lifecycle interval = %s", c.Storage.LifecycleInterval)
	}
	if c.Auth.Mode != AuthRequired {
		t.Errorf("auth mode = %s", c.Auth.Mode)
	}
	if c.RateLimit.Enabled {
		t.Error("rate limiting should be disabled")
	}
	if c.Compute.DockerHost != "tcp://10.0.0.9:2375" {
		t.Errorf("docker host = %s", c.Compute.DockerHost)
	}
}

func TestLoadFromEnvIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("LIFECYCLE_INTERVAL_MINUTES", "soon")
	c, err := LoadFromEnv(Default())
	if err != nil {
		t.Fatal(err)
	}
	if c.Storage.LifecycleInterval != Default().Storage.LifecycleInterval {
		t.Errorf("malformed interval changed the default: %s", c.Storage.LifecycleInterval)
	}
}

func TestLoadFromFileMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	fileCfg := map[string]interface{}{
		"log_level": "warning",
		"auth":      map[string]interface{}{"mode": "optional", "secret": "file-secret"},
	}
	raw, err := json.Marshal(fileCfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFromFile(path, Default())
	if err != nil {
		t.Fatal(err)
	}
	if c.Auth.Mode != AuthOptional || c.Auth.Secret != "file-secret" {
		t.Errorf("file auth section not merged: %+v", c.Auth)
	}
	if c.LogLevel != "warning" {
		t.Errorf("log level = %s", c.LogLevel)
	}
	// untouched sections keep their defaults
	if c.Compute.DockerHost != Default().Compute.DockerHost {
		t.Errorf("unrelated section clobbered: %s", c.Compute.DockerHost)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile("/does/not/exist.json", Default()); err == nil {
		t.Error("missing file should error")
	}
}
