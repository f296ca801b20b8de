package cmn

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/imdario/mergo"
)

// AuthMode selects one of the pipeline's three auth modes.
type AuthMode string

const (
	AuthDisabled AuthMode = "disabled"
	AuthOptional AuthMode = "optional"
	AuthRequired AuthMode = "required"
)

// Config is the process-wide configuration, loaded once at startup and
// held behind the owner in internal/app: one struct, nested per
// subsystem, JSON-tagged so it can be dumped, loaded, and diffed.
type Config struct {
	Storage struct {
		Root              string `json:"storage_root"`
		EmulatorHost      string `json:"storage_emulator_host"`
		SignedURLSecret   string `json:"signed_url_secret"`
		LifecycleInterval time.Duration `json:"lifecycle_interval"`
	} `json:"storage"`

	Auth struct {
		Mode   AuthMode `json:"mode"`
		Secret string   `json:"secret"` // HMAC secret for bearer JWTs
	} `json:"auth"`

	RateLimit struct {
		Enabled    bool          `json:"enabled"`
		Window     time.Duration `json:"window"`
		MaxPerWin  int           `json:"max_per_window"`
		RedisAddr  string        `json:"redis_addr"` // optional remote counter store
	} `json:"rate_limit"`

	Compute struct {
		DockerHost        string        `json:"docker_host"`
		CallTimeout       time.Duration `json:"call_timeout"`
		ReconcileInterval time.Duration `json:"reconcile_interval"`
	} `json:"compute"`

	LogLevel string `json:"log_level"`
}

// Default returns the baseline configuration; environment and explicit
// overrides are merged on top of it with mergo, section by section.
func Default() *Config {
	c := &Config{}
	c.Storage.Root = "/var/lib/cloudemu"
	c.Storage.LifecycleInterval = 15 * time.Minute
	c.Auth.Mode = AuthDisabled
	c.RateLimit.Enabled = true
	c.RateLimit.Window = time.Minute
	c.RateLimit.MaxPerWin = 600
	c.Compute.DockerHost = "unix:///var/run/docker.sock"
	c.Compute.CallTimeout = 10 * time.Second
	c.Compute.ReconcileInterval = 5 * time.Second
	c.LogLevel = "info"
	return c
}

// LoadFromEnv overlays the recognized environment variables onto base
// using mergo.WithOverride so a non-zero env value always wins.
func LoadFromEnv(base *Config) (*Config, error) {
	override := &Config{}
	*override = *base

	if v := os.Getenv("STORAGE_ROOT"); v != "" {
		override.Storage.Root = v
	}
	if v := os.Getenv("STORAGE_EMULATOR_HOST"); v != "" {
		override.Storage.EmulatorHost = v
	}
	if v := os.Getenv("SIGNED_URL_SECRET"); v != "" {
		override.Storage.SignedURLSecret = v
	}
	if v := os.Getenv("LIFECYCLE_INTERVAL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			override.Storage.LifecycleInterval = time.Duration(n) * time.Minute
		}
	}
	if v := os.Getenv("AUTH_MODE"); v != "" {
		override.Auth.Mode = AuthMode(v)
	}
	if v := os.Getenv("RATE_LIMITING_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			override.RateLimit.Enabled = b
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		override.LogLevel = v
	}
	if v := os.Getenv("DOCKER_HOST"); v != "" {
		override.Compute.DockerHost = v
	}

	merged := &Config{}
	*merged = *base
	if err := mergo.Merge(merged, override, mergo.WithOverride); err != nil {
		return nil, WrapInternal(err, "merge environment overrides into config")
	}
	// mergo skips zero values, so RATE_LIMITING_ENABLED=false would be lost
	// in the merge; carry the flag over directly.
	merged.RateLimit.Enabled = override.RateLimit.Enabled
	return merged, nil
}

// LoadFromFile reads a JSON config file and merges it over base. One
// file plus environment is all this emulator needs.
func LoadFromFile(path string, base *Config) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, WrapInternal(err, "open config file %s", path)
	}
	defer f.Close()

	fileCfg := &Config{}
	if err := json.NewDecoder(f).Decode(fileCfg); err != nil {
		return nil, WrapInternal(err, "decode config file %s", path)
	}

	merged := &Config{}
	*merged = *base
	if err := mergo.Merge(merged, fileCfg, mergo.WithOverride); err != nil {
		return nil, WrapInternal(err, "merge file config into defaults")
	}
	return merged, nil
}
