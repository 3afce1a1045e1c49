// Package config loads devsync's runtime configuration from environment
// variables, modeled on the teacher's internal/dns/config: koanf for
// layered loading (defaults then env overrides), go-playground/validator
// for structural validation.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	Log LoggingConfig `koanf:"log" validate:"required"`

	Vault VaultConfig `koanf:"vault" validate:"required"`

	Queue QueueConfig `koanf:"queue" validate:"required"`

	Cache CacheConfig `koanf:"cache" validate:"required"`

	Breaker BreakerConfig `koanf:"breaker" validate:"required"`

	Backup BackupConfig `koanf:"backup" validate:"required"`
}

// LoggingConfig controls the global structured logger.
type LoggingConfig struct {
	// Level defines the logging level: "debug", "info", "warn", or "error".
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
}

// VaultConfig locates the on-disk note vault and belief/state directories.
type VaultConfig struct {
	// Root is the vault root directory (OBSIDIAN_VAULT_PATH).
	Root string `koanf:"root" validate:"required"`
	// DailyDir is the per-date notes subdirectory name. Non-ASCII names
	// (e.g. Korean daily-notes directories) are accepted verbatim and
	// never ASCII-folded.
	DailyDir string `koanf:"daily_dir" validate:"required,pathsegment"`
	// StateDir resolves from UDO_STORAGE_DIR, UDO_HOME, or <home>/.udo.
	StateDir string `koanf:"state_dir" validate:"required"`
}

// QueueConfig controls the event debouncer window and bound.
type QueueConfig struct {
	// WindowSeconds is the debounce coalescing window in seconds.
	WindowSeconds int `koanf:"window_seconds" validate:"required,gte=1"`
	// MaxPending bounds in-memory pending events.
	MaxPending int `koanf:"max_pending" validate:"required,gte=1"`
}

// Window returns QueueConfig.WindowSeconds as a time.Duration.
func (q QueueConfig) Window() time.Duration {
	return time.Duration(q.WindowSeconds) * time.Second
}

// CacheConfig controls the bounded LRU cache's byte budget.
type CacheConfig struct {
	// MaxBytes is the total byte budget. 0 is invalid; use the package
	// default of 50 MiB if unset.
	MaxBytes int `koanf:"max_bytes" validate:"required,gte=1"`
}

// BreakerConfig controls the circuit breaker's trip/recovery behavior.
type BreakerConfig struct {
	FailureThreshold  int `koanf:"failure_threshold" validate:"required,gte=1"`
	RecoveryTimeoutMS int `koanf:"recovery_timeout_ms" validate:"required,gte=1"`
}

// RecoveryTimeout returns BreakerConfig.RecoveryTimeoutMS as a
// time.Duration.
func (b BreakerConfig) RecoveryTimeout() time.Duration {
	return time.Duration(b.RecoveryTimeoutMS) * time.Millisecond
}

// BackupConfig controls the periodic backup-event probe loop.
type BackupConfig struct {
	IntervalHours int `koanf:"interval_hours" validate:"required,gte=1"`
}

// Interval returns BackupConfig.IntervalHours as a time.Duration.
func (b BackupConfig) Interval() time.Duration {
	return time.Duration(b.IntervalHours) * time.Hour
}

// DEFAULT_APP_CONFIG defines the default configuration before environment
// overrides are applied.
var DEFAULT_APP_CONFIG = AppConfig{
	Env: "prod",
	Log: LoggingConfig{
		Level: "info",
	},
	Vault: VaultConfig{
		Root:     "",
		DailyDir: "daily",
		StateDir: "",
	},
	Queue: QueueConfig{
		WindowSeconds: 3,
		MaxPending:    10000,
	},
	Cache: CacheConfig{
		MaxBytes: 50 * 1024 * 1024,
	},
	Breaker: BreakerConfig{
		FailureThreshold:  5,
		RecoveryTimeoutMS: 60000,
	},
	Backup: BackupConfig{
		IntervalHours: 1,
	},
}

// validPathSegment rejects values containing the reserved filesystem
// characters a vault daily-dir name can never use; non-ASCII letters
// (Korean/CJK and otherwise) pass freely.
func validPathSegment(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	if v == "" {
		return false
	}
	return !strings.ContainsAny(v, `<>:"/\|?*`)
}

// envLoader loads environment variables with the "UDO_" prefix, lowercasing
// keys and mapping them to koanf's nested-struct addressing: only the first
// "_" becomes the section separator ("."), so a multi-word field name (e.g.
// "window_seconds" in QueueConfig) keeps its underscore instead of being
// split into bogus extra path segments. Variables are read from environ,
// not from the process environment.
var envLoader = func(k *koanf.Koanf, environ map[string]string) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "UDO_",
		EnvironFunc: func() []string {
			out := make([]string, 0, len(environ))
			for key, v := range environ {
				out = append(out, key+"="+v)
			}
			return out
		},
		TransformFunc: func(key, value string) (string, any) {
			trimmed := strings.ToLower(strings.TrimPrefix(key, "UDO_"))
			if section, field, ok := strings.Cut(trimmed, "_"); ok {
				trimmed = section + "." + field
			}
			return trimmed, strings.TrimSpace(value)
		},
	}), nil)
}

var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("pathsegment", validPathSegment)
}

// Load parses environment variables (UDO_*) over defaults, resolves the
// vault root and state directory from spec.md §6's fallback chain
// (OBSIDIAN_VAULT_PATH / UDO_STORAGE_DIR / UDO_HOME / <home>/.udo), and
// validates the result.
func Load(env map[string]string, homeDir string) (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}
	if err := envLoader(k, env); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	cfg.Vault.Root = resolveVaultRoot(env)
	cfg.Vault.StateDir = resolveStateDir(env, homeDir)

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("config: register validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}

// resolveVaultRoot implements OBSIDIAN_VAULT_PATH as the vault root,
// per spec.md §6.
func resolveVaultRoot(env map[string]string) string {
	return env["OBSIDIAN_VAULT_PATH"]
}

// resolveStateDir implements the fallback chain from spec.md §6:
// UDO_STORAGE_DIR, then UDO_HOME, then <home>/.udo.
func resolveStateDir(env map[string]string, homeDir string) string {
	if v := env["UDO_STORAGE_DIR"]; v != "" {
		return v
	}
	if v := env["UDO_HOME"]; v != "" {
		return v
	}
	return homeDir + string('/') + ".udo"
}

// ParseBool is a small helper matching the teacher's tolerant boolean
// environment parsing (used by callers building overrides by hand).
func ParseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
