// Package config loads the daemon's static configuration: where keys and
// manifests live on disk, which user signs by default, and where the
// control sockets are.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/wildland/wildland-go/internal/bytesize"
)

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry tracing and Pyroscope
// profiling, both off by default.
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
}

// MetricsConfig controls the Prometheus registry and its admin HTTP
// server, both off by default.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// Config is the Wildland daemon's static configuration.
type Config struct {
	// KeyDir holds the signing keypairs the Context loads at startup.
	KeyDir string `mapstructure:"key_dir" validate:"required" yaml:"key_dir"`

	// UserDir, ContainerDir, StorageDir and BridgeDir hold the local
	// manifest files this user manages, one YAML file per object.
	UserDir      string `mapstructure:"user_dir" validate:"required" yaml:"user_dir"`
	ContainerDir string `mapstructure:"container_dir" validate:"required" yaml:"container_dir"`
	StorageDir   string `mapstructure:"storage_dir" validate:"required" yaml:"storage_dir"`
	BridgeDir    string `mapstructure:"bridge_dir" validate:"required" yaml:"bridge_dir"`

	// DefaultUser is the fingerprint of the user signing new manifests
	// when none is given explicitly.
	DefaultUser string `mapstructure:"default_user" yaml:"default_user,omitempty"`

	// LocalHostname is the hostname this client accepts in `file://`
	// URLs it resolves locally (anything else is a different machine
	// and must go through a real storage backend).
	LocalHostname string `mapstructure:"local_hostname" yaml:"local_hostname,omitempty"`

	// LocalSigners lists the owner fingerprints this client trusts
	// enough to read their `file://` URLs straight off local disk.
	LocalSigners []string `mapstructure:"local_signers" yaml:"local_signers,omitempty"`

	// MountManifestsDir is where container manifests under mount
	// control are cached, so the daemon can resolve a container by
	// the path it was mounted at.
	MountManifestsDir string `mapstructure:"mount_manifests_dir" validate:"required" yaml:"mount_manifests_dir"`

	// ControlSocketPath is where the daemon listens for mount-control
	// commands (mount, unmount, paths, info, ...).
	ControlSocketPath string `mapstructure:"control_socket_path" validate:"required" yaml:"control_socket_path"`

	// SyncSocketPath is where the synchroniser daemon listens for its
	// own control protocol (start-sync, stop-sync, job-status).
	SyncSocketPath string `mapstructure:"sync_socket_path" validate:"required" yaml:"sync_socket_path"`

	// SyncDBPath is the sqlite file backing the per-(backend,path) hash
	// memory the synchroniser uses to detect conflicts.
	SyncDBPath string `mapstructure:"sync_db_path" validate:"required" yaml:"sync_db_path"`

	// HashCacheDir holds the BadgerDB instance caching (backend, path)
	// attribute tokens and content hashes, so repeated getattr/get_hash
	// calls against slow or metered backends don't re-fetch every time.
	HashCacheDir string `mapstructure:"hash_cache_dir" yaml:"hash_cache_dir,omitempty"`

	// HashCacheMaxSize sets the hash cache's Badger value log file size
	// (per file, not a limit on total disk use), parsed from strings like "256Mi" or "1Gi".
	HashCacheMaxSize bytesize.ByteSize `mapstructure:"hash_cache_max_size" yaml:"hash_cache_max_size,omitempty"`

	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// Load loads configuration from configPath (or the default location if
// empty), applying WILDLAND_<SECTION>_<KEY> environment overrides and
// falling back to Default() when no file is found.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := Default()
		return cfg, Validate(cfg)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(byteSizeDecodeHook())); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// Default returns a Config rooted under $XDG_CONFIG_HOME/wildland (or
// ~/.config/wildland), with every path field populated.
func Default() *Config {
	base := configDir()
	return &Config{
		KeyDir:            filepath.Join(base, "keys"),
		UserDir:           filepath.Join(base, "users"),
		ContainerDir:      filepath.Join(base, "containers"),
		StorageDir:        filepath.Join(base, "storage"),
		BridgeDir:         filepath.Join(base, "bridges"),
		MountManifestsDir: filepath.Join(base, "mount-manifests"),
		ControlSocketPath: filepath.Join(base, "wildland.sock"),
		SyncSocketPath:    filepath.Join(base, "wildland-sync.sock"),
		SyncDBPath:        filepath.Join(base, "sync.db"),
		HashCacheDir:      filepath.Join(base, "hashcache"),
		HashCacheMaxSize:  256 * bytesize.MiB,
		LocalHostname:     "localhost",
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stderr",
		},
		Telemetry: TelemetryConfig{
			Endpoint:   "localhost:4317",
			SampleRate: 1.0,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9477",
		},
	}
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.KeyDir == "" {
		cfg.KeyDir = def.KeyDir
	}
	if cfg.UserDir == "" {
		cfg.UserDir = def.UserDir
	}
	if cfg.ContainerDir == "" {
		cfg.ContainerDir = def.ContainerDir
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = def.StorageDir
	}
	if cfg.BridgeDir == "" {
		cfg.BridgeDir = def.BridgeDir
	}
	if cfg.MountManifestsDir == "" {
		cfg.MountManifestsDir = def.MountManifestsDir
	}
	if cfg.ControlSocketPath == "" {
		cfg.ControlSocketPath = def.ControlSocketPath
	}
	if cfg.SyncSocketPath == "" {
		cfg.SyncSocketPath = def.SyncSocketPath
	}
	if cfg.SyncDBPath == "" {
		cfg.SyncDBPath = def.SyncDBPath
	}
	if cfg.HashCacheDir == "" {
		cfg.HashCacheDir = def.HashCacheDir
	}
	if cfg.HashCacheMaxSize == 0 {
		cfg.HashCacheMaxSize = def.HashCacheMaxSize
	}
	if cfg.LocalHostname == "" {
		cfg.LocalHostname = def.LocalHostname
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = "127.0.0.1:9477"
	}
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(cfg)
}

// Save writes cfg as YAML to path, creating parent directories as
// needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize
// so config files can use human-readable sizes like "1Gi", "500Mi",
// "100MB" for HashCacheMaxSize, alongside plain byte counts.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("WILDLAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(configDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading config file: %w", err)
	}
	return true, nil
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "wildland")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "wildland")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}
