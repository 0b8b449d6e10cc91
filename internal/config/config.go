package config

import (
	"errors"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config represents the root configuration structure for the application
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	GC          GCConfig          `mapstructure:"gc"`
	Log         LogConfig         `mapstructure:"log"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// GCConfig defines the parameters for the background active expiration
type GCConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Interval        time.Duration `mapstructure:"interval"`          // how often to run the background check
	SamplesPerCheck int           `mapstructure:"samples_per_check"` // how many keys to check per loop
	MatchThreshold  float64       `mapstructure:"match_threshold"`   // 0.0-1.0. if expired/scanned > threshold, repeat immediately
}

// ServerConfig holds the network settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	MaxClients      int64         `mapstructure:"max_clients"`      // 0 means unbounded
	ReadBuffer      int           `mapstructure:"read_buffer"`      // per connection, bounds one protocol line
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"` // how long to wait for connections to drain
}

// StorageConfig defines the internal structure of the storage engine
type StorageConfig struct {
	Shards uint `mapstructure:"shards"`
}

// LogConfig defines logging verbosity and output style
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// PersistenceConfig defines settings of AOF and snapshot methods
type PersistenceConfig struct {
	AOF      AOFConfig      `mapstructure:"aof"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
}

// AOFConfig defines settings of AOF method
type AOFConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Filename string `mapstructure:"filename"`
	Fsync    string `mapstructure:"fsync"` // always, everysec, no
}

// SnapshotConfig defines settings of the line-oriented snapshot
type SnapshotConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Filename string        `mapstructure:"filename"`
	Interval time.Duration `mapstructure:"interval"` // 0 disables autosave
}

// MetricsConfig defines the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// Source binds a viper instance to a config directory, the environment and explicit overrides
type Source struct {
	v *viper.Viper
}

// NewSource prepares a Source reading config.yaml from path
func NewSource(path string) *Source {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.AddConfigPath(".")

	v.SetEnvPrefix("LETTUCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Source{v: v}
}

// Override forces key to value, above file and environment
func (s *Source) Override(key string, value any) {
	s.v.Set(key, value)
}

// Load reads the configuration from a file and overrides it with environment variables
func (s *Source) Load() (*Config, error) {
	if err := s.v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, err
		}
	}

	return s.unmarshal()
}

// Watch calls onChange with the re-read configuration every time the config file is written.
// Returns false when no config file was found, so there is nothing to watch
func (s *Source) Watch(onChange func(cfg *Config, err error)) bool {
	if s.v.ConfigFileUsed() == "" {
		return false
	}

	s.v.OnConfigChange(func(event fsnotify.Event) {
		if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
			return
		}
		onChange(s.unmarshal())
	})
	s.v.WatchConfig()

	return true
}

// File returns the config file in use, empty if none was found
func (s *Source) File() string {
	return s.v.ConfigFileUsed()
}

func (s *Source) unmarshal() (*Config, error) {
	var cfg Config
	if err := s.v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Load reads the configuration found in path
func Load(path string) (*Config, error) {
	return NewSource(path).Load()
}

// setDefaults populates viper with fallback values if they are not provided via file or ENV
func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "6379")
	v.SetDefault("server.max_clients", 0)
	v.SetDefault("server.read_buffer", 1024)
	v.SetDefault("server.shutdown_timeout", "5s")

	// Storage
	v.SetDefault("storage.shards", 32)

	// GC
	v.SetDefault("gc.enabled", true)
	v.SetDefault("gc.interval", "100ms")
	v.SetDefault("gc.samples_per_check", 20)
	v.SetDefault("gc.match_threshold", 0.25)

	// Logger
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Persistence
	v.SetDefault("persistence.aof.enabled", false)
	v.SetDefault("persistence.aof.filename", "appendonly.aof")
	v.SetDefault("persistence.aof.fsync", "everysec")

	v.SetDefault("persistence.snapshot.enabled", true)
	v.SetDefault("persistence.snapshot.filename", "dump.my_rdb")
	v.SetDefault("persistence.snapshot.interval", "300s")

	// Metrics
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", "127.0.0.1:9121")
}
