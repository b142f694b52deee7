package dbal

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.yaml.in/yaml/v3"
)

const (
	defaultCharset         = "utf8mb4"
	defaultConnection      = "default"
	defaultMigrationsTable = "migrations"
)

// Config holds the settings of one database connection.
type Config struct {
	Driver   string            `toml:"driver" yaml:"driver"` // mysql|pgsql|sqlite
	Host     string            `toml:"host" yaml:"host"`
	Port     int               `toml:"port" yaml:"port"`
	Database string            `toml:"database" yaml:"database"` // database name, or file path for sqlite
	Username string            `toml:"username" yaml:"username"`
	Password string            `toml:"password" yaml:"password"`
	Charset  string            `toml:"charset" yaml:"charset"`
	SSLMode  string            `toml:"sslmode" yaml:"sslmode"`
	Options  map[string]string `toml:"options" yaml:"options"` // extra driver DSN parameters
}

// Validate checks the driver-independent fields. Driver specific
// requirements are checked when the DSN is built.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Driver) == "" {
		return fmt.Errorf("%w: driver is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(c.Database) == "" {
		return fmt.Errorf("%w: database is required", ErrInvalidArgument)
	}
	if c.Port < 0 {
		return fmt.Errorf("%w: port must be non-negative", ErrInvalidArgument)
	}
	return nil
}

// File is the on-disk configuration: named connections plus migration
// and logging settings.
type File struct {
	Default     string            `toml:"default" yaml:"default"`
	Connections map[string]Config `toml:"connections" yaml:"connections"`
	Migrations  MigrationsConfig  `toml:"migrations" yaml:"migrations"`
	Log         LogConfig         `toml:"log" yaml:"log"`
	Lock        LockConfig        `toml:"lock" yaml:"lock"`
	Metrics     MetricsConfig     `toml:"metrics" yaml:"metrics"`

	// dir is the directory containing the config file, used to resolve relative paths.
	dir string
}

// MigrationsConfig controls where SQL migrations live and the ledger table name.
type MigrationsConfig struct {
	Dir   string `toml:"dir" yaml:"dir"`
	Table string `toml:"table" yaml:"table"`
}

// LogConfig selects the log level (debug|info|warn|error) and format (json|console).
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// LockConfig points migration runs at a shared Redis lock. An empty
// RedisAddr keeps the lock in-process.
type LockConfig struct {
	RedisAddr     string `toml:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `toml:"redis_password" yaml:"redis_password"`
	RedisDB       int    `toml:"redis_db" yaml:"redis_db"`
}

// MetricsConfig sends statement metrics to a Prometheus Pushgateway when
// Pushgateway is set.
type MetricsConfig struct {
	Pushgateway string `toml:"pushgateway" yaml:"pushgateway"`
	Job         string `toml:"job" yaml:"job"`
}

// LoadFile reads a TOML (.toml) or YAML (.yaml, .yml) config file and
// returns it with defaults applied.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var f File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		if unknown := md.Undecoded(); len(unknown) > 0 {
			keys := make([]string, len(unknown))
			for i, k := range unknown {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (want .toml, .yaml or .yml)", ext)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	f.dir = filepath.Dir(absPath)

	if err := f.applyDefaults(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) applyDefaults() error {
	if len(f.Connections) == 0 {
		return fmt.Errorf("%w: at least one connection is required", ErrInvalidArgument)
	}
	if f.Default == "" {
		if len(f.Connections) == 1 {
			for name := range f.Connections {
				f.Default = name
			}
		} else {
			f.Default = defaultConnection
		}
	}
	if _, ok := f.Connections[f.Default]; !ok {
		return fmt.Errorf("%w: default connection %q is not defined", ErrInvalidArgument, f.Default)
	}
	for name, c := range f.Connections {
		if c.Charset == "" {
			c.Charset = defaultCharset
		}
		if isSQLiteDriver(c.Driver) && c.Database != ":memory:" {
			c.Database = f.Resolve(c.Database)
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("connection %q: %w", name, err)
		}
		f.Connections[name] = c
	}
	if f.Migrations.Table == "" {
		f.Migrations.Table = defaultMigrationsTable
	}
	if f.Log.Level == "" {
		f.Log.Level = "info"
	}
	if f.Log.Format == "" {
		f.Log.Format = "console"
	}
	if f.Metrics.Job == "" {
		f.Metrics.Job = "dbal"
	}
	return nil
}

// Connection returns the named connection config, or the default one when
// name is empty.
func (f *File) Connection(name string) (Config, error) {
	if name == "" {
		name = f.Default
	}
	c, ok := f.Connections[name]
	if !ok {
		return Config{}, fmt.Errorf("%w: connection %q is not defined", ErrInvalidArgument, name)
	}
	return c, nil
}

// Resolve returns p relative to the config file directory unless it is absolute.
func (f *File) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || f.dir == "" {
		return p
	}
	return filepath.Join(f.dir, p)
}

func isSQLiteDriver(name string) bool {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}
