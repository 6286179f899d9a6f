// Package config loads autoprint's configuration from a file, the
// environment and command-line flags.
//
// Precedence, highest first: flags, AUTOPRINT_* environment variables, the
// configuration file, built-in defaults. Keys are dotted, e.g. printer.name
// is overridden by AUTOPRINT_PRINTER_NAME and by --printer.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/autoprint/autoprint/internal/autoprint"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AUTOPRINT"

// Config is the complete configuration.
type Config struct {
	Printer   PrinterConfig   `mapstructure:"printer"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Readiness ReadinessConfig `mapstructure:"readiness"`
	Log       LogConfig       `mapstructure:"log"`
	Feed      FeedConfig      `mapstructure:"feed"`

	source string
}

// PrinterConfig selects the print destination.
type PrinterConfig struct {
	Name         string        `mapstructure:"name"`
	Backend      string        `mapstructure:"backend"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RepeatCopies bool          `mapstructure:"repeat_copies"`

	// Host, Port and User address the IPP server for the ipp backend.
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	User string `mapstructure:"user"`
}

// WatchConfig selects the watched directory and the files to print.
type WatchConfig struct {
	Dir      string `mapstructure:"dir"`
	Pattern  string `mapstructure:"pattern"`
	MimeType string `mapstructure:"mime_type"`
	Dedupe   bool   `mapstructure:"dedupe"`
}

// ReadinessConfig tunes the readiness detector.
type ReadinessConfig struct {
	LockInterval    time.Duration `mapstructure:"lock_interval"`
	ContentInterval time.Duration `mapstructure:"content_interval"`
	ContentAttempts int           `mapstructure:"content_attempts"`
}

// LogConfig configures log output.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// FeedConfig configures the WebSocket event feed.
type FeedConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Default returns the built-in defaults. Required keys are left empty.
func Default() *Config {
	return &Config{
		Printer: PrinterConfig{
			Backend: "cups",
			Timeout: 30 * time.Second,
			Host:    "localhost",
			Port:    631,
		},
		Watch: WatchConfig{
			Dedupe: true,
		},
		Readiness: ReadinessConfig{
			LockInterval:    time.Second,
			ContentInterval: time.Second,
			ContentAttempts: 3,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Feed: FeedConfig{
			Port: 8787,
		},
	}
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"printer":   "printer.name",
	"backend":   "printer.backend",
	"dir":       "watch.dir",
	"pattern":   "watch.pattern",
	"mime":      "watch.mime_type",
	"feed":      "feed.enabled",
	"feed-port": "feed.port",
	"log-level": "log.level",
	"log-file":  "log.file",
}

// AddFlags defines the override flags understood by Load.
func AddFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("printer", "", "printer name (printer.name)")
	fs.String("backend", d.Printer.Backend, "print backend (printer.backend)")
	fs.String("dir", "", "directory to watch (watch.dir)")
	fs.String("pattern", "", "regular expression matched against the whole file name (watch.pattern)")
	fs.String("mime", "", "required MIME type, empty for any (watch.mime_type)")
	fs.Bool("feed", d.Feed.Enabled, "serve the WebSocket event feed (feed.enabled)")
	fs.Int("feed-port", d.Feed.Port, "event feed port (feed.port)")
	fs.String("log-level", d.Log.Level, "log level: debug, info, warn, error (log.level)")
	fs.String("log-file", "", "also write logs to this rotated file (log.file)")
}

// Load reads the configuration. An explicit path must exist; without one the
// file autoprint.{yaml,yml,toml,json} is searched in the working directory,
// the user configuration directory and /etc/autoprint, and a missing file is
// not an error. flags may be nil.
//
// Load does not validate the result; call Validate.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := newViper(path)
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	source, err := readConfig(v, path)
	if err != nil {
		return nil, err
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.source = source
	return cfg, nil
}

// SourceFile returns the file the configuration was read from, or "" if it
// came from defaults, the environment and flags only.
func (c *Config) SourceFile() string {
	return c.source
}

// Source returns the configuration file Load would read for path, or "" if
// none exists.
func Source(path string) string {
	source, err := readConfig(newViper(path), path)
	if errors.Is(err, fs.ErrNotExist) {
		return ""
	}
	// A file that exists but fails to parse is still the one Load reads.
	return source
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		return v
	}
	v.SetConfigName("autoprint")
	for _, dir := range searchPaths() {
		v.AddConfigPath(dir)
	}
	return v
}

// readConfig reads the file selected by newViper and returns its path. A
// missing file is only an error when path is explicit.
func readConfig(v *viper.Viper, path string) (string, error) {
	err := v.ReadInConfig()
	if err == nil {
		return v.ConfigFileUsed(), nil
	}

	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		if path == "" {
			return "", nil
		}
		return "", fmt.Errorf("failed to read config: %w: %w", fs.ErrNotExist, err)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to read config: %w", err)
	}
	return v.ConfigFileUsed(), fmt.Errorf("failed to read config: %w", err)
}

func searchPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "autoprint"))
	}
	return append(paths, "/etc/autoprint")
}

func setDefaults(v *viper.Viper) {
	for key, value := range Default().Map().flatten("") {
		v.SetDefault(key, value)
	}
}

// Validate checks every key needed to run the watcher.
func (c *Config) Validate() error {
	return errors.Join(c.ValidatePrinting(), c.validateWatch())
}

// ValidatePrinting checks the keys needed to print files without watching a
// directory.
func (c *Config) ValidatePrinting() error {
	var errs []error

	if c.Printer.Name == "" {
		errs = append(errs, errors.New("printer.name is required"))
	}
	if c.Printer.Backend == "" {
		errs = append(errs, errors.New("printer.backend is required"))
	}
	if c.Printer.Timeout < 0 {
		errs = append(errs, errors.New("printer.timeout must not be negative"))
	}
	if c.Printer.Port < 1 || c.Printer.Port > 65535 {
		errs = append(errs, fmt.Errorf("printer.port: %d out of range", c.Printer.Port))
	}

	if c.Readiness.LockInterval < 0 {
		errs = append(errs, errors.New("readiness.lock_interval must not be negative"))
	}
	if c.Readiness.ContentInterval < 0 {
		errs = append(errs, errors.New("readiness.content_interval must not be negative"))
	}
	if c.Readiness.ContentAttempts < 1 {
		errs = append(errs, errors.New("readiness.content_attempts must be at least 1"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: invalid level %q", c.Log.Level))
	}

	return errors.Join(errs...)
}

func (c *Config) validateWatch() error {
	var errs []error

	if c.Watch.Dir == "" {
		errs = append(errs, errors.New("watch.dir is required"))
	} else if info, err := os.Stat(c.Watch.Dir); err != nil {
		errs = append(errs, fmt.Errorf("watch.dir: %w", err))
	} else if !info.IsDir() {
		errs = append(errs, fmt.Errorf("watch.dir: %s is not a directory", c.Watch.Dir))
	}

	if c.Watch.Pattern == "" {
		errs = append(errs, errors.New("watch.pattern is required"))
	} else if _, err := regexp.Compile(c.Watch.Pattern); err != nil {
		errs = append(errs, fmt.Errorf("watch.pattern: %w", err))
	}

	if c.Feed.Port < 0 || c.Feed.Port > 65535 {
		errs = append(errs, fmt.Errorf("feed.port: %d out of range", c.Feed.Port))
	}

	return errors.Join(errs...)
}

// FeedEnabled reports whether the event feed should be served.
func (c *Config) FeedEnabled() bool {
	return c.Feed.Enabled && c.Feed.Port > 0
}

// Target compiles the watch settings into the loop's WatchTarget.
func (c *Config) Target() (autoprint.WatchTarget, error) {
	return autoprint.NewWatchTarget(c.Watch.Dir, c.Watch.Pattern, c.Watch.MimeType)
}
