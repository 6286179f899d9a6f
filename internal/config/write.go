package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Map is the configuration as nested sections of plain values, with
// durations rendered as strings such as "1s".
type Map map[string]any

// Map returns c as nested sections keyed like the configuration file.
func (c *Config) Map() Map {
	return Map{
		"printer": map[string]any{
			"name":          c.Printer.Name,
			"backend":       c.Printer.Backend,
			"timeout":       c.Printer.Timeout.String(),
			"repeat_copies": c.Printer.RepeatCopies,
			"host":          c.Printer.Host,
			"port":          c.Printer.Port,
			"user":          c.Printer.User,
		},
		"watch": map[string]any{
			"dir":       c.Watch.Dir,
			"pattern":   c.Watch.Pattern,
			"mime_type": c.Watch.MimeType,
			"dedupe":    c.Watch.Dedupe,
		},
		"readiness": map[string]any{
			"lock_interval":    c.Readiness.LockInterval.String(),
			"content_interval": c.Readiness.ContentInterval.String(),
			"content_attempts": c.Readiness.ContentAttempts,
		},
		"log": map[string]any{
			"level":        c.Log.Level,
			"file":         c.Log.File,
			"max_size_mb":  c.Log.MaxSizeMB,
			"max_backups":  c.Log.MaxBackups,
			"max_age_days": c.Log.MaxAgeDays,
		},
		"feed": map[string]any{
			"enabled": c.Feed.Enabled,
			"port":    c.Feed.Port,
		},
	}
}

// flatten returns the map keyed by dotted paths.
func (m Map) flatten(prefix string) map[string]any {
	out := make(map[string]any)
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if section, ok := v.(map[string]any); ok {
			for sk, sv := range Map(section).flatten(key) {
				out[sk] = sv
			}
			continue
		}
		out[key] = v
	}
	return out
}

// Encode serializes c as "yaml" or "toml".
func (c *Config) Encode(format string) ([]byte, error) {
	switch format {
	case "yaml", "yml":
		return yaml.Marshal(map[string]any(c.Map()))
	case "toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(map[string]any(c.Map())); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported config format %q (want yaml or toml)", format)
	}
}

// Write saves c to path in the format given by its extension. Parent
// directories are created as needed.
func Write(path string, c *Config) error {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	data, err := c.Encode(format)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
