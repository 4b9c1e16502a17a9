package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the papercut client configuration.
// Priority: flags > env vars > settings file > defaults.
type Config struct {
	ServerURL      string   `json:"server_url" yaml:"server_url"`
	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout"`
	ExportDir      string   `json:"export_dir" yaml:"export_dir"`
	LogLevel       string   `json:"log_level" yaml:"log_level"`
	LogFormat      string   `json:"log_format" yaml:"log_format"`
	LogFile        string   `json:"log_file" yaml:"log_file"`
	JournalPath    string   `json:"journal_path" yaml:"journal_path"`
	Heartbeat      string   `json:"heartbeat" yaml:"heartbeat"`
	PrintCommand   string   `json:"print_command" yaml:"print_command"`
	ToastTTL       Duration `json:"toast_ttl" yaml:"toast_ttl"`
	DismissDelay   Duration `json:"dismiss_delay" yaml:"dismiss_delay"`
}

// Duration accepts "30s" style strings or integer milliseconds in settings files.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*d = Duration(time.Duration(v) * time.Millisecond)
		return nil
	case string:
		return d.parse(v)
	default:
		return fmt.Errorf("invalid duration %s", b)
	}
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if n, err := strconv.ParseInt(node.Value, 10, 64); err == nil {
		*d = Duration(time.Duration(n) * time.Millisecond)
		return nil
	}
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func defaultConfig() Config {
	return Config{
		ServerURL:      "http://localhost:5000",
		RequestTimeout: Duration(30 * time.Second),
		ExportDir:      ".",
		LogLevel:       "info",
		LogFormat:      "text",
		Heartbeat:      "@every 10s",
		ToastTTL:       Duration(3000 * time.Millisecond),
		DismissDelay:   Duration(300 * time.Millisecond),
	}
}

func papercutDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".papercut"
	}
	return filepath.Join(home, ".papercut")
}

// settingsPaths lists the settings files probed when no explicit path is given.
func settingsPaths() []string {
	dir := papercutDir()
	return []string{
		filepath.Join(dir, "settings.yaml"),
		filepath.Join(dir, "settings.yml"),
		filepath.Join(dir, "settings.json"),
	}
}

// dotenvFiles lists the .env files consulted for PAPERCUT_* values, nearest first.
func dotenvFiles() []string {
	return []string{".env", filepath.Join(papercutDir(), ".env")}
}

// envLookup returns a getenv that answers from the process environment and
// falls back to the given .env files. Earlier files win; missing ones are skipped.
func envLookup(files ...string) (func(string) string, error) {
	vals := map[string]string{}
	for _, f := range files {
		m, err := godotenv.Read(f)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		for k, v := range m {
			if _, seen := vals[k]; !seen {
				vals[k] = v
			}
		}
	}
	return func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return vals[key]
	}, nil
}

// loadConfig layers defaults, the settings file and env vars. An explicit
// path must exist; the default locations are skipped when missing.
func loadConfig(path string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()

	candidates := settingsPaths()
	if path != "" {
		candidates = []string{path}
	}
	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err != nil {
			if path != "" {
				return cfg, fmt.Errorf("read config: %w", err)
			}
			continue
		}
		if err := decodeSettings(p, data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", p, err)
		}
		break
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeSettings(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	strs := map[string]*string{
		"PAPERCUT_SERVER_URL":    &cfg.ServerURL,
		"PAPERCUT_EXPORT_DIR":    &cfg.ExportDir,
		"PAPERCUT_LOG_LEVEL":     &cfg.LogLevel,
		"PAPERCUT_LOG_FORMAT":    &cfg.LogFormat,
		"PAPERCUT_LOG_FILE":      &cfg.LogFile,
		"PAPERCUT_JOURNAL_PATH":  &cfg.JournalPath,
		"PAPERCUT_HEARTBEAT":     &cfg.Heartbeat,
		"PAPERCUT_PRINT_COMMAND": &cfg.PrintCommand,
	}
	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	durations := map[string]*Duration{
		"PAPERCUT_REQUEST_TIMEOUT": &cfg.RequestTimeout,
		"PAPERCUT_TOAST_TTL":       &cfg.ToastTTL,
		"PAPERCUT_DISMISS_DELAY":   &cfg.DismissDelay,
	}
	for key, dst := range durations {
		if v := getenv(key); v != "" {
			if err := dst.parse(v); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	return nil
}

// validate rejects settings nothing downstream could recover from.
func (c Config) validate() error {
	if strings.TrimSpace(c.ServerURL) == "" {
		return fmt.Errorf("server_url is required")
	}
	if c.RequestTimeout.D() <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.ToastTTL.D() <= 0 {
		return fmt.Errorf("toast_ttl must be positive")
	}
	if c.DismissDelay.D() < 0 {
		return fmt.Errorf("dismiss_delay must not be negative")
	}
	return nil
}
