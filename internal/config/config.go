// Package config loads bridge definitions and runtime settings.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration: global settings plus one
// entry per bridge.
type Config struct {
	DataDir     string         `yaml:"data_dir"`
	SourceRoot  string         `yaml:"source_root"`
	Tool        string         `yaml:"tool"`
	ToolTimeout string         `yaml:"tool_timeout"` // Go duration, e.g. "120s"
	Parallelism int            `yaml:"parallelism"`
	NotesPer    int            `yaml:"notes_per_bridge"`
	LogLevel    string         `yaml:"log_level"`
	APIAddr     string         `yaml:"api_addr"`
	Bridges     []BridgeConfig `yaml:"bridges"`
}

// BridgeConfig describes one source-to-vault mapping. SourcePath wins
// when set; otherwise SourceSubdir is resolved under the global
// source root.
type BridgeConfig struct {
	Name         string   `yaml:"name"`
	Enabled      *bool    `yaml:"enabled"` // nil means enabled
	SourcePath   string   `yaml:"source_path"`
	SourceSubdir string   `yaml:"source_subdir"`
	VaultPath    string   `yaml:"vault_path"`
	VaultKind    string   `yaml:"vault_kind"` // obsidian (default) or markdown
	Tags         []string `yaml:"tags"`
	Aggressive   bool     `yaml:"aggressive_cleanup"`
	ExportImages bool     `yaml:"export_images"`

	TodoProvider   string `yaml:"todo_provider"` // noop (default), todoist, notion
	TodoistToken   string `yaml:"todoist_token"`
	TodoistProject string `yaml:"todoist_project"`
	NotionToken    string `yaml:"notion_token"`
	NotionDatabase string `yaml:"notion_database"`

	NotifyPolicy string `yaml:"notify_policy"` // errors (default), all, none
	WebhookURL   string `yaml:"webhook_url"`
	WebhookTopic string `yaml:"webhook_topic"`

	HealthcheckURL string `yaml:"healthcheck_url"`
}

// IsEnabled reports whether the bridge should be synced; bridges are
// enabled unless explicitly turned off.
func (b BridgeConfig) IsEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}

// ResolvedSource is the bridge's effective source directory.
func (b BridgeConfig) ResolvedSource(sourceRoot string) string {
	if b.SourcePath != "" {
		return b.SourcePath
	}
	return filepath.Join(sourceRoot, b.SourceSubdir)
}

// ToolTimeoutDuration parses the configured tool timeout; zero means
// the extractor's default applies.
func (c Config) ToolTimeoutDuration() time.Duration {
	if c.ToolTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.ToolTimeout)
	if err != nil || d <= 0 {
		slog.Warn("invalid tool_timeout, using default", "value", c.ToolTimeout)
		return 0
	}
	return d
}

func defaults() Config {
	return Config{
		DataDir:     defaultDataDir(),
		Tool:        "supernote-tool",
		Parallelism: 2,
		NotesPer:    4,
		LogLevel:    "info",
		APIAddr:     "127.0.0.1:4600",
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "inkbridge")
	}
	return ".inkbridge"
}

// Load reads configuration in three layers: a .env file in the working
// directory (if present), the bridges YAML file, then INKBRIDGE_*
// environment variables, which win on all settings they name.
//
// The YAML path comes from INKBRIDGE_CONFIG, defaulting to
// bridges.yaml in the working directory.
func Load() (Config, error) {
	_ = godotenv.Load() // a missing .env is fine

	path := os.Getenv("INKBRIDGE_CONFIG")
	if path == "" {
		path = "bridges.yaml"
	}
	return loadWith(path, os.Getenv)
}

func loadWith(path string, getenv func(string) string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No file: env-only configuration is allowed.
	case err != nil:
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg, getenv)

	if err := validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	if v := getenv("INKBRIDGE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := getenv("INKBRIDGE_SOURCE_ROOT"); v != "" {
		cfg.SourceRoot = v
	}
	if v := getenv("INKBRIDGE_TOOL"); v != "" {
		cfg.Tool = v
	}
	if v := getenv("INKBRIDGE_TOOL_TIMEOUT"); v != "" {
		cfg.ToolTimeout = v
	}
	if v := getenv("INKBRIDGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("INKBRIDGE_API_ADDR"); v != "" {
		cfg.APIAddr = v
	}
	if v := getenv("INKBRIDGE_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Parallelism = n
		}
	}
	if v := getenv("INKBRIDGE_NOTES_PER_BRIDGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.NotesPer = n
		}
	}

	// Secrets are env-first so tokens can stay out of the YAML file.
	for i := range cfg.Bridges {
		b := &cfg.Bridges[i]
		if v := getenv("INKBRIDGE_TODOIST_TOKEN"); v != "" {
			b.TodoistToken = v
		}
		if v := getenv("INKBRIDGE_NOTION_TOKEN"); v != "" {
			b.NotionToken = v
		}
	}
}

// validate drops malformed bridge entries with a warning instead of
// failing the whole load; the load errors only when bridges were
// defined and none survive.
func validate(cfg *Config) error {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if cfg.NotesPer < 1 {
		cfg.NotesPer = 1
	}

	defined := len(cfg.Bridges)
	seen := map[string]bool{}
	valid := cfg.Bridges[:0]
	for i := range cfg.Bridges {
		b := cfg.Bridges[i]
		if reason := bridgeProblem(b, seen, cfg.SourceRoot); reason != "" {
			slog.Warn("skipping malformed bridge entry", "index", i, "name", b.Name, "reason", reason)
			continue
		}
		seen[b.Name] = true
		switch b.NotifyPolicy {
		case "":
			b.NotifyPolicy = "errors"
		case "errors", "all", "none":
		default:
			// Kept as written; the policy check treats anything
			// unrecognized like "errors".
			slog.Warn("unknown notify_policy, treating as errors",
				"bridge", b.Name, "policy", b.NotifyPolicy)
		}
		if b.TodoProvider == "" {
			b.TodoProvider = "noop"
		}
		valid = append(valid, b)
	}
	cfg.Bridges = valid

	if defined > 0 && len(cfg.Bridges) == 0 {
		return fmt.Errorf("no valid bridges in configuration")
	}
	return nil
}

func bridgeProblem(b BridgeConfig, seen map[string]bool, sourceRoot string) string {
	switch {
	case b.Name == "":
		return "name is required"
	case seen[b.Name]:
		return "duplicate bridge name"
	case b.SourcePath == "" && (sourceRoot == "" || b.SourceSubdir == ""):
		return "source_path (or source_root + source_subdir) is required"
	case b.VaultPath == "":
		return "vault_path is required"
	}
	return ""
}
