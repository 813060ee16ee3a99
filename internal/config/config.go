package config

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Backend kinds.
const (
	BackendDeck = "deck" // local SQLite deck
	BackendJPDB = "jpdb" // jpdb.io HTTP API
)

// Config holds application configuration.
type Config struct {
	// Backend selects the tokenizer/vocabulary backend: "deck" or "jpdb".
	Backend string `json:"backend"`

	// APIBaseURL is the jpdb API root (default https://jpdb.io/api/v1).
	APIBaseURL string `json:"api_base_url,omitempty"`

	// APIToken authenticates against the jpdb API.
	// Falls back to the BREADER_API_TOKEN environment variable when empty.
	APIToken string `json:"api_token,omitempty"`

	// MiningDeckID is the jpdb deck new words are added to.
	MiningDeckID int `json:"mining_deck_id,omitempty"`

	// DeckDelayMS is the inter-request delay the local deck backend reports.
	DeckDelayMS int `json:"deck_delay_ms,omitempty"`

	// FailureBackoffMS is the fixed pause after a failed request.
	FailureBackoffMS int `json:"failure_backoff_ms"`

	// RequestTimeoutSeconds bounds a single backend call. 0 disables the bound.
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`

	// BatchWindowMS is how long parse texts are coalesced before one request is sent.
	BatchWindowMS int `json:"batch_window_ms"`

	// BatchMaxTexts flushes a parse batch early once it holds this many texts.
	BatchMaxTexts int `json:"batch_max_texts"`

	// PreserveOriginalNodes keeps replaced text nodes as hidden tombstones
	// for host pages that hold references to them.
	PreserveOriginalNodes bool `json:"preserve_original_nodes,omitempty"`

	// ExcludeClasses lists element classes whose subtrees are never parsed
	// (spoiler placeholders and the like).
	ExcludeClasses []string `json:"exclude_classes,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// AllowedPaths lists extra directories deck files may be imported from
	// and exported to, besides ~/.breader/exports. Only absolute paths count.
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths lifts the directory restriction on deck files.
	// Symlinks are still refused.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend:               BackendDeck,
		APIBaseURL:            "https://jpdb.io/api/v1",
		FailureBackoffMS:      1500,
		RequestTimeoutSeconds: 60,
		BatchWindowMS:         20,
		BatchMaxTexts:         64,
		LogLevel:              "info",
	}
}

// FailureBackoff returns the fixed post-failure pause.
func (c *Config) FailureBackoff() time.Duration {
	return time.Duration(c.FailureBackoffMS) * time.Millisecond
}

// RequestTimeout returns the per-request bound, or 0 when disabled.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// BatchWindow returns the parse coalescing window.
func (c *Config) BatchWindow() time.Duration {
	return time.Duration(c.BatchWindowMS) * time.Millisecond
}

// DeckDelay returns the delay the deck backend reports after each request.
func (c *Config) DeckDelay() time.Duration {
	return time.Duration(c.DeckDelayMS) * time.Millisecond
}

// Token returns the configured API token or the environment fallback.
func (c *Config) Token() string {
	if c.APIToken != "" {
		return c.APIToken
	}
	return os.Getenv("BREADER_API_TOKEN")
}

// SlogLevel maps LogLevel onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.breader.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.breader) and repo (.breader) directories.
// Repo config is found by walking upward from startDir to find the nearest .breader/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .breader/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".breader", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.Backend = firstString(overlay.Backend, base.Backend)
	result.APIBaseURL = firstString(overlay.APIBaseURL, base.APIBaseURL)
	result.APIToken = firstString(overlay.APIToken, base.APIToken)
	result.LogLevel = firstString(overlay.LogLevel, base.LogLevel)

	result.MiningDeckID = firstInt(overlay.MiningDeckID, base.MiningDeckID)
	result.DeckDelayMS = firstInt(overlay.DeckDelayMS, base.DeckDelayMS)
	result.FailureBackoffMS = firstInt(overlay.FailureBackoffMS, base.FailureBackoffMS)
	result.RequestTimeoutSeconds = firstInt(overlay.RequestTimeoutSeconds, base.RequestTimeoutSeconds)
	result.BatchWindowMS = firstInt(overlay.BatchWindowMS, base.BatchWindowMS)
	result.BatchMaxTexts = firstInt(overlay.BatchMaxTexts, base.BatchMaxTexts)
	result.DBMaxOpenConns = firstInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	// Booleans: overlay wins if true, else base
	result.PreserveOriginalNodes = base.PreserveOriginalNodes || overlay.PreserveOriginalNodes
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	result.ExcludeClasses = mergeStringSlice(base.ExcludeClasses, overlay.ExcludeClasses)
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func firstString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func firstInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
