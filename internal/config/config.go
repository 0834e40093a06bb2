package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Replacement is one custom find/replace rule applied before any other
// normalization stage.
type Replacement struct {
	Find    string `json:"find"`
	Replace string `json:"replace"`
}

// NormalizationRules holds the toggles and tables that drive name
// normalization. The zero value disables everything; use DefaultRules for
// the stock behavior.
type NormalizationRules struct {
	RemoveDiacritics    bool          `json:"remove_diacritics"`
	LowercaseConversion bool          `json:"lowercase_conversion"`
	CleanSpecialChars   bool          `json:"clean_special_chars"`
	NormalizeWhitespace bool          `json:"normalize_whitespace"`
	PreserveExtensions  bool          `json:"preserve_extensions"`
	LowercaseExtensions bool          `json:"lowercase_extensions"`
	CustomReplacements  []Replacement `json:"custom_replacements,omitempty"`
	MaxFilenameLength   int           `json:"max_filename_length"`
	MinFilenameLength   int           `json:"min_filename_length"`

	// ProtectedDatePattern is the regular expression for date-shaped
	// substrings shielded from hyphen stripping. Only DD-MM-YYYY is
	// configured by default; additional formats are a caller decision.
	ProtectedDatePattern string `json:"protected_date_pattern,omitempty"`
}

// DefaultRules returns the stock rule set.
func DefaultRules() NormalizationRules {
	return NormalizationRules{
		RemoveDiacritics:     true,
		LowercaseConversion:  true,
		CleanSpecialChars:    true,
		NormalizeWhitespace:  true,
		PreserveExtensions:   true,
		LowercaseExtensions:  true,
		MaxFilenameLength:    255,
		MinFilenameLength:    1,
		ProtectedDatePattern: `\b\d{2}-\d{2}-\d{4}\b`,
	}
}

// Hash returns a stable digest of the rule set, used as part of cache keys
// so that cached results are invalidated when rules change.
func (r NormalizationRules) Hash() string {
	// Sort replacements so ordering differences don't change the digest.
	reps := make([]Replacement, len(r.CustomReplacements))
	copy(reps, r.CustomReplacements)
	sort.Slice(reps, func(i, j int) bool {
		if reps[i].Find != reps[j].Find {
			return reps[i].Find < reps[j].Find
		}
		return reps[i].Replace < reps[j].Replace
	})
	canonical := r
	canonical.CustomReplacements = reps

	data, err := json.Marshal(canonical)
	if err != nil {
		return "unhashable"
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// PerformanceConfig bounds how much work the engine takes on at once.
type PerformanceConfig struct {
	MaxFiles      int  `json:"max_files"`
	BatchSize     int  `json:"batch_size"`
	ChunkSize     int  `json:"chunk_size"`
	WorkerCount   int  `json:"worker_count"`
	EnableCaching bool `json:"enable_caching"`
	CacheCapacity int  `json:"cache_capacity"`
	MemoryLimitMB int  `json:"memory_limit_mb"`
}

// DefaultPerformance returns bounds suitable for interactive use. A worker
// count of zero means "derive from CPU count".
func DefaultPerformance() PerformanceConfig {
	return PerformanceConfig{
		MaxFiles:      100000,
		BatchSize:     64,
		ChunkSize:     256,
		WorkerCount:   0,
		EnableCaching: true,
		CacheCapacity: 8192,
		MemoryLimitMB: 256,
	}
}

// UndoPolicy controls when a completed batch may still be reversed.
type UndoPolicy struct {
	StalenessWindowDays int `json:"staleness_window_days"`
}

// StalenessWindow returns the window as a duration.
func (p UndoPolicy) StalenessWindow() time.Duration {
	return time.Duration(p.StalenessWindowDays) * 24 * time.Hour
}

// Config is the engine configuration persisted per user.
type Config struct {
	Rules         NormalizationRules `json:"rules"`
	Performance   PerformanceConfig  `json:"performance"`
	Undo          UndoPolicy         `json:"undo"`
	EnableHistory bool               `json:"enable_history"`
	RetentionDays int                `json:"history_retention_days"`
	LogLevel      string             `json:"log_level"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Rules:         DefaultRules(),
		Performance:   DefaultPerformance(),
		Undo:          UndoPolicy{StalenessWindowDays: 7},
		EnableHistory: true,
		RetentionDays: 30,
		LogLevel:      "warn",
	}
}

// Path returns the location of the config file.
func Path() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".nametidy", "config.json"), nil
}

// Load reads the configuration from disk, falling back to Default when no
// file exists yet.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the configuration from an explicit path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyBounds()
	return cfg, nil
}

// Save writes the configuration to disk, creating the directory if needed.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the configuration to an explicit path.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) applyBounds() {
	if c.Performance.BatchSize <= 0 {
		c.Performance.BatchSize = DefaultPerformance().BatchSize
	}
	if c.Performance.ChunkSize <= 0 {
		c.Performance.ChunkSize = DefaultPerformance().ChunkSize
	}
	if c.Performance.CacheCapacity <= 0 {
		c.Performance.CacheCapacity = DefaultPerformance().CacheCapacity
	}
	if c.Undo.StalenessWindowDays <= 0 {
		c.Undo.StalenessWindowDays = 7
	}
	if c.Rules.MaxFilenameLength <= 0 {
		c.Rules.MaxFilenameLength = 255
	}
}
