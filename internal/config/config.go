// Package config loads the debugger's runtime configuration through the
// same priority cascade as the teacher's cmd/gasoline-cmd/config
// (defaults < file < env < explicit overrides), but the file format is
// TOML (github.com/BurntSushi/toml) to match §6's persisted config.toml,
// and the env vars are the ones §6 names for this system.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all resolved configuration values for a debugger process.
type Config struct {
	// Game connection (§6 BEVY_BRP_HOST / BEVY_BRP_PORT).
	GameHost string `toml:"game_host"`
	GamePort int    `toml:"game_port"`

	// Tool channel (§6 MCP_PORT; 0 means stdio).
	ToolChannelPort int `toml:"tool_channel_port"`

	// Default per-call deadline and max reconnect attempts (§6).
	DefaultDeadline time.Duration `toml:"-"`
	DefaultDeadlineSeconds int    `toml:"default_deadline_seconds"`
	MaxReconnectAttempts   int    `toml:"max_reconnect_attempts"` // 0 = unlimited

	// Dispatcher (§4.A).
	DispatcherQueueDepth int `toml:"dispatcher_queue_depth"`

	// Cache (§4.C).
	ObserveCacheTTLMillis  int `toml:"observe_cache_ttl_ms"`
	MetadataCacheTTLMillis int `toml:"metadata_cache_ttl_ms"`
	CacheMaxEntries        int `toml:"cache_max_entries"`

	// Recorder (§4.E).
	KeyframeInterval   int `toml:"keyframe_interval"`
	RecorderWindow     int `toml:"recorder_window_frames"`
	RecorderHighWater  int `toml:"recorder_high_water_mark"`

	// Budget monitor (§4.F), in milliseconds.
	BudgetObserveHardMs    int `toml:"budget_observe_hard_ms"`
	BudgetExperimentHardMs int `toml:"budget_experiment_hard_ms"`
	BudgetStressHardMs     int `toml:"budget_stress_hard_ms"`
	BudgetReplayFrameHardMs int `toml:"budget_replay_frame_hard_ms"`
	BudgetSampleRing       int `toml:"budget_sample_ring"`
	BudgetViolationRing    int `toml:"budget_violation_ring"`
	BudgetCooldownSeconds  int `toml:"budget_cooldown_seconds"`

	LogLevel string `toml:"log_level"`
}

// Defaults returns the base configuration with the values named in §4 and §6.
func Defaults() Config {
	return Config{
		GameHost:                "localhost",
		GamePort:                15702,
		ToolChannelPort:         0, // stdio
		DefaultDeadlineSeconds:  30,
		MaxReconnectAttempts:    0,
		DispatcherQueueDepth:    64,
		ObserveCacheTTLMillis:   1000,
		MetadataCacheTTLMillis:  5000,
		CacheMaxEntries:         10000,
		KeyframeInterval:        60,
		RecorderWindow:          300,
		RecorderHighWater:       512,
		BudgetObserveHardMs:     100,
		BudgetExperimentHardMs:  500,
		BudgetStressHardMs:      50,
		BudgetReplayFrameHardMs: 10,
		BudgetSampleRing:        5000,
		BudgetViolationRing:     500,
		BudgetCooldownSeconds:   10,
		LogLevel:                "info",
	}
}

// Overrides holds values an embedder (e.g. the cmd/ binary, or a test)
// wants to force regardless of file/env — the highest-priority layer.
// A nil pointer field means "not explicitly set."
type Overrides struct {
	GameHost        *string
	GamePort        *int
	ToolChannelPort *int
}

// Load builds the final configuration: defaults < configPath (if it
// exists) < environment variables < overrides.
func Load(configPath string, overrides *Overrides) (Config, error) {
	cfg := Defaults()

	if configPath != "" {
		if err := loadTOMLFile(&cfg, configPath); err != nil {
			return cfg, fmt.Errorf("config file %s: %w", configPath, err)
		}
	}

	loadEnvVars(&cfg)

	if overrides != nil {
		applyOverrides(&cfg, overrides)
	}

	cfg.DefaultDeadline = time.Duration(cfg.DefaultDeadlineSeconds) * time.Second

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func loadTOMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var file Config
	if _, err := toml.Decode(string(data), &file); err != nil {
		return err
	}
	mergeNonZero(cfg, &file)
	return nil
}

// mergeNonZero overwrites fields in cfg with non-zero values from file.
// TOML decoding into a pre-defaulted struct without pointers means we
// cannot tell "absent" from "zero" for int/string fields whose zero value
// is also a valid configured value (0, ""); this is an accepted limitation,
// matching the teacher's own fileConfig pattern
// for most fields but without its pointer indirection for numeric fields.
func mergeNonZero(cfg, file *Config) {
	if file.GameHost != "" {
		cfg.GameHost = file.GameHost
	}
	if file.GamePort > 0 {
		cfg.GamePort = file.GamePort
	}
	if file.ToolChannelPort != 0 {
		cfg.ToolChannelPort = file.ToolChannelPort
	}
	if file.DefaultDeadlineSeconds != 0 {
		cfg.DefaultDeadlineSeconds = file.DefaultDeadlineSeconds
	}
	if file.MaxReconnectAttempts != 0 {
		cfg.MaxReconnectAttempts = file.MaxReconnectAttempts
	}
	if file.DispatcherQueueDepth != 0 {
		cfg.DispatcherQueueDepth = file.DispatcherQueueDepth
	}
	if file.ObserveCacheTTLMillis != 0 {
		cfg.ObserveCacheTTLMillis = file.ObserveCacheTTLMillis
	}
	if file.MetadataCacheTTLMillis != 0 {
		cfg.MetadataCacheTTLMillis = file.MetadataCacheTTLMillis
	}
	if file.CacheMaxEntries != 0 {
		cfg.CacheMaxEntries = file.CacheMaxEntries
	}
	if file.KeyframeInterval != 0 {
		cfg.KeyframeInterval = file.KeyframeInterval
	}
	if file.RecorderWindow != 0 {
		cfg.RecorderWindow = file.RecorderWindow
	}
	if file.RecorderHighWater != 0 {
		cfg.RecorderHighWater = file.RecorderHighWater
	}
	if file.BudgetObserveHardMs != 0 {
		cfg.BudgetObserveHardMs = file.BudgetObserveHardMs
	}
	if file.BudgetExperimentHardMs != 0 {
		cfg.BudgetExperimentHardMs = file.BudgetExperimentHardMs
	}
	if file.BudgetStressHardMs != 0 {
		cfg.BudgetStressHardMs = file.BudgetStressHardMs
	}
	if file.BudgetReplayFrameHardMs != 0 {
		cfg.BudgetReplayFrameHardMs = file.BudgetReplayFrameHardMs
	}
	if file.BudgetSampleRing != 0 {
		cfg.BudgetSampleRing = file.BudgetSampleRing
	}
	if file.BudgetViolationRing != 0 {
		cfg.BudgetViolationRing = file.BudgetViolationRing
	}
	if file.BudgetCooldownSeconds != 0 {
		cfg.BudgetCooldownSeconds = file.BudgetCooldownSeconds
	}
	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}
}

func loadEnvVars(cfg *Config) {
	if v := os.Getenv("BEVY_BRP_HOST"); v != "" {
		cfg.GameHost = v
	}
	if v := os.Getenv("BEVY_BRP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.GamePort = port
		}
	}
	if v := os.Getenv("MCP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.ToolChannelPort = port
		}
	}
	if v := os.Getenv("DEBUGGER_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.DefaultDeadlineSeconds = secs
		}
	}
	if v := os.Getenv("DEBUGGER_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxReconnectAttempts = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	} else if v := os.Getenv("RUST_LOG"); v != "" {
		cfg.LogLevel = v
	}
}

func applyOverrides(cfg *Config, o *Overrides) {
	if o.GameHost != nil {
		cfg.GameHost = *o.GameHost
	}
	if o.GamePort != nil {
		cfg.GamePort = *o.GamePort
	}
	if o.ToolChannelPort != nil {
		cfg.ToolChannelPort = *o.ToolChannelPort
	}
}

// Validate checks that configuration values are within acceptable ranges.
func (c Config) Validate() error {
	if c.GamePort < 1 || c.GamePort > 65535 {
		return fmt.Errorf("game_port must be 1-65535, got %d", c.GamePort)
	}
	if c.ToolChannelPort < 0 || c.ToolChannelPort > 65535 {
		return fmt.Errorf("tool_channel_port must be 0-65535, got %d", c.ToolChannelPort)
	}
	if c.DefaultDeadlineSeconds <= 0 {
		return fmt.Errorf("default_deadline_seconds must be positive, got %d", c.DefaultDeadlineSeconds)
	}
	if c.DispatcherQueueDepth <= 0 {
		return fmt.Errorf("dispatcher_queue_depth must be positive, got %d", c.DispatcherQueueDepth)
	}
	if c.KeyframeInterval <= 0 {
		return fmt.Errorf("keyframe_interval must be positive, got %d", c.KeyframeInterval)
	}
	return nil
}
