package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FilePhase is one [[phases]] table in the config file.
type FilePhase struct {
	Name     string `toml:"name"`
	Duration string `toml:"duration"`
}

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	StateDir       string      `toml:"state_dir"`
	PrefsBackend   string      `toml:"prefs_backend"`
	StorageDir     string      `toml:"storage_dir"`
	InstallPath    string      `toml:"install_path"`
	StudyID        string      `toml:"study_id"`
	Phases         []FilePhase `toml:"phases"`
	UITopic        string      `toml:"ui_topic"`
	UISentinel     string      `toml:"ui_sentinel"`
	ExpirationKey  string      `toml:"expiration_key"`
	OptInKey       string      `toml:"optin_key"`
	ResourceID     string      `toml:"resource_id"`
	StartupReason  string      `toml:"startup_reason"`
	ShutdownReason string      `toml:"shutdown_reason"`
	TrackingInput  string      `toml:"tracking_input"`
	MetricsAddr    string      `toml:"metrics_addr"`
	LogLevel       string      `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.studyctl/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".studyctl", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("prefs-backend", fc.PrefsBackend, &cfg.PrefsBackend)
	s.setString("storage-dir", fc.StorageDir, &cfg.StorageDir)
	s.setString("install-path", fc.InstallPath, &cfg.InstallPath)
	s.setString("study-id", fc.StudyID, &cfg.StudyID)
	s.setString("ui-topic", fc.UITopic, &cfg.UITopic)
	s.setString("ui-sentinel", fc.UISentinel, &cfg.UISentinel)
	s.setString("expiration-key", fc.ExpirationKey, &cfg.ExpirationKey)
	s.setString("optin-key", fc.OptInKey, &cfg.OptInKey)
	s.setString("resource-id", fc.ResourceID, &cfg.ResourceID)
	s.setString("reason", fc.StartupReason, &cfg.StartupReason)
	s.setString("shutdown-reason", fc.ShutdownReason, &cfg.ShutdownReason)
	s.setString("tracking-input", fc.TrackingInput, &cfg.TrackingInput)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	return s.setPhaseList("phases", fc.Phases, &cfg.Phases)
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
