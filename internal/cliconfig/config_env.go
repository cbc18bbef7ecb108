package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (STUDYCTL_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("state-dir", os.Getenv("STUDYCTL_STATE_DIR"), &cfg.StateDir)
	s.setString("prefs-backend", os.Getenv("STUDYCTL_PREFS_BACKEND"), &cfg.PrefsBackend)
	s.setString("storage-dir", os.Getenv("STUDYCTL_STORAGE_DIR"), &cfg.StorageDir)
	s.setString("install-path", os.Getenv("STUDYCTL_INSTALL_PATH"), &cfg.InstallPath)
	s.setString("study-id", os.Getenv("STUDYCTL_STUDY_ID"), &cfg.StudyID)
	s.setString("ui-topic", os.Getenv("STUDYCTL_UI_TOPIC"), &cfg.UITopic)
	s.setString("ui-sentinel", os.Getenv("STUDYCTL_UI_SENTINEL"), &cfg.UISentinel)
	s.setString("expiration-key", os.Getenv("STUDYCTL_EXPIRATION_KEY"), &cfg.ExpirationKey)
	s.setString("optin-key", os.Getenv("STUDYCTL_OPTIN_KEY"), &cfg.OptInKey)
	s.setString("resource-id", os.Getenv("STUDYCTL_RESOURCE_ID"), &cfg.ResourceID)
	s.setString("reason", os.Getenv("STUDYCTL_STARTUP_REASON"), &cfg.StartupReason)
	s.setString("shutdown-reason", os.Getenv("STUDYCTL_SHUTDOWN_REASON"), &cfg.ShutdownReason)
	s.setString("tracking-input", os.Getenv("STUDYCTL_TRACKING_INPUT"), &cfg.TrackingInput)
	s.setString("metrics-addr", os.Getenv("STUDYCTL_METRICS_ADDR"), &cfg.MetricsAddr)
	s.setString("log-level", os.Getenv("STUDYCTL_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setPhases("phases", os.Getenv("STUDYCTL_PHASES"), &cfg.Phases); err != nil {
		return err
	}

	return nil
}
