package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/studyctl/pkg/expiration"
	"github.com/bft-labs/studyctl/pkg/lifecycle"
	"github.com/bft-labs/studyctl/pkg/notify"
	"github.com/bft-labs/studyctl/pkg/resources"
	"github.com/bft-labs/studyctl/plugins/optin"
)

// Preference store backends.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

const day = 24 * time.Hour

// Config holds CLI configuration for studyctl.
type Config struct {
	StateDir     string
	PrefsBackend string
	StorageDir   string
	InstallPath  string

	StudyID      string
	StudyVersion string

	Phases []expiration.Phase

	UITopic       string
	UISentinel    string
	ExpirationKey string
	OptInKey      string
	ResourceID    string

	StartupReason  string
	ShutdownReason string

	TrackingInput string
	MetricsAddr   string
	LogLevel      string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		PrefsBackend:   BackendFile,
		StateDir:       "", // Derived from $HOME during Validate
		Phases:         DefaultPhases(),
		UITopic:        notify.UIReadyTopic,
		ExpirationKey:  expiration.DefaultPrefKey,
		OptInKey:       optin.DefaultOptInKey,
		ResourceID:     resources.DefaultPanelSheet,
		StartupReason:  lifecycle.AppStartup.String(),
		ShutdownReason: lifecycle.AppShutdown.String(),
		LogLevel:       "info",
	}
}

// DefaultPhases is the thirty day study schedule.
func DefaultPhases() []expiration.Phase {
	return []expiration.Phase{
		{Name: "pre-treatment", Duration: 7 * day},
		{Name: "treatment", Duration: 14 * day},
		{Name: "post-treatment", Duration: 9 * day},
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("state-dir is required: %w", err)
		}
		c.StateDir = filepath.Join(h, ".studyctl", "state")
	}
	if c.StorageDir == "" {
		c.StorageDir = filepath.Join(c.StateDir, "storage")
	}
	if c.UISentinel == "" {
		c.UISentinel = filepath.Join(c.StateDir, "ui-ready")
	}

	switch c.PrefsBackend {
	case BackendFile, BackendBadger, BackendMemory:
	default:
		return fmt.Errorf("prefs backend must be one of %s, %s, %s: got %q",
			BackendFile, BackendBadger, BackendMemory, c.PrefsBackend)
	}

	if expiration.StudyLength(c.Phases) <= 0 {
		return fmt.Errorf("phases must add up to a positive study length")
	}

	if _, err := lifecycle.ParseReason(c.StartupReason); err != nil {
		return fmt.Errorf("startup reason: %w", err)
	}
	if _, err := lifecycle.ParseReason(c.ShutdownReason); err != nil {
		return fmt.Errorf("shutdown reason: %w", err)
	}

	if c.UITopic == "" {
		return fmt.Errorf("ui topic is required")
	}
	if c.ExpirationKey == "" {
		return fmt.Errorf("expiration key is required")
	}
	if c.OptInKey == "" {
		return fmt.Errorf("opt-in key is required")
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Reasons returns the parsed startup and shutdown reasons. Call Validate first.
func (c Config) Reasons() (startup, shutdown lifecycle.Reason) {
	startup, _ = lifecycle.ParseReason(c.StartupReason)
	shutdown, _ = lifecycle.ParseReason(c.ShutdownReason)
	return startup, shutdown
}

// ParsePhases parses "name=duration" pairs separated by commas. Durations
// accept a "d" suffix for days in addition to time.ParseDuration units.
func ParsePhases(s string) ([]expiration.Phase, error) {
	var phases []expiration.Phase
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, raw, ok := strings.Cut(part, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("phase %q: want name=duration", part)
		}
		d, err := ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("phase %q: %w", name, err)
		}
		phases = append(phases, expiration.Phase{Name: name, Duration: d})
	}
	return phases, nil
}

// FormatPhases is the inverse of ParsePhases.
func FormatPhases(phases []expiration.Phase) string {
	parts := make([]string, 0, len(phases))
	for _, p := range phases {
		parts = append(parts, p.Name+"="+FormatDuration(p.Duration))
	}
	return strings.Join(parts, ",")
}

// ParseDuration parses a duration, accepting whole days as "<n>d".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("parse duration %q: %w", s, err)
		}
		return time.Duration(days) * day, nil
	}
	return time.ParseDuration(s)
}

// FormatDuration renders whole days as "<n>d".
func FormatDuration(d time.Duration) string {
	if d > 0 && d%day == 0 {
		return strconv.Itoa(int(d/day)) + "d"
	}
	return d.String()
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setPhases parses and sets phases from a string if valid and flag not changed.
func (s *configSetter) setPhases(flag, value string, dst *[]expiration.Phase) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	phases, err := ParsePhases(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = phases
	return nil
}

// setPhaseList sets phases from file entries if any and flag not changed.
func (s *configSetter) setPhaseList(flag string, value []FilePhase, dst *[]expiration.Phase) error {
	if len(value) == 0 || s.changed[flag] {
		return nil
	}
	phases := make([]expiration.Phase, 0, len(value))
	for _, fp := range value {
		d, err := ParseDuration(fp.Duration)
		if err != nil {
			return fmt.Errorf("parse %s %q: %w", flag, fp.Name, err)
		}
		phases = append(phases, expiration.Phase{Name: fp.Name, Duration: d})
	}
	*dst = phases
	return nil
}
