package cliconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultManifestName is the study manifest inside the install path.
const DefaultManifestName = "manifest.json"

type manifest struct {
	Version      string `json:"version"`
	Applications struct {
		Gecko struct {
			ID string `json:"id"`
		} `json:"gecko"`
	} `json:"applications"`
}

// LoadStudyInfo fills StudyID and StudyVersion from the manifest in
// InstallPath when they are not already set.
func LoadStudyInfo(cfg *Config) error {
	if cfg.StudyID != "" && cfg.StudyVersion != "" {
		return nil
	}
	if cfg.InstallPath == "" {
		if cfg.StudyID == "" {
			return fmt.Errorf("study-id is required (or install-path)")
		}
		return nil
	}

	m, err := readManifest(cfg.InstallPath)
	if err != nil {
		return fmt.Errorf("read study manifest: %w", err)
	}
	if cfg.StudyID == "" {
		if m.Applications.Gecko.ID == "" {
			return fmt.Errorf("manifest has no applications.gecko.id")
		}
		cfg.StudyID = m.Applications.Gecko.ID
	}
	if cfg.StudyVersion == "" {
		cfg.StudyVersion = m.Version
	}
	return nil
}

func readManifest(installPath string) (manifest, error) {
	var m manifest
	b, err := os.ReadFile(filepath.Join(installPath, DefaultManifestName))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("parse %s: %w", DefaultManifestName, err)
	}
	return m, nil
}
