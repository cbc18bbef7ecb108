package study

import (
	"fmt"

	"github.com/bft-labs/studyctl/pkg/lifecycle"
	"github.com/bft-labs/studyctl/pkg/log"
	"github.com/bft-labs/studyctl/pkg/prefs"
)

// Version information for the study module.
const (
	// Version is the current version of the study module.
	Version = "1.0.0"

	// MinCompatibleVersion is the minimum version that is compatible with this version.
	MinCompatibleVersion = "1.0.0"
)

// ModuleVersions returns the versions of the modules the controller is built from.
func ModuleVersions() map[string]string {
	return map[string]string{
		"study":     Version,
		"lifecycle": lifecycle.Version,
		"prefs":     prefs.Version,
		"log":       log.Version,
	}
}

// validateModuleVersions checks that all module versions are compatible.
// Returns an error if any module version is below its minimum compatible version.
func validateModuleVersions() error {
	modules := map[string]struct {
		version    string
		minVersion string
	}{
		"lifecycle": {lifecycle.Version, lifecycle.MinCompatibleVersion},
		"prefs":     {prefs.Version, prefs.MinCompatibleVersion},
		"log":       {log.Version, log.MinCompatibleVersion},
	}

	for name, m := range modules {
		if !isVersionCompatible(m.version, m.minVersion) {
			return fmt.Errorf("module %s version %s is below minimum compatible version %s",
				name, m.version, m.minVersion)
		}
	}

	return nil
}

// isVersionCompatible checks if version >= minVersion using semantic versioning.
// Assumes versions are in format "major.minor.patch".
func isVersionCompatible(version, minVersion string) bool {
	var vMajor, vMinor, vPatch int
	var mMajor, mMinor, mPatch int

	_, _ = fmt.Sscanf(version, "%d.%d.%d", &vMajor, &vMinor, &vPatch)
	_, _ = fmt.Sscanf(minVersion, "%d.%d.%d", &mMajor, &mMinor, &mPatch)

	if vMajor != mMajor {
		return vMajor > mMajor
	}
	if vMinor != mMinor {
		return vMinor > mMinor
	}
	return vPatch >= mPatch
}
