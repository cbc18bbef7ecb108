package lifecycle

import (
	"strings"

	"github.com/juju/errors"
)

// ErrUnknownReason is returned by ParseReason for names the host does not define.
const ErrUnknownReason = errors.ConstError("unknown lifecycle reason")

// Reason is the host-supplied cause of a lifecycle entry point call.
// Values match the host's numeric codes.
type Reason int

const (
	AppStartup     Reason = 1 // application is starting up
	AppShutdown    Reason = 2 // application is shutting down
	AddonEnable    Reason = 3
	AddonDisable   Reason = 4 // also sent during uninstallation
	AddonInstall   Reason = 5
	AddonUninstall Reason = 6
	AddonUpgrade   Reason = 7
	AddonDowngrade Reason = 8
)

// Reasons lists every defined reason in host code order.
var Reasons = []Reason{
	AppStartup, AppShutdown, AddonEnable, AddonDisable,
	AddonInstall, AddonUninstall, AddonUpgrade, AddonDowngrade,
}

// String returns the host's name for the reason.
func (r Reason) String() string {
	switch r {
	case AppStartup:
		return "APP_STARTUP"
	case AppShutdown:
		return "APP_SHUTDOWN"
	case AddonEnable:
		return "ADDON_ENABLE"
	case AddonDisable:
		return "ADDON_DISABLE"
	case AddonInstall:
		return "ADDON_INSTALL"
	case AddonUninstall:
		return "ADDON_UNINSTALL"
	case AddonUpgrade:
		return "ADDON_UPGRADE"
	case AddonDowngrade:
		return "ADDON_DOWNGRADE"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether r is one of the defined reasons.
func (r Reason) Valid() bool {
	return r.String() != "UNKNOWN"
}

// IsColdBoot reports whether the reason means the whole application is
// booting, in which case heavy startup work waits for the UI.
func (r Reason) IsColdBoot() bool {
	switch r {
	case AppStartup:
		return true
	case AppShutdown, AddonEnable, AddonDisable, AddonInstall,
		AddonUninstall, AddonUpgrade, AddonDowngrade:
		return false
	default:
		return false
	}
}

// PurgesState reports whether shutdown for this reason must clear
// persisted per-user state. Only a true uninstall does; disable does not.
func (r Reason) PurgesState() bool {
	switch r {
	case AddonUninstall:
		return true
	default:
		return false
	}
}

// ParseReason accepts either the host name ("APP_STARTUP") or its
// kebab-case form ("app-startup").
func ParseReason(s string) (Reason, error) {
	name := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for _, r := range Reasons {
		if r.String() == name {
			return r, nil
		}
	}
	return 0, errors.Annotatef(ErrUnknownReason, "%q", s)
}
