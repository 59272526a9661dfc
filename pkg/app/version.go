package app

import "sync/atomic"

var appVersion atomic.Value

// AppVersion returns the version injected at build time, or "dev".
func AppVersion() string {
	if v, ok := appVersion.Load().(string); ok && v != "" {
		return v
	}
	return "dev"
}

// SetAppVersion records the build version. Called from main with the
// ldflags-injected value.
func SetAppVersion(v string) {
	appVersion.Store(v)
}
