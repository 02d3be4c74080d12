package context

import "runtime/debug"

// GetVersion returns the application version embedded in the build info, or
// "devel" for local builds.
func GetVersion() string {
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return "devel"
}
