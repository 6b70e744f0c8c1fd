package twinstreams

import "runtime/debug"

// modulePath is the import path version information is resolved against.
const modulePath = "github.com/c360/twinstreams"

// VersionInfo identifies the SDK build linked into a binary.
type VersionInfo struct {
	// Version is the module version, "(devel)" for checkout builds.
	Version string

	// GoVersion is the toolchain that built the binary.
	GoVersion string

	// Revision and Dirty carry the vcs state when the build stamped one.
	Revision string
	Dirty    bool
}

// buildVersion is resolved once at process start; build info never changes
// while the process runs.
var buildVersion = readBuildInfo()

// Version reports the SDK build linked into the binary.
func Version() VersionInfo {
	return buildVersion
}

func readBuildInfo() VersionInfo {
	v := VersionInfo{Version: "unknown"}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return v
	}
	v.GoVersion = info.GoVersion

	if info.Main.Path == modulePath {
		v.Version = info.Main.Version
		if v.Version == "" {
			v.Version = "(devel)"
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				v.Revision = s.Value
			case "vcs.modified":
				v.Dirty = s.Value == "true"
			}
		}
		return v
	}

	for _, dep := range info.Deps {
		if dep.Path != modulePath {
			continue
		}
		v.Version = dep.Version
		if dep.Replace != nil && dep.Replace.Version != "" {
			v.Version = dep.Replace.Version
		}
		break
	}
	return v
}
