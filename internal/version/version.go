// Package version resolves the build version of wasmsandbox and of wazero.
package version

import (
	"runtime/debug"
	"strings"
)

// Default is the version returned when no module version was recorded, for
// example when building from a source checkout.
const Default = "dev"

// wazeroModule is the module path embedding the guest.
const wazeroModule = "github.com/tetratelabs/wazero"

// GetVersion returns the version of the main module, as recorded by
// `go install module@version`, or Default.
func GetVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Default
	}
	return versionOrDefault(info.Main.Version)
}

// GetWazeroVersion returns the version of wazero linked into the binary, or
// Default if unknown.
func GetWazeroVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Default
	}
	return findVersion(info.Deps, wazeroModule)
}

func findVersion(deps []*debug.Module, path string) string {
	for _, dep := range deps {
		if dep.Path != path {
			continue
		}
		if dep.Replace != nil {
			dep = dep.Replace
		}
		return versionOrDefault(dep.Version)
	}
	return Default
}

func versionOrDefault(v string) string {
	// (devel) is what the toolchain records for a local build.
	if v == "" || strings.HasPrefix(v, "(") {
		return Default
	}
	return v
}
