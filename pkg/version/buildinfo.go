package version

import (
	"runtime/debug"
	"strings"
)

func init() {
	buildInfo = moduleBuildInfo
}

// moduleBuildInfo lists the main module followed by its dependencies as
// path@version, one per line.
func moduleBuildInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "not built in module mode"
	}
	var sb strings.Builder
	sb.WriteString(info.Main.Path + "@" + info.Main.Version + "\n")
	for _, dep := range info.Deps {
		mod := dep
		if dep.Replace != nil {
			mod = dep.Replace
		}
		sb.WriteString("  " + mod.Path + "@" + mod.Version + "\n")
	}
	return sb.String()
}
