// Package version reports the version of the hwbp tool.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Version represents the current version of hwbp.
type Version struct {
	Major    string
	Minor    string
	Patch    string
	Metadata string
	Build    string
}

// HwbpVersion is the current version of hwbp.
var HwbpVersion = Version{
	Major: "0", Minor: "3", Patch: "0", Metadata: "",
	Build: "$Id$",
}

// fixBuild fills in Build from the VCS stamp of the binary, when the
// toolchain records one.
var fixBuild = func(v *Version) {}

func (v Version) String() string {
	if strings.HasPrefix(v.Build, "$Id") {
		fixBuild(&v)
	}
	ver := fmt.Sprintf("Version: %s.%s.%s", v.Major, v.Minor, v.Patch)
	if v.Metadata != "" {
		ver += "-" + v.Metadata
	}
	return fmt.Sprintf("%s\nBuild: %s", ver, v.Build)
}

// BuildInfo returns the Go version and the module dependencies the binary
// was built with.
func BuildInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return runtime.Version() + "\nnot built in module mode"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n mod\t%s\t%s\n", runtime.Version(), info.Main.Path, info.Main.Version)
	for _, dep := range info.Deps {
		fmt.Fprintf(&b, " dep\t%s\t%s", dep.Path, dep.Version)
		if dep.Replace != nil {
			fmt.Fprintf(&b, "\t=> %s\t%s", dep.Replace.Path, dep.Replace.Version)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
