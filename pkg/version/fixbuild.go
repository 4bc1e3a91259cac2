//go:build go1.18
// +build go1.18

package version

import "runtime/debug"

func init() {
	fixBuild = vcsFixBuild
}

func vcsFixBuild(v *Version) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	var revision, modified string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value
		}
	}
	if revision == "" {
		return
	}
	v.Build = revision
	if modified == "true" {
		v.Build += "-dirty"
	}
}
