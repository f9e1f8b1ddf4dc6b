// SPDX-License-Identifier: MIT
//
// Package build carries the version banner injected at link time:
//
//	go build -ldflags "-X wtsynth/pkg/build.buildName=wtsynth \
//	  -X wtsynth/pkg/build.buildVersion=v0.3.0 ..."
//
// Development builds skip the flags and report "dev".
package build

import (
	"errors"
	"fmt"
)

type ldFlags struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// Set by -ldflags -X.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

var buildFlags = devFlags()

func devFlags() *ldFlags {
	return &ldFlags{Name: "wtsynth", Time: "unknown", Commit: "unknown", Version: "dev"}
}

// Initialize adopts the linker-provided values. When any of them is
// missing it reports every missing one and keeps the development banner.
func Initialize() error {
	var errs []error
	for _, f := range []struct{ name, value string }{
		{"buildName", buildName},
		{"buildTime", buildTime},
		{"buildCommit", buildCommit},
		{"buildVersion", buildVersion},
	} {
		if f.value == "" {
			errs = append(errs, fmt.Errorf("%s not set", f.name))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	buildFlags = &ldFlags{
		Name:    buildName,
		Time:    buildTime,
		Commit:  buildCommit,
		Version: buildVersion,
	}
	return nil
}

// GetBuildFlags returns the active build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

// String is the one-line banner printed by --version.
func (f *ldFlags) String() string {
	commit := f.Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("%s %s (commit %s, built %s)", f.Name, f.Version, commit, f.Time)
}
