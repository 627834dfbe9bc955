// SPDX-License-Identifier: MIT
//
// Package build exposes the metadata stamped into the binary at link time:
//
//	go build -ldflags "-X audiobridge/pkg/build.buildVersion=v0.3.0 \
//	    -X audiobridge/pkg/build.buildCommit=$(git rev-parse --short HEAD) \
//	    -X audiobridge/pkg/build.buildTime=$(date -u +%FT%TZ)"
//
// Development builds run without ldflags and fall back to placeholder values.
package build

import (
	"fmt"

	"golang.org/x/mod/semver"
)

// Info is the resolved build metadata.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

const (
	defaultName        = "audiobridge"
	defaultDescription = "Audio device capture, spectrum analysis and now-playing bridge"
	devVersion         = "v0.0.0-dev"
	unknown            = "unknown"
)

// Populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

var buildInfo = &Info{
	Name:        defaultName,
	Description: defaultDescription,
	Time:        unknown,
	Commit:      unknown,
	Version:     devVersion,
}

// Initialize copies the ldflags values into the build info. Empty values keep
// their development defaults. A version that is set but is not a valid semantic
// version (vMAJOR.MINOR.PATCH) is rejected so release builds cannot ship with a
// malformed tag.
func Initialize() error {
	if buildVersion != "" && !semver.IsValid(buildVersion) {
		return fmt.Errorf("build version %q is not a valid semantic version", buildVersion)
	}

	info := Info{
		Name:        pick(buildName, defaultName),
		Description: defaultDescription,
		Time:        pick(buildTime, unknown),
		Commit:      pick(buildCommit, unknown),
		Version:     pick(buildVersion, devVersion),
	}
	*buildInfo = info
	return nil
}

// GetBuildInfo returns the current build information.
func GetBuildInfo() *Info {
	return buildInfo
}

// String renders the info for `--version` output.
func (i *Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

func pick(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
