// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"strings"
	"testing"
)

var origInfo Info

func TestMain(m *testing.M) {
	origInfo = *buildInfo
	exitCode := m.Run()
	*buildInfo = origInfo
	os.Exit(exitCode)
}

func setLinkerVars(t *testing.T, name, time, commit, version string) {
	t.Helper()
	prevName, prevTime, prevCommit, prevVersion := buildName, buildTime, buildCommit, buildVersion
	buildName, buildTime, buildCommit, buildVersion = name, time, commit, version
	t.Cleanup(func() {
		buildName, buildTime, buildCommit, buildVersion = prevName, prevTime, prevCommit, prevVersion
		*buildInfo = origInfo
	})
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantErr     string
		want        Info
	}{
		{
			name: "Development defaults",
			want: Info{Name: defaultName, Description: defaultDescription, Time: unknown, Commit: unknown, Version: devVersion},
		},
		{
			name:        "Release build",
			buildName:   "bridge",
			buildTime:   "2026-01-02T03:04:05Z",
			buildCommit: "abcdef1",
			buildVer:    "v1.2.3",
			want:        Info{Name: "bridge", Description: defaultDescription, Time: "2026-01-02T03:04:05Z", Commit: "abcdef1", Version: "v1.2.3"},
		},
		{
			name:        "Pre-release version",
			buildVer:    "v1.0.0-rc.1",
			buildCommit: "1234567",
			want:        Info{Name: defaultName, Description: defaultDescription, Time: unknown, Commit: "1234567", Version: "v1.0.0-rc.1"},
		},
		{
			name:     "Invalid version",
			buildVer: "1.0",
			wantErr:  "not a valid semantic version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setLinkerVars(t, tt.buildName, tt.buildTime, tt.buildCommit, tt.buildVer)

			err := Initialize()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Initialize() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}
			if got := *GetBuildInfo(); got != tt.want {
				t.Errorf("GetBuildInfo() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInfoString(t *testing.T) {
	info := &Info{Name: "bridge", Version: "v1.0.0", Commit: "abc", Time: "now"}
	want := "bridge v1.0.0 (commit abc, built now)"
	if got := info.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
