// Package version carries build metadata stamped in with -ldflags:
//
//	go build -ldflags "-X .../internal/version.version=v0.2.0 \
//	                   -X .../internal/version.commit=$(git rev-parse --short HEAD)"
package version

import "fmt"

var (
	version = "v0.1.0"
	commit  = ""
)

// Info returns the version string, with the commit hash appended when one
// was stamped in.
func Info() string {
	if commit == "" {
		return version
	}
	return fmt.Sprintf("%s (%s)", version, commit)
}
