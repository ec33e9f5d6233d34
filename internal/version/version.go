// ABOUTME: Build and version information for the sdplay binaries
// ABOUTME: Variables are injected at build time via -ldflags
package version

import "fmt"

// Product is the name binaries report in headers and banners.
const Product = "sdplay"

// Build information, overridable at link time:
//
//	go build -ldflags "-X github.com/sdplay/sdplay-go/internal/version.Version=1.2.3"
var (
	Version   = "0.3.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// String returns the full human-readable version line printed by
// the -version flag.
func String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", Product, Version, GitCommit, BuildDate)
}

// UserAgent returns the token used in HTTP User-Agent and Server
// headers.
func UserAgent() string {
	return fmt.Sprintf("%s/%s", Product, Version)
}
