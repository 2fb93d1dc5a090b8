// Package version holds the build version.
package version

// Version is set at build time:
//
//	go build -ldflags "-X github.com/aristath/forecaster/internal/version.Version=1.0.0" ./cmd/forecaster
var Version = "dev"
