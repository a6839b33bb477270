// Package version exposes the build version stamped at link time.
package version

// value is overridden via -ldflags at release builds.
var value = "v0.0.0-dev"

// Value returns the build version.
func Value() string {
	return value
}
