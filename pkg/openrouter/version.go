package openrouter

import "github.com/grahamking/ort/pkg/version"

// versionString is split out so the default User-Agent tracks releases.
func versionString() string {
	return version.String()
}
