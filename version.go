// Package multicall holds the release version of the multicall driver.
package multicall

// Version is the current release.
const Version = "0.1.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
