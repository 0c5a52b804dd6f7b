package core

import (
	"fmt"

	"go.uber.org/zap"
)

var Version string

const NoVersion = "no_version_info"

// SetVersion prefers the version injected at build time over the configured one.
func SetVersion(c *Conf, versionByBuildFlag string) {
	switch {
	case versionByBuildFlag != "":
		Version = versionByBuildFlag
	case c.Version != "":
		Version = c.Version
	default:
		Version = NoVersion
	}
	zap.L().Info(fmt.Sprintf("bitorder version is %s", Version))
}

// UserAgent is sent by every outgoing HTTP request of the provider client.
func UserAgent() string {
	if Version == "" {
		return "bitorder/" + NoVersion
	}
	return "bitorder/" + Version
}
