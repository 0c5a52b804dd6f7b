package log

import (
	"fmt"

	"github.com/oqtopus-team/bitorder/core"
	"go.uber.org/zap"
)

const VersionLogTaskName = "version_log"

// VersionLogTaskImpl reports the running version and the device it serves.
type VersionLogTaskImpl struct {
	core.DefaultTaskImpl
}

func (v *VersionLogTaskImpl) Task() {
	msg := "bitorder version:" + core.Version
	if sc := core.GetSystemComponents(); sc != nil {
		if di := sc.GetDeviceInfo(); di != nil {
			msg += fmt.Sprintf("/device:%s/status:%s", di.DeviceName, di.Status)
		}
	}
	zap.L().Debug(msg)
}
