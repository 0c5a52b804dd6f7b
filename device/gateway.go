package device

import (
	"context"
	"fmt"
	"time"

	"github.com/oqtopus-team/bitorder/core"
	"github.com/oqtopus-team/bitorder/gateway"
	"go.uber.org/zap"
)

// gatewayHandler serves the device through the gateway service. A job call
// goes through the same queue as API jobs and blocks until it is final.
type gatewayHandler struct {
	d *Device
}

// GatewayHandler returns the device side of the gateway service.
func (d *Device) GatewayHandler() gateway.Handler {
	return &gatewayHandler{d: d}
}

func (h *gatewayHandler) GetDeviceInfo(context.Context) (*gateway.DeviceInfo, error) {
	di := h.d.qpu.GetDeviceInfo()
	if di.DeviceInfoSpecJson == "" {
		return nil, fmt.Errorf("device info is not available")
	}
	return &gateway.DeviceInfo{
		DeviceID:     di.DeviceName,
		ProviderID:   di.ProviderName,
		Type:         di.Type,
		MaxQubits:    di.MaxQubits,
		MaxShots:     di.MaxShots,
		DeviceInfo:   di.DeviceInfoSpecJson,
		CalibratedAt: di.CalibratedAt,
	}, nil
}

func toServiceStatus(s core.DeviceStatus) gateway.ServiceStatus {
	switch s {
	case core.Available:
		return gateway.ServiceStatusActive
	case core.QueuePaused:
		return gateway.ServiceStatusMaintenance
	default:
		return gateway.ServiceStatusInactive
	}
}

func (h *gatewayHandler) GetServiceStatus(context.Context) (*gateway.ServiceStatusResponse, error) {
	return &gateway.ServiceStatusResponse{
		Status:      toServiceStatus(h.d.qpu.GetDeviceInfo().Status),
		PendingJobs: h.d.QueueLength(),
	}, nil
}

func (h *gatewayHandler) CallJob(ctx context.Context, req *gateway.JobRequest) (*gateway.JobResponse, error) {
	if st := h.d.qpu.GetDeviceInfo().Status; st != core.Available {
		return &gateway.JobResponse{
			Status:  gateway.JobStatusInactive,
			Message: fmt.Sprintf("device is %s", st),
		}, nil
	}
	jd, err := h.d.submit(ctx, submission{
		jobID:   req.JobID,
		program: req.Program,
		shots:   req.Shots,
	})
	if err != nil {
		return &gateway.JobResponse{Status: gateway.JobStatusFailure, Message: err.Error()}, nil
	}
	timeout := time.Duration(h.d.setting.CallJobTimeoutSec) * time.Second
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	jd, err = h.d.wait(ctx, jd.ID)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to wait for job(%s)/reason:%s", req.JobID, err))
		return nil, err
	}
	if jd.Status != core.SUCCEEDED {
		return &gateway.JobResponse{Status: gateway.JobStatusFailure, Message: jd.Result.Message}, nil
	}
	return &gateway.JobResponse{
		Status:  gateway.JobStatusSuccess,
		Counts:  rawCounts(jd),
		Message: jd.Result.Message,
	}, nil
}
