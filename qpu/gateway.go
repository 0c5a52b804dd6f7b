package qpu

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/oqtopus-team/bitorder/common"
	"github.com/oqtopus-team/bitorder/core"
	"github.com/oqtopus-team/bitorder/gateway"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

type GatewayAgent interface {
	Setup(address string) error
	CallDeviceInfo(context.Context) (*core.DeviceInfo, error)
	CallJob(context.Context, core.Job) error
	Close()

	GetAddress() string
}

// DefaultGatewayAgent talks to a device gateway over gRPC.
type DefaultGatewayAgent struct {
	address string
	conn    *grpc.ClientConn
	client  *gateway.Client
}

func NewGatewayAgent() *DefaultGatewayAgent {
	return &DefaultGatewayAgent{}
}

func (a *DefaultGatewayAgent) Setup(address string) error {
	conn, err := common.GRPCClient(address)
	if err != nil {
		return err
	}
	a.address = address
	a.conn = conn
	a.client = gateway.NewClient(conn)
	return nil
}

// setupWithConn is used with in-process connections.
func (a *DefaultGatewayAgent) setupWithConn(address string, conn grpc.ClientConnInterface) {
	a.address = address
	a.client = gateway.NewClient(conn)
}

func (a *DefaultGatewayAgent) CallDeviceInfo(ctx context.Context) (*core.DeviceInfo, error) {
	di, err := a.client.GetDeviceInfo(ctx)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to get device info from %s/reason:%s", a.address, err))
		return &core.DeviceInfo{}, err
	}
	zap.L().Debug(fmt.Sprintf(
		"DeviceID:%s, ProviderID:%s, Type:%s, MaxQubits:%d, MaxShots:%d, DeviceInfo:%s, CalibratedAt:%s",
		di.DeviceID, di.ProviderID, di.Type, di.MaxQubits, di.MaxShots, di.DeviceInfo, di.CalibratedAt))
	ss, err := a.client.GetServiceStatus(ctx)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to get service status from %s/reason:%s", a.address, err))
		return &core.DeviceInfo{}, err
	}
	return &core.DeviceInfo{
		DeviceName:         di.DeviceID,
		ProviderName:       di.ProviderID,
		Type:               di.Type,
		Status:             mapServiceStatusToDeviceStatus(ss.Status),
		MaxQubits:          di.MaxQubits,
		MaxShots:           di.MaxShots,
		DeviceInfoSpecJson: di.DeviceInfo,
		CalibratedAt:       di.CalibratedAt,
	}, nil
}

func mapServiceStatusToDeviceStatus(ss gateway.ServiceStatus) core.DeviceStatus {
	switch ss {
	case gateway.ServiceStatusActive:
		return core.Available
	case gateway.ServiceStatusInactive:
		return core.Unavailable
	case gateway.ServiceStatusMaintenance:
		return core.QueuePaused
	default:
		zap.L().Error(fmt.Sprintf("unknown service status %d, treating as Unavailable", ss))
		return core.Unavailable
	}
}

func (a *DefaultGatewayAgent) CallJob(ctx context.Context, j core.Job) error {
	jd := j.JobData()
	program := jd.ExecutableProgram()
	zap.L().Debug(fmt.Sprintf("sending a job to QPU/JobID:%s, Shots:%d", jd.ID, jd.Shots))
	start := time.Now()
	resp, err := a.client.CallJob(ctx, &gateway.JobRequest{
		JobID:   jd.ID,
		Shots:   jd.Shots,
		Program: program,
	})
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to call the job in %s/reason:%s", a.address, err))
		return err
	}
	switch resp.Status {
	case gateway.JobStatusSuccess:
		jd.Status = core.SUCCEEDED
	case gateway.JobStatusFailure, gateway.JobStatusInactive:
		jd.Status = core.FAILED
	default:
		return fmt.Errorf("unknown job status %d", resp.Status)
	}
	storeCounts(jd, resp.Counts)
	jd.Result.Message = resp.Message
	jd.Result.ExecutionTime = time.Since(start)
	zap.L().Debug(fmt.Sprintf("JobID:%s, Status:%s, Counts:%v, ExecutionTime:%s",
		jd.ID, jd.Status, jd.Result.Counts, jd.Result.ExecutionTime))
	return nil
}

func (a *DefaultGatewayAgent) Close() {
	if a.conn != nil {
		a.conn.Close()
	}
}

func (a *DefaultGatewayAgent) GetAddress() string {
	return a.address
}

// GatewayQPU forwards jobs to a device gateway. The device info is polled
// in the background and a job is refused while the gateway is unreachable.
type GatewayQPU struct {
	agent         GatewayAgent
	deviceSetting *DeviceSetting

	mu                sync.RWMutex
	connected         bool
	currentDeviceInfo *core.DeviceInfo

	cancel context.CancelFunc
}

func (q *GatewayQPU) Setup(conf *core.Conf) error {
	zap.L().Debug("setting up gateway QPU")
	ds, err := LoadDeviceSetting(conf.DeviceSettingPath)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to load a device setting/reason:%s", err))
		return err
	}
	address, err := common.ValidAddress(ds.MachineHost, ds.MachinePort)
	if err != nil {
		return err
	}
	if q.agent == nil {
		q.agent = NewGatewayAgent()
	}
	if err := q.agent.Setup(address); err != nil {
		zap.L().Error(fmt.Sprintf("failed to setup gateway QPU/reason:%s", err))
		return err
	}
	q.deviceSetting = ds
	q.setDeviceInfo(&core.DeviceInfo{Status: core.Unavailable}, false)
	if ds.PollingPeriod > 0 {
		q.startDevicePolling(time.Duration(ds.PollingPeriod) * time.Second)
	}
	return nil
}

func (q *GatewayQPU) Validate(program string) error {
	di := q.GetDeviceInfo()
	if di == nil || di.DeviceInfoSpecJson == "" {
		return fmt.Errorf("device info of the gateway is not available")
	}
	spec, err := core.ParseDeviceInfoSpec(di.DeviceInfoSpecJson)
	if err != nil {
		return err
	}
	return validateProgram(program, spec, q.deviceSetting.GateSupport)
}

func (q *GatewayQPU) Send(j core.Job) error {
	jd := j.JobData()
	zap.L().Info("starting gateway QPU execution of job:" + jd.ID)
	if !q.GetConnected() {
		err := fmt.Errorf("gateway QPU is not connected")
		msg := core.SetFailureWithError(j, err)
		zap.L().Info(msg)
		return err
	}
	if err := q.agent.CallJob(context.Background(), j); err != nil {
		zap.L().Error(fmt.Sprintf("failed to call the job(%s) in %s/reason:%s", jd.ID, q.agent.GetAddress(), err))
		msg := core.SetFailureWithError(j, err)
		zap.L().Info(msg)
		return err
	}
	zap.L().Debug(fmt.Sprintf("job(%s) is processed/status:%s", jd.ID, jd.Status))
	jd.Ended = strfmt.DateTime(time.Now())
	return nil
}

func (q *GatewayQPU) GetDeviceInfo() *core.DeviceInfo {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.currentDeviceInfo
}

func (q *GatewayQPU) GetConnected() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.connected
}

func (q *GatewayQPU) setDeviceInfo(di *core.DeviceInfo, connected bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if connected && q.currentDeviceInfo != nil && hasDeviceInfoChanged(q.currentDeviceInfo, di) {
		zap.L().Info(fmt.Sprintf("device info of %s is updated/calibrated at:%s", di.DeviceName, di.CalibratedAt))
	}
	q.currentDeviceInfo = di
	q.connected = connected
}

// Refresh polls the gateway once.
func (q *GatewayQPU) Refresh(ctx context.Context) error {
	di, err := q.agent.CallDeviceInfo(ctx)
	if err != nil {
		q.setDeviceInfo(&core.DeviceInfo{Status: core.Unavailable}, false)
		return err
	}
	q.setDeviceInfo(di, true)
	return nil
}

func (q *GatewayQPU) startDevicePolling(period time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		zap.L().Debug("starting device polling")
		for {
			if err := q.Refresh(ctx); err != nil {
				zap.L().Error(fmt.Sprintf("failed to call device info/reason:%s", err))
			}
			zap.L().Debug(fmt.Sprintf("waiting %s for the next device polling to %s", period, q.agent.GetAddress()))
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
}

// Close stops the polling and closes the gateway connection.
func (q *GatewayQPU) Close() {
	if q.cancel != nil {
		q.cancel()
	}
	if q.agent != nil {
		q.agent.Close()
	}
}

func parseRFC3339Time(t string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, t)
}

func hasDeviceInfoChanged(oldDI, newDI *core.DeviceInfo) bool {
	if oldDI.DeviceName != newDI.DeviceName || oldDI.Status != newDI.Status ||
		oldDI.MaxQubits != newDI.MaxQubits || oldDI.MaxShots != newDI.MaxShots ||
		oldDI.DeviceInfoSpecJson != newDI.DeviceInfoSpecJson {
		return true
	}
	if oldDI.CalibratedAt == newDI.CalibratedAt {
		return false
	}
	oldT, oldErr := parseRFC3339Time(oldDI.CalibratedAt)
	newT, newErr := parseRFC3339Time(newDI.CalibratedAt)
	if oldErr != nil || newErr != nil {
		return true
	}
	return !oldT.Equal(newT)
}
