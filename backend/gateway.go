package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/oqtopus-team/bitorder/common"
	"github.com/oqtopus-team/bitorder/core"
	"github.com/oqtopus-team/bitorder/gateway"
	"github.com/oqtopus-team/bitorder/result"
	"github.com/oqtopus-team/bitorder/transpiler"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// GatewayBackend runs jobs on a device gateway over gRPC. Jobs are
// synchronous on the gateway side and wrapped in a LocalJob here.
type GatewayBackend struct {
	client *gateway.Client
	conn   *grpc.ClientConn
	config *Configuration
	info   *gateway.DeviceInfo
	spec   *core.DeviceInfoSpec
}

// DialGateway connects to address and reads the device configuration.
func DialGateway(ctx context.Context, address string) (*GatewayBackend, error) {
	conn, err := common.GRPCClient(address)
	if err != nil {
		return nil, err
	}
	b, err := NewGatewayBackend(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	b.conn = conn
	return b, nil
}

func NewGatewayBackend(ctx context.Context, conn grpc.ClientConnInterface) (*GatewayBackend, error) {
	client := gateway.NewClient(conn)
	di, err := client.GetDeviceInfo(ctx)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to get device info from gateway/reason:%s", err))
		return nil, err
	}
	spec, err := core.ParseDeviceInfoSpec(di.DeviceInfo)
	if err != nil {
		return nil, err
	}
	return &GatewayBackend{
		client: client,
		config: configurationFromDeviceInfo(di, spec),
		info:   di,
		spec:   spec,
	}, nil
}

func configurationFromDeviceInfo(di *gateway.DeviceInfo, spec *core.DeviceInfoSpec) *Configuration {
	nQubits := spec.NQubits
	if nQubits == 0 {
		nQubits = di.MaxQubits
	}
	return &Configuration{
		BackendName:    di.DeviceID,
		BackendVersion: di.CalibratedAt,
		NQubits:        nQubits,
		BasisGates:     spec.BasisGates,
		CouplingMap:    spec.CouplingMap,
		MaxShots:       di.MaxShots,
	}
}

func (b *GatewayBackend) Name() string {
	return b.config.BackendName
}

func (b *GatewayBackend) Configuration() *Configuration {
	return b.config
}

// DeviceInfo is the raw device info the gateway published when connecting.
func (b *GatewayBackend) DeviceInfo() *gateway.DeviceInfo {
	return b.info
}

// Properties reports the measurement errors published in the device info.
func (b *GatewayBackend) Properties(context.Context) (*Properties, error) {
	return PropertiesFromDeviceInfoSpec(b.spec, b.config.BackendVersion), nil
}

func mapServiceStatus(ss gateway.ServiceStatus) core.DeviceStatus {
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

func (b *GatewayBackend) Status(ctx context.Context) (*Status, error) {
	st, err := b.client.GetServiceStatus(ctx)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to get service status of %s/reason:%s", b.Name(), err))
		return nil, err
	}
	ds := mapServiceStatus(st.Status)
	return &Status{
		BackendName:    b.config.BackendName,
		BackendVersion: b.config.BackendVersion,
		Operational:    ds == core.Available,
		PendingJobs:    st.PendingJobs,
		StatusMsg:      st.Status.String(),
	}, nil
}

func (b *GatewayBackend) Run(_ context.Context, q *transpiler.Qobj) (Job, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	payload, err := q.Marshal()
	if err != nil {
		return nil, err
	}
	j := newLocalJob(b.config, q)
	go j.run(func(ctx context.Context) ([]result.Counts, error) {
		start := time.Now()
		res, err := b.client.CallJob(ctx, &gateway.JobRequest{
			JobID:   j.ID(),
			Shots:   q.Config.Shots,
			Program: string(payload),
		})
		if err != nil {
			return nil, err
		}
		zap.L().Debug(fmt.Sprintf("gateway job(%s) took %s/status:%d", j.ID(), time.Since(start), res.Status))
		if res.Status != gateway.JobStatusSuccess {
			return nil, fmt.Errorf("gateway job %s failed: %s", j.ID(), res.Message)
		}
		counts := make([]result.Counts, 0, len(res.Counts))
		for _, c := range res.Counts {
			counts = append(counts, result.Counts(c))
		}
		return counts, nil
	})
	return j, nil
}

func (b *GatewayBackend) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
