//go:build unit
// +build unit

package gateway

import (
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeHandler struct {
	lastJob *JobRequest
}

func (f *fakeHandler) GetDeviceInfo(context.Context) (*DeviceInfo, error) {
	return &DeviceInfo{
		DeviceID:     "fake_device",
		ProviderID:   "bitorder",
		Type:         "QPU",
		MaxQubits:    5,
		MaxShots:     10000,
		DeviceInfo:   `{"device_id":"fake_device","n_qubits":5}`,
		CalibratedAt: "2026-01-01T00:00:00Z",
	}, nil
}

func (f *fakeHandler) GetServiceStatus(context.Context) (*ServiceStatusResponse, error) {
	return &ServiceStatusResponse{Status: ServiceStatusMaintenance, PendingJobs: 3}, nil
}

func (f *fakeHandler) CallJob(_ context.Context, r *JobRequest) (*JobResponse, error) {
	f.lastJob = r
	if r.Shots == 0 {
		return nil, fmt.Errorf("shots must be positive")
	}
	return &JobResponse{
		Status:  JobStatusSuccess,
		Counts:  []map[string]int{{"0x0": 6, "0x3": 4}, {"0x1": 10}},
		Message: "ok",
	}, nil
}

func startServer(t *testing.T, h Handler, opts ...grpc.ServerOption) *Client {
	lis := bufconn.Listen(1024 * 1024)
	s := grpc.NewServer(opts...)
	Register(s, h)
	go func() {
		_ = s.Serve(lis)
	}()
	t.Cleanup(s.Stop)
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.Nil(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

func TestGatewayRoundTrip(t *testing.T) {
	h := &fakeHandler{}
	c := startServer(t, h)
	ctx := context.Background()

	di, err := c.GetDeviceInfo(ctx)
	require.Nil(t, err)
	want, _ := h.GetDeviceInfo(ctx)
	assert.Equal(t, want, di)

	st, err := c.GetServiceStatus(ctx)
	require.Nil(t, err)
	assert.Equal(t, &ServiceStatusResponse{Status: ServiceStatusMaintenance, PendingJobs: 3}, st)
	assert.Equal(t, "maintenance", st.Status.String())

	res, err := c.CallJob(ctx, &JobRequest{JobID: "job-1", Shots: 10, Program: "{}"})
	require.Nil(t, err)
	assert.Equal(t, &JobResponse{
		Status:  JobStatusSuccess,
		Counts:  []map[string]int{{"0x0": 6, "0x3": 4}, {"0x1": 10}},
		Message: "ok",
	}, res)
	assert.Equal(t, &JobRequest{JobID: "job-1", Shots: 10, Program: "{}"}, h.lastJob)
}

func TestGatewayErrors(t *testing.T) {
	c := startServer(t, &fakeHandler{})
	ctx := context.Background()

	_, err := c.CallJob(ctx, &JobRequest{Shots: 10})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.CallJob(ctx, &JobRequest{JobID: "job-2"})
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Contains(t, err.Error(), "shots must be positive")
}

func TestGatewayInterceptor(t *testing.T) {
	var methods []string
	interceptor := func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		methods = append(methods, info.FullMethod)
		return handler(ctx, req)
	}
	c := startServer(t, &fakeHandler{}, grpc.UnaryInterceptor(interceptor))
	_, err := c.GetServiceStatus(context.Background())
	require.Nil(t, err)
	assert.Equal(t, []string{"/bitorder.gateway.v1.GatewayService/GetServiceStatus"}, methods)
}
