//go:build unit
// +build unit

package backend

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/oqtopus-team/bitorder/circuit"
	"github.com/oqtopus-team/bitorder/gateway"
	"github.com/oqtopus-team/bitorder/result"
	"github.com/oqtopus-team/bitorder/transpiler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

const shots = 4000

func swappedMeasureQobj(t *testing.T, target transpiler.Target, seed int64) *transpiler.Qobj {
	qr := circuit.NewQuantumRegister(2, "q")
	cr := circuit.NewClassicalRegister(2, "c")
	c := circuit.New(qr, cr)
	c.H(qr.At(0))
	c.Measure(qr.At(0), cr.At(1))
	c.Measure(qr.At(1), cr.At(0))
	c.Name = "swapped"
	compiled, err := transpiler.Compile(c, target, transpiler.Options{LayoutMethod: transpiler.LayoutTrivial})
	require.Nil(t, err)
	return transpiler.Assemble([]*transpiler.Experiment{compiled.Experiment}, shots, seed)
}

func runToCounts(t *testing.T, b Backend, q *transpiler.Qobj) result.Counts {
	ctx := context.Background()
	job, err := b.Run(ctx, q)
	require.Nil(t, err)
	res, err := job.Result(ctx, 10*time.Second)
	require.Nil(t, err)
	st, err := job.Status(ctx)
	require.Nil(t, err)
	assert.Equal(t, JobStatusDone, st)
	counts, err := res.GetCounts()
	require.Nil(t, err)
	return counts
}

func TestSimulatorHonorsMemorySlots(t *testing.T) {
	sim := NewSimulator()
	counts := runToCounts(t, sim, swappedMeasureQobj(t, sim.Configuration().Target(), 42))
	assert.ElementsMatch(t, []string{"00", "10"}, counts.Keys())
	assert.Equal(t, shots, counts.Shots())
	assert.InDelta(t, shots/2, counts["10"], 200)
}

func TestSimulatorLegacyBitOrder(t *testing.T) {
	sim := NewSimulator(ExecOptions{LegacyBitOrder: true})
	counts := runToCounts(t, sim, swappedMeasureQobj(t, sim.Configuration().Target(), 42))
	assert.ElementsMatch(t, []string{"00", "01"}, counts.Keys())
}

func TestSimulatorSeedIsDeterministic(t *testing.T) {
	sim := NewSimulator()
	q := swappedMeasureQobj(t, sim.Configuration().Target(), 7)
	first := runToCounts(t, sim, q)
	second := runToCounts(t, sim, q)
	assert.Equal(t, first, second)
}

func TestSimulatorReadoutErrors(t *testing.T) {
	sim := NewSimulator(ExecOptions{
		Seed:          1,
		ReadoutErrors: []ReadoutError{{}, {ProbMeas1Prep0: 1}},
	})
	counts := runToCounts(t, sim, swappedMeasureQobj(t, sim.Configuration().Target(), 0))
	// qubit 1 is always read as 1 and lands in c[0]
	assert.ElementsMatch(t, []string{"01", "11"}, counts.Keys())
}

func TestSimulatorRejectsInvalidQobj(t *testing.T) {
	sim := NewSimulator()
	q := swappedMeasureQobj(t, sim.Configuration().Target(), 0)
	q.Config.Shots = SimulatorMaxShots + 1
	_, err := sim.Run(context.Background(), q)
	assert.EqualError(t, err, fmt.Sprintf("shots(%d) is over the limit(%d)", SimulatorMaxShots+1, SimulatorMaxShots))

	q.Config.Shots = 0
	_, err = sim.Run(context.Background(), q)
	assert.EqualError(t, err, "shots(0) must be greater than 0")
}

func TestSimulatorMidCircuitMeasurement(t *testing.T) {
	qr := circuit.NewQuantumRegister(1, "q")
	cr := circuit.NewClassicalRegister(2, "c")
	c := circuit.New(qr, cr)
	c.Measure(qr.At(0), cr.At(0))
	c.X(qr.At(0))
	c.Measure(qr.At(0), cr.At(1))
	compiled, err := transpiler.Compile(c, NewSimulator().Configuration().Target(), transpiler.Options{})
	require.Nil(t, err)
	counts, err := RunExperiment(context.Background(), compiled.Experiment, 100, ExecOptions{Seed: 3})
	require.Nil(t, err)
	assert.Equal(t, result.Counts{"0x2": 100}, counts)
}

func TestLocalJobTimeoutAndCancel(t *testing.T) {
	q := swappedMeasureQobj(t, NewSimulator().Configuration().Target(), 0)
	j := newLocalJob(NewSimulator().Configuration(), q)
	go j.run(func(ctx context.Context) ([]result.Counts, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx := context.Background()
	_, err := j.Result(ctx, 10*time.Millisecond)
	assert.True(t, errors.Is(err, ErrJobTimeout))
	st, _ := j.Status(ctx)
	assert.False(t, st.IsFinal())

	require.Nil(t, j.Cancel(ctx))
	_, err = j.Result(ctx, time.Second)
	assert.True(t, errors.Is(err, ErrJobCancelled))
	st, _ = j.Status(ctx)
	assert.Equal(t, JobStatusCancelled, st)
}

func TestLocalJobError(t *testing.T) {
	q := swappedMeasureQobj(t, NewSimulator().Configuration().Target(), 0)
	j := newLocalJob(NewSimulator().Configuration(), q)
	go j.run(func(context.Context) ([]result.Counts, error) {
		return nil, fmt.Errorf("boom")
	})
	_, err := j.Result(context.Background(), time.Second)
	assert.EqualError(t, err, "boom")
	st, _ := j.Status(context.Background())
	assert.Equal(t, JobStatusError, st)
}

func TestReadoutErrors(t *testing.T) {
	p := &Properties{Qubits: [][]Nduv{
		{{Name: "prob_meas1_prep0", Value: 0.1}, {Name: "prob_meas0_prep1", Value: 0.2}},
		{{Name: "readout_error", Value: 0.05}},
		{},
	}}
	assert.Equal(t, []ReadoutError{
		{ProbMeas1Prep0: 0.1, ProbMeas0Prep1: 0.2},
		{ProbMeas1Prep0: 0.05, ProbMeas0Prep1: 0.05},
		{},
	}, p.ReadoutErrors())
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	b, err := r.GetBackend(SimulatorName)
	require.Nil(t, err)
	assert.Equal(t, SimulatorName, b.Name())

	_, err = r.GetBackend("ibmq_nowhere")
	assert.True(t, errors.Is(err, ErrBackendNotFound))
	assert.EqualError(t, err, "ibmq_nowhere: backend not found")

	r.Register(&Simulator{config: &Configuration{BackendName: "aer"}})
	names := []string{}
	for _, b := range r.Backends() {
		names = append(names, b.Name())
	}
	assert.Equal(t, []string{"aer", SimulatorName}, names)
}

// simulatingHandler serves a line device by running jobs on the simulator.
type simulatingHandler struct {
	status gateway.ServiceStatus
}

func (h *simulatingHandler) GetDeviceInfo(context.Context) (*gateway.DeviceInfo, error) {
	return &gateway.DeviceInfo{
		DeviceID:  "fake_line",
		MaxQubits: 3,
		MaxShots:  10000,
		DeviceInfo: `{"device_id":"fake_line","n_qubits":3,"basis_gates":["rz","sx","x","cx"],
			"coupling_map":[[0,1],[1,2]],
			"qubits":[{"id":0,"meas_error":{"prob_meas1_prep0":0.01,"prob_meas0_prep1":0.02}},{"id":2,"meas_error":{"prob_meas1_prep0":0.03}}]}`,
		CalibratedAt: "2026-10-01",
	}, nil
}

func (h *simulatingHandler) GetServiceStatus(context.Context) (*gateway.ServiceStatusResponse, error) {
	return &gateway.ServiceStatusResponse{Status: h.status, PendingJobs: 2}, nil
}

func (h *simulatingHandler) CallJob(ctx context.Context, r *gateway.JobRequest) (*gateway.JobResponse, error) {
	q, err := transpiler.ParseQobj([]byte(r.Program))
	if err != nil {
		return &gateway.JobResponse{Status: gateway.JobStatusFailure, Message: err.Error()}, nil
	}
	counts, err := Execute(ctx, q, ExecOptions{Seed: 5})
	if err != nil {
		return &gateway.JobResponse{Status: gateway.JobStatusFailure, Message: err.Error()}, nil
	}
	res := &gateway.JobResponse{Status: gateway.JobStatusSuccess}
	for _, c := range counts {
		res.Counts = append(res.Counts, c)
	}
	return res, nil
}

func dialGateway(t *testing.T, h gateway.Handler) *GatewayBackend {
	lis := bufconn.Listen(1024 * 1024)
	s := grpc.NewServer()
	gateway.Register(s, h)
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
	b, err := NewGatewayBackend(context.Background(), conn)
	require.Nil(t, err)
	return b
}

func TestGatewayBackend(t *testing.T) {
	h := &simulatingHandler{status: gateway.ServiceStatusActive}
	b := dialGateway(t, h)
	ctx := context.Background()

	assert.Equal(t, "fake_line", b.Name())
	cfg := b.Configuration()
	assert.Equal(t, 3, cfg.NQubits)
	assert.Equal(t, [][2]int{{0, 1}, {1, 2}}, cfg.CouplingMap)
	assert.False(t, cfg.Simulator)

	st, err := b.Status(ctx)
	require.Nil(t, err)
	assert.True(t, st.Operational)
	assert.Equal(t, 2, st.PendingJobs)

	h.status = gateway.ServiceStatusMaintenance
	st, err = b.Status(ctx)
	require.Nil(t, err)
	assert.False(t, st.Operational)
	assert.Equal(t, "maintenance", st.StatusMsg)

	props, err := b.Properties(ctx)
	require.Nil(t, err)
	assert.Equal(t, []ReadoutError{
		{ProbMeas1Prep0: 0.01, ProbMeas0Prep1: 0.02},
		{},
		{ProbMeas1Prep0: 0.03},
	}, props.ReadoutErrors())

	counts := runToCounts(t, b, swappedMeasureQobj(t, cfg.Target(), 0))
	assert.ElementsMatch(t, []string{"00", "10"}, counts.Keys())
	assert.Nil(t, b.Close())
}

func TestGatewayBackendJobFailure(t *testing.T) {
	b := dialGateway(t, &simulatingHandler{status: gateway.ServiceStatusActive})
	q := swappedMeasureQobj(t, b.Configuration().Target(), 0)
	q.Experiments[0].Config.NQubits = 30
	q.Experiments[0].Header.NQubits = 30
	job, err := b.Run(context.Background(), q)
	require.Nil(t, err)
	_, err = job.Result(context.Background(), 5*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed: number of qubits (30) is greater than maximum (24) of the simulator")
}

func TestMapServiceStatus(t *testing.T) {
	tests := []struct {
		in   gateway.ServiceStatus
		want string
	}{
		{gateway.ServiceStatusActive, "Available"},
		{gateway.ServiceStatusInactive, "Unavailable"},
		{gateway.ServiceStatusMaintenance, "QueuePaused"},
		{gateway.ServiceStatusUnspecified, "Unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, mapServiceStatus(tt.in).String())
		})
	}
}
