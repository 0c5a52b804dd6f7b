//go:build unit
// +build unit

package qpu

import (
	"testing"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/oqtopus-team/bitorder/circuit"
	"github.com/oqtopus-team/bitorder/core"
	"github.com/oqtopus-team/bitorder/transpiler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testShots = 1000

func swappedMeasureProgram(t *testing.T, ds *DeviceSetting) string {
	qr := circuit.NewQuantumRegister(2, "q")
	cr := circuit.NewClassicalRegister(2, "c")
	c := circuit.New(qr, cr)
	c.X(qr.At(0))
	c.Measure(qr.At(0), cr.At(1))
	c.Measure(qr.At(1), cr.At(0))
	target := transpiler.TargetFromDeviceInfoSpec(ds.Spec())
	compiled, err := transpiler.Compile(c, target, transpiler.Options{LayoutMethod: transpiler.LayoutTrivial})
	require.Nil(t, err)
	b, err := transpiler.Assemble([]*transpiler.Experiment{compiled.Experiment}, testShots, 3).Marshal()
	require.Nil(t, err)
	return string(b)
}

func newTestJob(program string) core.Job {
	jd := core.NewJobData()
	jd.ID = "qpu_test_job"
	jd.Shots = testShots
	jd.TranspiledProgram = program
	jd.JobType = core.NORMAL_JOB
	return (&core.NormalJob{}).New(jd, nil)
}

func TestSimulatorQPUSend(t *testing.T) {
	tests := []struct {
		name       string
		legacy     bool
		wantCounts core.Counts
	}{
		{
			name:       "memory slots are honored",
			wantCounts: core.Counts{"0x2": testShots},
		},
		{
			name:       "legacy bit order reports by physical qubit",
			legacy:     true,
			wantCounts: core.Counts{"0x1": testShots},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := loadUnitTestDeviceSetting(t)
			ds.Qubits = nil
			ds.LegacyBitOrder = tt.legacy
			q := &SimulatorQPU{}
			q.SetDeviceSetting(ds)

			j := newTestJob(swappedMeasureProgram(t, ds))
			require.Nil(t, q.Send(j))
			jd := j.JobData()
			assert.Equal(t, core.SUCCEEDED, jd.Status)
			assert.Equal(t, tt.wantCounts, jd.Result.Counts)
			assert.Equal(t, tt.wantCounts, jd.Result.DividedResult[0])
			assert.Equal(t, "executed on unit_test_line3", jd.Result.Message)
		})
	}
}

func TestSimulatorQPUSendFailures(t *testing.T) {
	ds := loadUnitTestDeviceSetting(t)

	q := &SimulatorQPU{}
	assert.EqualError(t, q.Send(newTestJob("{}")), "simulator QPU is not set up")

	q.SetDeviceSetting(ds)
	j := newTestJob("not a qobj")
	assert.NotNil(t, q.Send(j))
	assert.Equal(t, core.FAILED, j.JobData().Status)

	q.SetStatus(core.QueuePaused)
	j = newTestJob(swappedMeasureProgram(t, ds))
	assert.EqualError(t, q.Send(j), "device is QueuePaused")
	assert.Equal(t, core.FAILED, j.JobData().Status)
	assert.Equal(t, core.QueuePaused, q.GetDeviceInfo().Status)
}

func TestSimulatorQPUValidate(t *testing.T) {
	ds := loadUnitTestDeviceSetting(t)
	q := &SimulatorQPU{}
	assert.NotNil(t, q.Validate(""))
	q.SetDeviceSetting(ds)

	tests := []struct {
		name    string
		program string
		wantErr string
	}{
		{
			name:    "compiled program",
			program: swappedMeasureProgram(t, ds),
		},
		{
			name: "qasm within the device",
			program: heredoc.Doc(`
				OPENQASM 3;
				qubit[2] q;
				bit[2] c;
				x q[0];
				c[0] = measure q[0];
			`),
		},
		{
			name: "qasm too wide",
			program: heredoc.Doc(`
				OPENQASM 3;
				qubit[4] q;
				x q[3];
			`),
			wantErr: "number of qubits (4) is greater than maximum (3) of unit_test_line3",
		},
		{
			name: "qasm gate not allowed",
			program: heredoc.Doc(`
				OPENQASM 3;
				qubit[1] q;
				h q[0];
			`),
			wantErr: "gate h is not in the allow list",
		},
		{
			name:    "qobj not in coupling map",
			program: `{"qobj_id":"x","config":{"shots":10,"memory_slots":0,"n_qubits":3},"experiments":[{"header":{"name":"e"},"config":{"n_qubits":3},"instructions":[{"name":"cx","qubits":[0,2]}]}]}`,
			wantErr: "experiment 0: cx on [0 2] is not in the coupling map",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := q.Validate(tt.program)
			if tt.wantErr == "" {
				assert.Nil(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestStoreCounts(t *testing.T) {
	jd := core.NewJobData()
	storeCounts(jd, []map[string]int{{"0x0": 3, "0x1": 7}, {"0x3": 10}})
	assert.Equal(t, core.Counts{"0x0": 3, "0x1": 7}, jd.Result.Counts)
	assert.Equal(t, core.Counts{"0x3": 10}, jd.Result.DividedResult[1])

	storeCounts(jd, nil)
	assert.Empty(t, jd.Result.Counts)
	assert.Empty(t, jd.Result.DividedResult)
}
