//go:build unit
// +build unit

package transpiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterSizeJSON(t *testing.T) {
	b, err := jsonIter.Marshal([]RegisterSize{{Name: "c0", Size: 2}, {Name: "c1", Size: 1}})
	require.Nil(t, err)
	assert.Equal(t, `[["c0",2],["c1",1]]`, string(b))

	var got []RegisterSize
	require.Nil(t, jsonIter.Unmarshal(b, &got))
	assert.Equal(t, []RegisterSize{{Name: "c0", Size: 2}, {Name: "c1", Size: 1}}, got)

	var bad RegisterSize
	assert.Error(t, jsonIter.Unmarshal([]byte(`["c0"]`), &bad))
}

func TestAssembleAndParse(t *testing.T) {
	compiled, err := Compile(reorderingCircuit(), simulatorTarget, Options{})
	require.Nil(t, err)
	q := Assemble([]*Experiment{compiled.Experiment}, 2000, 42)
	assert.NotEmpty(t, q.QobjID)
	assert.Equal(t, QobjConfig{Shots: 2000, MemorySlots: 2, NQubits: 2, SeedSimulator: 42}, q.Config)

	b, err := q.Marshal()
	require.Nil(t, err)
	parsed, err := ParseQobj(b)
	require.Nil(t, err)
	assert.Equal(t, q, parsed)
}

func TestQobjValidate(t *testing.T) {
	exp := func(insts ...QobjInstruction) *Experiment {
		return &Experiment{Config: ExperimentConfig{NQubits: 2, MemorySlots: 1}, Instructions: insts}
	}
	tests := []struct {
		name      string
		qobj      *Qobj
		wantError string
	}{
		{
			name:      "no shots",
			qobj:      &Qobj{Experiments: []*Experiment{exp()}},
			wantError: "shots(0) must be greater than 0",
		},
		{
			name:      "no experiments",
			qobj:      &Qobj{QobjID: "q", Config: QobjConfig{Shots: 1}},
			wantError: "qobj q has no experiments",
		},
		{
			name: "qubit out of range",
			qobj: &Qobj{Config: QobjConfig{Shots: 1}, Experiments: []*Experiment{
				exp(QobjInstruction{Name: "x", Qubits: []int{2}}),
			}},
			wantError: "experiment 0: x uses qubit 2 out of 2",
		},
		{
			name: "memory out of range",
			qobj: &Qobj{Config: QobjConfig{Shots: 1}, Experiments: []*Experiment{
				exp(QobjInstruction{Name: "measure", Qubits: []int{0}, Memory: []int{1}}),
			}},
			wantError: "experiment 0: memory slot 1 out of 1",
		},
		{
			name: "valid",
			qobj: &Qobj{Config: QobjConfig{Shots: 1}, Experiments: []*Experiment{
				exp(QobjInstruction{Name: "measure", Qubits: []int{1}, Memory: []int{0}}),
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.qobj.Validate()
			if tt.wantError == "" {
				assert.Nil(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantError)
		})
	}
}

func TestCheckTarget(t *testing.T) {
	simCompiled, err := Compile(reorderingCircuit(), simulatorTarget, Options{})
	require.Nil(t, err)
	devCompiled, err := Compile(reorderingCircuit(), lineTarget, Options{OptimizationLevel: 1})
	require.Nil(t, err)

	assert.Nil(t, Assemble([]*Experiment{devCompiled.Experiment}, 10, 0).CheckTarget(lineTarget))
	assert.EqualError(t,
		Assemble([]*Experiment{simCompiled.Experiment}, 10, 0).CheckTarget(lineTarget),
		"experiment 0: gate h is not in the basis [rz sx x cx]")

	far := &Experiment{
		Header:       ExperimentHeader{Name: "far"},
		Config:       ExperimentConfig{NQubits: 4},
		Instructions: []QobjInstruction{{Name: "cx", Qubits: []int{0, 3}}},
	}
	assert.EqualError(t, Assemble([]*Experiment{far}, 10, 0).CheckTarget(lineTarget),
		"experiment 0: cx on [0 3] is not in the coupling map")
}
