//go:build unit
// +build unit

package transpiler

import (
	"math"
	"testing"

	"github.com/oqtopus-team/bitorder/circuit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	simulatorTarget = Target{Name: "qasm_simulator", NumQubits: 24, Simulator: true}
	lineTarget      = Target{
		Name:        "fake_line",
		NumQubits:   4,
		BasisGates:  []string{"rz", "sx", "x", "cx"},
		CouplingMap: [][2]int{{0, 1}, {1, 2}, {2, 3}},
	}
)

func reorderingCircuit() *circuit.Circuit {
	qr := circuit.NewQuantumRegister(2, "q")
	cr := circuit.NewClassicalRegister(2, "c")
	c := circuit.New(qr, cr)
	c.H(qr.At(0))
	c.Measure(qr.At(0), cr.At(1))
	c.Measure(qr.At(1), cr.At(0))
	return c
}

func TestCompileForSimulator(t *testing.T) {
	got, err := Compile(reorderingCircuit(), simulatorTarget, Options{})
	require.Nil(t, err)
	assert.Equal(t, []QobjInstruction{
		{Name: "h", Qubits: []int{0}},
		{Name: "measure", Qubits: []int{0}, Memory: []int{1}},
		{Name: "measure", Qubits: []int{1}, Memory: []int{0}},
	}, got.Instructions)
	assert.Equal(t, 2, got.Header.NQubits)
	assert.Equal(t, 2, got.Header.MemorySlots)
	assert.Equal(t, []RegisterSize{{Name: "c", Size: 2}}, got.Header.CregSizes)
	assert.Equal(t, []int{0, 1}, got.Layout)
	assert.JSONEq(t, `{"qubit_mapping":{"0":0,"1":1},"bit_mapping":{"0":0,"1":1}}`, got.Header.QubitLayout)
}

func TestCompileTranslatesToBasis(t *testing.T) {
	got, err := Compile(reorderingCircuit(), lineTarget, Options{LayoutMethod: LayoutTrivial})
	require.Nil(t, err)
	assert.Equal(t, []QobjInstruction{
		{Name: "rz", Qubits: []int{0}, Params: []float64{math.Pi / 2}},
		{Name: "sx", Qubits: []int{0}},
		{Name: "rz", Qubits: []int{0}, Params: []float64{math.Pi / 2}},
		{Name: "measure", Qubits: []int{0}, Memory: []int{1}},
		{Name: "measure", Qubits: []int{1}, Memory: []int{0}},
	}, got.Instructions)
	assert.Equal(t, 4, got.Header.NQubits)
	assert.Equal(t, 2, got.Config.MemorySlots)
}

func TestCompileDenseLayout(t *testing.T) {
	got, err := Compile(reorderingCircuit(), lineTarget, Options{OptimizationLevel: 1})
	require.Nil(t, err)
	assert.Equal(t, []int{1, 0}, got.Layout)
	assert.Equal(t, map[int]int{1: 1, 0: 0}, got.MeasuredSlots())
}

func TestCompileRoutesDistantQubits(t *testing.T) {
	qr := circuit.NewQuantumRegister(3, "q")
	cr := circuit.NewClassicalRegister(3, "c")
	c := circuit.New(qr, cr)
	c.X(qr.At(0)).CX(qr.At(0), qr.At(2))
	for i := 0; i < 3; i++ {
		c.Measure(qr.At(i), cr.At(i))
	}
	got, err := Compile(c, lineTarget, Options{LayoutMethod: LayoutTrivial})
	require.Nil(t, err)
	assert.Equal(t, 1, got.Stats[StatSwaps])
	assert.Equal(t, 4, got.Stats["cx"])
	assert.Equal(t, []QobjInstruction{
		{Name: "x", Qubits: []int{0}},
		{Name: "cx", Qubits: []int{0, 1}},
		{Name: "cx", Qubits: []int{1, 0}},
		{Name: "cx", Qubits: []int{0, 1}},
		{Name: "cx", Qubits: []int{1, 2}},
		{Name: "measure", Qubits: []int{1}, Memory: []int{0}},
		{Name: "measure", Qubits: []int{0}, Memory: []int{1}},
		{Name: "measure", Qubits: []int{2}, Memory: []int{2}},
	}, got.Instructions)
}

func TestCompileErrors(t *testing.T) {
	qr := circuit.NewQuantumRegister(5, "q")
	wide := circuit.New(qr)
	wide.Name = "wide"
	wide.H(qr.At(0))

	broken := circuit.New(circuit.NewQuantumRegister(1, "a"))
	broken.H(circuit.NewQuantumRegister(1, "b").At(0))

	noSX := lineTarget
	noSX.BasisGates = []string{"rz", "cx"}

	tests := []struct {
		name      string
		circ      *circuit.Circuit
		target    Target
		opts      Options
		wantError string
	}{
		{
			name:      "too wide",
			circ:      wide,
			target:    lineTarget,
			wantError: "number of qubits (5) in wide is greater than maximum (4) in the coupling_map",
		},
		{
			name:      "build error",
			circ:      broken,
			target:    simulatorTarget,
			wantError: "h: qubit b[0] is not in the circuit",
		},
		{
			name:      "untranslatable",
			circ:      reorderingCircuit(),
			target:    noSX,
			opts:      Options{LayoutMethod: LayoutTrivial},
			wantError: "gate h cannot be translated to the basis [rz cx] of fake_line",
		},
		{
			name:      "short initial layout",
			circ:      reorderingCircuit(),
			target:    lineTarget,
			opts:      Options{InitialLayout: []int{0}},
			wantError: "initial layout has 1 qubits but the circuit has 2",
		},
		{
			name:      "duplicate initial layout",
			circ:      reorderingCircuit(),
			target:    lineTarget,
			opts:      Options{InitialLayout: []int{2, 2}},
			wantError: "physical qubit 2 is used twice in the initial layout",
		},
		{
			name:      "unknown layout method",
			circ:      reorderingCircuit(),
			target:    lineTarget,
			opts:      Options{LayoutMethod: "sabre"},
			wantError: "unknown layout method sabre",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.circ, tt.target, tt.opts)
			assert.EqualError(t, err, tt.wantError)
		})
	}
}

func TestOptimize(t *testing.T) {
	tests := []struct {
		name string
		in   []op
		want []op
	}{
		{
			name: "h pair cancels",
			in:   []op{{name: "h", qubits: []int{0}}, {name: "h", qubits: []int{0}}},
			want: []op{},
		},
		{
			name: "other qubit does not block",
			in: []op{
				{name: "x", qubits: []int{0}},
				{name: "h", qubits: []int{1}},
				{name: "x", qubits: []int{0}},
			},
			want: []op{{name: "h", qubits: []int{1}}},
		},
		{
			name: "reversed cx stays",
			in: []op{
				{name: "cx", qubits: []int{0, 1}},
				{name: "cx", qubits: []int{1, 0}},
			},
			want: []op{
				{name: "cx", qubits: []int{0, 1}},
				{name: "cx", qubits: []int{1, 0}},
			},
		},
		{
			name: "rz merge",
			in: []op{
				{name: "rz", qubits: []int{0}, params: []float64{0.25}},
				{name: "rz", qubits: []int{0}, params: []float64{0.5}},
			},
			want: []op{{name: "rz", qubits: []int{0}, params: []float64{0.75}}},
		},
		{
			name: "measure blocks",
			in: []op{
				{name: "x", qubits: []int{0}},
				{name: "measure", qubits: []int{0}, memory: []int{0}},
				{name: "x", qubits: []int{0}},
			},
			want: []op{
				{name: "x", qubits: []int{0}},
				{name: "measure", qubits: []int{0}, memory: []int{0}},
				{name: "x", qubits: []int{0}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, optimize(tt.in))
		})
	}
}

func TestCouplingGraph(t *testing.T) {
	g := newCouplingGraph(5, [][2]int{{0, 1}, {1, 2}, {2, 3}, {1, 0}, {3, 4}})
	assert.True(t, g.adjacent(1, 0))
	assert.False(t, g.adjacent(0, 2))
	assert.Equal(t, []int{0, 1, 2, 3}, g.shortestPath(0, 3))
	assert.Equal(t, []int{1, 0, 2, 3, 4}, g.denseOrder(0))

	disconnected := newCouplingGraph(3, [][2]int{{0, 1}})
	assert.Nil(t, disconnected.shortestPath(0, 2))
	assert.Equal(t, []int{0, 1, 2}, disconnected.denseOrder(0))
}
