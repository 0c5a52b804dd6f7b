//go:build unit
// +build unit

package circuit

import (
	"math"
	"testing"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAutoNames(t *testing.T) {
	q1 := NewQuantumRegister(2)
	q2 := NewQuantumRegister(2)
	c1 := NewClassicalRegister(1)
	assert.NotEqual(t, q1.Name, q2.Name)
	assert.Regexp(t, `^q\d+$`, q1.Name)
	assert.Regexp(t, `^c\d+$`, c1.Name)

	named := NewQuantumRegister(3, "data")
	assert.Equal(t, "data", named.Name)
	assert.Equal(t, 3, named.Size)
}

func TestGlobalIndices(t *testing.T) {
	qr0 := NewQuantumRegister(2, "a")
	qr1 := NewQuantumRegister(2, "b")
	qr2 := NewQuantumRegister(1, "c")
	cr0 := NewClassicalRegister(2, "x")
	cr1 := NewClassicalRegister(2, "y")
	cr2 := NewClassicalRegister(1, "z")
	circ := New(qr0, qr1, qr2, cr0, cr1, cr2)
	require.NoError(t, circ.Err())

	assert.Equal(t, 5, circ.NumQubits())
	assert.Equal(t, 5, circ.NumClbits())
	assert.Equal(t, 0, circ.QubitIndex(qr0.At(0)))
	assert.Equal(t, 3, circ.QubitIndex(qr1.At(1)))
	assert.Equal(t, 4, circ.QubitIndex(qr2.At(0)))
	assert.Equal(t, 2, circ.ClbitIndex(cr1.At(0)))
	assert.Equal(t, 4, circ.ClbitIndex(cr2.At(0)))
	assert.Equal(t, -1, circ.QubitIndex(qr0.At(2)))
	assert.Equal(t, -1, circ.QubitIndex(NewQuantumRegister(1, "other").At(0)))
}

func TestBuildErrors(t *testing.T) {
	qr := NewQuantumRegister(2, "q")
	cr := NewClassicalRegister(2, "c")
	foreign := NewQuantumRegister(1, "f")

	tests := []struct {
		name    string
		build   func(c *Circuit)
		wantErr string
	}{
		{
			name:    "valid",
			build:   func(c *Circuit) { c.H(qr.At(0)).CX(qr.At(0), qr.At(1)).Measure(qr.At(0), cr.At(1)) },
			wantErr: "",
		},
		{
			name:    "foreign qubit",
			build:   func(c *Circuit) { c.H(foreign.At(0)) },
			wantErr: "h: qubit f[0] is not in the circuit",
		},
		{
			name:    "out of range",
			build:   func(c *Circuit) { c.X(qr.At(5)) },
			wantErr: "x: qubit q[5] is not in the circuit",
		},
		{
			name:    "duplicate cx operand",
			build:   func(c *Circuit) { c.CX(qr.At(1), qr.At(1)) },
			wantErr: "cx: duplicate qubit q[1]",
		},
		{
			name:    "first error wins",
			build:   func(c *Circuit) { c.X(qr.At(5)).H(foreign.At(0)) },
			wantErr: "x: qubit q[5] is not in the circuit",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(qr, cr)
			tt.build(c)
			if tt.wantErr == "" {
				assert.NoError(t, c.Err())
			} else {
				assert.EqualError(t, c.Err(), tt.wantErr)
			}
		})
	}
}

func TestDuplicateRegisterName(t *testing.T) {
	c := New(NewQuantumRegister(1, "q"), NewQuantumRegister(2, "q"))
	assert.EqualError(t, c.Err(), "register name q is already used")
}

func TestNegativeRegisterSize(t *testing.T) {
	tests := []struct {
		name    string
		regs    []Register
		wantErr string
	}{
		{
			name:    "quantum",
			regs:    []Register{NewQuantumRegister(-1, "q")},
			wantErr: "register q has negative size -1",
		},
		{
			name:    "classical",
			regs:    []Register{NewQuantumRegister(1, "q"), NewClassicalRegister(-2, "c")},
			wantErr: "register c has negative size -2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.regs...)
			assert.NotPanics(t, func() { c.Barrier() })
			assert.EqualError(t, c.Err(), tt.wantErr)
			assert.GreaterOrEqual(t, c.NumQubits(), 0)
			assert.GreaterOrEqual(t, c.NumClbits(), 0)
		})
	}

	assert.Empty(t, NewQuantumRegister(-3, "r").Qubits())
	assert.Empty(t, NewClassicalRegister(-3, "s").Clbits())
}

func TestParseQASMErrorKeepsPercent(t *testing.T) {
	_, err := ParseQASM("OPENQASM 3.0;\nqubit[2] q;\nfoo%d q[0];\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "foo%d")
}

func TestBarrierDefaultsToAllQubits(t *testing.T) {
	qr0 := NewQuantumRegister(2, "a")
	qr1 := NewQuantumRegister(1, "b")
	c := New(qr0, qr1).Barrier()
	require.NoError(t, c.Err())
	require.Len(t, c.Instructions, 1)
	assert.Len(t, c.Instructions[0].Qubits, 3)
}

func TestQASMRoundTrip(t *testing.T) {
	qr := NewQuantumRegister(2, "q")
	cr := NewClassicalRegister(2, "c")
	c := New(qr, cr)
	c.H(qr.At(0)).RZ(math.Pi/2, qr.At(1))
	c.Measure(qr.At(0), cr.At(1)).Measure(qr.At(1), cr.At(0))
	require.NoError(t, c.Err())

	src := c.QASM()
	assert.Equal(t, heredoc.Doc(`
		OPENQASM 3;
		include "stdgates.inc";
		qubit[2] q;
		bit[2] c;
		h q[0];
		rz(1.5707963267948966) q[1];
		c[1] = measure q[0];
		c[0] = measure q[1];
	`), src)

	parsed, err := ParseQASM(src)
	require.NoError(t, err)
	assert.Equal(t, c.NumQubits(), parsed.NumQubits())
	require.Len(t, parsed.Instructions, 4)
	assert.Equal(t, GateMeasure, parsed.Instructions[2].Name)
	assert.Equal(t, 1, parsed.ClbitIndex(parsed.Instructions[2].Clbits[0]))
	assert.Equal(t, 0, parsed.QubitIndex(parsed.Instructions[2].Qubits[0]))
}

func TestParseQASM(t *testing.T) {
	tests := []struct {
		name          string
		qasm          string
		wantErr       string
		wantInstCount int
	}{
		{
			name:    "empty",
			qasm:    "",
			wantErr: "no input qasm",
		},
		{
			name:    "not qasm statement",
			qasm:    "hoge",
			wantErr: "line 1:0 gate hoge is not supported",
		},
		{
			name:    "undeclared register",
			qasm:    "OPENQASM 3;\nh a[0];",
			wantErr: "line 2:0 undeclared qubit register 'a'",
		},
		{
			name: "openqasm 2 forms",
			qasm: heredoc.Doc(`
				OPENQASM 2.0;
				include "qelib1.inc";
				qreg q[2];
				creg c[2];
				h q[0];
				cx q[0], q[1];
				measure q -> c;
			`),
			wantInstCount: 4,
		},
		{
			name: "pi angles",
			qasm: heredoc.Doc(`
				OPENQASM 3;
				qubit[1] q;
				rz(pi/2) q[0];
				rz(-2*pi) q[0];
			`),
			wantInstCount: 2,
		},
		{
			name:    "unsupported gate",
			qasm:    "OPENQASM 3;\nqubit[1] q;\nccx q[0];",
			wantErr: "line 3:0 gate ccx is not supported",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseQASM(tt.qasm)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, c.Instructions, tt.wantInstCount)
		})
	}
}

func TestParseAngle(t *testing.T) {
	for in, want := range map[string]float64{
		"0.5":     0.5,
		"pi":      math.Pi,
		"pi/2":    math.Pi / 2,
		"-pi/4":   -math.Pi / 4,
		"2*pi":    2 * math.Pi,
		"-3*pi/2": -3 * math.Pi / 2,
	} {
		got, err := parseAngle(in)
		require.NoError(t, err, in)
		assert.InDelta(t, want, got, 1e-12, in)
	}
}
