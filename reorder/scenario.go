// Package reorder checks that measurement results are stored in the
// classical bits a circuit asked for, on a local simulator and on a remote
// device alike.
package reorder

import "github.com/oqtopus-team/bitorder/circuit"

// Scenario is a circuit whose counts must agree between backends within
// Threshold counts per outcome.
type Scenario struct {
	Name      string
	Circuit   *circuit.Circuit
	Shots     int
	Threshold float64
}

// BasicReordering measures the superposed qubit into the second classical
// bit and the idle qubit into the first one.
func BasicReordering() *Scenario {
	qr := circuit.NewQuantumRegister(2, "qr")
	cr := circuit.NewClassicalRegister(2, "cr")
	c := circuit.New(qr, cr)
	c.Name = "basic_reordering"
	c.H(qr.At(0))
	c.Measure(qr.At(0), cr.At(1))
	c.Measure(qr.At(1), cr.At(0))
	shots := 2000
	return &Scenario{
		Name:      c.Name,
		Circuit:   c,
		Shots:     shots,
		Threshold: 0.1 * float64(shots),
	}
}

// MultiRegisterReordering scatters entangled qubits of three quantum
// registers over three classical registers.
func MultiRegisterReordering() *Scenario {
	qr0 := circuit.NewQuantumRegister(2, "qr0")
	qr1 := circuit.NewQuantumRegister(2, "qr1")
	qr2 := circuit.NewQuantumRegister(1, "qr2")
	cr0 := circuit.NewClassicalRegister(2, "cr0")
	cr1 := circuit.NewClassicalRegister(2, "cr1")
	cr2 := circuit.NewClassicalRegister(1, "cr2")
	c := circuit.New(qr0, qr1, qr2, cr0, cr1, cr2)
	c.Name = "multi_register_reordering"
	c.H(qr0.At(0))
	c.CX(qr0.At(0), qr2.At(0))
	c.X(qr1.At(1))
	c.H(qr2.At(0))
	c.CX(qr2.At(0), qr1.At(0))
	c.Barrier()
	c.Measure(qr0.At(0), cr2.At(0))
	c.Measure(qr0.At(1), cr0.At(1))
	c.Measure(qr1.At(0), cr0.At(0))
	c.Measure(qr1.At(1), cr1.At(0))
	c.Measure(qr2.At(0), cr1.At(1))
	shots := 4000
	return &Scenario{
		Name:      c.Name,
		Circuit:   c,
		Shots:     shots,
		Threshold: 0.2 * float64(shots),
	}
}

// Scenarios lists every scenario by name.
func Scenarios() map[string]func() *Scenario {
	return map[string]func() *Scenario{
		"basic":          BasicReordering,
		"multi_register": MultiRegisterReordering,
	}
}
