package circuit

import (
	"fmt"

	"go.uber.org/zap"
)

const (
	GateH       = "h"
	GateX       = "x"
	GateSX      = "sx"
	GateRZ      = "rz"
	GateCX      = "cx"
	GateSwap    = "swap"
	GateBarrier = "barrier"
	GateMeasure = "measure"
)

type Instruction struct {
	Name   string
	Qubits []Qubit
	Clbits []Clbit
	Params []float64
}

type Circuit struct {
	Name               string
	QuantumRegisters   []*QuantumRegister
	ClassicalRegisters []*ClassicalRegister
	Instructions       []Instruction

	err error
}

// New keeps registers in the order they are given. That order defines the
// global qubit and clbit numbering.
func New(regs ...Register) *Circuit {
	c := &Circuit{}
	names := map[string]struct{}{}
	for _, r := range regs {
		if _, ok := names[r.RegisterName()]; ok {
			c.setErr(fmt.Errorf("register name %s is already used", r.RegisterName()))
			continue
		}
		if r.RegisterSize() < 0 {
			c.setErr(fmt.Errorf("register %s has negative size %d", r.RegisterName(), r.RegisterSize()))
			continue
		}
		names[r.RegisterName()] = struct{}{}
		switch reg := r.(type) {
		case *QuantumRegister:
			c.QuantumRegisters = append(c.QuantumRegisters, reg)
		case *ClassicalRegister:
			c.ClassicalRegisters = append(c.ClassicalRegisters, reg)
		default:
			c.setErr(fmt.Errorf("unknown register type %T", r))
		}
	}
	return c
}

// Err returns the first error recorded while building the circuit.
func (c *Circuit) Err() error {
	return c.err
}

func (c *Circuit) setErr(err error) {
	if c.err == nil {
		zap.L().Debug(fmt.Sprintf("circuit build error/reason:%s", err))
		c.err = err
	}
}

func (c *Circuit) NumQubits() int {
	n := 0
	for _, r := range c.QuantumRegisters {
		n += r.Size
	}
	return n
}

func (c *Circuit) NumClbits() int {
	n := 0
	for _, r := range c.ClassicalRegisters {
		n += r.Size
	}
	return n
}

// QubitIndex returns the global index of q, or -1 if q is not in the circuit.
func (c *Circuit) QubitIndex(q Qubit) int {
	offset := 0
	for _, r := range c.QuantumRegisters {
		if r == q.Register || (q.Register != nil && r.Name == q.Register.Name && r.Size == q.Register.Size) {
			if q.Index < 0 || q.Index >= r.Size {
				return -1
			}
			return offset + q.Index
		}
		offset += r.Size
	}
	return -1
}

// ClbitIndex returns the global index of b, or -1 if b is not in the circuit.
func (c *Circuit) ClbitIndex(b Clbit) int {
	offset := 0
	for _, r := range c.ClassicalRegisters {
		if r == b.Register || (b.Register != nil && r.Name == b.Register.Name && r.Size == b.Register.Size) {
			if b.Index < 0 || b.Index >= r.Size {
				return -1
			}
			return offset + b.Index
		}
		offset += r.Size
	}
	return -1
}

func (c *Circuit) Qubits() []Qubit {
	qs := []Qubit{}
	for _, r := range c.QuantumRegisters {
		qs = append(qs, r.Qubits()...)
	}
	return qs
}

func (c *Circuit) H(q Qubit) *Circuit {
	return c.append(GateH, []Qubit{q}, nil, nil)
}

func (c *Circuit) X(q Qubit) *Circuit {
	return c.append(GateX, []Qubit{q}, nil, nil)
}

func (c *Circuit) SX(q Qubit) *Circuit {
	return c.append(GateSX, []Qubit{q}, nil, nil)
}

func (c *Circuit) RZ(theta float64, q Qubit) *Circuit {
	return c.append(GateRZ, []Qubit{q}, nil, []float64{theta})
}

func (c *Circuit) CX(ctrl, tgt Qubit) *Circuit {
	return c.append(GateCX, []Qubit{ctrl, tgt}, nil, nil)
}

func (c *Circuit) Swap(a, b Qubit) *Circuit {
	return c.append(GateSwap, []Qubit{a, b}, nil, nil)
}

// Barrier with no arguments spans every qubit of the circuit.
func (c *Circuit) Barrier(qs ...Qubit) *Circuit {
	if len(qs) == 0 {
		qs = c.Qubits()
	}
	return c.append(GateBarrier, qs, nil, nil)
}

func (c *Circuit) Measure(q Qubit, b Clbit) *Circuit {
	return c.append(GateMeasure, []Qubit{q}, []Clbit{b}, nil)
}

func (c *Circuit) append(name string, qs []Qubit, cs []Clbit, params []float64) *Circuit {
	seen := map[int]struct{}{}
	for _, q := range qs {
		idx := c.QubitIndex(q)
		if idx < 0 {
			c.setErr(fmt.Errorf("%s: qubit %s is not in the circuit", name, q))
			return c
		}
		if _, ok := seen[idx]; ok {
			c.setErr(fmt.Errorf("%s: duplicate qubit %s", name, q))
			return c
		}
		seen[idx] = struct{}{}
	}
	for _, b := range cs {
		if c.ClbitIndex(b) < 0 {
			c.setErr(fmt.Errorf("%s: clbit %s is not in the circuit", name, b))
			return c
		}
	}
	c.Instructions = append(c.Instructions, Instruction{
		Name:   name,
		Qubits: qs,
		Clbits: cs,
		Params: params,
	})
	return c
}
