package circuit

import (
	"fmt"
	"sync/atomic"
)

const (
	QuantumRegisterPrefix   = "q"
	ClassicalRegisterPrefix = "c"
)

var (
	quantumRegisterCounter   atomic.Int64
	classicalRegisterCounter atomic.Int64
)

// Register is implemented by QuantumRegister and ClassicalRegister.
type Register interface {
	RegisterName() string
	RegisterSize() int
}

type QuantumRegister struct {
	Name string
	Size int
}

// NewQuantumRegister names the register q<N> when no name is given.
func NewQuantumRegister(size int, name ...string) *QuantumRegister {
	n := nextName(name, QuantumRegisterPrefix, &quantumRegisterCounter)
	return &QuantumRegister{Name: n, Size: size}
}

func (r *QuantumRegister) RegisterName() string { return r.Name }
func (r *QuantumRegister) RegisterSize() int    { return r.Size }

func (r *QuantumRegister) At(i int) Qubit {
	return Qubit{Register: r, Index: i}
}

func (r *QuantumRegister) Qubits() []Qubit {
	qs := make([]Qubit, 0, max(r.Size, 0))
	for i := 0; i < r.Size; i++ {
		qs = append(qs, r.At(i))
	}
	return qs
}

type ClassicalRegister struct {
	Name string
	Size int
}

// NewClassicalRegister names the register c<N> when no name is given.
func NewClassicalRegister(size int, name ...string) *ClassicalRegister {
	n := nextName(name, ClassicalRegisterPrefix, &classicalRegisterCounter)
	return &ClassicalRegister{Name: n, Size: size}
}

func (r *ClassicalRegister) RegisterName() string { return r.Name }
func (r *ClassicalRegister) RegisterSize() int    { return r.Size }

func (r *ClassicalRegister) At(i int) Clbit {
	return Clbit{Register: r, Index: i}
}

func (r *ClassicalRegister) Clbits() []Clbit {
	cs := make([]Clbit, 0, max(r.Size, 0))
	for i := 0; i < r.Size; i++ {
		cs = append(cs, r.At(i))
	}
	return cs
}

type Qubit struct {
	Register *QuantumRegister
	Index    int
}

func (q Qubit) String() string {
	if q.Register == nil {
		return fmt.Sprintf("?[%d]", q.Index)
	}
	return fmt.Sprintf("%s[%d]", q.Register.Name, q.Index)
}

type Clbit struct {
	Register *ClassicalRegister
	Index    int
}

func (c Clbit) String() string {
	if c.Register == nil {
		return fmt.Sprintf("?[%d]", c.Index)
	}
	return fmt.Sprintf("%s[%d]", c.Register.Name, c.Index)
}

func nextName(name []string, prefix string, counter *atomic.Int64) string {
	if len(name) > 0 && name[0] != "" {
		return name[0]
	}
	return fmt.Sprintf("%s%d", prefix, counter.Add(1)-1)
}
