package transpiler

import (
	"fmt"

	"github.com/oqtopus-team/bitorder/core"
)

const (
	LayoutTrivial = "trivial"
	LayoutDense   = "dense"
)

// Target is what the compiler needs to know about a backend.
type Target struct {
	Name        string
	NumQubits   int
	BasisGates  []string
	CouplingMap [][2]int
	// Simulator targets accept every gate on every pair of qubits.
	Simulator bool
}

type Options struct {
	OptimizationLevel int    `json:"optimization_level"`
	InitialLayout     []int  `json:"initial_layout,omitempty"`
	LayoutMethod      string `json:"layout_method,omitempty"`
	Seed              int64  `json:"seed_transpiler,omitempty"`
}

// TargetFromDeviceInfoSpec builds the target of a device from the JSON it
// publishes in its device info.
func TargetFromDeviceInfoSpec(spec *core.DeviceInfoSpec) Target {
	return Target{
		Name:        spec.DeviceID,
		NumQubits:   spec.NQubits,
		BasisGates:  spec.BasisGates,
		CouplingMap: spec.CouplingMap,
	}
}

func (t Target) supports(gate string) bool {
	if t.Simulator {
		return true
	}
	switch gate {
	case opBarrier, opMeasure:
		return true
	}
	for _, g := range t.BasisGates {
		if g == gate {
			return true
		}
	}
	return false
}

func (t Target) routed() bool {
	return !t.Simulator && len(t.CouplingMap) > 0
}

func (o Options) layoutMethod(t Target) (string, error) {
	switch o.LayoutMethod {
	case LayoutTrivial, LayoutDense:
		return o.LayoutMethod, nil
	case "":
		if t.routed() && o.OptimizationLevel >= 1 {
			return LayoutDense, nil
		}
		return LayoutTrivial, nil
	default:
		return "", fmt.Errorf("unknown layout method %s", o.LayoutMethod)
	}
}
