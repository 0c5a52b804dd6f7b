package backend

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"sort"

	"github.com/oqtopus-team/bitorder/circuit"
)

type statevector struct {
	n   int
	amp []complex128
}

func newStatevector(n int) *statevector {
	sv := &statevector{n: n, amp: make([]complex128, 1<<n)}
	sv.amp[0] = 1
	return sv
}

func (s *statevector) reset() {
	for i := range s.amp {
		s.amp[i] = 0
	}
	s.amp[0] = 1
}

func (s *statevector) apply1(q int, m [2][2]complex128) {
	bit := 1 << q
	for i := range s.amp {
		if i&bit != 0 {
			continue
		}
		a, b := s.amp[i], s.amp[i|bit]
		s.amp[i] = m[0][0]*a + m[0][1]*b
		s.amp[i|bit] = m[1][0]*a + m[1][1]*b
	}
}

func (s *statevector) cx(ctrl, tgt int) {
	cb, tb := 1<<ctrl, 1<<tgt
	for i := range s.amp {
		if i&cb != 0 && i&tb == 0 {
			s.amp[i], s.amp[i|tb] = s.amp[i|tb], s.amp[i]
		}
	}
}

func (s *statevector) swap(a, b int) {
	ab, bb := 1<<a, 1<<b
	for i := range s.amp {
		if i&ab != 0 && i&bb == 0 {
			j := i ^ ab ^ bb
			s.amp[i], s.amp[j] = s.amp[j], s.amp[i]
		}
	}
}

var (
	hMatrix  = [2][2]complex128{{complex(1/math.Sqrt2, 0), complex(1/math.Sqrt2, 0)}, {complex(1/math.Sqrt2, 0), complex(-1/math.Sqrt2, 0)}}
	xMatrix  = [2][2]complex128{{0, 1}, {1, 0}}
	sxMatrix = [2][2]complex128{{complex(0.5, 0.5), complex(0.5, -0.5)}, {complex(0.5, -0.5), complex(0.5, 0.5)}}
)

func rzMatrix(theta float64) [2][2]complex128 {
	return [2][2]complex128{
		{cmplx.Exp(complex(0, -theta/2)), 0},
		{0, cmplx.Exp(complex(0, theta/2))},
	}
}

func (s *statevector) gate(name string, qubits []int, params []float64) error {
	switch name {
	case circuit.GateH:
		s.apply1(qubits[0], hMatrix)
	case circuit.GateX:
		s.apply1(qubits[0], xMatrix)
	case circuit.GateSX:
		s.apply1(qubits[0], sxMatrix)
	case circuit.GateRZ:
		if len(params) != 1 {
			return fmt.Errorf("rz needs one parameter")
		}
		s.apply1(qubits[0], rzMatrix(params[0]))
	case circuit.GateCX:
		s.cx(qubits[0], qubits[1])
	case circuit.GateSwap:
		s.swap(qubits[0], qubits[1])
	case circuit.GateBarrier:
	default:
		return fmt.Errorf("gate %s is not supported by the simulator", name)
	}
	return nil
}

func (s *statevector) prob1(q int) float64 {
	bit := 1 << q
	p := 0.0
	for i, a := range s.amp {
		if i&bit != 0 {
			p += real(a)*real(a) + imag(a)*imag(a)
		}
	}
	return p
}

// measure collapses qubit q and returns the outcome.
func (s *statevector) measure(q int, rng *rand.Rand) int {
	p1 := s.prob1(q)
	outcome := 0
	if rng.Float64() < p1 {
		outcome = 1
	}
	norm := p1
	if outcome == 0 {
		norm = 1 - p1
	}
	scale := complex(1/math.Sqrt(norm), 0)
	bit := 1 << q
	for i := range s.amp {
		if (i&bit != 0) == (outcome == 1) {
			s.amp[i] *= scale
		} else {
			s.amp[i] = 0
		}
	}
	return outcome
}

// sampler draws basis states from the final probability distribution.
type sampler struct {
	cumulative []float64
}

func (s *statevector) sampler() *sampler {
	c := make([]float64, len(s.amp))
	total := 0.0
	for i, a := range s.amp {
		total += real(a)*real(a) + imag(a)*imag(a)
		c[i] = total
	}
	return &sampler{cumulative: c}
}

func (s *sampler) draw(rng *rand.Rand) int {
	r := rng.Float64() * s.cumulative[len(s.cumulative)-1]
	i := sort.Search(len(s.cumulative), func(i int) bool { return s.cumulative[i] > r })
	if i >= len(s.cumulative) {
		i = len(s.cumulative) - 1
	}
	return i
}
