package transpiler

import (
	"fmt"
	"math"
	"strconv"

	"github.com/oqtopus-team/bitorder/circuit"
	"go.uber.org/zap"
)

const (
	opBarrier = circuit.GateBarrier
	opMeasure = circuit.GateMeasure
)

// StatSwaps counts the SWAPs inserted by routing.
const StatSwaps = "swaps"

type op struct {
	name   string
	qubits []int
	params []float64
	memory []int
}

// Compiled is an experiment together with what the compiler decided.
type Compiled struct {
	*Experiment
	// Layout maps every virtual qubit to its initial physical qubit.
	Layout []int
	Stats  map[string]int
}

// Compile lowers circ to an experiment runnable on target. Measurements
// write into the memory slot equal to the global index of their classical
// bit, so the result word does not depend on where qubits were placed.
func Compile(circ *circuit.Circuit, target Target, opts Options) (*Compiled, error) {
	if circ == nil {
		return nil, fmt.Errorf("circuit is nil")
	}
	if err := circ.Err(); err != nil {
		return nil, err
	}
	name := circ.Name
	if name == "" {
		name = "circuit"
	}
	n := circ.NumQubits()
	if n > target.NumQubits {
		return nil, fmt.Errorf("number of qubits (%d) in %s is greater than maximum (%d) in the coupling_map",
			n, name, target.NumQubits)
	}
	width := target.NumQubits
	if target.Simulator {
		width = n
	}
	layout, err := chooseLayout(n, width, target, opts)
	if err != nil {
		return nil, err
	}
	zap.L().Debug(fmt.Sprintf("compiling %s for %s/layout:%v", name, target.Name, layout))

	ops, swaps, err := route(circ, layout, width, target)
	if err != nil {
		return nil, err
	}
	if opts.OptimizationLevel >= 1 {
		ops = optimize(ops)
	}
	ops, err = translate(ops, target)
	if err != nil {
		return nil, err
	}
	if opts.OptimizationLevel >= 1 {
		ops = optimize(ops)
	}

	exp := &Experiment{
		Header: ExperimentHeader{
			Name:        name,
			NQubits:     width,
			MemorySlots: circ.NumClbits(),
			QubitLayout: qubitLayoutString(layout, circ.NumClbits()),
		},
		Config: ExperimentConfig{
			NQubits:     width,
			MemorySlots: circ.NumClbits(),
		},
		Instructions: make([]QobjInstruction, 0, len(ops)),
	}
	for _, r := range circ.QuantumRegisters {
		exp.Header.QregSizes = append(exp.Header.QregSizes, RegisterSize{Name: r.Name, Size: r.Size})
	}
	for _, r := range circ.ClassicalRegisters {
		exp.Header.CregSizes = append(exp.Header.CregSizes, RegisterSize{Name: r.Name, Size: r.Size})
	}
	stats := map[string]int{StatSwaps: swaps}
	for _, o := range ops {
		exp.Instructions = append(exp.Instructions, QobjInstruction{
			Name:   o.name,
			Qubits: o.qubits,
			Params: o.params,
			Memory: o.memory,
		})
		stats[o.name]++
	}
	stats["depth"] = depth(ops, width)
	return &Compiled{Experiment: exp, Layout: layout, Stats: stats}, nil
}

func chooseLayout(n, width int, target Target, opts Options) ([]int, error) {
	if len(opts.InitialLayout) > 0 {
		if len(opts.InitialLayout) != n {
			return nil, fmt.Errorf("initial layout has %d qubits but the circuit has %d", len(opts.InitialLayout), n)
		}
		used := map[int]struct{}{}
		for _, p := range opts.InitialLayout {
			if p < 0 || p >= width {
				return nil, fmt.Errorf("physical qubit %d is out of range for %s", p, target.Name)
			}
			if _, ok := used[p]; ok {
				return nil, fmt.Errorf("physical qubit %d is used twice in the initial layout", p)
			}
			used[p] = struct{}{}
		}
		return append([]int{}, opts.InitialLayout...), nil
	}
	method, err := opts.layoutMethod(target)
	if err != nil {
		return nil, err
	}
	layout := make([]int, n)
	if method == LayoutDense && !target.Simulator {
		order := newCouplingGraph(width, target.CouplingMap).denseOrder(opts.Seed)
		copy(layout, order)
		return layout, nil
	}
	for i := range layout {
		layout[i] = i
	}
	return layout, nil
}

// route places every instruction on physical qubits. Two qubit gates on
// qubits that are not coupled are preceded by SWAPs along a shortest path.
func route(circ *circuit.Circuit, layout []int, width int, target Target) ([]op, int, error) {
	v2p := append([]int{}, layout...)
	p2v := make([]int, width)
	for i := range p2v {
		p2v[i] = -1
	}
	for v, p := range v2p {
		p2v[p] = v
	}
	var g *couplingGraph
	if target.routed() {
		g = newCouplingGraph(width, target.CouplingMap)
	}
	swapPhysical := func(a, b int) {
		p2v[a], p2v[b] = p2v[b], p2v[a]
		if p2v[a] >= 0 {
			v2p[p2v[a]] = a
		}
		if p2v[b] >= 0 {
			v2p[p2v[b]] = b
		}
	}

	ops := make([]op, 0, len(circ.Instructions))
	swaps := 0
	for _, inst := range circ.Instructions {
		qs := make([]int, len(inst.Qubits))
		for i, q := range inst.Qubits {
			qs[i] = v2p[circ.QubitIndex(q)]
		}
		if g != nil && len(qs) == 2 && inst.Name != opBarrier && !g.adjacent(qs[0], qs[1]) {
			path := g.shortestPath(qs[0], qs[1])
			if path == nil {
				return nil, 0, fmt.Errorf("physical qubits %d and %d are not connected in %s", qs[0], qs[1], target.Name)
			}
			for i := 0; i < len(path)-2; i++ {
				ops = append(ops, op{name: circuit.GateSwap, qubits: []int{path[i], path[i+1]}})
				swapPhysical(path[i], path[i+1])
				swaps++
			}
			qs[0] = path[len(path)-2]
		}
		o := op{name: inst.Name, qubits: qs, params: inst.Params}
		if inst.Name == opMeasure {
			o.memory = []int{circ.ClbitIndex(inst.Clbits[0])}
		}
		ops = append(ops, o)
	}
	return ops, swaps, nil
}

func translate(ops []op, target Target) ([]op, error) {
	out := make([]op, 0, len(ops))
	for _, o := range ops {
		if target.supports(o.name) {
			out = append(out, o)
			continue
		}
		var seq []op
		switch o.name {
		case circuit.GateH:
			q := o.qubits
			seq = []op{
				{name: circuit.GateRZ, qubits: q, params: []float64{math.Pi / 2}},
				{name: circuit.GateSX, qubits: q},
				{name: circuit.GateRZ, qubits: q, params: []float64{math.Pi / 2}},
			}
		case circuit.GateX:
			seq = []op{
				{name: circuit.GateSX, qubits: o.qubits},
				{name: circuit.GateSX, qubits: o.qubits},
			}
		case circuit.GateSwap:
			a, b := o.qubits[0], o.qubits[1]
			seq = []op{
				{name: circuit.GateCX, qubits: []int{a, b}},
				{name: circuit.GateCX, qubits: []int{b, a}},
				{name: circuit.GateCX, qubits: []int{a, b}},
			}
		}
		for _, s := range seq {
			if !target.supports(s.name) {
				seq = nil
				break
			}
		}
		if seq == nil {
			return nil, fmt.Errorf("gate %s cannot be translated to the basis %v of %s", o.name, target.BasisGates, target.Name)
		}
		out = append(out, seq...)
	}
	return out, nil
}

func selfInverse(name string) bool {
	switch name {
	case circuit.GateH, circuit.GateX, circuit.GateCX, circuit.GateSwap:
		return true
	}
	return false
}

func sameQubits(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// optimize cancels adjacent self inverse pairs and merges consecutive rz on
// the same qubit. Adjacency is per qubit: a gate on other qubits in between
// does not block a cancellation.
func optimize(ops []op) []op {
	out := make([]op, 0, len(ops))
	// last holds, per physical qubit, the index in out of the latest op
	// touching it.
	last := map[int]int{}
	removed := map[int]bool{}
	for _, o := range ops {
		prev := -1
		for i, q := range o.qubits {
			idx, ok := last[q]
			if !ok {
				prev = -1
				break
			}
			if i == 0 {
				prev = idx
			} else if idx != prev {
				prev = -1
				break
			}
		}
		if prev >= 0 && !removed[prev] && sameQubits(out[prev].qubits, o.qubits) {
			p := out[prev]
			switch {
			case p.name == o.name && selfInverse(o.name):
				removed[prev] = true
				for _, q := range o.qubits {
					delete(last, q)
				}
				continue
			case p.name == circuit.GateRZ && o.name == circuit.GateRZ:
				theta := math.Mod(p.params[0]+o.params[0], 2*math.Pi)
				if math.Abs(theta) < 1e-12 {
					removed[prev] = true
					delete(last, o.qubits[0])
				} else {
					out[prev].params = []float64{theta}
				}
				continue
			}
		}
		out = append(out, o)
		for _, q := range o.qubits {
			last[q] = len(out) - 1
		}
	}
	kept := make([]op, 0, len(out))
	for i, o := range out {
		if !removed[i] {
			kept = append(kept, o)
		}
	}
	return kept
}

func depth(ops []op, width int) int {
	layers := make([]int, width)
	d := 0
	for _, o := range ops {
		if o.name == opBarrier {
			continue
		}
		l := 0
		for _, q := range o.qubits {
			l = max(l, layers[q])
		}
		l++
		for _, q := range o.qubits {
			layers[q] = l
		}
		d = max(d, l)
	}
	return d
}

func qubitLayoutString(layout []int, nClbits int) string {
	l := QubitLayout{
		QubitMapping: make(map[string]int, len(layout)),
		BitMapping:   make(map[string]int, nClbits),
	}
	for v, p := range layout {
		l.QubitMapping[strconv.Itoa(v)] = p
	}
	for c := 0; c < nClbits; c++ {
		l.BitMapping[strconv.Itoa(c)] = c
	}
	b, err := jsonIter.Marshal(l)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to marshal qubit layout/reason:%s", err))
		return ""
	}
	return string(b)
}
