package backend

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/oqtopus-team/bitorder/circuit"
	"github.com/oqtopus-team/bitorder/result"
	"github.com/oqtopus-team/bitorder/transpiler"
	"go.uber.org/zap"
)

const maxMemorySlots = 64

type ExecOptions struct {
	Seed int64
	// ReadoutErrors is indexed by physical qubit. Missing entries are ideal.
	ReadoutErrors []ReadoutError
	// LegacyBitOrder writes every outcome to the slot numbered like the
	// measured physical qubit and ignores the slot the program asked for.
	LegacyBitOrder bool
}

func (o ExecOptions) rng() *rand.Rand {
	seed := o.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

type measurement struct {
	qubit int
	slot  int
}

func (o ExecOptions) slot(m measurement) int {
	if o.LegacyBitOrder {
		return m.qubit
	}
	return m.slot
}

func (o ExecOptions) readout(qubit, outcome int, rng *rand.Rand) int {
	if qubit >= len(o.ReadoutErrors) {
		return outcome
	}
	e := o.ReadoutErrors[qubit]
	switch {
	case outcome == 0 && rng.Float64() < e.ProbMeas1Prep0:
		return 1
	case outcome == 1 && rng.Float64() < e.ProbMeas0Prep1:
		return 0
	}
	return outcome
}

// measuresAtEnd reports whether every measurement comes after the last
// gate and no qubit is measured twice, so the state can be sampled once.
func measuresAtEnd(exp *transpiler.Experiment) ([]measurement, bool) {
	var ms []measurement
	seen := map[int]bool{}
	for _, inst := range exp.Instructions {
		switch inst.Name {
		case circuit.GateMeasure:
			if seen[inst.Qubits[0]] {
				return nil, false
			}
			seen[inst.Qubits[0]] = true
			ms = append(ms, measurement{qubit: inst.Qubits[0], slot: inst.Memory[0]})
		case circuit.GateBarrier:
		default:
			if len(ms) > 0 {
				return nil, false
			}
		}
	}
	return ms, true
}

// RunExperiment executes exp for the given number of shots and returns hex
// keyed counts of the memory words.
func RunExperiment(ctx context.Context, exp *transpiler.Experiment, shots int, opts ExecOptions) (result.Counts, error) {
	n := exp.Config.NQubits
	if n > SimulatorMaxQubits {
		return nil, fmt.Errorf("number of qubits (%d) is greater than maximum (%d) of the simulator", n, SimulatorMaxQubits)
	}
	for _, inst := range exp.Instructions {
		for _, q := range inst.Qubits {
			if q < 0 || q >= n {
				return nil, fmt.Errorf("%s uses qubit %d out of %d", inst.Name, q, n)
			}
		}
		if inst.Name == circuit.GateMeasure && (len(inst.Qubits) != 1 || len(inst.Memory) != 1) {
			return nil, fmt.Errorf("measure needs one qubit and one memory slot")
		}
		if inst.Name == circuit.GateMeasure && max(inst.Memory[0], inst.Qubits[0]) >= maxMemorySlots {
			return nil, fmt.Errorf("memory slot %d is over %d", inst.Memory[0], maxMemorySlots)
		}
	}
	rng := opts.rng()
	counts := result.Counts{}
	sv := newStatevector(n)

	if ms, ok := measuresAtEnd(exp); ok {
		for _, inst := range exp.Instructions {
			if inst.Name == circuit.GateMeasure {
				break
			}
			if err := sv.gate(inst.Name, inst.Qubits, inst.Params); err != nil {
				return nil, err
			}
		}
		smp := sv.sampler()
		for shot := 0; shot < shots; shot++ {
			if shot%1024 == 0 && ctx.Err() != nil {
				return nil, ctx.Err()
			}
			state := smp.draw(rng)
			var word uint64
			for _, m := range ms {
				bit := opts.readout(m.qubit, (state>>m.qubit)&1, rng)
				word = setBit(word, opts.slot(m), bit)
			}
			counts[fmt.Sprintf("0x%x", word)]++
		}
		return counts, nil
	}

	zap.L().Debug(fmt.Sprintf("simulating %s shot by shot", exp.Header.Name))
	for shot := 0; shot < shots; shot++ {
		if shot%64 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		sv.reset()
		var word uint64
		for _, inst := range exp.Instructions {
			if inst.Name != circuit.GateMeasure {
				if err := sv.gate(inst.Name, inst.Qubits, inst.Params); err != nil {
					return nil, err
				}
				continue
			}
			m := measurement{qubit: inst.Qubits[0], slot: inst.Memory[0]}
			bit := opts.readout(m.qubit, sv.measure(m.qubit, rng), rng)
			word = setBit(word, opts.slot(m), bit)
		}
		counts[fmt.Sprintf("0x%x", word)]++
	}
	return counts, nil
}

func setBit(word uint64, slot, bit int) uint64 {
	if bit == 1 {
		return word | 1<<uint(slot)
	}
	return word &^ (1 << uint(slot))
}

// Execute runs every experiment of q in order.
func Execute(ctx context.Context, q *transpiler.Qobj, opts ExecOptions) ([]result.Counts, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	out := make([]result.Counts, 0, len(q.Experiments))
	for i, exp := range q.Experiments {
		o := opts
		if o.Seed == 0 {
			o.Seed = q.Config.SeedSimulator
		}
		if o.Seed != 0 {
			o.Seed += int64(i)
		}
		c, err := RunExperiment(ctx, exp, q.Config.Shots, o)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
