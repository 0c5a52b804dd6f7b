package transpiler

import (
	"fmt"

	"github.com/go-faster/jx"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

const (
	QobjSchemaVersion = "1.3.0"
	QobjTypeQASM      = "QASM"
)

var jsonIter = jsoniter.ConfigCompatibleWithStandardLibrary

// RegisterSize is encoded as a two element array, ["c0", 2].
type RegisterSize struct {
	Name string
	Size int
}

func (r RegisterSize) MarshalJSON() ([]byte, error) {
	var e jx.Encoder
	e.ArrStart()
	e.Str(r.Name)
	e.Int(r.Size)
	e.ArrEnd()
	return e.Bytes(), nil
}

func (r *RegisterSize) UnmarshalJSON(b []byte) error {
	d := jx.DecodeBytes(b)
	i := 0
	err := d.Arr(func(d *jx.Decoder) error {
		var err error
		switch i {
		case 0:
			r.Name, err = d.Str()
		case 1:
			r.Size, err = d.Int()
		default:
			err = d.Skip()
		}
		i++
		return err
	})
	if err != nil {
		return err
	}
	if i < 2 {
		return fmt.Errorf("register size needs a name and a size")
	}
	return nil
}

type QobjInstruction struct {
	Name   string    `json:"name"`
	Qubits []int     `json:"qubits,omitempty"`
	Params []float64 `json:"params,omitempty"`
	Memory []int     `json:"memory,omitempty"`
}

type ExperimentHeader struct {
	Name        string         `json:"name"`
	NQubits     int            `json:"n_qubits"`
	MemorySlots int            `json:"memory_slots"`
	QregSizes   []RegisterSize `json:"qreg_sizes"`
	CregSizes   []RegisterSize `json:"creg_sizes"`
	QubitLayout string         `json:"qubit_layout,omitempty"`
}

type ExperimentConfig struct {
	NQubits     int `json:"n_qubits"`
	MemorySlots int `json:"memory_slots"`
}

type Experiment struct {
	Header       ExperimentHeader  `json:"header"`
	Config       ExperimentConfig  `json:"config"`
	Instructions []QobjInstruction `json:"instructions"`
}

// MeasuredSlots maps every written memory slot to the physical qubit that
// is measured into it. A later measurement into the same slot wins.
func (e *Experiment) MeasuredSlots() map[int]int {
	m := map[int]int{}
	for _, inst := range e.Instructions {
		if inst.Name != opMeasure {
			continue
		}
		for i, slot := range inst.Memory {
			if i < len(inst.Qubits) {
				m[slot] = inst.Qubits[i]
			}
		}
	}
	return m
}

type QobjConfig struct {
	Shots         int   `json:"shots"`
	MemorySlots   int   `json:"memory_slots"`
	NQubits       int   `json:"n_qubits"`
	SeedSimulator int64 `json:"seed_simulator,omitempty"`
}

// Qobj is the job payload sent to every backend.
type Qobj struct {
	QobjID        string        `json:"qobj_id"`
	SchemaVersion string        `json:"schema_version"`
	Type          string        `json:"type"`
	Config        QobjConfig    `json:"config"`
	Experiments   []*Experiment `json:"experiments"`
}

func Assemble(exps []*Experiment, shots int, seed int64) *Qobj {
	q := &Qobj{
		QobjID:        uuid.NewString(),
		SchemaVersion: QobjSchemaVersion,
		Type:          QobjTypeQASM,
		Config: QobjConfig{
			Shots:         shots,
			SeedSimulator: seed,
		},
		Experiments: exps,
	}
	for _, e := range exps {
		q.Config.MemorySlots = max(q.Config.MemorySlots, e.Config.MemorySlots)
		q.Config.NQubits = max(q.Config.NQubits, e.Config.NQubits)
	}
	return q
}

func (q *Qobj) Marshal() ([]byte, error) {
	b, err := jsonIter.Marshal(q)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to marshal qobj(%s)/reason:%s", q.QobjID, err))
		return nil, err
	}
	return b, nil
}

func ParseQobj(b []byte) (*Qobj, error) {
	q := &Qobj{}
	if err := jsonIter.Unmarshal(b, q); err != nil {
		zap.L().Debug(fmt.Sprintf("failed to unmarshal qobj/reason:%s", err))
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// Validate checks the payload is self consistent. It does not check it
// against any device.
func (q *Qobj) Validate() error {
	if q.Config.Shots <= 0 {
		return fmt.Errorf("shots(%d) must be greater than 0", q.Config.Shots)
	}
	if len(q.Experiments) == 0 {
		return fmt.Errorf("qobj %s has no experiments", q.QobjID)
	}
	for i, e := range q.Experiments {
		if e == nil {
			return fmt.Errorf("experiment %d is empty", i)
		}
		for _, inst := range e.Instructions {
			for _, p := range inst.Qubits {
				if p < 0 || p >= e.Config.NQubits {
					return fmt.Errorf("experiment %d: %s uses qubit %d out of %d", i, inst.Name, p, e.Config.NQubits)
				}
			}
			for _, m := range inst.Memory {
				if m < 0 || m >= e.Config.MemorySlots {
					return fmt.Errorf("experiment %d: memory slot %d out of %d", i, m, e.Config.MemorySlots)
				}
			}
		}
	}
	return nil
}

// CheckTarget reports the first instruction the target cannot run as is.
func (q *Qobj) CheckTarget(t Target) error {
	g := newCouplingGraph(t.NumQubits, t.CouplingMap)
	for i, e := range q.Experiments {
		if e.Config.NQubits > t.NumQubits {
			return fmt.Errorf("number of qubits (%d) in %s is greater than maximum (%d) in the coupling_map",
				e.Config.NQubits, e.Header.Name, t.NumQubits)
		}
		for _, inst := range e.Instructions {
			if !t.supports(inst.Name) {
				return fmt.Errorf("experiment %d: gate %s is not in the basis %v", i, inst.Name, t.BasisGates)
			}
			if t.routed() && len(inst.Qubits) == 2 && !g.adjacent(inst.Qubits[0], inst.Qubits[1]) {
				return fmt.Errorf("experiment %d: %s on %v is not in the coupling map", i, inst.Name, inst.Qubits)
			}
		}
	}
	return nil
}
