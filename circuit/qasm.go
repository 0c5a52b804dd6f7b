package circuit

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// QASM emits the circuit as OpenQASM 3.
func (c *Circuit) QASM() string {
	var b strings.Builder
	b.WriteString("OPENQASM 3;\n")
	b.WriteString("include \"stdgates.inc\";\n")
	for _, r := range c.QuantumRegisters {
		fmt.Fprintf(&b, "qubit[%d] %s;\n", r.Size, r.Name)
	}
	for _, r := range c.ClassicalRegisters {
		fmt.Fprintf(&b, "bit[%d] %s;\n", r.Size, r.Name)
	}
	for _, inst := range c.Instructions {
		switch inst.Name {
		case GateMeasure:
			fmt.Fprintf(&b, "%s = measure %s;\n", inst.Clbits[0], inst.Qubits[0])
		default:
			operands := make([]string, 0, len(inst.Qubits))
			for _, q := range inst.Qubits {
				operands = append(operands, q.String())
			}
			name := inst.Name
			if len(inst.Params) > 0 {
				ps := make([]string, 0, len(inst.Params))
				for _, p := range inst.Params {
					ps = append(ps, strconv.FormatFloat(p, 'g', -1, 64))
				}
				name = fmt.Sprintf("%s(%s)", name, strings.Join(ps, ", "))
			}
			fmt.Fprintf(&b, "%s %s;\n", name, strings.Join(operands, ", "))
		}
	}
	return b.String()
}

var (
	versionPattern  = regexp.MustCompile(`^OPENQASM\s+([0-9.]+)$`)
	includePattern  = regexp.MustCompile(`^include\s+"[^"]+"$`)
	qubitDecl3      = regexp.MustCompile(`^qubit\[(\d+)\]\s+([A-Za-z_][A-Za-z0-9_]*)$`)
	bitDecl3        = regexp.MustCompile(`^bit\[(\d+)\]\s+([A-Za-z_][A-Za-z0-9_]*)$`)
	qregDecl2       = regexp.MustCompile(`^qreg\s+([A-Za-z_][A-Za-z0-9_]*)\[(\d+)\]$`)
	cregDecl2       = regexp.MustCompile(`^creg\s+([A-Za-z_][A-Za-z0-9_]*)\[(\d+)\]$`)
	measure3        = regexp.MustCompile(`^(\S+)\s*=\s*measure\s+(\S+)$`)
	measure2        = regexp.MustCompile(`^measure\s+(\S+)\s*->\s*(\S+)$`)
	gateCall        = regexp.MustCompile(`^([a-z][a-z0-9_]*)(?:\(([^)]*)\))?\s*(.*)$`)
	indexedOperand  = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\[(\d+)\]$`)
	qasmPiParameter = regexp.MustCompile(`^(-?)(?:([0-9.]+)\s*\*\s*)?pi(?:\s*/\s*([0-9.]+))?$`)
)

// ParseQASM reads the subset of OpenQASM 3 produced by QASM. The OpenQASM 2
// qreg/creg/measure forms are also accepted.
func ParseQASM(src string) (*Circuit, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("no input qasm")
	}
	p := &qasmParser{
		circ:  &Circuit{},
		qregs: map[string]*QuantumRegister{},
		cregs: map[string]*ClassicalRegister{},
	}
	for i, raw := range strings.Split(src, "\n") {
		line := raw
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		for _, stmt := range strings.Split(line, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if err := p.statement(stmt); err != nil {
				msg := fmt.Sprintf("line %d:%d %s", i+1, strings.Index(raw, stmt), err)
				zap.L().Debug(fmt.Sprintf("failed to parse qasm/reason:%s", msg))
				return nil, errors.New(msg)
			}
		}
	}
	if err := p.circ.Err(); err != nil {
		return nil, err
	}
	return p.circ, nil
}

type qasmParser struct {
	circ  *Circuit
	qregs map[string]*QuantumRegister
	cregs map[string]*ClassicalRegister
}

func (p *qasmParser) statement(stmt string) error {
	switch {
	case versionPattern.MatchString(stmt), includePattern.MatchString(stmt):
		return nil
	case qubitDecl3.MatchString(stmt):
		m := qubitDecl3.FindStringSubmatch(stmt)
		return p.addQubits(m[2], m[1])
	case qregDecl2.MatchString(stmt):
		m := qregDecl2.FindStringSubmatch(stmt)
		return p.addQubits(m[1], m[2])
	case bitDecl3.MatchString(stmt):
		m := bitDecl3.FindStringSubmatch(stmt)
		return p.addClbits(m[2], m[1])
	case cregDecl2.MatchString(stmt):
		m := cregDecl2.FindStringSubmatch(stmt)
		return p.addClbits(m[1], m[2])
	case measure3.MatchString(stmt):
		m := measure3.FindStringSubmatch(stmt)
		return p.measure(m[2], m[1])
	case measure2.MatchString(stmt):
		m := measure2.FindStringSubmatch(stmt)
		return p.measure(m[1], m[2])
	case gateCall.MatchString(stmt):
		m := gateCall.FindStringSubmatch(stmt)
		return p.gate(m[1], m[2], m[3])
	}
	return fmt.Errorf("no viable alternative at input '%s'", stmt)
}

func (p *qasmParser) addQubits(name, size string) error {
	n, err := strconv.Atoi(size)
	if err != nil {
		return err
	}
	if _, ok := p.qregs[name]; ok {
		return fmt.Errorf("register %s is already declared", name)
	}
	r := &QuantumRegister{Name: name, Size: n}
	p.qregs[name] = r
	p.circ.QuantumRegisters = append(p.circ.QuantumRegisters, r)
	return nil
}

func (p *qasmParser) addClbits(name, size string) error {
	n, err := strconv.Atoi(size)
	if err != nil {
		return err
	}
	if _, ok := p.cregs[name]; ok {
		return fmt.Errorf("register %s is already declared", name)
	}
	r := &ClassicalRegister{Name: name, Size: n}
	p.cregs[name] = r
	p.circ.ClassicalRegisters = append(p.circ.ClassicalRegisters, r)
	return nil
}

func (p *qasmParser) qubit(operand string) ([]Qubit, error) {
	operand = strings.TrimSpace(operand)
	if r, ok := p.qregs[operand]; ok {
		return r.Qubits(), nil
	}
	m := indexedOperand.FindStringSubmatch(operand)
	if m == nil {
		return nil, fmt.Errorf("invalid qubit operand '%s'", operand)
	}
	r, ok := p.qregs[m[1]]
	if !ok {
		return nil, fmt.Errorf("undeclared qubit register '%s'", m[1])
	}
	idx, _ := strconv.Atoi(m[2])
	if idx >= r.Size {
		return nil, fmt.Errorf("index %d is out of range for %s", idx, r.Name)
	}
	return []Qubit{r.At(idx)}, nil
}

func (p *qasmParser) clbit(operand string) ([]Clbit, error) {
	operand = strings.TrimSpace(operand)
	if r, ok := p.cregs[operand]; ok {
		return r.Clbits(), nil
	}
	m := indexedOperand.FindStringSubmatch(operand)
	if m == nil {
		return nil, fmt.Errorf("invalid bit operand '%s'", operand)
	}
	r, ok := p.cregs[m[1]]
	if !ok {
		return nil, fmt.Errorf("undeclared bit register '%s'", m[1])
	}
	idx, _ := strconv.Atoi(m[2])
	if idx >= r.Size {
		return nil, fmt.Errorf("index %d is out of range for %s", idx, r.Name)
	}
	return []Clbit{r.At(idx)}, nil
}

func (p *qasmParser) measure(q, c string) error {
	qs, err := p.qubit(q)
	if err != nil {
		return err
	}
	cs, err := p.clbit(c)
	if err != nil {
		return err
	}
	if len(qs) != len(cs) {
		return fmt.Errorf("register sizes differ in measure %s -> %s", q, c)
	}
	for i := range qs {
		p.circ.Measure(qs[i], cs[i])
	}
	return p.circ.Err()
}

func (p *qasmParser) gate(name, params, operands string) error {
	var ps []float64
	if strings.TrimSpace(params) != "" {
		for _, s := range strings.Split(params, ",") {
			v, err := parseAngle(strings.TrimSpace(s))
			if err != nil {
				return err
			}
			ps = append(ps, v)
		}
	}
	var qs []Qubit
	if strings.TrimSpace(operands) != "" {
		for _, s := range strings.Split(operands, ",") {
			q, err := p.qubit(s)
			if err != nil {
				return err
			}
			qs = append(qs, q...)
		}
	}
	switch name {
	case GateH, GateX, GateSX:
		if len(qs) != 1 {
			return fmt.Errorf("%s takes one qubit", name)
		}
		p.circ.append(name, qs, nil, nil)
	case GateRZ:
		if len(qs) != 1 || len(ps) != 1 {
			return fmt.Errorf("rz takes one angle and one qubit")
		}
		p.circ.RZ(ps[0], qs[0])
	case GateCX, GateSwap:
		if len(qs) != 2 {
			return fmt.Errorf("%s takes two qubits", name)
		}
		p.circ.append(name, qs, nil, nil)
	case GateBarrier:
		p.circ.Barrier(qs...)
	default:
		return fmt.Errorf("gate %s is not supported", name)
	}
	return p.circ.Err()
}

func parseAngle(s string) (float64, error) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	m := qasmPiParameter.FindStringSubmatch(strings.ReplaceAll(s, "π", "pi"))
	if m == nil {
		return 0, fmt.Errorf("invalid angle '%s'", s)
	}
	v := math.Pi
	if m[2] != "" {
		f, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return 0, err
		}
		v *= f
	}
	if m[3] != "" {
		f, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			return 0, err
		}
		v /= f
	}
	if m[1] == "-" {
		v = -v
	}
	return v, nil
}
