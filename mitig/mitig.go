// Package mitig corrects counts for readout assignment errors.
package mitig

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/oqtopus-team/bitorder/backend"
	"github.com/oqtopus-team/bitorder/core"
	"github.com/oqtopus-team/bitorder/result"
	"github.com/oqtopus-team/bitorder/transpiler"
	"go.uber.org/zap"
)

const (
	ReadoutTensored      = "tensored"
	ReadoutPseudoInverse = "pseudo_inverse"

	// more slots than this would expand to too many quasi counts
	maxMitigatedSlots = 20
)

var jsonIter = jsoniter.ConfigCompatibleWithStandardLibrary

type MitigationInfo struct {
	Readout string `json:"readout"`

	NeedToBeMitigated bool `json:"-"`
	Mitigated         bool `json:"-"`
}

// NewMitigationInfo reads a JSON object such as {"readout":"tensored"}.
// Anything it cannot read means no mitigation.
func NewMitigationInfo(jobID, raw string) *MitigationInfo {
	m := &MitigationInfo{}
	if strings.TrimSpace(raw) == "" {
		zap.L().Debug(fmt.Sprintf("JobID:%s MitigationInfo string is empty, assuming not mitigated", jobID))
		return m
	}
	if err := jsonIter.Unmarshal([]byte(raw), m); err != nil {
		zap.L().Warn(fmt.Sprintf("JobID:%s MitigationInfo string is not valid JSON, assuming not mitigated: %s", jobID, raw))
		return &MitigationInfo{}
	}
	m.Readout = strings.Trim(strings.TrimSpace(m.Readout), `"`)
	switch m.Readout {
	case ReadoutTensored, ReadoutPseudoInverse:
		m.NeedToBeMitigated = true
	default:
		zap.L().Debug(fmt.Sprintf("JobID:%s does not need to be mitigated/readout:%q", jobID, m.Readout))
	}
	return m
}

// ReadoutMitigator holds the inverse confusion matrix of every memory slot.
type ReadoutMitigator struct {
	nSlots int
	inv    map[int][2][2]float64
}

// NewReadoutMitigator builds the per slot inverses. slotQubit maps a memory
// slot to the physical qubit measured into it. Slots without a qubit or
// without a known error are left as they are.
func NewReadoutMitigator(errs []backend.ReadoutError, slotQubit map[int]int, nSlots int) (*ReadoutMitigator, error) {
	if nSlots > maxMitigatedSlots {
		return nil, fmt.Errorf("can not mitigate %d memory slots (max %d)", nSlots, maxMitigatedSlots)
	}
	m := &ReadoutMitigator{nSlots: nSlots, inv: map[int][2][2]float64{}}
	for slot, q := range slotQubit {
		if slot >= nSlots || q >= len(errs) {
			continue
		}
		e := errs[q]
		if e.ProbMeas1Prep0 == 0 && e.ProbMeas0Prep1 == 0 {
			continue
		}
		// columns are the prepared state, rows the measured one
		p10, p01 := e.ProbMeas1Prep0, e.ProbMeas0Prep1
		det := (1-p10)*(1-p01) - p01*p10
		if math.Abs(det) < 1e-9 {
			return nil, fmt.Errorf("confusion matrix of qubit %d is singular", q)
		}
		m.inv[slot] = [2][2]float64{
			{(1 - p01) / det, -p01 / det},
			{-p10 / det, (1 - p10) / det},
		}
	}
	return m, nil
}

// Apply corrects counts keyed by hex words or by (space separated)
// bitstrings and returns them in the same key format. Negative quasi counts
// are clipped and the rest is scaled back to the original number of shots.
func (m *ReadoutMitigator) Apply(counts result.Counts) (result.Counts, error) {
	shots := counts.Shots()
	if shots <= 0 || len(m.inv) == 0 {
		return counts, nil
	}
	var (
		layout string
		hex    bool
	)
	quasi := map[uint64]float64{}
	for k, n := range counts {
		word, isHex, err := parseWord(k)
		if err != nil {
			return nil, err
		}
		hex = isHex
		if layout == "" && !isHex {
			layout = k
		}
		quasi[word] += float64(n)
	}

	slots := make([]int, 0, len(m.inv))
	for s := range m.inv {
		slots = append(slots, s)
	}
	sort.Ints(slots)
	for _, s := range slots {
		inv := m.inv[s]
		next := make(map[uint64]float64, len(quasi)*2)
		for word, v := range quasi {
			b := (word >> uint(s)) & 1
			zero, one := word&^(1<<uint(s)), word|1<<uint(s)
			next[zero] += inv[0][b] * v
			next[one] += inv[1][b] * v
		}
		quasi = next
	}
	out, ok := m.toCounts(quasi, shots, hex, layout)
	if !ok {
		zap.L().Warn(fmt.Sprintf("no positive quasi count after mitigation of %d shots, keeping the raw counts", shots))
		return counts, nil
	}
	return out, nil
}

// toCounts reports false when no quasi count is positive.
func (m *ReadoutMitigator) toCounts(quasi map[uint64]float64, shots int, hex bool, layout string) (result.Counts, bool) {
	type entry struct {
		word uint64
		val  float64
	}
	total := 0.0
	entries := []entry{}
	for w, v := range quasi {
		if v > 0 {
			entries = append(entries, entry{w, v})
			total += v
		}
	}
	if total <= 0 {
		return nil, false
	}
	// largest remainder keeps the total equal to shots
	sort.Slice(entries, func(i, j int) bool { return entries[i].word < entries[j].word })
	floors := make([]int, len(entries))
	assigned := 0
	for i, e := range entries {
		floors[i] = int(math.Floor(e.val / total * float64(shots)))
		assigned += floors[i]
	}
	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra := entries[order[a]].val/total*float64(shots) - float64(floors[order[a]])
		rb := entries[order[b]].val/total*float64(shots) - float64(floors[order[b]])
		return ra > rb
	})
	for i := 0; assigned < shots && i < len(order); i++ {
		floors[order[i]]++
		assigned++
	}
	out := result.Counts{}
	for i, e := range entries {
		if floors[i] == 0 {
			continue
		}
		out[m.formatWord(e.word, hex, layout)] = floors[i]
	}
	return out, true
}

func parseWord(k string) (uint64, bool, error) {
	if strings.HasPrefix(k, "0x") || strings.HasPrefix(k, "0X") {
		w, err := strconv.ParseUint(k[2:], 16, 64)
		if err != nil {
			return 0, true, fmt.Errorf("invalid memory word %q", k)
		}
		return w, true, nil
	}
	var w uint64
	for _, c := range strings.ReplaceAll(k, " ", "") {
		switch c {
		case '0':
			w <<= 1
		case '1':
			w = w<<1 | 1
		default:
			return 0, false, fmt.Errorf("invalid bitstring %q", k)
		}
	}
	return w, false, nil
}

func (m *ReadoutMitigator) formatWord(w uint64, hex bool, layout string) string {
	if hex {
		return fmt.Sprintf("0x%x", w)
	}
	n := len(strings.ReplaceAll(layout, " ", ""))
	bits := fmt.Sprintf("%0*b", n, w)
	var b strings.Builder
	i := 0
	for _, c := range layout {
		if c == ' ' {
			b.WriteByte(' ')
			continue
		}
		b.WriteByte(bits[i])
		i++
	}
	return b.String()
}

// ReadoutErrorsFromSpec lists the measurement errors of a device by qubit id.
func ReadoutErrorsFromSpec(spec *core.DeviceInfoSpec) []backend.ReadoutError {
	return backend.PropertiesFromDeviceInfoSpec(spec, "").ReadoutErrors()
}

// MitigateJobData corrects the raw counts of every experiment of a finished
// job in place. The slot to qubit map of each experiment comes from its
// transpiled program.
func MitigateJobData(jd *core.JobData, spec *core.DeviceInfoSpec) error {
	if jd.Result == nil || jd.Status != core.SUCCEEDED {
		return fmt.Errorf("job(%s) has no result to mitigate/status:%s", jd.ID, jd.Status)
	}
	q, err := transpiler.ParseQobj([]byte(jd.TranspiledProgram))
	if err != nil {
		return err
	}
	errs := ReadoutErrorsFromSpec(spec)
	mitigate := func(exp *transpiler.Experiment, c core.Counts) (core.Counts, error) {
		m, err := NewReadoutMitigator(errs, exp.MeasuredSlots(), exp.Config.MemorySlots)
		if err != nil {
			return nil, err
		}
		in := result.Counts{}
		for k, v := range c {
			in[k] = int(v)
		}
		out, err := m.Apply(in)
		if err != nil {
			return nil, err
		}
		res := core.Counts{}
		for k, v := range out {
			res[k] = uint32(v)
		}
		return res, nil
	}
	for i, exp := range q.Experiments {
		c, ok := jd.Result.DividedResult[uint32(i)]
		if !ok {
			continue
		}
		mc, err := mitigate(exp, c)
		if err != nil {
			return err
		}
		jd.Result.DividedResult[uint32(i)] = mc
		if i == 0 {
			jd.Result.Counts = mc
		}
	}
	zap.L().Debug(fmt.Sprintf("mitigated job(%s)/counts:%v", jd.ID, jd.Result.Counts))
	return nil
}
