// Package result turns raw memory words returned by a backend into counts
// keyed by classical register bitstrings.
package result

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	jsoniter "github.com/json-iterator/go"
	"github.com/oqtopus-team/bitorder/transpiler"
	"github.com/tidwall/pretty"
	"go.uber.org/zap"
)

var (
	ErrNoExperiment = errors.New("experiment not found")
	jsonIter        = jsoniter.ConfigCompatibleWithStandardLibrary
)

// Counts maps a memory word to the number of shots it was observed in.
type Counts map[string]int

func (c Counts) Shots() int {
	total := 0
	for _, v := range c {
		total += v
	}
	return total
}

// Keys returns the keys in ascending order.
func (c Counts) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ExperimentData keeps counts as a raw JSON object so both hex and bitstring
// keys survive decoding untouched.
type ExperimentData struct {
	Counts Counts `json:"counts"`
}

func (d *ExperimentData) UnmarshalJSON(b []byte) error {
	d.Counts = Counts{}
	return jx.DecodeBytes(b).Obj(func(dec *jx.Decoder, key string) error {
		if key != "counts" {
			return dec.Skip()
		}
		return dec.Obj(func(dec *jx.Decoder, word string) error {
			n, err := dec.Int()
			if err != nil {
				return errors.Wrap(err, word)
			}
			d.Counts[word] = n
			return nil
		})
	})
}

type ExperimentResult struct {
	Shots   int                         `json:"shots"`
	Success bool                        `json:"success"`
	Status  string                      `json:"status,omitempty"`
	Data    ExperimentData              `json:"data"`
	Header  transpiler.ExperimentHeader `json:"header"`
}

type Result struct {
	BackendName    string             `json:"backend_name"`
	BackendVersion string             `json:"backend_version"`
	QobjID         string             `json:"qobj_id"`
	JobID          string             `json:"job_id"`
	Success        bool               `json:"success"`
	Status         string             `json:"status,omitempty"`
	Results        []ExperimentResult `json:"results"`
}

func Parse(b []byte) (*Result, error) {
	r := &Result{}
	if err := jsonIter.Unmarshal(b, r); err != nil {
		zap.L().Error(fmt.Sprintf("failed to unmarshal result/reason:%s", err))
		return nil, err
	}
	return r, nil
}

func (r *Result) Marshal() ([]byte, error) {
	return jsonIter.Marshal(r)
}

func (r *Result) String() string {
	b, err := r.Marshal()
	if err != nil {
		return ""
	}
	return string(pretty.Pretty(b))
}

func (r *Result) experiment(name []string) (*ExperimentResult, error) {
	switch {
	case len(name) == 0 && len(r.Results) == 1:
		return &r.Results[0], nil
	case len(name) == 0 && len(r.Results) == 0:
		return nil, errors.Wrap(ErrNoExperiment, "result is empty")
	case len(name) == 0:
		return nil, fmt.Errorf("result has %d experiments, pass the experiment name", len(r.Results))
	}
	for i := range r.Results {
		if r.Results[i].Header.Name == name[0] {
			return &r.Results[i], nil
		}
	}
	return nil, errors.Wrap(ErrNoExperiment, name[0])
}

// GetCounts returns the counts of an experiment formatted by classical
// register. The name can be omitted when the result holds one experiment.
func (r *Result) GetCounts(name ...string) (Counts, error) {
	exp, err := r.experiment(name)
	if err != nil {
		return nil, err
	}
	if !exp.Success && exp.Data.Counts == nil {
		return nil, fmt.Errorf("experiment %s has no counts/status:%s", exp.Header.Name, exp.Status)
	}
	return FormatCounts(exp.Data.Counts, exp.Header)
}

// FormatCounts keeps the lowest memory_slots bits of every word and splits
// them by classical register. The last declared register comes first and
// registers are separated by a single space.
func FormatCounts(raw Counts, header transpiler.ExperimentHeader) (Counts, error) {
	out := Counts{}
	for word, n := range raw {
		bits, err := toBitstring(word, header.MemorySlots)
		if err != nil {
			return nil, err
		}
		out[separate(bits, header.CregSizes)] += n
	}
	return out, nil
}

func toBitstring(word string, slots int) (string, error) {
	v := new(big.Int)
	switch {
	case strings.HasPrefix(word, "0x"), strings.HasPrefix(word, "0X"):
		if _, ok := v.SetString(word[2:], 16); !ok {
			return "", fmt.Errorf("invalid memory word %q", word)
		}
	default:
		if _, ok := v.SetString(strings.ReplaceAll(word, " ", ""), 2); !ok {
			return "", fmt.Errorf("invalid memory word %q", word)
		}
	}
	bits := v.Text(2)
	if len(bits) < slots {
		bits = strings.Repeat("0", slots-len(bits)) + bits
	}
	return bits[len(bits)-slots:], nil
}

func separate(bits string, cregs []transpiler.RegisterSize) string {
	if len(cregs) == 0 {
		return bits
	}
	parts := make([]string, 0, len(cregs))
	idx := 0
	for i := len(cregs) - 1; i >= 0; i-- {
		end := min(idx+cregs[i].Size, len(bits))
		parts = append(parts, bits[idx:end])
		idx = end
	}
	return strings.Join(parts, " ")
}

// Marginal sums formatted counts down to the given global clbit indices.
// The returned keys have the highest requested index leftmost.
func Marginal(counts Counts, indices []int) (Counts, error) {
	idx := append([]int{}, indices...)
	sort.Sort(sort.Reverse(sort.IntSlice(idx)))
	out := Counts{}
	for k, n := range counts {
		bits := strings.ReplaceAll(k, " ", "")
		var b strings.Builder
		for _, i := range idx {
			if i < 0 || i >= len(bits) {
				return nil, fmt.Errorf("clbit %d is out of range for %q", i, k)
			}
			b.WriteByte(bits[len(bits)-1-i])
		}
		out[b.String()] += n
	}
	return out, nil
}
