//go:build unit
// +build unit

package result

import (
	"testing"

	"github.com/oqtopus-team/bitorder/transpiler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func header(slots int, cregs ...transpiler.RegisterSize) transpiler.ExperimentHeader {
	return transpiler.ExperimentHeader{Name: "exp", MemorySlots: slots, CregSizes: cregs}
}

func TestFormatCounts(t *testing.T) {
	tests := []struct {
		name   string
		raw    Counts
		header transpiler.ExperimentHeader
		want   Counts
	}{
		{
			name:   "single register",
			raw:    Counts{"0x0": 1000, "0x2": 1000},
			header: header(2, transpiler.RegisterSize{Name: "c", Size: 2}),
			want:   Counts{"00": 1000, "10": 1000},
		},
		{
			name: "last register leftmost",
			raw:  Counts{"0x4": 3, "0x19": 5},
			header: header(5,
				transpiler.RegisterSize{Name: "cr0", Size: 2},
				transpiler.RegisterSize{Name: "cr1", Size: 2},
				transpiler.RegisterSize{Name: "cr2", Size: 1}),
			want: Counts{"0 01 00": 3, "1 10 01": 5},
		},
		{
			name:   "extra high bits dropped and merged",
			raw:    Counts{"0x1": 2, "0x5": 3},
			header: header(2, transpiler.RegisterSize{Name: "c", Size: 2}),
			want:   Counts{"01": 5},
		},
		{
			name:   "bitstring keys",
			raw:    Counts{"1 0": 4, "00": 6},
			header: header(2, transpiler.RegisterSize{Name: "a", Size: 1}, transpiler.RegisterSize{Name: "b", Size: 1}),
			want:   Counts{"1 0": 4, "0 0": 6},
		},
		{
			name:   "no registers",
			raw:    Counts{"0x3": 1},
			header: header(3),
			want:   Counts{"011": 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatCounts(tt.raw, tt.header)
			require.Nil(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FormatCounts(Counts{"0xzz": 1}, header(2))
	assert.EqualError(t, err, `invalid memory word "0xzz"`)
}

func TestGetCounts(t *testing.T) {
	r := &Result{
		Success: true,
		Results: []ExperimentResult{{
			Shots:   10,
			Success: true,
			Data:    ExperimentData{Counts: Counts{"0x1": 10}},
			Header:  header(2, transpiler.RegisterSize{Name: "c", Size: 2}),
		}},
	}
	got, err := r.GetCounts()
	require.Nil(t, err)
	assert.Equal(t, Counts{"01": 10}, got)

	got, err = r.GetCounts("exp")
	require.Nil(t, err)
	assert.Equal(t, Counts{"01": 10}, got)

	_, err = r.GetCounts("other")
	assert.ErrorIs(t, err, ErrNoExperiment)

	r.Results = append(r.Results, r.Results[0])
	_, err = r.GetCounts()
	assert.EqualError(t, err, "result has 2 experiments, pass the experiment name")

	_, err = (&Result{}).GetCounts()
	assert.ErrorIs(t, err, ErrNoExperiment)
}

func TestDecodeResult(t *testing.T) {
	raw := `{
		"backend_name": "fake_device",
		"job_id": "j1",
		"success": true,
		"results": [{
			"shots": 4,
			"success": true,
			"data": {"counts": {"0x0": 1, "0x3": 3}, "memory": ["0x0"]},
			"header": {"name": "bell", "memory_slots": 2, "creg_sizes": [["c", 2]]}
		}]
	}`
	var r Result
	require.Nil(t, jsonIter.Unmarshal([]byte(raw), &r))
	assert.Equal(t, "fake_device", r.BackendName)
	assert.Equal(t, Counts{"0x0": 1, "0x3": 3}, r.Results[0].Data.Counts)
	got, err := r.GetCounts()
	require.Nil(t, err)
	assert.Equal(t, Counts{"00": 1, "11": 3}, got)

	var bad Result
	assert.Error(t, jsonIter.Unmarshal([]byte(`{"results":[{"data":{"counts":{"0x0":"one"}}}]}`), &bad))
}

func TestMarginal(t *testing.T) {
	counts := Counts{"1 01 00": 3, "0 01 10": 5, "1 11 00": 2}
	got, err := Marginal(counts, []int{4, 0})
	require.Nil(t, err)
	assert.Equal(t, Counts{"10": 5, "00": 5}, got)

	_, err = Marginal(counts, []int{5})
	assert.Error(t, err)
}

func TestCountsHelpers(t *testing.T) {
	c := Counts{"b": 1, "a": 2}
	assert.Equal(t, 3, c.Shots())
	assert.Equal(t, []string{"a", "b"}, c.Keys())
}

func TestParseAndString(t *testing.T) {
	r, err := Parse([]byte(`{"backend_name":"qasm_simulator","success":true,"results":[]}`))
	require.Nil(t, err)
	assert.Equal(t, "qasm_simulator", r.BackendName)
	assert.Contains(t, r.String(), "\n  \"backend_name\": \"qasm_simulator\",\n")

	_, err = Parse([]byte(`{`))
	assert.Error(t, err)
}
