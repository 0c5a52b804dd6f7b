//go:build unit
// +build unit

package core

import (
	"encoding/json"
	"testing"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/go-openapi/strfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultToString(t *testing.T) {
	tests := []struct {
		name       string
		result     *Result
		wantString string
	}{
		{
			name:   "empty result",
			result: NewResult(),
			wantString: heredoc.Doc(`
			  {
			    "counts": {},
			    "divided_result": null,
			    "transpiler_info": {
			      "stats": {},
			      "physical_virtual_mapping": {},
			      "virtual_physical_mapping": {}
			    },
			    "message": "",
			    "execution_time": 0
			  }
			`),
		},
		{
			name:   "counts and mapping in result",
			result: allInResult(),
			wantString: heredoc.Doc(`
			  {
			    "counts": {
			      "0x0": 10,
			      "0x2": 20
			    },
			    "divided_result": {
			      "0": {
			        "0x0": 10,
			        "0x2": 20
			      }
			    },
			    "transpiler_info": {
			      "stats": {
			        "swap": 1
			      },
			      "physical_virtual_mapping": {
			        "1": 0,
			        "3": 1
			      },
			      "virtual_physical_mapping": {
			        "0": 1,
			        "1": 3
			      }
			    },
			    "message": "dummy message",
			    "execution_time": 0
			  }
			`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantString, tt.result.ToString())
		})
	}
}

func allInResult() *Result {
	r := NewResult()
	r.Message = "dummy message"
	r.Counts["0x0"] = 10
	r.Counts["0x2"] = 20
	r.DividedResult = DividedResult{0: Counts{"0x0": 10, "0x2": 20}}
	r.TranspilerInfo.Stats["swap"] = 1
	r.TranspilerInfo.VirtualPhysicalMappingMap[0] = 1
	r.TranspilerInfo.VirtualPhysicalMappingMap[1] = 3
	r.TranspilerInfo.PhysicalVirtualMapping = r.TranspilerInfo.VirtualPhysicalMappingMap.Inverse()
	return r
}

func TestCountsShots(t *testing.T) {
	assert.Equal(t, 0, Counts{}.Shots())
	assert.Equal(t, 30, Counts{"0x0": 10, "0x1": 20}.Shots())
}

func TestParseVirtualPhysicalMapping(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    VirtualPhysicalMappingMap
		wantErr bool
	}{
		{
			name: "two qubits",
			in:   `{"0": 4, "1": 2}`,
			want: VirtualPhysicalMappingMap{0: 4, 1: 2},
		},
		{
			name:    "non numeric key",
			in:      `{"a": 4}`,
			wantErr: true,
		},
		{
			name:    "broken json",
			in:      `{"0": 4`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVirtualPhysicalMapping([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, PhysicalVirtualMapping{4: 0, 2: 1}, got.Inverse())
		})
	}
}

func TestCloneJobData(t *testing.T) {
	tests := []struct {
		name    string
		jobData *JobData
	}{
		{
			name: "no properties",
			jobData: &JobData{
				ID:         "dummy_id",
				Program:    "dummy_program",
				Shots:      1000,
				Transpiler: &TranspilerConfig{},
				Result:     NewResult(),
				Created:    strfmt.NewDateTime(),
				Ended:      strfmt.NewDateTime(),
			},
		},
		{
			name: "with properties",
			jobData: &JobData{
				ID:                "dummy_id",
				Program:           "dummy_program",
				TranspiledProgram: "dummy_transpiled",
				Shots:             1000,
				Transpiler:        &TranspilerConfig{},
				Result:            allInResult(),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cloned := tt.jobData.Clone()

			assert.False(t, tt.jobData == cloned)
			assert.Equal(t, tt.jobData.ID, cloned.ID)
			assert.Equal(t, tt.jobData.Program, cloned.Program)
			assert.Equal(t, tt.jobData.ExecutableProgram(), cloned.ExecutableProgram())
			assert.Equal(t, tt.jobData.Shots, cloned.Shots)
			assert.Equal(t, tt.jobData.Created, cloned.Created)
			assert.Equal(t, tt.jobData.Ended, cloned.Ended)
			assert.False(t, tt.jobData.Result == cloned.Result)

			cloned.Result.Counts["0x7"] = 1
			_, ok := tt.jobData.Result.Counts["0x7"]
			assert.False(t, ok)
		})
	}
}

func TestStatusIsFinal(t *testing.T) {
	for _, s := range []Status{SUBMITTED, READY, RUNNING} {
		assert.False(t, s.IsFinal(), s.String())
	}
	for _, s := range []Status{SUCCEEDED, FAILED, CANCELLED} {
		assert.True(t, s.IsFinal(), s.String())
		got, err := ToStatus(s.String())
		assert.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ToStatus("paused")
	assert.EqualError(t, err, "unknown status: paused")
}

func TestUnmarshalToTranspilerConfig(t *testing.T) {
	ti := `
{ "transpiler_lib": "bitorder", "transpiler_options": {"optimization_level":2}}
`
	c := UnmarshalToTranspilerConfig(ti)
	assert.Equal(t, "bitorder", *c.TranspilerLib)
	assert.Equal(t, json.RawMessage(`{"optimization_level":2}`), c.TranspilerOptions)
}

func TestMarshalTranspilerConfig(t *testing.T) {
	lib := "bitorder"
	c := TranspilerConfig{TranspilerLib: &lib, TranspilerOptions: json.RawMessage(`{"optimization_level":2}`)}
	b, err := jsonIter.Marshal(c)
	assert.Nil(t, err)
	assert.Equal(t, `{"transpiler_lib":"bitorder","transpiler_options":{"optimization_level":2}}`, string(b))
}
