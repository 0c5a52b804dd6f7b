//go:build unit
// +build unit

package transpiler

import (
	"testing"

	"github.com/oqtopus-team/bitorder/core"
	"github.com/stretchr/testify/assert"
)

func TestToPhysicalVirtualMappingFromString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    core.PhysicalVirtualMapping
		wantErr bool
	}{
		{
			name:  "swapped",
			input: `{"qubit_mapping": {"0": 1, "1": 0}, "bit_mapping": {}}`,
			want:  core.PhysicalVirtualMapping{1: 0, 0: 1},
		},
		{
			name:  "sparse",
			input: `{"qubit_mapping": {"0": 3, "1": 2}, "bit_mapping": {"0": 0}}`,
			want:  core.PhysicalVirtualMapping{3: 0, 2: 1},
		},
		{
			name:    "bad key",
			input:   `{"qubit_mapping": {"a": 1}}`,
			wantErr: true,
		},
		{
			name:    "not json",
			input:   `qubit_mapping`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := toPhysicalVirtualMappingFromString(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToVirtualPhysicalMappingFromString(t *testing.T) {
	got, err := toVirtualPhysicalMappingFromString(`{"qubit_mapping": {"0": 3, "1": 2}, "bit_mapping": {}}`)
	assert.NoError(t, err)
	assert.Equal(t, core.VirtualPhysicalMappingMap{0: 3, 1: 2}, got)
	assert.Equal(t, core.PhysicalVirtualMapping{3: 0, 2: 1}, got.Inverse())
}
