//go:build unit
// +build unit

package qpu

import (
	"path/filepath"
	"testing"

	"github.com/oqtopus-team/bitorder/common"
	"github.com/oqtopus-team/bitorder/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadUnitTestDeviceSetting(t *testing.T) *DeviceSetting {
	path, err := common.GetAssetAbsPath("unit_test_device_setting.toml")
	require.Nil(t, err)
	ds, err := LoadDeviceSetting(path)
	require.Nil(t, err)
	return ds
}

func TestDeviceSetting(t *testing.T) {
	ds := loadUnitTestDeviceSetting(t)
	assert.Equal(t, "unit_test_line3", ds.DeviceName)
	assert.Equal(t, 3, ds.NQubits)
	assert.Equal(t, [][2]int{{0, 1}, {1, 2}}, ds.CouplingMap)
	assert.Len(t, ds.Qubits, 2)
	assert.True(t, ds.GateSupport.AllowList.Enabled)
	assert.Contains(t, ds.GateSupport.AllowList.Gates, "measure")
	assert.False(t, ds.GateSupport.DenyList.Enabled)
}

func TestLoadDeviceSettingFallsBackToDefault(t *testing.T) {
	ds, err := LoadDeviceSetting(filepath.Join(t.TempDir(), "missing.toml"))
	require.Nil(t, err)
	assert.Equal(t, DefaultDeviceName, ds.DeviceName)
	assert.Equal(t, 5, ds.NQubits)
}

func TestDeviceSettingValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(ds *DeviceSetting)
		wantErr string
	}{
		{
			name:    "no qubits",
			modify:  func(ds *DeviceSetting) { ds.NQubits = 0 },
			wantErr: "n_qubits must be positive, got 0",
		},
		{
			name:    "coupling out of range",
			modify:  func(ds *DeviceSetting) { ds.CouplingMap = [][2]int{{0, 7}} },
			wantErr: "invalid coupling [0 7] for 5 qubits",
		},
		{
			name:    "self coupling",
			modify:  func(ds *DeviceSetting) { ds.CouplingMap = [][2]int{{2, 2}} },
			wantErr: "invalid coupling [2 2] for 5 qubits",
		},
		{
			name:    "bad probability",
			modify:  func(ds *DeviceSetting) { ds.Qubits = []QubitSetting{{ID: 1, ProbMeas0Prep1: 1.5}} },
			wantErr: "measurement error of qubit 1 is not a probability",
		},
		{
			name:   "missing gate support",
			modify: func(ds *DeviceSetting) { ds.GateSupport = nil },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := NewDeviceSetting()
			tt.modify(ds)
			err := ds.validate()
			if tt.wantErr == "" {
				assert.Nil(t, err)
				assert.NotNil(t, ds.GateSupport.AllowList)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestDeviceInfoFromSetting(t *testing.T) {
	ds := loadUnitTestDeviceSetting(t)
	di, err := ds.DeviceInfo(core.Available)
	require.Nil(t, err)
	assert.Equal(t, "unit_test_line3", di.DeviceName)
	assert.Equal(t, 10000, di.MaxShots)

	spec, err := core.ParseDeviceInfoSpec(di.DeviceInfoSpecJson)
	require.Nil(t, err)
	assert.Equal(t, []string{"rz", "sx", "x", "cx"}, spec.BasisGates)
	require.Len(t, spec.Qubits, 2)
	assert.InDelta(t, 0.03, spec.Qubits[0].MeasError.ReadoutAssignmentError, 1e-12)

	opts := ds.ExecOptions()
	assert.Equal(t, int64(11), opts.Seed)
	require.Len(t, opts.ReadoutErrors, 3)
	assert.InDelta(t, 0.04, opts.ReadoutErrors[0].ProbMeas0Prep1, 1e-12)
	assert.Zero(t, opts.ReadoutErrors[2].ProbMeas1Prep0)
}

func TestGateSupportCheck(t *testing.T) {
	gs := &GateSupport{
		AllowList: &GateFilter{Enabled: true, Gates: []string{"rz", "cx"}},
		DenyList:  &GateFilter{Enabled: true, Gates: []string{"cx"}},
	}
	assert.Nil(t, gs.Check("rz"))
	assert.EqualError(t, gs.Check("h"), "gate h is not in the allow list")
	assert.EqualError(t, gs.Check("cx"), "gate cx is in the deny list")
	assert.Nil(t, NewGateSupport().Check("anything"))
}
