package qpu

import (
	"fmt"
	"os"
	"slices"

	"github.com/BurntSushi/toml"
	"github.com/oqtopus-team/bitorder/backend"
	"github.com/oqtopus-team/bitorder/common"
	"github.com/oqtopus-team/bitorder/core"
	"go.uber.org/zap"
)

const (
	DefaultDeviceName   = "fake_line5"
	DefaultProviderName = "bitorder"
	DefaultDeviceType   = "simulator"
)

// DeviceSetting is the device setting file. It describes the device the
// engine runs: its shape, its calibration and, for a gateway device, where
// the gateway listens.
type DeviceSetting struct {
	DeviceName   string   `toml:"device_name"`
	DeviceType   string   `toml:"device_type"`
	ProviderName string   `toml:"provider_name"`
	NQubits      int      `toml:"n_qubits"`
	MaxShots     int      `toml:"max_shots"`
	BasisGates   []string `toml:"basis_gates"`
	CouplingMap  [][2]int `toml:"coupling_map"`
	CalibratedAt string   `toml:"calibrated_at"`
	// LegacyBitOrder reports outcomes by physical qubit instead of by
	// memory slot.
	LegacyBitOrder bool           `toml:"legacy_bit_order"`
	Seed           int64          `toml:"seed"`
	Qubits         []QubitSetting `toml:"qubits"`
	GateSupport    *GateSupport   `toml:"gate_support"`

	MachineHost   string `toml:"machine_host"`
	MachinePort   string `toml:"machine_port"`
	PollingPeriod uint32 `toml:"polling_period"`
}

type QubitSetting struct {
	ID             int     `toml:"id"`
	Fidelity       float64 `toml:"fidelity"`
	ProbMeas1Prep0 float64 `toml:"prob_meas1_prep0"`
	ProbMeas0Prep1 float64 `toml:"prob_meas0_prep1"`
	T1             float64 `toml:"t1"`
	T2             float64 `toml:"t2"`
}

type GateSupport struct {
	AllowList *GateFilter `toml:"allow_list"`
	DenyList  *GateFilter `toml:"deny_list"`
}

type GateFilter struct {
	Enabled bool     `toml:"enabled"`
	Gates   []string `toml:"gates"`
}

func LoadDeviceSetting(path string) (*DeviceSetting, error) {
	blob, assetErr := common.ReadFile(path)
	ds := NewDeviceSetting()
	if assetErr != nil {
		zap.L().Info(fmt.Sprintf("failed to read file:%s/reason:%s", path, assetErr))
		return ds, nil
	}
	if _, err := toml.Decode(blob, ds); err != nil {
		zap.L().Error(fmt.Sprintf("failed to decode blob:%s", blob))
		return &DeviceSetting{}, err
	}
	if err := ds.validate(); err != nil {
		return &DeviceSetting{}, err
	}
	return ds, nil
}

func SaveDeviceSetting(path string, ds *DeviceSetting) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(ds)
}

// NewDeviceSetting returns a five qubit line with the IBM style basis.
func NewDeviceSetting() *DeviceSetting {
	return &DeviceSetting{
		DeviceName:   DefaultDeviceName,
		DeviceType:   DefaultDeviceType,
		ProviderName: DefaultProviderName,
		NQubits:      5,
		MaxShots:     8192,
		BasisGates:   []string{"rz", "sx", "x", "cx"},
		CouplingMap:  [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 4}},
		GateSupport:  NewGateSupport(),

		MachineHost:   "localhost",
		MachinePort:   "50051",
		PollingPeriod: 60,
	}
}

func NewGateSupport() *GateSupport {
	return &GateSupport{
		AllowList: &GateFilter{},
		DenyList:  &GateFilter{},
	}
}

func (ds *DeviceSetting) validate() error {
	if ds.NQubits <= 0 {
		return fmt.Errorf("n_qubits must be positive, got %d", ds.NQubits)
	}
	if ds.MaxShots <= 0 {
		return fmt.Errorf("max_shots must be positive, got %d", ds.MaxShots)
	}
	for _, e := range ds.CouplingMap {
		if e[0] < 0 || e[0] >= ds.NQubits || e[1] < 0 || e[1] >= ds.NQubits || e[0] == e[1] {
			return fmt.Errorf("invalid coupling %v for %d qubits", e, ds.NQubits)
		}
	}
	for _, q := range ds.Qubits {
		if q.ID < 0 || q.ID >= ds.NQubits {
			return fmt.Errorf("qubit id %d is out of range", q.ID)
		}
		if q.ProbMeas0Prep1 < 0 || q.ProbMeas0Prep1 > 1 || q.ProbMeas1Prep0 < 0 || q.ProbMeas1Prep0 > 1 {
			return fmt.Errorf("measurement error of qubit %d is not a probability", q.ID)
		}
	}
	if ds.GateSupport == nil {
		ds.GateSupport = NewGateSupport()
	}
	if ds.GateSupport.AllowList == nil {
		ds.GateSupport.AllowList = &GateFilter{}
	}
	if ds.GateSupport.DenyList == nil {
		ds.GateSupport.DenyList = &GateFilter{}
	}
	return nil
}

// Spec is the device info JSON published to clients.
func (ds *DeviceSetting) Spec() *core.DeviceInfoSpec {
	spec := &core.DeviceInfoSpec{
		DeviceID:    ds.DeviceName,
		NQubits:     ds.NQubits,
		BasisGates:  ds.BasisGates,
		CouplingMap: ds.CouplingMap,
	}
	for _, q := range ds.Qubits {
		spec.Qubits = append(spec.Qubits, core.Qubit{
			ID:         q.ID,
			PhysicalID: q.ID,
			Fidelity:   q.Fidelity,
			MeasError: core.MeasError{
				ProbMeas1Prep0:         q.ProbMeas1Prep0,
				ProbMeas0Prep1:         q.ProbMeas0Prep1,
				ReadoutAssignmentError: (q.ProbMeas1Prep0 + q.ProbMeas0Prep1) / 2,
			},
			QubitLife: core.QubitLife{T1: q.T1, T2: q.T2},
		})
	}
	return spec
}

func (ds *DeviceSetting) DeviceInfo(status core.DeviceStatus) (*core.DeviceInfo, error) {
	b, err := jsonIter.Marshal(ds.Spec())
	if err != nil {
		return nil, err
	}
	return &core.DeviceInfo{
		DeviceName:         ds.DeviceName,
		ProviderName:       ds.ProviderName,
		Type:               ds.DeviceType,
		Status:             status,
		MaxQubits:          ds.NQubits,
		MaxShots:           ds.MaxShots,
		DeviceInfoSpecJson: string(b),
		CalibratedAt:       ds.CalibratedAt,
	}, nil
}

// ExecOptions is how the simulator reproduces the device.
func (ds *DeviceSetting) ExecOptions() backend.ExecOptions {
	props := backend.PropertiesFromDeviceInfoSpec(ds.Spec(), ds.CalibratedAt)
	return backend.ExecOptions{
		Seed:           ds.Seed,
		ReadoutErrors:  props.ReadoutErrors(),
		LegacyBitOrder: ds.LegacyBitOrder,
	}
}

// Check rejects a gate that the allow list does not name or the deny list
// names. Disabled lists accept everything.
func (g *GateSupport) Check(gate string) error {
	if g.AllowList.Enabled && !slices.Contains(g.AllowList.Gates, gate) {
		return fmt.Errorf("gate %s is not in the allow list", gate)
	}
	if g.DenyList.Enabled && slices.Contains(g.DenyList.Gates, gate) {
		return fmt.Errorf("gate %s is in the deny list", gate)
	}
	return nil
}
