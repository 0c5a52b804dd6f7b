package core

import (
	"fmt"
	"strconv"

	"github.com/go-faster/jx"
	"go.uber.org/dig"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const DefaultTranspilerLib = "bitorder"

var (
	systemComponents            *SystemComponents
	defaultTranspilerConfigJson map[string]jx.Raw
)

func init() {
	dtc := DEFAULT_TRANSPILER_CONFIG()
	dtcj := make(map[string]jx.Raw)
	dtcj["transpiler_lib"] = jx.Raw(strconv.Quote(*dtc.TranspilerLib))
	dtcj["transpiler_options"] = jx.Raw(dtc.TranspilerOptions)
	defaultTranspilerConfigJson = dtcj
}

func DefaultTranspilerConfigJson() map[string]jx.Raw {
	return defaultTranspilerConfigJson
}

type DBChan chan Job

type Channels struct {
	DBChan
}

func NewChannels() *Channels {
	return &Channels{
		DBChan: make(DBChan),
	}
}

func (c *Channels) Close() {
	close(c.DBChan)
}

func (c *Channels) Check() error {
	if c.DBChan == nil {
		return fmt.Errorf("DBChan is nil")
	}
	return nil
}

type DeviceInfo struct {
	DeviceName         string       `json:"device_name"`
	ProviderName       string       `json:"provider_name"`
	Type               string       `json:"type"`
	Status             DeviceStatus `json:"status"`
	MaxQubits          int          `json:"max_qubits"`
	MaxShots           int          `json:"max_shots"`
	DeviceInfoSpecJson string       `json:"device_info"`
	CalibratedAt       string       `json:"calibrated_at"`
}

type DeviceInfoSpec struct {
	DeviceID    string   `json:"device_id"`
	NQubits     int      `json:"n_qubits"`
	BasisGates  []string `json:"basis_gates"`
	CouplingMap [][2]int `json:"coupling_map"`
	Qubits      []Qubit  `json:"qubits"`
}

func ParseDeviceInfoSpec(s string) (*DeviceInfoSpec, error) {
	var dis DeviceInfoSpec
	if err := jsonIter.Unmarshal([]byte(s), &dis); err != nil {
		zap.L().Error(fmt.Sprintf("failed to unmarshal device info spec/reason:%s", err))
		return nil, err
	}
	return &dis, nil
}

type Qubit struct {
	ID         int       `json:"id"`
	PhysicalID int       `json:"physical_id"`
	Fidelity   float64   `json:"fidelity"`
	MeasError  MeasError `json:"meas_error"`
	QubitLife  QubitLife `json:"qubit_lifetime"`
}

type MeasError struct {
	ProbMeas1Prep0         float64 `json:"prob_meas1_prep0"`
	ProbMeas0Prep1         float64 `json:"prob_meas0_prep1"`
	ReadoutAssignmentError float64 `json:"readout_assignment_error"`
}

type QubitLife struct {
	T1 float64 `json:"t1"`
	T2 float64 `json:"t2"`
}

type DeviceStatus int

const (
	Available DeviceStatus = iota
	Unavailable
	QueuePaused
)

func (ds DeviceStatus) String() string {
	switch ds {
	case Available:
		return "Available"
	case Unavailable:
		return "Unavailable"
	case QueuePaused:
		return "QueuePaused"
	default:
		return "Unknown"
	}
}

type QPUManager interface {
	Setup(*Conf) error
	Send(Job) error
	Validate(program string) error
	GetDeviceInfo() *DeviceInfo
}

func DEFAULT_TRANSPILER_CONFIG() *TranspilerConfig {
	lib := DefaultTranspilerLib
	return &TranspilerConfig{
		TranspilerLib:     &lib,
		TranspilerOptions: []byte(`{"optimization_level":1}`),
		UseDefault:        true,
	}
}

type Transpiler interface {
	IsAcceptableTranspilerLib(string) bool
	Setup(*Conf) error
	GetHealth() error
	Transpile(Job) error
	TearDown()
}

type Scheduler interface {
	Setup(*Conf) error
	Start() error
	HandleJob(Job)
	CancelJob(jobID string) error
	TearDown()
	// Queue Data Access
	GetCurrentQueueSize() int
	IsOverRefillThreshold() bool
}

type DBManager interface {
	Setup(DBChan, *Conf) error
	Insert(Job) error
	Get(string) (Job, error)
	Update(Job) error
	Delete(string) error
}

type SystemComponents struct {
	*dig.Container
	*Channels
}

func NewSystemComponents(con *dig.Container) *SystemComponents {
	return &SystemComponents{
		con,
		NewChannels(),
	}
}

func GetSystemComponents() *SystemComponents {
	return systemComponents
}

func (s *SystemComponents) Setup(conf *Conf) error {
	dbChan := s.DBChan

	zap.L().Debug("setting up transpiler")
	err := s.Invoke(
		func(t Transpiler) error {
			return t.Setup(conf)
		})
	if err != nil {
		return err
	}

	zap.L().Debug("setting up scheduler")
	err = s.Invoke(
		func(s Scheduler) error {
			return s.Setup(conf)
		})
	if err != nil {
		return err
	}

	zap.L().Debug("setting up DB")
	err = s.Invoke(
		func(d DBManager) error {
			return d.Setup(dbChan, conf)
		})
	if err != nil {
		return err
	}

	zap.L().Debug("setting up QPU")
	err = s.Invoke(func(q QPUManager) error {
		return q.Setup(conf)
	})
	if err != nil {
		return err
	}
	systemComponents = s
	return nil
}

func (s *SystemComponents) TearDown() {
	var err error
	err = multierr.Append(err, s.Invoke(
		func(t Transpiler) {
			t.TearDown()
		}))
	err = multierr.Append(err, s.Invoke(
		func(sc Scheduler) {
			sc.TearDown()
		}))
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to tear down system components/reason:%s", err))
	}
	s.Channels.Close()
}

func (s *SystemComponents) StartContainer() error {
	return s.Container.Invoke(
		func(s Scheduler) error {
			return s.Start()
		})
}

func (s *SystemComponents) GetDeviceInfo() *DeviceInfo {
	var deviceInfo *DeviceInfo
	s.Invoke(
		func(q QPUManager) {
			deviceInfo = q.GetDeviceInfo()
		})
	return deviceInfo
}

func (s *SystemComponents) GetCurrentQueueSize() int {
	var size int
	s.Invoke(
		func(sc Scheduler) {
			size = sc.GetCurrentQueueSize()
		})
	return size
}

func (s *SystemComponents) IsQueueOverRefillThreshold() bool {
	var over bool
	s.Invoke(
		func(sc Scheduler) {
			over = sc.IsOverRefillThreshold()
		})
	return over
}

func (s *SystemComponents) CancelJob(jobID string) error {
	return s.Invoke(
		func(sc Scheduler) error {
			return sc.CancelJob(jobID)
		})
}
