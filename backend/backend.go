// Package backend defines execution targets and the local simulator.
package backend

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/oqtopus-team/bitorder/core"
	"github.com/oqtopus-team/bitorder/result"
	"github.com/oqtopus-team/bitorder/transpiler"
)

//go:generate mockgen -source=backend.go -destination=mock_backend.go -package=backend

var (
	ErrBackendNotFound = errors.New("backend not found")
	ErrJobTimeout      = errors.New("job did not finish in time")
	ErrJobCancelled    = errors.New("job was cancelled")
)

type JobStatus string

const (
	JobStatusInitializing JobStatus = "INITIALIZING"
	JobStatusQueued       JobStatus = "QUEUED"
	JobStatusRunning      JobStatus = "RUNNING"
	JobStatusDone         JobStatus = "DONE"
	JobStatusError        JobStatus = "ERROR"
	JobStatusCancelled    JobStatus = "CANCELLED"
)

func (s JobStatus) IsFinal() bool {
	return s == JobStatusDone || s == JobStatusError || s == JobStatusCancelled
}

type Backend interface {
	Name() string
	Configuration() *Configuration
	Status(ctx context.Context) (*Status, error)
	Run(ctx context.Context, qobj *transpiler.Qobj) (Job, error)
}

type Job interface {
	ID() string
	Status(ctx context.Context) (JobStatus, error)
	// Result blocks until the job is final or timeout elapses.
	Result(ctx context.Context, timeout time.Duration) (*result.Result, error)
	Cancel(ctx context.Context) error
}

type Configuration struct {
	BackendName    string   `json:"backend_name"`
	BackendVersion string   `json:"backend_version"`
	NQubits        int      `json:"n_qubits"`
	BasisGates     []string `json:"basis_gates"`
	CouplingMap    [][2]int `json:"coupling_map"`
	Simulator      bool     `json:"simulator"`
	Local          bool     `json:"local"`
	MaxShots       int      `json:"max_shots"`
}

func (c *Configuration) Target() transpiler.Target {
	return transpiler.Target{
		Name:        c.BackendName,
		NumQubits:   c.NQubits,
		BasisGates:  c.BasisGates,
		CouplingMap: c.CouplingMap,
		Simulator:   c.Simulator,
	}
}

type Status struct {
	BackendName    string `json:"backend_name"`
	BackendVersion string `json:"backend_version"`
	Operational    bool   `json:"operational"`
	PendingJobs    int    `json:"pending_jobs"`
	StatusMsg      string `json:"status_msg"`
}

// Nduv is one calibrated property: name, date, unit, value.
type Nduv struct {
	Date  time.Time `json:"date"`
	Name  string    `json:"name"`
	Unit  string    `json:"unit"`
	Value float64   `json:"value"`
}

type Properties struct {
	BackendName    string    `json:"backend_name"`
	BackendVersion string    `json:"backend_version"`
	LastUpdateDate time.Time `json:"last_update_date"`
	Qubits         [][]Nduv  `json:"qubits"`
	General        []Nduv    `json:"general"`
}

// ReadoutError holds the assignment error probabilities of one qubit.
type ReadoutError struct {
	ProbMeas1Prep0 float64
	ProbMeas0Prep1 float64
}

// ReadoutErrors lists the readout errors by physical qubit. When only a
// symmetric readout_error is published it is used for both directions.
func (p *Properties) ReadoutErrors() []ReadoutError {
	out := make([]ReadoutError, len(p.Qubits))
	for i, q := range p.Qubits {
		symmetric := -1.0
		for _, n := range q {
			switch n.Name {
			case "prob_meas1_prep0":
				out[i].ProbMeas1Prep0 = n.Value
			case "prob_meas0_prep1":
				out[i].ProbMeas0Prep1 = n.Value
			case "readout_error":
				symmetric = n.Value
			}
		}
		if symmetric >= 0 && out[i].ProbMeas1Prep0 == 0 && out[i].ProbMeas0Prep1 == 0 {
			out[i] = ReadoutError{ProbMeas1Prep0: symmetric, ProbMeas0Prep1: symmetric}
		}
	}
	return out
}

// PropertiesBackend is implemented by backends that publish calibration data.
type PropertiesBackend interface {
	Backend
	Properties(ctx context.Context) (*Properties, error)
}

// PropertiesFromDeviceInfoSpec converts the per qubit measurement errors of
// a device info spec. Qubits are placed by id.
func PropertiesFromDeviceInfoSpec(spec *core.DeviceInfoSpec, version string) *Properties {
	n := spec.NQubits
	for _, q := range spec.Qubits {
		if q.ID >= n {
			n = q.ID + 1
		}
	}
	p := &Properties{
		BackendName:    spec.DeviceID,
		BackendVersion: version,
		Qubits:         make([][]Nduv, n),
	}
	for _, q := range spec.Qubits {
		p.Qubits[q.ID] = []Nduv{
			{Name: "prob_meas1_prep0", Value: q.MeasError.ProbMeas1Prep0},
			{Name: "prob_meas0_prep1", Value: q.MeasError.ProbMeas0Prep1},
			{Name: "readout_error", Value: q.MeasError.ReadoutAssignmentError},
			{Name: "T1", Unit: "us", Value: q.QubitLife.T1},
			{Name: "T2", Unit: "us", Value: q.QubitLife.T2},
		}
	}
	return p
}
