package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/oqtopus-team/bitorder/core"
	"github.com/oqtopus-team/bitorder/result"
	"github.com/oqtopus-team/bitorder/transpiler"
	"go.uber.org/zap"
)

const (
	SimulatorName      = "qasm_simulator"
	SimulatorMaxQubits = 24
	SimulatorMaxShots  = 1 << 20
)

// Simulator is the local state vector backend.
type Simulator struct {
	config *Configuration
	opts   ExecOptions
}

func NewSimulator(opts ...ExecOptions) *Simulator {
	s := &Simulator{
		config: &Configuration{
			BackendName:    SimulatorName,
			BackendVersion: core.Version,
			NQubits:        SimulatorMaxQubits,
			BasisGates:     []string{"h", "x", "sx", "rz", "cx", "swap"},
			Simulator:      true,
			Local:          true,
			MaxShots:       SimulatorMaxShots,
		},
	}
	if len(opts) > 0 {
		s.opts = opts[0]
	}
	return s
}

func (s *Simulator) Name() string {
	return s.config.BackendName
}

func (s *Simulator) Configuration() *Configuration {
	return s.config
}

func (s *Simulator) Status(context.Context) (*Status, error) {
	return &Status{
		BackendName:    s.config.BackendName,
		BackendVersion: s.config.BackendVersion,
		Operational:    true,
		StatusMsg:      "active",
	}, nil
}

func (s *Simulator) Run(_ context.Context, q *transpiler.Qobj) (Job, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.Config.Shots > s.config.MaxShots {
		return nil, fmt.Errorf("shots(%d) is over the limit(%d)", q.Config.Shots, s.config.MaxShots)
	}
	j := newLocalJob(s.config, q)
	go j.run(func(ctx context.Context) ([]result.Counts, error) {
		return Execute(ctx, q, s.opts)
	})
	return j, nil
}

// LocalJob runs in a goroutine of this process.
type LocalJob struct {
	id     string
	config *Configuration
	qobj   *transpiler.Qobj

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	status JobStatus
	result *result.Result
	err    error
}

func newLocalJob(config *Configuration, q *transpiler.Qobj) *LocalJob {
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalJob{
		id:     uuid.NewString(),
		config: config,
		qobj:   q,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		status: JobStatusQueued,
	}
}

func (j *LocalJob) setStatus(s JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = s
}

func (j *LocalJob) run(exec func(context.Context) ([]result.Counts, error)) {
	defer close(j.done)
	defer j.cancel()
	j.setStatus(JobStatusRunning)
	start := time.Now()
	counts, err := exec(j.ctx)
	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case errors.Is(err, context.Canceled):
		j.status = JobStatusCancelled
		j.err = errors.Wrap(ErrJobCancelled, j.id)
	case err != nil:
		j.status = JobStatusError
		j.err = err
		zap.L().Error(fmt.Sprintf("failed to run job(%s)/reason:%s", j.id, err))
	default:
		j.status = JobStatusDone
		j.result = BuildResult(j.config, j.id, j.qobj, counts)
		zap.L().Debug(fmt.Sprintf("finished job(%s) on %s in %s", j.id, j.config.BackendName, time.Since(start)))
	}
}

func (j *LocalJob) ID() string {
	return j.id
}

func (j *LocalJob) Status(context.Context) (JobStatus, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status, nil
}

func (j *LocalJob) Result(ctx context.Context, timeout time.Duration) (*result.Result, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-j.done:
	case <-expired:
		return nil, errors.Wrap(ErrJobTimeout, fmt.Sprintf("%s after %s", j.id, timeout))
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return nil, j.err
	}
	return j.result, nil
}

func (j *LocalJob) Cancel(context.Context) error {
	j.cancel()
	return nil
}

// BuildResult wraps per experiment raw counts into a result. Headers come
// from the qobj so the counts can be formatted by classical register.
func BuildResult(config *Configuration, jobID string, q *transpiler.Qobj, counts []result.Counts) *result.Result {
	r := &result.Result{
		BackendName:    config.BackendName,
		BackendVersion: config.BackendVersion,
		QobjID:         q.QobjID,
		JobID:          jobID,
		Success:        true,
		Status:         "COMPLETED",
	}
	for i, exp := range q.Experiments {
		er := result.ExperimentResult{
			Shots:   q.Config.Shots,
			Success: i < len(counts),
			Status:  "DONE",
			Header:  exp.Header,
		}
		if i < len(counts) {
			er.Data.Counts = counts[i]
		} else {
			er.Status = "ERROR"
			r.Success = false
		}
		r.Results = append(r.Results, er)
	}
	return r
}
