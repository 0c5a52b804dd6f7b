// Package device is a fake remote device. It serves the provider HTTP API
// and the gateway gRPC service and runs every job through the engine:
// the scheduler queue, the memory DB and a simulator QPU shaped like the
// device setting.
package device

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/oqtopus-team/bitorder/backend"
	"github.com/oqtopus-team/bitorder/core"
	"github.com/oqtopus-team/bitorder/qpu"
	"github.com/oqtopus-team/bitorder/sampling"
	"github.com/oqtopus-team/bitorder/scheduler"
	"github.com/oqtopus-team/bitorder/transpiler"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/oqtopus-team/bitorder/device"

var (
	ErrBadRequest     = errors.New("bad request")
	ErrUnknownBackend = errors.New("unknown backend")
	ErrNotCancellable = errors.New("job is not waiting in the queue")
)

// Setting is the [com.device] table.
type Setting struct {
	// APIToken is the only token accepted by login. Empty accepts any token.
	APIToken       string `toml:"api_token"`
	BackendVersion string `toml:"backend_version"`
	// CallJobTimeoutSec bounds a synchronous gateway job.
	CallJobTimeoutSec int `toml:"call_job_timeout_sec"`
	PollIntervalMs    int `toml:"poll_interval_ms"`
}

func NewSetting() Setting {
	return Setting{
		BackendVersion:    "1.0.0",
		CallJobTimeoutSec: 600,
		PollIntervalMs:    20,
	}
}

// Device owns the engine components of the fake device.
type Device struct {
	setting Setting

	sc    *core.SystemComponents
	jm    *core.JobManager
	qpu   *qpu.SimulatorQPU
	sched *scheduler.NormalScheduler
	db    *core.MemoryDB

	mu     sync.RWMutex
	tokens map[string]string

	jobCounter metric.Int64Counter
	closeOnce  sync.Once
}

// New sets up and starts the engine. The device setting is read from
// conf.DeviceSettingPath and [com.device] from the loaded setting file.
func New(conf *core.Conf) (*Device, error) {
	s := NewSetting()
	if _, err := core.DecodeComponentSetting("device", &s); err != nil {
		return nil, err
	}
	d := &Device{
		setting: s,
		qpu:     &qpu.SimulatorQPU{},
		sched:   &scheduler.NormalScheduler{},
		db:      &core.MemoryDB{},
		tokens:  make(map[string]string),
	}
	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"bitorder.device.jobs",
		metric.WithDescription("jobs submitted to the device"))
	if err != nil {
		return nil, err
	}
	d.jobCounter = counter

	container, err := d.provideDIContainer()
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to provide DI container/reason:%s", err))
		return nil, err
	}
	d.sc = core.NewSystemComponents(container)
	if err := d.sc.Setup(conf); err != nil {
		zap.L().Error(fmt.Sprintf("failed to set up system components/reason:%s", err))
		return nil, err
	}
	jm, err := core.NewJobManager(&core.NormalJob{}, &sampling.SamplingJob{})
	if err != nil {
		return nil, err
	}
	d.jm = jm
	if err := d.sc.StartContainer(); err != nil {
		d.sc.TearDown()
		return nil, err
	}
	core.SetInfo(conf)
	di := d.qpu.GetDeviceInfo()
	zap.L().Info(fmt.Sprintf("device %s is ready/qubits:%d/max shots:%d", di.DeviceName, di.MaxQubits, di.MaxShots))
	return d, nil
}

func (d *Device) provideDIContainer() (*dig.Container, error) {
	c := dig.New()
	if err := c.Provide(func() core.QPUManager { return d.qpu }); err != nil {
		return nil, err
	}
	if err := c.Provide(func() core.Transpiler { return &transpiler.QobjTranspiler{} }); err != nil {
		return nil, err
	}
	if err := c.Provide(func() core.Scheduler { return d.sched }); err != nil {
		return nil, err
	}
	if err := c.Provide(func() core.DBManager { return d.db }); err != nil {
		return nil, err
	}
	return c, nil
}

// Close stops the scheduler. Jobs still in flight are dropped.
func (d *Device) Close() {
	d.closeOnce.Do(func() {
		d.sc.TearDown()
		zap.L().Info("device is closed")
	})
}

// QPU lets an operator change the device status.
func (d *Device) QPU() *qpu.SimulatorQPU {
	return d.qpu
}

func (d *Device) version() string {
	if d.setting.BackendVersion == "" {
		return core.Version
	}
	return d.setting.BackendVersion
}

// BackendName is the name clients select the device by. Remote clients
// lower the name before comparing it.
func (d *Device) BackendName() string {
	return strings.ToLower(d.qpu.GetDeviceInfo().DeviceName)
}

func (d *Device) spec() (*core.DeviceInfo, *core.DeviceInfoSpec, error) {
	di := d.qpu.GetDeviceInfo()
	if di.DeviceInfoSpecJson == "" {
		return di, nil, fmt.Errorf("device info is not available")
	}
	spec, err := core.ParseDeviceInfoSpec(di.DeviceInfoSpecJson)
	if err != nil {
		return di, nil, err
	}
	return di, spec, nil
}

// Configuration is the backend document published by the API.
func (d *Device) Configuration() (*backend.Configuration, error) {
	di, spec, err := d.spec()
	if err != nil {
		return nil, err
	}
	return &backend.Configuration{
		BackendName:    d.BackendName(),
		BackendVersion: d.version(),
		NQubits:        spec.NQubits,
		BasisGates:     spec.BasisGates,
		CouplingMap:    spec.CouplingMap,
		MaxShots:       di.MaxShots,
	}, nil
}

func (d *Device) Properties() (*backend.Properties, error) {
	di, spec, err := d.spec()
	if err != nil {
		return nil, err
	}
	p := backend.PropertiesFromDeviceInfoSpec(spec, d.version())
	p.BackendName = d.BackendName()
	if t, err := time.Parse(time.RFC3339Nano, di.CalibratedAt); err == nil {
		p.LastUpdateDate = t
		for _, q := range p.Qubits {
			for i := range q {
				q[i].Date = t
			}
		}
	}
	return p, nil
}

// QueueLength is the number of jobs waiting for the QPU.
func (d *Device) QueueLength() int {
	return d.sc.GetCurrentQueueSize()
}

func (d *Device) login(apiToken string) (string, error) {
	if apiToken == "" || (d.setting.APIToken != "" && apiToken != d.setting.APIToken) {
		return "", fmt.Errorf("login failed")
	}
	accessToken := uuid.NewString()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens[accessToken] = "user-" + apiToken[:min(len(apiToken), 4)]
	return accessToken, nil
}

func (d *Device) authorized(accessToken string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.tokens[accessToken]
	return ok
}

type submission struct {
	jobID       string
	program     string
	shots       int
	backendName string
	mitigation  string
}

// submit validates and queues a job. The DB keeps snapshots of the job so
// readers never see the job the scheduler is working on.
func (d *Device) submit(ctx context.Context, s submission) (*core.JobData, error) {
	if s.backendName != "" && strings.ToLower(s.backendName) != d.BackendName() {
		return nil, errors.Wrap(ErrUnknownBackend, s.backendName)
	}
	if s.jobID == "" {
		s.jobID = uuid.NewString()
	}
	jobType := core.NORMAL_JOB
	if s.mitigation != "" {
		jobType = sampling.SAMPLING_JOB
	}
	param := &core.JobParam{
		JobID:          s.jobID,
		Program:        s.program,
		Shots:          s.shots,
		Transpiler:     core.DEFAULT_TRANSPILER_CONFIG(),
		JobType:        jobType,
		BackendName:    d.BackendName(),
		MitigationInfo: s.mitigation,
	}
	jc, err := core.NewJobContext()
	if err != nil {
		return nil, err
	}
	job, err := d.jm.NewJobWithValidation(param, jc)
	if err != nil {
		return nil, errors.Wrap(ErrBadRequest, err.Error())
	}
	snapshot := job.Clone()
	if err := d.db.Insert(snapshot); err != nil {
		return nil, errors.Wrap(ErrBadRequest, err.Error())
	}
	d.jobCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("job_type", jobType)))
	d.sc.Invoke(func(sc core.Scheduler) {
		sc.HandleJob(job)
	})
	zap.L().Info(fmt.Sprintf("accepted job(%s)/type:%s/shots:%d", s.jobID, jobType, s.shots))
	return snapshot.JobData(), nil
}

// Job returns the latest snapshot of a job.
func (d *Device) Job(jobID string) (*core.JobData, error) {
	j, err := d.db.Get(jobID)
	if err != nil {
		return nil, err
	}
	return j.JobData(), nil
}

// Jobs returns snapshots of every job, newest first.
func (d *Device) Jobs() []*core.JobData {
	jobs := d.db.List()
	out := make([]*core.JobData, len(jobs))
	for i, j := range jobs {
		out[i] = j.JobData()
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := time.Time(out[i].Created), time.Time(out[j].Created)
		if ti.Equal(tj) {
			return out[i].ID > out[j].ID
		}
		return ti.After(tj)
	})
	return out
}

// Cancel removes a queued job. Running and finished jobs cannot be
// cancelled.
func (d *Device) Cancel(jobID string) error {
	jd, err := d.Job(jobID)
	if err != nil {
		return err
	}
	if jd.Status.IsFinal() {
		return errors.Wrap(ErrNotCancellable, jobID)
	}
	if err := d.sched.CancelJob(jobID); err != nil {
		if errors.Is(err, scheduler.ErrNotInQueue) {
			return errors.Wrap(ErrNotCancellable, jobID)
		}
		return err
	}
	return nil
}

// wait polls the DB until the job is final.
func (d *Device) wait(ctx context.Context, jobID string) (*core.JobData, error) {
	interval := time.Duration(d.setting.PollIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		jd, err := d.Job(jobID)
		if err != nil {
			return nil, err
		}
		if jd.Status.IsFinal() {
			return jd, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// rawCounts lists the counts of every experiment in program order.
func rawCounts(jd *core.JobData) []map[string]int {
	out := make([]map[string]int, len(jd.Result.DividedResult))
	for i := range out {
		c := map[string]int{}
		for k, v := range jd.Result.DividedResult[uint32(i)] {
			c[k] = int(v)
		}
		out[i] = c
	}
	return out
}
