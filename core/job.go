package core

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-openapi/strfmt"
	"go.uber.org/zap"
)

var ErrorJobIDConflict = errors.New("jobID is already used")
var jobManager *JobManager

const NORMAL_JOB = "normal"

type Job interface {
	// Job Control
	New(*JobData, *JobContext) Job
	PreProcess()
	Process()
	PostProcess()
	IsFinished() bool

	// Data Access
	JobData() *JobData // Get mutable JobData
	JobType() string
	JobContext() *JobContext
	Clone() Job
}

type JobContext struct {
	*Channels
}

func NewJobContext() (*JobContext, error) {
	s := GetSystemComponents()
	if s == nil {
		return nil, fmt.Errorf("system components is not initialized")
	}
	if s.Channels == nil {
		return nil, fmt.Errorf("channels is not initialized")
	}
	return &JobContext{
		Channels: s.Channels,
	}, nil
}

type JobParam struct {
	JobID       string
	Program     string
	Shots       int
	Transpiler  *TranspilerConfig
	JobType     string
	BackendName string
	// MitigationInfo is a JSON object such as {"readout":"tensored"}.
	MitigationInfo string
}

// NormalJob compiles its program if needed and runs it once on the QPU.
type NormalJob struct {
	jobData    *JobData
	jobContext *JobContext
}

func (j *NormalJob) New(jd *JobData, jc *JobContext) Job {
	return &NormalJob{
		jobData:    jd,
		jobContext: jc,
	}
}

func (j *NormalJob) PreProcess() {
	if err := j.preProcessImpl(); err != nil {
		zap.L().Error(fmt.Sprintf("failed to pre-process a job(%s)/reason:%s", j.JobData().ID, err))
		SetFailureWithError(j, err)
	}
}

func (j *NormalJob) preProcessImpl() error {
	jd := j.JobData()
	container := GetSystemComponents().Container

	if jd.NeedTranspiling() {
		err := container.Invoke(
			func(t Transpiler) error {
				return t.Transpile(j)
			})
		if err != nil {
			zap.L().Error(fmt.Sprintf("failed to transpile a job(%s)/reason:%s", jd.ID, err))
			return err
		}
	} else {
		zap.L().Debug(fmt.Sprintf("skip transpiling a job(%s)", jd.ID))
	}
	return container.Invoke(
		func(q QPUManager) error {
			return q.Validate(jd.ExecutableProgram())
		})
}

func (j *NormalJob) Process() {
	c := GetSystemComponents().Container
	err := c.Invoke(
		func(q QPUManager) error {
			return q.Send(j)
		})
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to send a job(%s) to QPU/reason:%s", j.JobData().ID, err))
		SetFailureWithError(j, err)
	}
	zap.L().Debug(fmt.Sprintf("finished to process a job(%s)/status:%s", j.JobData().ID, j.JobData().Status))
}

func (j *NormalJob) PostProcess() {}

func (j *NormalJob) IsFinished() bool {
	return j.JobData().Status.IsFinal()
}

func (j *NormalJob) JobData() *JobData {
	return j.jobData
}

func (j *NormalJob) JobType() string {
	return NORMAL_JOB
}

func (j *NormalJob) JobContext() *JobContext {
	return j.jobContext
}

func (j *NormalJob) Clone() Job {
	return &NormalJob{
		jobData:    j.jobData.Clone(),
		jobContext: j.jobContext,
	}
}

func GetJob(id string) (job Job) {
	c := GetSystemComponents().Container
	err := c.Invoke(
		func(d DBManager) error {
			var getErr error
			job, getErr = d.Get(id)
			return getErr
		})
	if err != nil {
		zap.L().Info(fmt.Sprintf("failed to find a job(%s)", id))
		return nil
	}
	return job
}

func DeleteJob(id string) bool {
	c := GetSystemComponents().Container
	err := c.Invoke(
		func(d DBManager) error {
			return d.Delete(id)
		})
	if err != nil {
		zap.L().Info(fmt.Sprintf("failed to delete a job(%s)", id))
		return false
	}
	return true
}

// JobManager creates jobs of the registered job types.
type JobManager struct {
	acceptableJobs []Job // empty jobs
}

func (j *JobManager) RegisterJob(jobs ...Job) error {
	for _, job := range jobs {
		for _, t := range j.acceptableJobs {
			if reflect.TypeOf(t) == reflect.TypeOf(job) {
				return fmt.Errorf("job:%s is already registered", job.JobType())
			}
		}
		zap.L().Debug(fmt.Sprintf("registering job type %s", job.JobType()))
		j.acceptableJobs = append(j.acceptableJobs, job)
	}
	return nil
}

func (j *JobManager) AcceptableJobTypes() []string {
	types := []string{}
	for _, job := range j.acceptableJobs {
		types = append(types, job.JobType())
	}
	return types
}

func (j *JobManager) NewJobWithValidation(param *JobParam, jc *JobContext) (Job, error) {
	if param.JobType == "" {
		param.JobType = NORMAL_JOB
	}
	if err := validateJobParam(param); err != nil {
		zap.L().Info(fmt.Sprintf("failed to validate job param/reason:%s", err))
		return nil, err
	}
	return j.NewJob(param, jc)
}

func (j *JobManager) NewJob(param *JobParam, jc *JobContext) (Job, error) {
	jd := NewJobData()
	jd.ID = param.JobID
	jd.Program = param.Program
	jd.Shots = param.Shots
	jd.Transpiler = param.Transpiler
	jd.JobType = param.JobType
	jd.BackendName = param.BackendName
	jd.MitigationInfo = param.MitigationInfo
	jd.Status = READY
	return j.NewJobFromJobData(jd, jc)
}

func (j *JobManager) NewJobFromJobData(jd *JobData, jc *JobContext) (Job, error) {
	if jd.JobType == "" {
		jd.JobType = NORMAL_JOB
	}
	zap.L().Debug(fmt.Sprintf("creating a job from job data/jobID:%s/jobType:%s", jd.ID, jd.JobType))
	for _, j := range j.acceptableJobs {
		if j.JobType() == jd.JobType {
			t := reflect.TypeOf(j)
			newInstance := reflect.New(t).Elem().Interface()
			return newInstance.(Job).New(jd, jc), nil
		}
	}
	return nil, fmt.Errorf("job type %s is not registered", jd.JobType)
}

func validateJobParam(p *JobParam) error {
	if p.JobID == "" {
		return fmt.Errorf("jobID is empty")
	}
	if p.Program == "" {
		return fmt.Errorf("program is empty/jobID:%s", p.JobID)
	}
	if p.Shots <= 0 {
		msg := fmt.Sprintf("shots(%d) must be greater than 0", p.Shots)
		zap.L().Info(msg + fmt.Sprintf("/jobID:%s", p.JobID))
		return errors.New(msg)
	}
	maxShots := GetSystemComponents().GetDeviceInfo().MaxShots
	if p.Shots > maxShots {
		msg := fmt.Sprintf("shots(%d) is over the limit(%d)", p.Shots, maxShots)
		zap.L().Info(msg + fmt.Sprintf("/jobID:%s", p.JobID))
		return errors.New(msg)
	}
	if p.Transpiler == nil || p.Transpiler.TranspilerLib == nil {
		return nil
	}
	container := GetSystemComponents().Container
	err := container.Invoke(
		func(t Transpiler) error {
			if t.IsAcceptableTranspilerLib(*p.Transpiler.TranspilerLib) {
				return nil
			}
			return fmt.Errorf("transpiler lib %s is not acceptable", *p.Transpiler.TranspilerLib)
		})
	if err != nil {
		zap.L().Info(fmt.Sprintf("failed to validate transpiler lib/jobID:%s/reason:%s", p.JobID, err))
		return err
	}
	return nil
}

func NewJobManager(jobs ...Job) (*JobManager, error) {
	jm := &JobManager{}
	if err := jm.RegisterJob(jobs...); err != nil {
		return nil, err
	}
	jobManager = jm
	return jm, nil
}

func GetJobManager() *JobManager {
	return jobManager
}

func SetFailureWithError(j Job, err error) (msg string) {
	return SetFailureWithErrorToJobData(j.JobData(), err)
}

func SetFailureWithErrorToJobData(jd *JobData, err error) (msg string) {
	msg = err.Error()
	jd.Result.Message = msg
	jd.Status = FAILED
	jd.Ended = strfmt.DateTime(time.Now())
	return msg
}
