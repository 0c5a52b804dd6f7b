package core

import (
	"fmt"

	"go.uber.org/dig"
)

const MockMaxQubits int = 4
const MockMaxShots int = 10000
const validateErrorMessage string = "line 1:0 no viable alternative at input 'dummy_string'"

type UnimplementedJob struct {
	jobData    *JobData
	jobContext *JobContext
}

func (j *UnimplementedJob) New(jd *JobData, jc *JobContext) Job {
	return &UnimplementedJob{
		jobData:    jd,
		jobContext: jc,
	}
}

func (j *UnimplementedJob) PreProcess() {}

func (j *UnimplementedJob) Process() {}

func (j *UnimplementedJob) PostProcess() {}

func (j *UnimplementedJob) IsFinished() bool {
	return j.JobData().Status.IsFinal()
}

func (j *UnimplementedJob) JobData() *JobData {
	return j.jobData
}

func (j *UnimplementedJob) JobType() string {
	return j.jobData.JobType
}

func (j *UnimplementedJob) JobContext() *JobContext {
	return j.jobContext
}

func (j *UnimplementedJob) Clone() Job {
	return &UnimplementedJob{
		jobData:    j.jobData.Clone(),
		jobContext: j.jobContext,
	}
}

type UnimplementedQPU struct{}

func (u *UnimplementedQPU) Setup(*Conf) error {
	return nil
}

func (u *UnimplementedQPU) Send(Job) error {
	return nil
}

func (u *UnimplementedQPU) Validate(string) error {
	return nil
}

func (u *UnimplementedQPU) GetDeviceInfo() *DeviceInfo {
	return &DeviceInfo{
		MaxQubits:  MockMaxQubits,
		MaxShots:   MockMaxShots,
		DeviceName: "unimplementedQPU",
		DeviceInfoSpecJson: `
			{
			"device_id": "DummyDevice",
			"n_qubits": 4,
			"basis_gates": ["rz", "sx", "x", "cx"],
			"coupling_map": [[0, 1], [1, 2], [2, 3]],
			"qubits":
			[{
			"id": 0, "qubit_lifetime": {"t1": 36.9, "t2": 23.8}, "fidelity": 0.12, "meas_error": {"prob_meas0_prep1": 0.1903, "prob_meas1_prep0": 0.2789}
			},
			{
			"id": 1, "qubit_lifetime": {"t1": 35.85, "t2": 24.8}, "fidelity": 0.24, "meas_error": {"prob_meas0_prep1": 0.0947, "prob_meas1_prep0": 0.1556}
			},
			{
			"id": 2, "qubit_lifetime": {"t1": 35.85, "t2": 24.8}, "fidelity": 0.24, "meas_error": {"prob_meas0_prep1": 0.0947, "prob_meas1_prep0": 0.1556}
			},
			{
			"id": 3, "qubit_lifetime": {"t1": 35.85, "t2": 24.8}, "fidelity": 0.24, "meas_error": {"prob_meas0_prep1": 0.0947, "prob_meas1_prep0": 0.1556}
			}]
			}`,
	}
}

type validateErrorQPUForTest struct {
	UnimplementedQPU
}

func (validateErrorQPUForTest) Validate(string) error {
	return fmt.Errorf(validateErrorMessage)
}

type successQPUForTest struct {
	UnimplementedQPU
}

func (successQPUForTest) Send(j Job) error {
	j.JobData().Status = SUCCEEDED
	j.JobData().Result.Counts = Counts{"0x0": 1}
	return nil
}

type unimplementedDB struct{}

func (u *unimplementedDB) Setup(DBChan, *Conf) error { return nil }
func (u *unimplementedDB) Insert(Job) error          { return nil }
func (u *unimplementedDB) Get(JobID string) (Job, error) {
	return &NormalJob{}, nil
}
func (u *unimplementedDB) Update(Job) error    { return nil }
func (u *unimplementedDB) Delete(string) error { return nil }

type successDBForTest struct {
	unimplementedDB
}

func (successDBForTest) Get(jobID string) (Job, error) {
	return &NormalJob{
		jobData: &JobData{
			ID:     jobID,
			Status: RUNNING,
		},
	}, nil
}

type successTranspilerForTest struct{}

func (successTranspilerForTest) IsAcceptableTranspilerLib(lib string) bool {
	return lib == DefaultTranspilerLib
}

func (successTranspilerForTest) Setup(*Conf) error { return nil }
func (successTranspilerForTest) GetHealth() error  { return nil }
func (successTranspilerForTest) Transpile(j Job) error {
	j.JobData().TranspiledProgram = j.JobData().Program
	return nil
}
func (successTranspilerForTest) TearDown() {}

type unimplementedScheduler struct{}

func (u *unimplementedScheduler) Setup(*Conf) error           { return nil }
func (u *unimplementedScheduler) Start() error                { return nil }
func (u *unimplementedScheduler) HandleJob(_ Job)             {}
func (u *unimplementedScheduler) CancelJob(string) error      { return nil }
func (u *unimplementedScheduler) TearDown()                   {}
func (u *unimplementedScheduler) GetCurrentQueueSize() int    { return 0 }
func (u *unimplementedScheduler) IsOverRefillThreshold() bool { return false }

func newTestSystemComponents(qpu QPUManager, db DBManager, sc Scheduler, conf *Conf) *SystemComponents {
	c := dig.New()
	c.Provide(func() QPUManager { return qpu })
	c.Provide(func() Transpiler { return &successTranspilerForTest{} })
	c.Provide(func() DBManager { return db })
	c.Provide(func() Scheduler { return sc })
	s := NewSystemComponents(c)
	s.Setup(conf)
	return s
}

func SCWithUnimplementedContainer() *SystemComponents {
	return newTestSystemComponents(&successQPUForTest{}, &successDBForTest{}, &unimplementedScheduler{}, &Conf{})
}

func SCWithValidateErrorContainer() *SystemComponents {
	return newTestSystemComponents(&validateErrorQPUForTest{}, &successDBForTest{}, &unimplementedScheduler{}, &Conf{})
}

func SCWithDBContainer() *SystemComponents {
	return newTestSystemComponents(&successQPUForTest{}, &MemoryDB{}, &unimplementedScheduler{}, &Conf{})
}

func SCWithScheduler(sc Scheduler) *SystemComponents {
	return newTestSystemComponents(&successQPUForTest{}, &MemoryDB{}, sc, &Conf{QueueMaxSize: 1000, QueueRefillThreshold: 10})
}
