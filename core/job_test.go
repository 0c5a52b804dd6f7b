//go:build unit
// +build unit

package core

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oqtopus-team/bitorder/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobManager(t *testing.T) {
	s := SCWithUnimplementedContainer()
	defer s.TearDown()
	jm, err := NewJobManager(
		&NormalJob{},
	)
	assert.Nil(t, err)
	assert.NotNil(t, jm)
	assert.Equal(t, []string{"normal"}, jm.AcceptableJobTypes())

	err = jm.RegisterJob(&NormalJob{})
	assert.EqualError(t, err, "job:normal is already registered")
	assert.Equal(t, []string{"normal"}, jm.AcceptableJobTypes())

	jc, err := NewJobContext()
	assert.Nil(t, err)

	job, err := jm.NewJobFromJobData(&JobData{ID: "test"}, jc)
	assert.Nil(t, err)
	assert.Equal(t, "test", job.JobData().ID)

	_, err = jm.NewJobFromJobData(&JobData{ID: "test", JobType: "estimation"}, jc)
	assert.EqualError(t, err, "job type estimation is not registered")
}

func TestNewJob(t *testing.T) {
	s := SCWithDBContainer()
	defer s.TearDown()

	testQASM, err := common.GetAsset("bell_pair.qasm")
	require.Nil(t, err)

	jm, err := NewJobManager(&NormalJob{})
	require.Nil(t, err)

	unknownLib := "qiskit"
	tests := []struct {
		name        string
		param       *JobParam
		wantError   string
		wantJobData *JobData
	}{
		{
			name: "0 shots",
			param: &JobParam{
				JobID:      uuid.NewString(),
				Program:    testQASM,
				Shots:      0,
				Transpiler: DEFAULT_TRANSPILER_CONFIG(),
			},
			wantError: "shots(0) must be greater than 0",
		},
		{
			name: "negative shots",
			param: &JobParam{
				JobID:      uuid.NewString(),
				Program:    testQASM,
				Shots:      -1,
				Transpiler: DEFAULT_TRANSPILER_CONFIG(),
			},
			wantError: "shots(-1) must be greater than 0",
		},
		{
			name: "over max shots",
			param: &JobParam{
				JobID:      uuid.NewString(),
				Program:    testQASM,
				Shots:      MockMaxShots + 1,
				Transpiler: DEFAULT_TRANSPILER_CONFIG(),
			},
			wantError: fmt.Sprintf("shots(%d) is over the limit(%d)", MockMaxShots+1, MockMaxShots),
		},
		{
			name: "empty job id",
			param: &JobParam{
				Program: testQASM,
				Shots:   1,
			},
			wantError: "jobID is empty",
		},
		{
			name: "unknown transpiler lib",
			param: &JobParam{
				JobID:      "job-1",
				Program:    testQASM,
				Shots:      1,
				Transpiler: &TranspilerConfig{TranspilerLib: &unknownLib},
			},
			wantError: "transpiler lib qiskit is not acceptable",
		},
		{
			name: "normal with max shots",
			param: &JobParam{
				JobID:       uuid.NewString(),
				Program:     testQASM,
				Shots:       MockMaxShots,
				Transpiler:  DEFAULT_TRANSPILER_CONFIG(),
				BackendName: "fake_device",
			},
			wantJobData: &JobData{
				JobType:     NORMAL_JOB,
				Status:      READY,
				Transpiler:  DEFAULT_TRANSPILER_CONFIG(),
				Program:     testQASM,
				Shots:       MockMaxShots,
				BackendName: "fake_device",
			},
		},
		{
			name: "normal without transpiler",
			param: &JobParam{
				JobID:   uuid.NewString(),
				Program: testQASM,
				Shots:   1,
			},
			wantJobData: &JobData{
				JobType: NORMAL_JOB,
				Status:  READY,
				Program: testQASM,
				Shots:   1,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jc, err := NewJobContext()
			require.Nil(t, err)
			job, err := jm.NewJobWithValidation(tt.param, jc)
			if tt.wantError != "" {
				assert.EqualError(t, err, tt.wantError)
				return
			}
			require.Nil(t, err)
			tt.wantJobData.ID = tt.param.JobID
			tt.wantJobData.Result = NewResult()
			tt.wantJobData.Created = job.JobData().Created // ignore time
			assert.Equal(t, tt.wantJobData, job.JobData())
		})
	}
}

func TestNormalJobLifecycle(t *testing.T) {
	s := SCWithDBContainer()
	defer s.TearDown()
	jm, err := NewJobManager(&NormalJob{})
	require.Nil(t, err)
	jc, err := NewJobContext()
	require.Nil(t, err)

	job, err := jm.NewJob(&JobParam{
		JobID:      "lifecycle",
		Program:    "OPENQASM 3;",
		Shots:      10,
		Transpiler: DEFAULT_TRANSPILER_CONFIG(),
	}, jc)
	require.Nil(t, err)

	job.PreProcess()
	assert.False(t, job.IsFinished())
	assert.Equal(t, "OPENQASM 3;", job.JobData().TranspiledProgram)

	job.Process()
	assert.True(t, job.IsFinished())
	assert.Equal(t, SUCCEEDED, job.JobData().Status)
	assert.Equal(t, Counts{"0x0": 1}, job.JobData().Result.Counts)
}

func TestNormalJobFailsOnValidation(t *testing.T) {
	s := SCWithValidateErrorContainer()
	defer s.TearDown()
	jm, err := NewJobManager(&NormalJob{})
	require.Nil(t, err)
	jc, err := NewJobContext()
	require.Nil(t, err)

	job, err := jm.NewJob(&JobParam{JobID: "invalid", Program: "dummy_string", Shots: 1}, jc)
	require.Nil(t, err)
	job.PreProcess()
	assert.True(t, job.IsFinished())
	assert.Equal(t, FAILED, job.JobData().Status)
	assert.Equal(t, validateErrorMessage, job.JobData().Result.Message)
}

func TestCloneNormalJob(t *testing.T) {
	s := SCWithUnimplementedContainer()
	defer s.TearDown()
	jm, err := NewJobManager(&NormalJob{})
	assert.Nil(t, err)

	jd := &JobData{
		ID:      "test",
		Program: "test_program",
		Shots:   1000,
		Result:  NewResult(),
	}
	jc, err := NewJobContext()
	assert.Nil(t, err)
	org, err := jm.NewJobFromJobData(jd, jc)
	assert.Nil(t, err)
	cloned := org.Clone()
	assert.False(t, cloned == org)
	assert.False(t, cloned.JobData() == org.JobData(),
		"cloned.JobData()=%p, org.JobData()=%p", cloned.JobData(), org.JobData())
	assert.Equal(t, cloned.JobData().ID, org.JobData().ID)
	assert.Equal(t, cloned.JobData().Program, org.JobData().Program)
	assert.Equal(t, cloned.JobData().Shots, org.JobData().Shots)

	org.JobData().ID = "test2"
	assert.NotEqual(t, cloned.JobData().ID, org.JobData().ID)

	org.JobData().Status = RUNNING
	cloned.JobData().Status = SUCCEEDED
	assert.NotEqual(t, cloned.JobData().Status, org.JobData().Status)
}

func TestSetFailureWithError(t *testing.T) {
	jd := NewJobData()
	msg := SetFailureWithErrorToJobData(jd, fmt.Errorf("boom"))
	assert.Equal(t, "boom", msg)
	assert.Equal(t, FAILED, jd.Status)
	assert.Equal(t, "boom", jd.Result.Message)
	assert.False(t, time.Time(jd.Ended).IsZero())
}
