package sampling

import (
	"fmt"

	"github.com/oqtopus-team/bitorder/core"
	"github.com/oqtopus-team/bitorder/mitig"
	"go.uber.org/zap"
)

const SAMPLING_JOB = "sampling"

// SamplingJob runs like a normal job and corrects the readout errors of its
// counts afterwards when its mitigation info asks for it.
type SamplingJob struct {
	core.Job
	mitigationInfo *mitig.MitigationInfo
}

func (j *SamplingJob) New(jd *core.JobData, jc *core.JobContext) core.Job {
	return &SamplingJob{
		Job:            (&core.NormalJob{}).New(jd, jc),
		mitigationInfo: mitig.NewMitigationInfo(jd.ID, jd.MitigationInfo),
	}
}

func (j *SamplingJob) PostProcess() {
	jd := j.JobData()
	if !j.mitigationInfo.NeedToBeMitigated || jd.Status != core.SUCCEEDED {
		zap.L().Debug(fmt.Sprintf("skip readout mitigation of job(%s)/status:%s", jd.ID, jd.Status))
		return
	}
	defer func() { j.mitigationInfo.Mitigated = true }()
	di := core.GetSystemComponents().GetDeviceInfo()
	if di == nil {
		core.SetFailureWithError(j, fmt.Errorf("device info is not available"))
		return
	}
	spec, err := core.ParseDeviceInfoSpec(di.DeviceInfoSpecJson)
	if err != nil {
		core.SetFailureWithError(j, err)
		return
	}
	if err := mitig.MitigateJobData(jd, spec); err != nil {
		zap.L().Error(fmt.Sprintf("failed to mitigate a job(%s)/reason:%s", jd.ID, err))
		core.SetFailureWithError(j, err)
	}
}

func (j *SamplingJob) IsFinished() bool {
	if j.mitigationInfo.NeedToBeMitigated && j.JobData().Status == core.SUCCEEDED {
		return j.mitigationInfo.Mitigated
	}
	return j.Job.IsFinished()
}

func (j *SamplingJob) JobType() string {
	return SAMPLING_JOB
}

func (j *SamplingJob) Clone() core.Job {
	m := *j.mitigationInfo
	return &SamplingJob{
		Job:            j.Job.Clone(),
		mitigationInfo: &m,
	}
}
