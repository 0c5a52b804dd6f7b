package gateway

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

type ServiceStatus int

const (
	ServiceStatusUnspecified ServiceStatus = iota
	ServiceStatusActive
	ServiceStatusInactive
	ServiceStatusMaintenance
)

func (s ServiceStatus) String() string {
	switch s {
	case ServiceStatusActive:
		return "active"
	case ServiceStatusInactive:
		return "inactive"
	case ServiceStatusMaintenance:
		return "maintenance"
	default:
		return "unspecified"
	}
}

type JobStatus int

const (
	JobStatusUnspecified JobStatus = iota
	JobStatusSuccess
	JobStatusFailure
	JobStatusInactive
)

type DeviceInfo struct {
	DeviceID     string
	ProviderID   string
	Type         string
	MaxQubits    int
	MaxShots     int
	DeviceInfo   string // device info spec JSON
	CalibratedAt string
}

type ServiceStatusResponse struct {
	Status      ServiceStatus
	PendingJobs int
}

type JobRequest struct {
	JobID   string
	Shots   int
	Program string // assembled qobj JSON
}

type JobResponse struct {
	Status JobStatus
	// Counts holds the raw hex counts of every experiment in program order.
	Counts  []map[string]int
	Message string
}

func (d *DeviceInfo) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"device_id":     d.DeviceID,
		"provider_id":   d.ProviderID,
		"type":          d.Type,
		"max_qubits":    d.MaxQubits,
		"max_shots":     d.MaxShots,
		"device_info":   d.DeviceInfo,
		"calibrated_at": d.CalibratedAt,
	})
}

func deviceInfoFromStruct(s *structpb.Struct) *DeviceInfo {
	f := s.GetFields()
	return &DeviceInfo{
		DeviceID:     f["device_id"].GetStringValue(),
		ProviderID:   f["provider_id"].GetStringValue(),
		Type:         f["type"].GetStringValue(),
		MaxQubits:    int(f["max_qubits"].GetNumberValue()),
		MaxShots:     int(f["max_shots"].GetNumberValue()),
		DeviceInfo:   f["device_info"].GetStringValue(),
		CalibratedAt: f["calibrated_at"].GetStringValue(),
	}
}

func (r *ServiceStatusResponse) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"service_status": int(r.Status),
		"pending_jobs":   r.PendingJobs,
	})
}

func serviceStatusFromStruct(s *structpb.Struct) *ServiceStatusResponse {
	f := s.GetFields()
	return &ServiceStatusResponse{
		Status:      ServiceStatus(f["service_status"].GetNumberValue()),
		PendingJobs: int(f["pending_jobs"].GetNumberValue()),
	}
}

func (r *JobRequest) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"job_id":  r.JobID,
		"shots":   r.Shots,
		"program": r.Program,
	})
}

func jobRequestFromStruct(s *structpb.Struct) (*JobRequest, error) {
	f := s.GetFields()
	r := &JobRequest{
		JobID:   f["job_id"].GetStringValue(),
		Shots:   int(f["shots"].GetNumberValue()),
		Program: f["program"].GetStringValue(),
	}
	if r.JobID == "" {
		return nil, fmt.Errorf("job_id is empty")
	}
	return r, nil
}

func (r *JobResponse) toStruct() (*structpb.Struct, error) {
	counts := make([]interface{}, 0, len(r.Counts))
	for _, c := range r.Counts {
		m := make(map[string]interface{}, len(c))
		for k, v := range c {
			m[k] = v
		}
		counts = append(counts, m)
	}
	return structpb.NewStruct(map[string]interface{}{
		"status":  int(r.Status),
		"counts":  counts,
		"message": r.Message,
	})
}

func jobResponseFromStruct(s *structpb.Struct) *JobResponse {
	f := s.GetFields()
	r := &JobResponse{
		Status:  JobStatus(f["status"].GetNumberValue()),
		Message: f["message"].GetStringValue(),
	}
	for _, v := range f["counts"].GetListValue().GetValues() {
		c := map[string]int{}
		for k, n := range v.GetStructValue().GetFields() {
			c[k] = int(n.GetNumberValue())
		}
		r.Counts = append(r.Counts, c)
	}
	return r
}
