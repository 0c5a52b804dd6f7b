package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-openapi/strfmt"
	jsoniter "github.com/json-iterator/go"
	"github.com/mohae/deepcopy"
	"github.com/tidwall/pretty"
	"go.uber.org/zap"
)

type Status int // Status of a job inside the device. The remote API exposes its own names.
type Stats map[string]int
type PhysicalVirtualMapping map[uint32]uint32
type VirtualPhysicalMappingMap map[uint32]uint32
type Counts map[string]uint32

// DividedResult holds the raw counts of every experiment of a program.
// key1: experiment index, key2: hex memory word, value: count
type DividedResult map[uint32]Counts

var jsonIter = jsoniter.ConfigCompatibleWithStandardLibrary

func (c Counts) String() string {
	st, err := jsonIter.Marshal(c)
	if err != nil {
		zap.L().Error("failed to marshal core.Counts")
		return ""
	}
	return string(st)
}

func (c Counts) Shots() int {
	total := 0
	for _, v := range c {
		total += int(v)
	}
	return total
}

func ToStatus(s string) (Status, error) {
	switch s {
	case "submitted":
		return SUBMITTED, nil
	case "ready":
		return READY, nil
	case "running":
		return RUNNING, nil
	case "succeeded":
		return SUCCEEDED, nil
	case "failed":
		return FAILED, nil
	case "cancelled":
		return CANCELLED, nil
	default:
		return 0, fmt.Errorf("unknown status: %s", s)
	}
}

func (p PhysicalVirtualMapping) String() string {
	st, err := jsonIter.Marshal(p)
	if err != nil {
		zap.L().Error("failed to marshal core.PhysicalVirtualMapping")
		return ""
	}
	return string(st)
}

// ParseVirtualPhysicalMapping reads a JSON object whose keys are virtual
// qubit indices written as strings.
func ParseVirtualPhysicalMapping(raw []byte) (VirtualPhysicalMappingMap, error) {
	// JSON object keys are always strings, so decode into map[string]uint32 first.
	var temp map[string]uint32
	if err := jsonIter.Unmarshal(raw, &temp); err != nil {
		zap.L().Error(fmt.Sprintf("failed to unmarshal virtual physical mapping:%s/reason:%s", raw, err))
		return nil, err
	}
	result := make(VirtualPhysicalMappingMap, len(temp))
	for k, v := range temp {
		key, err := strconv.ParseUint(k, 10, 32)
		if err != nil {
			zap.L().Error(fmt.Sprintf("failed to convert key:%s/reason:%s", k, err))
			return nil, err
		}
		result[uint32(key)] = v
	}
	return result, nil
}

func (v VirtualPhysicalMappingMap) Inverse() PhysicalVirtualMapping {
	p := make(PhysicalVirtualMapping, len(v))
	for virtual, physical := range v {
		p[physical] = virtual
	}
	return p
}

const (
	SUBMITTED Status = iota // Accepted by the API but not validated yet.
	READY                   // Validated and waiting for the scheduler.
	RUNNING                 // Being executed on the simulated QPU.
	SUCCEEDED               // Finished successfully.
	FAILED                  // Finished with failure.
	CANCELLED               // Finished with cancellation.
)

func (s Status) String() string {
	switch s {
	case SUBMITTED:
		return "submitted"
	case READY:
		return "ready"
	case RUNNING:
		return "running"
	case SUCCEEDED:
		return "succeeded"
	case FAILED:
		return "failed"
	case CANCELLED:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s Status) IsFinal() bool {
	return s == SUCCEEDED || s == FAILED || s == CANCELLED
}

type Result struct {
	Counts         Counts          `json:"counts"`
	DividedResult  DividedResult   `json:"divided_result"`
	TranspilerInfo *TranspilerInfo `json:"transpiler_info"`
	Message        string          `json:"message"`
	ExecutionTime  time.Duration   `json:"execution_time"`
}

type TranspilerInfo struct {
	Stats                     Stats                     `json:"stats"`
	PhysicalVirtualMapping    PhysicalVirtualMapping    `json:"physical_virtual_mapping"`
	VirtualPhysicalMappingMap VirtualPhysicalMappingMap `json:"virtual_physical_mapping"`
}

type JobData struct {
	ID                string
	Status            Status
	Shots             int
	Transpiler        *TranspilerConfig
	Program           string // OpenQASM 3 source or a qobj document
	TranspiledProgram string // qobj document ready to be executed
	Result            *Result
	JobType           string
	BackendName       string
	MitigationInfo    string
	Created           strfmt.DateTime
	Ended             strfmt.DateTime
}

func (jd *JobData) Clone() *JobData {
	c := deepcopy.Copy(jd).(*JobData)
	c.Created = *jd.Created.DeepCopy()
	c.Ended = *jd.Ended.DeepCopy()
	return c
}

func (jd *JobData) NeedTranspiling() bool {
	return jd.Transpiler != nil && jd.Transpiler.TranspilerLib != nil
}

// ExecutableProgram is the program the QPU has to run.
func (jd *JobData) ExecutableProgram() string {
	if jd.TranspiledProgram == "" {
		return jd.Program
	}
	return jd.TranspiledProgram
}

func NewResult() *Result {
	return &Result{
		Counts: make(Counts),
		TranspilerInfo: &TranspilerInfo{
			Stats:                     make(Stats),
			PhysicalVirtualMapping:    make(PhysicalVirtualMapping),
			VirtualPhysicalMappingMap: make(VirtualPhysicalMappingMap),
		},
	}
}

func NewJobData() *JobData {
	return &JobData{
		Result:  NewResult(),
		Created: strfmt.DateTime(time.Now()),
	}
}

func (r *Result) ToString() string {
	st, err := jsonIter.Marshal(r)
	if err != nil {
		zap.L().Error("failed to marshal core.Result")
		return ""
	}
	st = pretty.Pretty(st)
	return string(st)
}

type TranspilerConfig struct {
	TranspilerLib     *string         `json:"transpiler_lib"` // nil means no transpiler
	TranspilerOptions json.RawMessage `json:"transpiler_options"`
	UseDefault        bool            `json:"-"`
}

func (c TranspilerConfig) NeedTranspiling() bool {
	return c.TranspilerLib != nil
}

func UnmarshalToTranspilerConfig(transpilerInfo string) TranspilerConfig {
	var c TranspilerConfig
	err := jsonIter.Unmarshal([]byte(transpilerInfo), &c)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to unmarshal transpiler config from :%s/reason:%s",
			transpilerInfo, err))
	}
	return c
}
