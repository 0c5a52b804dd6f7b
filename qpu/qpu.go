package qpu

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-openapi/strfmt"
	jsoniter "github.com/json-iterator/go"
	"github.com/oqtopus-team/bitorder/backend"
	"github.com/oqtopus-team/bitorder/circuit"
	"github.com/oqtopus-team/bitorder/core"
	"github.com/oqtopus-team/bitorder/transpiler"
	"go.uber.org/zap"
)

var jsonIter = jsoniter.ConfigCompatibleWithStandardLibrary

// SimulatorQPU executes jobs on the local state vector simulator shaped like
// the device of the device setting. Readout errors and the legacy bit order
// of the setting are applied to every shot.
type SimulatorQPU struct {
	deviceSetting *DeviceSetting
	opts          backend.ExecOptions
	timeout       time.Duration

	mu     sync.RWMutex
	status core.DeviceStatus
}

func (s *SimulatorQPU) Setup(conf *core.Conf) error {
	zap.L().Debug("setting up simulator QPU")
	ds, err := LoadDeviceSetting(conf.DeviceSettingPath)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to load a device setting/reason:%s", err))
		return err
	}
	s.SetDeviceSetting(ds)
	return nil
}

// SetDeviceSetting replaces the device. It is also used by tests to skip
// reading a file.
func (s *SimulatorQPU) SetDeviceSetting(ds *DeviceSetting) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceSetting = ds
	s.opts = ds.ExecOptions()
	s.timeout = 10 * time.Minute
	s.status = core.Available
	zap.L().Info(fmt.Sprintf("simulator QPU is %s/qubits:%d/legacy bit order:%t",
		ds.DeviceName, ds.NQubits, ds.LegacyBitOrder))
}

// SetStatus lets an operator pause the device.
func (s *SimulatorQPU) SetStatus(st core.DeviceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}

func (s *SimulatorQPU) Send(j core.Job) error {
	jd := j.JobData()
	zap.L().Info(fmt.Sprintf("starting simulator QPU execution of job(%s)", jd.ID))
	s.mu.RLock()
	if s.deviceSetting == nil {
		s.mu.RUnlock()
		return fmt.Errorf("simulator QPU is not set up")
	}
	opts, timeout, status, name := s.opts, s.timeout, s.status, s.deviceSetting.DeviceName
	s.mu.RUnlock()
	if status != core.Available {
		err := fmt.Errorf("device is %s", status)
		core.SetFailureWithError(j, err)
		return err
	}

	q, err := transpiler.ParseQobj([]byte(jd.ExecutableProgram()))
	if err != nil {
		core.SetFailureWithError(j, err)
		return err
	}
	if jd.Shots > 0 {
		q.Config.Shots = jd.Shots
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	start := time.Now()
	counts, err := backend.Execute(ctx, q, opts)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to execute job(%s)/reason:%s", jd.ID, err))
		core.SetFailureWithError(j, err)
		return err
	}
	raw := make([]map[string]int, 0, len(counts))
	for _, c := range counts {
		raw = append(raw, c)
	}
	storeCounts(jd, raw)
	jd.Result.ExecutionTime = time.Since(start)
	jd.Result.Message = "executed on " + name
	jd.Status = core.SUCCEEDED
	jd.Ended = strfmt.DateTime(time.Now())
	zap.L().Debug(fmt.Sprintf("job(%s) is processed/status:%s/counts:%v", jd.ID, jd.Status, jd.Result.Counts))
	return nil
}

func (s *SimulatorQPU) Validate(program string) error {
	s.mu.RLock()
	ds := s.deviceSetting
	s.mu.RUnlock()
	if ds == nil {
		return fmt.Errorf("simulator QPU is not set up")
	}
	return validateProgram(program, ds.Spec(), ds.GateSupport)
}

func (s *SimulatorQPU) GetDeviceInfo() *core.DeviceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.deviceSetting == nil {
		return &core.DeviceInfo{Status: core.Unavailable}
	}
	di, err := s.deviceSetting.DeviceInfo(s.status)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to build device info/reason:%s", err))
		return &core.DeviceInfo{Status: core.Unavailable}
	}
	return di
}

// validateProgram checks a qobj against the device shape or, for OpenQASM
// source, the width and the gates.
func validateProgram(program string, spec *core.DeviceInfoSpec, gs *GateSupport) error {
	p := bytes.TrimSpace([]byte(program))
	if len(p) > 0 && p[0] == '{' {
		q, err := transpiler.ParseQobj(p)
		if err != nil {
			return err
		}
		target := transpiler.TargetFromDeviceInfoSpec(spec)
		if err := q.CheckTarget(target); err != nil {
			return err
		}
		for _, e := range q.Experiments {
			for _, inst := range e.Instructions {
				if err := gs.Check(inst.Name); err != nil {
					return err
				}
			}
		}
		return nil
	}
	circ, err := circuit.ParseQASM(program)
	if err != nil {
		return err
	}
	if circ.NumQubits() > spec.NQubits {
		return fmt.Errorf("number of qubits (%d) is greater than maximum (%d) of %s",
			circ.NumQubits(), spec.NQubits, spec.DeviceID)
	}
	for _, inst := range circ.Instructions {
		if err := gs.Check(inst.Name); err != nil {
			return err
		}
	}
	return nil
}

// storeCounts keeps the counts of every experiment in DividedResult and the
// first experiment in Counts.
func storeCounts(jd *core.JobData, raw []map[string]int) {
	if jd.Result == nil {
		jd.Result = core.NewResult()
	}
	jd.Result.DividedResult = make(core.DividedResult, len(raw))
	for i, c := range raw {
		cc := make(core.Counts, len(c))
		for k, v := range c {
			cc[k] = uint32(v)
		}
		jd.Result.DividedResult[uint32(i)] = cc
	}
	if len(raw) > 0 {
		jd.Result.Counts = jd.Result.DividedResult[0]
	} else {
		jd.Result.Counts = core.Counts{}
	}
}
