package transpiler

import (
	"bytes"
	"fmt"

	"github.com/oqtopus-team/bitorder/circuit"
	"github.com/oqtopus-team/bitorder/core"
	"go.uber.org/zap"
)

// EngineSetting is the [com.transpiler] table.
type EngineSetting struct {
	OptimizationLevel int    `toml:"optimization_level"`
	LayoutMethod      string `toml:"layout_method"`
}

func NewEngineSetting() EngineSetting {
	return EngineSetting{
		OptimizationLevel: 1,
	}
}

// QobjTranspiler compiles job programs for the device the engine runs. A
// program is either OpenQASM source or an assembled qobj. A qobj is only
// checked against the device.
type QobjTranspiler struct {
	setting EngineSetting
}

func (t *QobjTranspiler) IsAcceptableTranspilerLib(lib string) bool {
	return lib == core.DefaultTranspilerLib
}

func (t *QobjTranspiler) Setup(_ *core.Conf) error {
	t.setting = NewEngineSetting()
	if _, err := core.DecodeComponentSetting("transpiler", &t.setting); err != nil {
		return err
	}
	if _, err := (Options{LayoutMethod: t.setting.LayoutMethod}).layoutMethod(Target{}); err != nil {
		return err
	}
	zap.L().Debug(fmt.Sprintf("transpiler setting:%+v", t.setting))
	return nil
}

func (t *QobjTranspiler) GetHealth() error {
	return nil
}

func (t *QobjTranspiler) TearDown() {}

func (t *QobjTranspiler) options(jd *core.JobData) (Options, error) {
	opts := Options{
		OptimizationLevel: t.setting.OptimizationLevel,
		LayoutMethod:      t.setting.LayoutMethod,
	}
	if jd.Transpiler == nil || len(jd.Transpiler.TranspilerOptions) == 0 {
		return opts, nil
	}
	if err := jsonIter.Unmarshal(jd.Transpiler.TranspilerOptions, &opts); err != nil {
		zap.L().Error(fmt.Sprintf("failed to unmarshal transpiler options:%s/reason:%s",
			jd.Transpiler.TranspilerOptions, err))
		return opts, err
	}
	return opts, nil
}

func deviceTarget() (Target, error) {
	di := core.GetSystemComponents().GetDeviceInfo()
	if di == nil {
		return Target{}, fmt.Errorf("device info is not available")
	}
	spec, err := core.ParseDeviceInfoSpec(di.DeviceInfoSpecJson)
	if err != nil {
		return Target{}, err
	}
	return TargetFromDeviceInfoSpec(spec), nil
}

func (t *QobjTranspiler) Transpile(j core.Job) error {
	jd := j.JobData()
	target, err := deviceTarget()
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to get device target/jobID:%s/reason:%s", jd.ID, err))
		return err
	}
	if program := bytes.TrimSpace([]byte(jd.Program)); len(program) > 0 && program[0] == '{' {
		return t.checkQobj(jd, program, target)
	}

	opts, err := t.options(jd)
	if err != nil {
		return err
	}
	circ, err := circuit.ParseQASM(jd.Program)
	if err != nil {
		zap.L().Info(fmt.Sprintf("failed to parse program/jobID:%s/reason:%s", jd.ID, err))
		return err
	}
	circ.Name = jd.ID
	compiled, err := Compile(circ, target, opts)
	if err != nil {
		zap.L().Info(fmt.Sprintf("failed to compile program/jobID:%s/reason:%s", jd.ID, err))
		return err
	}
	q := Assemble([]*Experiment{compiled.Experiment}, jd.Shots, opts.Seed)
	b, err := q.Marshal()
	if err != nil {
		return err
	}
	jd.TranspiledProgram = string(b)
	return setTranspilerInfo(jd, compiled.Header.QubitLayout, compiled.Stats)
}

func (t *QobjTranspiler) checkQobj(jd *core.JobData, program []byte, target Target) error {
	q, err := ParseQobj(program)
	if err != nil {
		zap.L().Info(fmt.Sprintf("invalid qobj/jobID:%s/reason:%s", jd.ID, err))
		return err
	}
	if err := q.CheckTarget(target); err != nil {
		zap.L().Info(fmt.Sprintf("qobj does not fit %s/jobID:%s/reason:%s", target.Name, jd.ID, err))
		return err
	}
	jd.TranspiledProgram = jd.Program
	stats := map[string]int{}
	for _, e := range q.Experiments {
		for _, inst := range e.Instructions {
			stats[inst.Name]++
		}
	}
	layout := ""
	if len(q.Experiments) == 1 {
		layout = q.Experiments[0].Header.QubitLayout
	}
	return setTranspilerInfo(jd, layout, stats)
}

func setTranspilerInfo(jd *core.JobData, qubitLayout string, stats map[string]int) error {
	info := &core.TranspilerInfo{
		Stats:                     core.Stats(stats),
		PhysicalVirtualMapping:    core.PhysicalVirtualMapping{},
		VirtualPhysicalMappingMap: core.VirtualPhysicalMappingMap{},
	}
	if qubitLayout != "" {
		vpm, err := toVirtualPhysicalMappingFromString(qubitLayout)
		if err != nil {
			return err
		}
		pvm, err := toPhysicalVirtualMappingFromString(qubitLayout)
		if err != nil {
			return err
		}
		info.VirtualPhysicalMappingMap = vpm
		info.PhysicalVirtualMapping = pvm
	}
	jd.Result.TranspilerInfo = info
	zap.L().Debug(fmt.Sprintf("transpiled/jobID:%s/stats:%v/mapping:%s", jd.ID, stats, info.PhysicalVirtualMapping))
	return nil
}
