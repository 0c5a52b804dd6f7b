package core

import (
	"context"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/oklog/run"
	"github.com/oqtopus-team/bitorder/common"
	"go.uber.org/zap"
)

var runContext *RunContext

const (
	PERIODIC_TASKS = "periodic_tasks"
	API_SERVERS    = "api_servers"
)

type PeriodicTaskImplMap map[string]PeriodicTaskImpl
type APIServerImplMap map[string]APIServerImpl

type ImplMaps struct {
	PeriodicTaskImplMap PeriodicTaskImplMap
	APIServerImplMap    APIServerImplMap
}

// RunnerImpl is the part every runnable shares. GetEmptyParams returns a
// pointer that the [run_group.<kind>.<name>.params] table is decoded into.
type RunnerImpl interface {
	GetEmptyParams() interface{}
	SetParams(interface{}) error
	Setup() error
}

type RunContext struct {
	*run.Group
	context.Context

	settingsPath  string
	PeriodicTasks map[string]*PeriodicTask
	APIServers    map[string]*APIServer
}

type runnerEntry struct {
	Period time.Duration  `toml:"period"`
	Params toml.Primitive `toml:"params"`
}

type runGroupFile struct {
	RunGroup map[string]map[string]runnerEntry `toml:"run_group"`
}

func NewRunContext() *RunContext {
	return &RunContext{
		Group:         &run.Group{},
		Context:       context.Background(),
		PeriodicTasks: make(map[string]*PeriodicTask),
		APIServers:    make(map[string]*APIServer),
	}
}

// NewRunContextWithSettingPath builds the run group declared under
// [run_group] in the setting file. Every declared runner must have an
// implementation in im.
func NewRunContextWithSettingPath(settingsPath string, im *ImplMaps) (*RunContext, error) {
	tomlString, err := common.ReadSettingsFile(settingsPath)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to read settings file/reason:%s", err))
		return nil, err
	}
	rc := NewRunContext()
	rc.settingsPath = settingsPath
	if err := rc.load(tomlString, im); err != nil {
		return nil, err
	}
	zap.L().Info("successfully initialized RunContext",
		zap.Int("periodic_tasks", len(rc.PeriodicTasks)),
		zap.Int("api_servers", len(rc.APIServers)))
	return rc, nil
}

func (rc *RunContext) load(tomlString string, im *ImplMaps) error {
	var f runGroupFile
	md, err := toml.Decode(tomlString, &f)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to decode run group settings/reason:%s", err))
		return err
	}
	for group, entries := range f.RunGroup {
		for name, entry := range entries {
			var impl RunnerImpl
			switch group {
			case PERIODIC_TASKS:
				i, ok := im.PeriodicTaskImplMap[name]
				if !ok {
					return rc.unknownRunner(group, name)
				}
				rc.PeriodicTasks[name] = &PeriodicTask{Period: entry.Period, PeriodicTaskImpl: i}
				impl = i
			case API_SERVERS:
				i, ok := im.APIServerImplMap[name]
				if !ok {
					return rc.unknownRunner(group, name)
				}
				rc.APIServers[name] = &APIServer{APIServerImpl: i}
				impl = i
			default:
				msg := fmt.Sprintf("unknown run group type/group:%s", group)
				zap.L().Error(msg)
				return fmt.Errorf(msg)
			}
			params := impl.GetEmptyParams()
			if md.IsDefined("run_group", group, name, "params") {
				if err := md.PrimitiveDecode(entry.Params, params); err != nil {
					zap.L().Error(fmt.Sprintf("failed to decode params/runner:%s/reason:%s", name, err))
					return err
				}
			}
			if err := impl.SetParams(params); err != nil {
				zap.L().Error(fmt.Sprintf("failed to set params/runner:%s/reason:%s", name, err))
				return err
			}
			if err := impl.Setup(); err != nil {
				zap.L().Error(fmt.Sprintf("failed to setup/runner:%s/reason:%s", name, err))
				return err
			}
		}
	}
	for name, t := range rc.PeriodicTasks {
		if err := rc.AddPeriodicTask(t, name); err != nil {
			return err
		}
	}
	for name, s := range rc.APIServers {
		if err := rc.AddAPIServer(s, name); err != nil {
			return err
		}
	}
	return nil
}

func (rc *RunContext) unknownRunner(group, name string) error {
	msg := fmt.Sprintf("failed to find %s implementation in %s", name, group)
	zap.L().Error(msg)
	return fmt.Errorf(msg)
}

func GetRunContext() *RunContext {
	return runContext
}

func SetRunContext(rc *RunContext) {
	runContext = rc
}

type PeriodicTask struct {
	Period time.Duration
	PeriodicTaskImpl
}

type PeriodicTaskImpl interface {
	RunnerImpl
	RequirePeriodUpdate() (ok bool, duration time.Duration)
	Task()
	Cleanup()
}

type DefaultTaskImpl struct{}

func (v *DefaultTaskImpl) Setup() error {
	return nil
}

func (v *DefaultTaskImpl) GetEmptyParams() interface{} {
	return &struct{}{}
}

func (v *DefaultTaskImpl) SetParams(p interface{}) error {
	return nil
}

func (v *DefaultTaskImpl) RequirePeriodUpdate() (bool, time.Duration) {
	return false, 0
}

func (v *DefaultTaskImpl) Task() {}

func (v *DefaultTaskImpl) Cleanup() {}

func (rc *RunContext) AddPeriodicTask(t *PeriodicTask, taskName string) error {
	if t.Period <= 0 {
		return fmt.Errorf("period of %s must be positive", taskName)
	}
	ctx, cancel := context.WithCancel(rc.Context)
	lastPeriod := t.Period
	rc.Group.Add(
		func() error {
			ticker := time.NewTicker(t.Period)
			defer ticker.Stop()
			zap.L().Info(fmt.Sprintf("[PeriodicTask/%s/Start]", taskName))
			t.PeriodicTaskImpl.Task()
			for {
				select {
				case <-ctx.Done():
					t.PeriodicTaskImpl.Cleanup()
					zap.L().Info(fmt.Sprintf("[PeriodicTask/%s/TearDown]cleaned up periodic task", taskName))
					return ctx.Err()
				case <-ticker.C:
					t.PeriodicTaskImpl.Task()
					ok, newPeriod := t.RequirePeriodUpdate()
					if ok && newPeriod > 0 && newPeriod != lastPeriod {
						zap.L().Info(fmt.Sprintf("[PeriodicTask/%s/ResetPeriod]from %v to %v",
							taskName, lastPeriod, newPeriod))
						ticker.Reset(newPeriod)
						lastPeriod = newPeriod
					}
				}
			}
		},
		func(error) {
			cancel()
			zap.L().Info(fmt.Sprintf("[PeriodicTask/%s/TearDown]canceled periodic task", taskName))
		},
	)
	return nil
}

type APIServer struct {
	APIServerImpl
}

type APIServerImpl interface {
	RunnerImpl
	Serve() error
	Shutdown()
}

func NewAPIServer(impl APIServerImpl) *APIServer {
	return &APIServer{APIServerImpl: impl}
}

func (rc *RunContext) AddAPIServer(s *APIServer, serverName string) error {
	rc.Group.Add(
		func() error {
			zap.L().Info(fmt.Sprintf("[APIServer/%s/Start]", serverName))
			if err := s.Serve(); err != nil {
				zap.L().Error(fmt.Sprintf("[APIServer/%s/Error]failed to serve/reason:%s",
					serverName, err))
				return err
			}
			return nil
		},
		func(error) {
			s.Shutdown()
			zap.L().Info(fmt.Sprintf("[APIServer/%s/TearDown]shut down api server", serverName))
		},
	)
	return nil
}
