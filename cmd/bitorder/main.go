package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/go-faster/errors"
	flags "github.com/jessevdk/go-flags"
	"github.com/massn/envordot"
	"github.com/oklog/run"
	"go.uber.org/zap"

	"github.com/oqtopus-team/bitorder/backend"
	"github.com/oqtopus-team/bitorder/core"
	"github.com/oqtopus-team/bitorder/device"
	"github.com/oqtopus-team/bitorder/log"
	"github.com/oqtopus-team/bitorder/provider"
	"github.com/oqtopus-team/bitorder/reorder"
	"github.com/oqtopus-team/bitorder/transpiler"
)

var versionByBuildFlag string
var parser *flags.Parser
var app *App

func init() {
	if err := envordot.Load(false, ".env"); err != nil {
		fmt.Printf("Not found \".env\" file. Use only environment variables. Reason:%s\n", err.Error())
	} else {
		fmt.Println("Found \".env\" file. Environment variables are preferred, " +
			"but non-conflicting variables are those in the \".env\" file.")
	}
	app = &App{}
	setParser(app)
}

type App struct {
	Conf *core.Conf
}

func setParser(app *App) {
	parser = flags.NewParser(app, flags.Default)
	parser.ShortDescription = "bitorder"
	parser.LongDescription = "checks that measurement results land in the classical bits a circuit asked for."
	parser.AddCommand("device", "serve a fake remote device", "serve the device API and the gateway service of a simulated device", &deviceCmd{})
	parser.AddCommand("check", "run the reordering scenarios", "compare the local simulator with a remote device", &checkCmd{})
}

func parse() {
	if _, err := parser.Parse(); err != nil {
		code := 1
		if fe, ok := err.(*flags.Error); ok {
			if fe.Type == flags.ErrHelp {
				code = 0
			}
		}
		if code == 1 {
			fmt.Printf("failed to parse flags, because %s\n", err)
		}
		os.Exit(code)
	}
}

func main() {
	parse()
}

func setZap(conf *core.Conf) *zap.Logger {
	logger, err := log.SetZap(conf)
	if err != nil {
		fmt.Printf("Failed to setup logger. Reason:%s\n", err)
		panic(err)
	}
	return logger
}

func registerSetting() {
	core.RegisterSetting("device", device.NewSetting())
	core.RegisterSetting("provider", provider.NewSetting())
	core.RegisterSetting("transpiler", transpiler.NewEngineSetting())
}

func loadSetting(conf *core.Conf) error {
	core.ResetSetting()
	registerSetting()
	if err := core.ParseSettingFromPath(conf.SettingPath); err != nil {
		zap.L().Error(fmt.Sprintf("failed to parse settings/reason:%s", err))
		return err
	}
	core.SetVersion(conf, versionByBuildFlag)
	return nil
}

type deviceCmd struct{}

func (c *deviceCmd) Execute(args []string) error {
	logger := setZap(app.Conf)
	defer logger.Sync()

	if err := loadSetting(app.Conf); err != nil {
		return err
	}
	d, err := device.New(app.Conf)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to start the device/reason:%s", err))
		return err
	}
	defer d.Close()

	im := &core.ImplMaps{
		PeriodicTaskImplMap: core.PeriodicTaskImplMap{
			log.VersionLogTaskName: &log.VersionLogTaskImpl{},
			log.MetricsLogTaskName: &log.MetricsLogTaskImpl{},
		},
		APIServerImplMap: d.ImplMap(),
	}
	rc, err := core.NewRunContextWithSettingPath(app.Conf.SettingPath, im)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to setup run context/reason:%s", err.Error()))
		return err
	}
	rc.Add(
		run.SignalHandler(
			rc.Context,
			os.Interrupt,
			syscall.SIGTERM))
	core.SetRunContext(rc)

	if err := rc.Run(); err != nil {
		var se run.SignalError
		if errors.As(err, &se) {
			zap.L().Info(fmt.Sprintf("received %s, shutting down", se.Signal))
			return nil
		}
		fmt.Fprintf(os.Stderr, "execution error:%v\n", err)
		return err
	}
	return nil
}

type checkCmd struct {
	URL          string        `long:"url" description:"URL of the remote device API" env:"QE_URL"`
	Token        string        `long:"token" description:"API token of the remote device" env:"QE_TOKEN"`
	Gateway      string        `long:"gateway" description:"address of a gateway device, used instead of the API"`
	Scenarios    []string      `long:"scenario" description:"scenario to run, all when omitted" choice:"basic" choice:"multi_register"`
	Mitigate     string        `long:"mitigate" description:"mitigation of the remote counts" choice:"readout"`
	LayoutMethod string        `long:"layout-method" description:"layout on the remote device" choice:"trivial" choice:"dense"`
	Seed         int64         `long:"seed" description:"compiler and simulator seed"`
	Timeout      time.Duration `long:"timeout" description:"wait for each result" default:"10m"`
}

func (c *checkCmd) Execute(args []string) error {
	logger := setZap(app.Conf)
	defer logger.Sync()

	if err := loadSetting(app.Conf); err != nil {
		zap.L().Warn("running with the default settings")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim, remote, closeRemote, err := c.backends(ctx)
	if err != nil {
		return err
	}
	defer closeRemote()
	if remote == nil {
		return reorder.ErrNoRemote
	}

	opts := []reorder.RunOption{reorder.WithSeed(c.Seed)}
	if c.LayoutMethod != "" {
		opts = append(opts, reorder.WithLayoutMethod(c.LayoutMethod))
	}
	if c.Mitigate != "" {
		opts = append(opts, reorder.WithMitigation(c.Mitigate))
	}

	failed := 0
	names := c.scenarioNames()
	for _, name := range names {
		rep, err := reorder.Run(ctx, reorder.Scenarios()[name](), sim, remote, c.Timeout, opts...)
		if err != nil {
			zap.L().Error(fmt.Sprintf("scenario %s failed/reason:%s", name, err))
			return err
		}
		fmt.Print(rep.String())
		if !rep.OK {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios disagree", failed, len(names))
	}
	return nil
}

func (c *checkCmd) backends(ctx context.Context) (backend.Backend, backend.Backend, func(), error) {
	if c.Gateway == "" {
		sim, remote, err := reorder.GetBackends(ctx, c.Token, c.URL)
		return sim, remote, func() {}, err
	}
	sim, err := backend.DefaultRegistry().GetBackend(backend.SimulatorName)
	if err != nil {
		return nil, nil, nil, err
	}
	gw, err := backend.DialGateway(ctx, c.Gateway)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to dial the gateway %s/reason:%s", c.Gateway, err))
		return nil, nil, nil, err
	}
	return sim, gw, func() { gw.Close() }, nil
}

func (c *checkCmd) scenarioNames() []string {
	if len(c.Scenarios) > 0 {
		return c.Scenarios
	}
	names := make([]string, 0, len(reorder.Scenarios()))
	for name := range reorder.Scenarios() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
