package reorder

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	jsoniter "github.com/json-iterator/go"
	"github.com/oqtopus-team/bitorder/backend"
	"github.com/oqtopus-team/bitorder/compare"
	"github.com/oqtopus-team/bitorder/mitig"
	"github.com/oqtopus-team/bitorder/provider"
	"github.com/oqtopus-team/bitorder/result"
	"github.com/oqtopus-team/bitorder/transpiler"
	"github.com/tidwall/pretty"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	instrumentationName = "github.com/oqtopus-team/bitorder/reorder"

	MitigateReadout = "readout"
)

var jsonIter = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrNoRemote = errors.New("no remote device available")

// GetBackends returns the local simulator and the least busy operational
// remote device. A remote that cannot be reached for a provider reason is
// reported as nil, not as an error.
func GetBackends(ctx context.Context, token, url string, opts ...provider.Option) (backend.Backend, backend.Backend, error) {
	sim, err := backend.DefaultRegistry().GetBackend(backend.SimulatorName)
	if err != nil {
		return nil, nil, err
	}
	remote, err := leastBusyRemote(ctx, token, url, opts...)
	if err != nil {
		if errors.Is(err, provider.ErrProvider) {
			zap.L().Info(fmt.Sprintf("no remote device/reason:%s", err))
			return sim, nil, nil
		}
		return nil, nil, err
	}
	return sim, remote, nil
}

func leastBusyRemote(ctx context.Context, token, url string, opts ...provider.Option) (backend.Backend, error) {
	p, err := provider.EnableAccount(ctx, token, url, opts...)
	if err != nil {
		return nil, err
	}
	bs, err := p.Backends(ctx, provider.WithSimulator(false), provider.WithOperational())
	if err != nil {
		return nil, err
	}
	return provider.LeastBusy(ctx, bs)
}

type runOptions struct {
	seed         int64
	layoutMethod string
	mitigate     string
}

type RunOption func(*runOptions)

// WithSeed fixes the compiler and simulator seeds.
func WithSeed(seed int64) RunOption {
	return func(o *runOptions) { o.seed = seed }
}

// WithLayoutMethod selects how virtual qubits are placed on the remote
// device.
func WithLayoutMethod(m string) RunOption {
	return func(o *runOptions) { o.layoutMethod = m }
}

// WithMitigation corrects the remote counts. Only MitigateReadout is known.
func WithMitigation(m string) RunOption {
	return func(o *runOptions) { o.mitigate = m }
}

// Report is the outcome of one scenario.
type Report struct {
	Scenario     string        `json:"scenario"`
	Simulator    string        `json:"simulator"`
	Remote       string        `json:"remote"`
	Shots        int           `json:"shots"`
	Threshold    float64       `json:"threshold"`
	SimCounts    result.Counts `json:"sim_counts"`
	RemoteCounts result.Counts `json:"remote_counts"`
	RemoteLayout []int         `json:"remote_layout"`
	Mitigated    bool          `json:"mitigated"`
	TVD          float64       `json:"total_variation_distance"`
	OK           bool          `json:"ok"`
	Message      string        `json:"message,omitempty"`
}

func (r *Report) String() string {
	b, err := jsonIter.Marshal(r)
	if err != nil {
		return ""
	}
	return string(pretty.Pretty(b))
}

type execution struct {
	backend  backend.Backend
	compiled *transpiler.Compiled
	job      backend.Job
}

// Run compiles the scenario for both backends, runs it on both and compares
// the counts. timeout bounds the wait for each result.
func Run(ctx context.Context, s *Scenario, sim, real backend.Backend, timeout time.Duration, opts ...RunOption) (rep *Report, err error) {
	o := &runOptions{}
	for _, f := range opts {
		f(o)
	}
	if sim == nil || real == nil {
		return nil, ErrNoRemote
	}
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "reorder.Run",
		trace.WithAttributes(
			attribute.String("scenario", s.Name),
			attribute.String("simulator", sim.Name()),
			attribute.String("remote", real.Name()),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	execs := make([]*execution, 0, 2)
	for _, b := range []backend.Backend{sim, real} {
		e, err := submit(ctx, s, b, o)
		if err != nil {
			return nil, err
		}
		execs = append(execs, e)
	}
	counts := make([]result.Counts, len(execs))
	for i, e := range execs {
		c, err := wait(ctx, e, timeout)
		if err != nil {
			return nil, err
		}
		counts[i] = c
		zap.L().Info(fmt.Sprintf("counts of %s on %s:%s", s.Name, e.backend.Name(), prettyCounts(c)))
	}

	rep = &Report{
		Scenario:     s.Name,
		Simulator:    sim.Name(),
		Remote:       real.Name(),
		Shots:        s.Shots,
		Threshold:    s.Threshold,
		SimCounts:    counts[0],
		RemoteCounts: counts[1],
		RemoteLayout: execs[1].compiled.Layout,
	}
	if o.mitigate != "" {
		mc, err := mitigate(ctx, o.mitigate, real, execs[1].compiled, counts[1])
		if err != nil {
			return nil, err
		}
		rep.RemoteCounts = mc
		rep.Mitigated = true
		zap.L().Info(fmt.Sprintf("mitigated counts of %s on %s:%s", s.Name, real.Name(), prettyCounts(mc)))
	}
	rep.Message, rep.OK = compare.DictAlmostEqual(rep.SimCounts, rep.RemoteCounts, s.Threshold)
	rep.TVD = compare.TotalVariationDistance(rep.SimCounts, rep.RemoteCounts)
	span.SetAttributes(attribute.Bool("ok", rep.OK), attribute.Float64("tvd", rep.TVD))
	if !rep.OK {
		zap.L().Warn(fmt.Sprintf("counts of %s disagree/%s", s.Name, rep.Message))
	}
	return rep, nil
}

func submit(ctx context.Context, s *Scenario, b backend.Backend, o *runOptions) (*execution, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "reorder.submit",
		trace.WithAttributes(attribute.String("backend", b.Name())))
	defer span.End()
	compiled, err := transpiler.Compile(s.Circuit, b.Configuration().Target(), transpiler.Options{
		OptimizationLevel: 1,
		LayoutMethod:      o.layoutMethod,
		Seed:              o.seed,
	})
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to compile %s for %s/reason:%s", s.Name, b.Name(), err))
		return nil, err
	}
	zap.L().Debug(fmt.Sprintf("compiled %s for %s/layout:%v/stats:%v", s.Name, b.Name(), compiled.Layout, compiled.Stats))
	q := transpiler.Assemble([]*transpiler.Experiment{compiled.Experiment}, s.Shots, o.seed)
	job, err := b.Run(ctx, q)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to run %s on %s/reason:%s", s.Name, b.Name(), err))
		return nil, err
	}
	return &execution{backend: b, compiled: compiled, job: job}, nil
}

func wait(ctx context.Context, e *execution, timeout time.Duration) (result.Counts, error) {
	res, err := e.job.Result(ctx, timeout)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to get the result of job(%s) on %s/reason:%s", e.job.ID(), e.backend.Name(), err))
		return nil, err
	}
	return res.GetCounts(e.compiled.Header.Name)
}

func mitigate(ctx context.Context, method string, b backend.Backend, compiled *transpiler.Compiled, counts result.Counts) (result.Counts, error) {
	if method != MitigateReadout {
		return nil, fmt.Errorf("unknown mitigation %s", method)
	}
	pb, ok := b.(backend.PropertiesBackend)
	if !ok {
		return nil, fmt.Errorf("%s publishes no readout errors", b.Name())
	}
	props, err := pb.Properties(ctx)
	if err != nil {
		return nil, err
	}
	m, err := mitig.NewReadoutMitigator(props.ReadoutErrors(), compiled.MeasuredSlots(), compiled.Config.MemorySlots)
	if err != nil {
		return nil, err
	}
	return m.Apply(counts)
}

func prettyCounts(c result.Counts) string {
	b, err := jsonIter.Marshal(c)
	if err != nil {
		return fmt.Sprint(map[string]int(c))
	}
	return "\n" + string(pretty.Pretty(b))
}
