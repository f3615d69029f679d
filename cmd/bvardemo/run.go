package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/benbjohnson/clock"
	logging "github.com/ipfs/go-log/v2"
	"github.com/panjf2000/ants/v2"

	"github.com/ygrebnov/bvar"
)

// demo holds the instruments the workers update.
type demo struct {
	opts     *options
	provider *bvar.Provider
	vars     *bvar.VarRegistry
	samplers *bvar.SamplerRegistry

	requests bvar.Adder[int64]
	failures bvar.Adder[int64]
	latency  bvar.IntRecorder
	peak     bvar.Maxer[int64]

	qps       *bvar.PerSecond[int64]
	latWindow *bvar.Window[bvar.Stat]
	state     *bvar.Status[string]
}

func newDemo(ctx context.Context, opts *options, logger bvar.Logger) (*demo, error) {
	vars := bvar.VarsFromContext(ctx)
	samplers := bvar.SamplerRegistryFromContext(ctx)
	p := bvar.NewProvider(
		bvar.WithProviderVars(vars),
		bvar.WithProviderSamplers(samplers),
		bvar.WithProviderLogger(logger),
		bvar.WithPrefix(opts.Prefix),
	)

	var series []bvar.InstrumentOption
	if opts.Series {
		series = append(series, bvar.WithInstrumentSeries())
	}

	d := &demo{
		opts:     opts,
		provider: p,
		vars:     vars,
		samplers: samplers,
		requests: p.Adder("requests", append(series, bvar.WithDescription("simulated requests"), bvar.WithUnit("1"))...),
		failures: p.Adder("failures", bvar.WithDescription("simulated failures"), bvar.WithUnit("1")),
		latency:  p.Recorder("latency_us", append(series, bvar.WithDescription("simulated latency"), bvar.WithUnit("us"))...),
		peak:     p.Maxer("max_latency_us", bvar.WithUnit("us")),
		state:    bvar.NewStatusIn(vars, "starting"),
	}

	d.qps = bvar.NewPerSecond(d.requests.Reducer, opts.Window)
	d.latWindow = bvar.NewWindow(d.latency.Reducer, opts.Window)

	var errs error
	for _, e := range []struct {
		v    interface{ ExposeAs(prefix, name string) error }
		name string
	}{
		{d.qps, "requests_qps"},
		{d.latWindow, fmt.Sprintf("latency_us_%ds", opts.Window)},
		{d.state, "state"},
	} {
		errs = errors.Join(errs, e.v.ExposeAs(opts.Prefix, e.name))
	}
	return d, errs
}

// handle simulates one request.
func (d *demo) handle() {
	us := rand.Int64N(max(int64(d.opts.MaxLatency/time.Microsecond), 1)) + 1
	time.Sleep(time.Duration(us) * time.Microsecond)

	d.requests.Add(1)
	d.latency.Add(us)
	d.peak.Add(us)
	if us%97 == 0 {
		d.failures.Add(1)
	}
}

func (d *demo) submit(pool *ants.Pool) {
	for i := 0; i < d.opts.Tasks; i++ {
		if err := pool.Submit(d.handle); err != nil {
			d.failures.Add(1)
			log.Debugw("task rejected", "error", err)
		}
	}
}

func (d *demo) report(out io.Writer, pool *ants.Pool) error {
	log.Infow("report",
		"qps", d.qps.Value(),
		"avg_latency_us", d.latWindow.Value().Average(),
		"running_workers", pool.Running(),
		"waiting_tasks", pool.Waiting(),
	)
	if err := d.vars.DumpJSON(out); err != nil {
		return err
	}
	_, err := fmt.Fprintln(out)
	return err
}

func (d *demo) finish(out io.Writer) error {
	d.state.Set("stopped")
	if err := d.samplers.SampleNow(); err != nil {
		log.Warnw("final sample", "error", err)
	}
	for _, e := range d.provider.ListMetadata() {
		log.Debugw("instrument", "type", e.Type, "name", e.Name, "unit", e.Config.Unit, "series", e.Config.Series)
	}

	if err := d.vars.DumpJSON(out); err != nil {
		return err
	}
	fmt.Fprintln(out)
	if !d.opts.Series {
		return nil
	}
	if err := d.requests.DescribeSeries(out, bvar.SeriesOptions{}); err != nil {
		return err
	}
	_, err := fmt.Fprintln(out)
	return err
}

func run(ctx context.Context, opts *options, out io.Writer) error {
	for _, name := range []string{"bvar", "bvardemo"} {
		if err := logging.SetLogLevel(name, opts.LogLevel); err != nil {
			return fmt.Errorf("log level %q: %w", opts.LogLevel, err)
		}
	}
	logger := bvar.NewZapLogger(log.Desugar())

	clk := clock.New()
	samplers := bvar.NewSamplerRegistry(
		bvar.WithClock(clk),
		bvar.WithInterval(opts.Interval),
		bvar.WithLogger(logger),
		bvar.WithErrorHandler(bvar.NewLogErrors(logger)),
	)
	defer samplers.Close()
	ctx = bvar.ContextWithSamplerRegistry(ctx, samplers)
	ctx = bvar.ContextWithVars(ctx, bvar.NewVarRegistry())

	pool, err := ants.NewPool(opts.Workers,
		ants.WithExpiryDuration(10*time.Second),
		ants.WithPanicHandler(func(p interface{}) {
			log.Errorw("worker panic recovered", "panic", p)
		}),
	)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	d, err := newDemo(ctx, opts, logger)
	if err != nil {
		return fmt.Errorf("expose variables: %w", err)
	}
	d.state.Set("running")
	log.Infow("started", "workers", opts.Workers, "interval", opts.Interval, "window", opts.Window)

	ticker := clk.Ticker(opts.Report)
	defer ticker.Stop()
	d.submit(pool)
	for {
		select {
		case <-ctx.Done():
			if err := pool.ReleaseTimeout(time.Second); err != nil {
				log.Warnw("workers still running", "error", err)
			}
			return d.finish(out)
		case <-ticker.C:
			if err := d.report(out, pool); err != nil {
				return err
			}
			d.submit(pool)
		}
	}
}
