/*
Package bvar provides in-process metric variables for Go servers: sharded
reducers that are cheap to update from many goroutines, windows over their
recent history and per-second time series.

# Overview

The library is organized in three layers:

1. Combiner: a value sharded into Agents. Writers update their own Agent under
an uncontended lock; readers fold every Agent with the reducer's Op. Agents
handed out by Combiner.Add are cached per P through a sync.Pool and come back
to an idle list when the pool drops them, so the number of Agents tracks the
number of concurrently active writers.

	a := bvar.NewAdder[int64]()
	a.Add(1)             // pooled agent
	ag := a.Agent()      // dedicated agent for a long-lived worker
	defer ag.Release()
	ag.Add(2)

2. SamplerRegistry: a set of weakly held Samplers swept once per interval by a
driver goroutine. The driver starts with the first registration and exits
once every sampler has been garbage collected; the next registration
starts a fresh one. A sampler panic is recovered, reported through the
registry's ErrorHandler and never stops the sweep.

3. Series: four rings of per-second, per-minute, per-hour and per-day points
(60, 60, 24 and 30 of them) fed by a SeriesSampler, described as JSON with
parallel timestamp and value arrays.

Reducers, Windows, PerSecond and Status values are Variables: they can be
exposed under a unique name in a VarRegistry and dumped as one JSON object.

# How it works (high level)

 1. Reducer.Add folds the value into the Agent cached for the current P.
 2. Reducer.Value locks the combiner, folds the residual of released Agents
    and every live Agent.
 3. A Window registers a ReducerSampler that records the reducer once per
    interval. Reducers with an inverse op (Adder, IntRecorder) are sampled as
    running totals and a window subtracts its oldest sample. For others
    (Maxer, Miner) every Add is mirrored into a second combiner that the
    sampler resets each interval, and a window folds those partials.
    Sampling never changes the reducer's own value.
 4. Exposing a reducer built WithSeries starts its SeriesSampler. A point
    reaches the minute, hour and day rings only when that much time has passed
    since the last per-second point.
 5. Internal invariant violations (an Agent released twice, a Provider entry
    of the wrong type) are logged a bounded number of times. In debug and race
    builds they panic.

# Examples

	vars := bvar.NewVarRegistry()
	req := bvar.NewAdder(bvar.WithVars[int64](vars), bvar.WithSeries[int64]())
	_ = req.Expose("requests")
	qps := bvar.NewPerSecond(req.Reducer, 10)
	_ = qps.Expose("requests_qps")

	req.Add(1)
	_ = vars.DumpJSON(os.Stdout)

Provider builds named int64 instruments on demand and Inspector reads them
back with a defensive copy of their metadata:

	p := bvar.NewProvider(bvar.WithPrefix("frontend"))
	p.Recorder("latency_us", bvar.WithUnit("us")).Add(120)
	rec, cfg, ok := p.RecorderWithMeta("latency_us")

# Build and test

- Run unit tests:

	go test ./...

- Run with the race detector (enables stricter invariant behavior):

	go test -race ./...

- Enable debug build tag (debug invariants enabled):

	go test -tags=debug ./...

# Notes

- Registries are plain values. DefaultVars and DefaultSamplerRegistry return
process-wide instances used when no registry is configured, and
ContextWithVars/ContextWithSamplerRegistry carry others through a context.

- An exposed variable stays reachable from its VarRegistry until Hide or
Close. Only hidden reducers are collected along with their samplers.
*/
package bvar
