package bvar

import "sync/atomic"

const maxInvariantReports = 10

// invariantReporter reports unexpected internal states such as an agent
// released twice. In release builds it logs up to maxInvariantReports times;
// in debug builds (or under the race detector) it panics to catch bugs early.
type invariantReporter struct {
	reports atomic.Int32
}

func (r *invariantReporter) report(l Logger, kind, subject string) {
	if r.reports.Add(1) > maxInvariantReports {
		return
	}
	msg := "[bvar] invariant violation: " + kind + " for " + subject
	if isDebugBuild() {
		panic(msg)
	}
	l.Warnf("%s", msg)
}

// isDebugBuild reports whether we're in a "debug" or "race" build.
func isDebugBuild() bool {
	return raceBuild || debugBuild
}
