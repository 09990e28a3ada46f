package core

import "context"

// ReconcileTracer is the seam the telemetry package hooks into (it
// implements this with OpenTelemetry spans/counters). Defined here, next
// to Logger and Bus, so core never imports an observability SDK directly —
// mirrors the teacher's pattern of a framework-level Telemetry interface
// in core/interfaces.go, decoupled from any concrete exporter.
type ReconcileTracer interface {
	// StartSpan begins a span for a reconciliation or script operation
	// (e.g. "sheriff.HandleInfoFrame", "script.step"). The returned func
	// ends the span.
	StartSpan(ctx context.Context, name string) (context.Context, func())

	// RecordStatusChange is called once per emitted command-status-changed
	// event, for a metric like a status-transition counter.
	RecordStatusChange(deputyName string, from, to Status)

	// RecordScriptAction is called once per executed script action, with
	// the wall-clock time spent dispatching it. For a waiting action this
	// covers installing the wait, not the time spent waiting.
	RecordScriptAction(scriptName string, actionIndex int, latencyMS float64)
}

type noopTracer struct{}

func (noopTracer) StartSpan(ctx context.Context, _ string) (context.Context, func()) {
	return ctx, func() {}
}
func (noopTracer) RecordStatusChange(string, Status, Status)        {}
func (noopTracer) RecordScriptAction(string, int, float64)          {}
