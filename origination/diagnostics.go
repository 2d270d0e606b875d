package origination

import "log/slog"

// DiagnosticSink receives structured progress events from every engine step.
// The engine always emits; the host decides whether and how to render. This
// replaces ad hoc debug-flag branching inside the flow.
type DiagnosticSink interface {
	Event(stage string, fields map[string]string)
}

// NopDiagnostics discards all events.
type NopDiagnostics struct{}

// Event implements DiagnosticSink.
func (NopDiagnostics) Event(string, map[string]string) {}

// SlogDiagnostics forwards events to a structured logger at debug level.
type SlogDiagnostics struct {
	Log *slog.Logger
}

// Event implements DiagnosticSink.
func (d SlogDiagnostics) Event(stage string, fields map[string]string) {
	logger := d.Log
	if logger == nil {
		logger = slog.Default()
	}
	attrs := make([]any, 0, 2+2*len(fields))
	attrs = append(attrs, "stage", stage)
	for key, value := range fields {
		attrs = append(attrs, key, value)
	}
	logger.Debug("origination step", attrs...)
}
