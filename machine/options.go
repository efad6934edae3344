package machine

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Option configures a Machine.
type Option func(*Machine)

// WithID sets the machine id used in logs, traces and metric labels. The
// default is a random UUID.
func WithID(id string) Option {
	return func(m *Machine) {
		if id != "" {
			m.id = id
		}
	}
}

// WithLogger makes the machine log through base instead of the default logger.
func WithLogger(base *slog.Logger) Option {
	return func(m *Machine) {
		m.log = base
	}
}

// WithTracer sets the tracer for dispatch spans. The default is the global
// tracer provider's "vending/machine" tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Machine) {
		if tracer != nil {
			m.tracer = tracer
		}
	}
}
