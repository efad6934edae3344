package machine

import (
	"context"

	"github.com/amp-labs/vending/statemachine"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "vending/machine"

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// startDispatchSpan creates the span covering one Dispatch.
// The caller is responsible for calling span.End().
//
//nolint:spancheck // Span lifecycle managed by caller
func (m *Machine) startDispatchSpan(ctx context.Context, ev statemachine.Event) (context.Context, trace.Span) {
	ctx, span := m.tracer.Start(ctx, "vending.dispatch",
		trace.WithAttributes(
			attribute.String("vending.machine_id_hash", m.label),
			attribute.String("vending.event", ev.Kind.String()),
		),
	)

	if ev.Kind == statemachine.InsertCoinEvent {
		span.SetAttributes(attribute.Int64("vending.amount_cents", ev.Amount.Cents()))
	}

	if ev.Kind == statemachine.SelectProductEvent {
		span.SetAttributes(attribute.String("vending.item", ev.ItemID))
	}

	return ctx, span
}

// finishDispatchSpan records the outcome on span. Declines are a normal
// result; only invariant violations mark the span as an error.
func finishDispatchSpan(span trace.Span, out Outcome) {
	span.SetAttributes(
		attribute.String("vending.from_state", out.From.String()),
		attribute.String("vending.to_state", out.To.String()),
		attribute.String("vending.outcome", out.outcomeLabel()),
		attribute.Int64("vending.balance_cents", out.Status.Balance.Cents()),
	)

	if out.Reason != nil {
		span.SetAttributes(attribute.String("vending.decline_reason", out.Reason.Kind.String()))
	}

	if out.Kind() == statemachine.InvariantViolation {
		span.RecordError(out.Reason)
		span.SetStatus(codes.Error, out.Reason.Error())
	}
}

// traceIDs extracts trace and span ids from ctx for log correlation.
func traceIDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return "", ""
	}

	return sc.TraceID().String(), sc.SpanID().String()
}
