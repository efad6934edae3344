package machine

import (
	"context"
	"log/slog"
	"time"

	"github.com/amp-labs/vending/logger"
	"github.com/amp-labs/vending/statemachine"
)

// loggerFor returns the machine's logger for ctx.
func (m *Machine) loggerFor(ctx context.Context) *slog.Logger {
	log := logger.From(m.log, ctx)

	if traceID, spanID := traceIDs(ctx); traceID != "" {
		log = log.With("trace_id", traceID, "span_id", spanID)
	}

	return log
}

func (m *Machine) logOutcome(ctx context.Context, out Outcome, elapsed time.Duration) {
	log := m.loggerFor(ctx)

	fields := []any{
		"event", out.Event.String(),
		"from", out.From.String(),
		"to", out.To.String(),
		"balance", out.Status.Balance.String(),
		"duration_us", elapsed.Microseconds(),
	}

	switch {
	case out.Kind() == statemachine.InvariantViolation:
		log.ErrorContext(ctx, "Transition rejected by invariant check",
			append(fields, "error", out.Reason.Cause)...)
	case !out.Accepted:
		fields = append(fields, "reason", out.Kind().String())
		if out.Reason.Needed.IsPositive() {
			fields = append(fields, "needed", out.Reason.Needed.String())
		}

		log.InfoContext(ctx, "Event declined", fields...)
	case out.NoOp:
		log.DebugContext(ctx, "Event accepted without change", fields...)
	default:
		if out.Sold != nil {
			fields = append(fields, "item", out.Sold.ID, "change", out.Change.String())
		}

		if out.Refund.IsPositive() {
			fields = append(fields, "refund", out.Refund.String())
		}

		log.InfoContext(ctx, "Event accepted", fields...)
	}
}
