package machine

import (
	"strconv"

	"github.com/amp-labs/vending/statemachine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zeebo/xxh3"
)

// Metric definitions. Every vector is labelled with a short hash of the
// machine id so many machines (and parallel tests) do not collide.
var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "vending_events_total",
		Help: "Events dispatched by kind, state at dispatch, and outcome (accepted, declined, noop)",
	}, []string{"machine", "event", "state", "outcome"})

	declinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "vending_declines_total",
		Help: "Declined events by reason",
	}, []string{"machine", "reason"})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "vending_transitions_total",
		Help: "State changes by from_state and to_state",
	}, []string{"machine", "from_state", "to_state"})

	salesTotal = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "vending_sales_total",
		Help: "Items dispensed",
	}, []string{"machine", "item"})

	revenueCents = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "vending_revenue_cents_total",
		Help: "Revenue from dispensed items, in cents",
	}, []string{"machine", "item"})

	coinsCents = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "vending_coins_cents_total",
		Help: "Money accepted from customers, in cents",
	}, []string{"machine"})

	returnedCents = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "vending_returned_cents_total",
		Help: "Money handed back to customers, in cents, by kind (change, refund)",
	}, []string{"machine", "kind"})

	discardedCents = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "vending_discarded_cents_total",
		Help: "Balance dropped by an operator reset, in cents",
	}, []string{"machine"})

	invariantViolations = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "vending_invariant_violations_total",
		Help: "Proposed transitions rejected by the invariant check",
	}, []string{"machine"})

	balanceCents = promauto.NewGaugeVec(prometheus.GaugeOpts{ //nolint:gochecknoglobals
		Name: "vending_balance_cents",
		Help: "Current balance held by the machine, in cents",
	}, []string{"machine"})

	currentState = promauto.NewGaugeVec(prometheus.GaugeOpts{ //nolint:gochecknoglobals
		Name: "vending_state",
		Help: "1 for the machine's current state, 0 for the others",
	}, []string{"machine", "state"})

	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{ //nolint:gochecknoglobals
		Name:    "vending_dispatch_duration_seconds",
		Help:    "Time spent dispatching one event, including waiting for the machine lock",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
	}, []string{"machine", "event"})

	ownerProcessed = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "vending_owner_processed_total",
		Help: "Requests processed by the owner goroutine",
	}, []string{"machine"})

	ownerPanics = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
		Name: "vending_owner_panics_total",
		Help: "Requests that panicked inside the owner goroutine",
	}, []string{"machine"})

	ownerQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{ //nolint:gochecknoglobals
		Name: "vending_owner_queue_depth",
		Help: "Requests waiting in the owner mailbox",
	}, []string{"machine"})

	ownerAlive = promauto.NewGaugeVec(prometheus.GaugeOpts{ //nolint:gochecknoglobals
		Name: "vending_owner_alive",
		Help: "Owner goroutines currently running",
	}, []string{"machine"})
)

// machineLabel hashes a machine id into a short label value.
func machineLabel(id string) string {
	if id == "" {
		return "unknown"
	}

	return strconv.FormatUint(xxh3.HashString(id), 16)
}

func recordOutcome(label string, out Outcome, seconds float64) {
	event := out.Event.Kind.String()

	eventsTotal.WithLabelValues(label, event, out.From.String(), out.outcomeLabel()).Inc()
	dispatchDuration.WithLabelValues(label, event).Observe(seconds)

	if !out.Accepted {
		declinesTotal.WithLabelValues(label, out.Kind().String()).Inc()

		if out.Kind() == statemachine.InvariantViolation {
			invariantViolations.WithLabelValues(label).Inc()
		}

		return
	}

	if out.Event.Kind == statemachine.InsertCoinEvent {
		coinsCents.WithLabelValues(label).Add(float64(out.Event.Amount.Cents()))
	}

	if out.Sold != nil {
		salesTotal.WithLabelValues(label, out.Sold.ID).Inc()
		revenueCents.WithLabelValues(label, out.Sold.ID).Add(float64(out.Sold.Price.Cents()))
	}

	if out.Change.IsPositive() {
		returnedCents.WithLabelValues(label, "change").Add(float64(out.Change.Cents()))
	}

	if out.Refund.IsPositive() {
		returnedCents.WithLabelValues(label, "refund").Add(float64(out.Refund.Cents()))
	}

	if out.Transitioned() {
		transitionsTotal.WithLabelValues(label, out.From.String(), out.To.String()).Inc()
	}
}

func recordStatus(label string, status Status) {
	balanceCents.WithLabelValues(label).Set(float64(status.Balance.Cents()))

	for _, s := range statemachine.States() {
		val := 0.0
		if s == status.State {
			val = 1
		}

		currentState.WithLabelValues(label, s.String()).Set(val)
	}
}
